package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yagpt/gateway/internal/api/v1/handlers"
	"github.com/yagpt/gateway/internal/connections"
	"github.com/yagpt/gateway/internal/services"
	"github.com/yagpt/gateway/pkg/httpext"
)

func setupRouter(gateway handlers.Gateway, manager *connections.Manager) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpext.Json(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	handlers.RegisterV1Routes(r, gateway, manager)

	return r
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := services.InitializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svcs.Close()

	// Fail fast on bad credentials before accepting traffic
	tokenCtx, cancel := context.WithTimeout(ctx, cfg.Yandex.TokenTimeout)
	token, err := svcs.GetIAMService().Token(tokenCtx)
	cancel()
	if err != nil {
		return err
	}
	log.Info().Time("expires_at", token.ExpiresAt).Msg("IAM token check passed")

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           setupRouter(svcs.GetGatewayService(), connections.NewManager(connections.DefaultTimeouts)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
