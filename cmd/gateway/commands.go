package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yagpt/gateway/internal/config"
	"github.com/yagpt/gateway/internal/services"
	"github.com/yagpt/gateway/pkg/logger"
)

var (
	configPath string
	userID     string

	rootCmd = &cobra.Command{
		Use:           "gateway",
		Short:         "Conversational gateway to Yandex Foundation Models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket chat server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Fetch an IAM token to check service account credentials",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question through the gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	ragCmd = &cobra.Command{
		Use:   "rag [question]",
		Short: "Answer a single question from the document corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRAG,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	askCmd.Flags().StringVar(&userID, "user", "cli", "user id whose history is used")
	ragCmd.Flags().StringVar(&userID, "user", "cli", "user id recorded in logs")

	rootCmd.AddCommand(serveCmd, tokenCmd, askCmd, ragCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svcs, err := services.InitializeServices(cmd.Context(), withoutRAG(cfg))
	if err != nil {
		return err
	}
	defer svcs.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Yandex.TokenTimeout)
	defer cancel()

	token, err := svcs.GetIAMService().Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain IAM token: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "IAM token OK, cached until %s\n", token.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svcs, err := services.InitializeServices(cmd.Context(), withoutRAG(cfg))
	if err != nil {
		return err
	}
	defer svcs.Close()

	answer, err := svcs.GetGatewayService().Ask(cmd.Context(), strings.Join(args, " "), userID)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func runRAG(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cfg.RAG.Enabled = true
	if err := cfg.Validate(); err != nil {
		return err
	}

	svcs, err := services.InitializeServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svcs.Close()

	answer, err := svcs.GetGatewayService().RAGAnswer(cmd.Context(), strings.Join(args, " "), userID)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

// withoutRAG skips building the document index for commands that never search it
func withoutRAG(cfg *config.Config) *config.Config {
	c := *cfg
	c.RAG.Enabled = false
	return &c
}
