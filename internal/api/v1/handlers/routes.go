package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yagpt/gateway/internal/connections"
)

func RegisterV1Routes(router *mux.Router, gateway Gateway, manager *connections.Manager) {
	v1 := router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		HandleAsk(gateway, w, r)
	}).Methods("POST")
	v1.HandleFunc("/rag", func(w http.ResponseWriter, r *http.Request) {
		HandleRAG(gateway, w, r)
	}).Methods("POST")

	historyRouter := v1.PathPrefix("/history").Subrouter()
	historyRouter.HandleFunc("/{userID}", func(w http.ResponseWriter, r *http.Request) {
		HandleHistory(gateway, w, r)
	}).Methods("GET")
	historyRouter.HandleFunc("/{userID}", func(w http.ResponseWriter, r *http.Request) {
		HandleResetHistory(gateway, w, r)
	}).Methods("DELETE")

	v1.Handle("/ws", NewChatSocket(gateway, manager)).Methods("GET")
}
