package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/besitobot/economy/internal/services/dispatch"
	"github.com/besitobot/economy/internal/services/ledger"
	"github.com/besitobot/economy/internal/services/streak"
)

// NewServer creates and returns a configured *http.Server for the economy API.
func NewServer(port uint16, led *ledger.Service, st *streak.Service, dsp *dispatch.Service) *http.Server {
	mux := NewRouter(led, st, dsp)

	addr := fmt.Sprintf(":%d", port)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
