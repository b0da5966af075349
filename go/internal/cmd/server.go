package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/quizarena/go/internal/admin"
	"github.com/mcdev12/quizarena/go/internal/config"
	"github.com/mcdev12/quizarena/go/internal/gateway"
	"github.com/mcdev12/quizarena/go/internal/metrics"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Register services
	registerServices(mux, services)

	// Wrap with CORS
	handler := gateway.CORSMiddleware(cfg.CORSOrigins)(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Websocket, session state and health
	services.Gateway.RegisterRoutes(mux)

	// Metrics
	metrics.NewHandler(services.Metrics).RegisterRoutes(mux)

	// Admin RPC
	adminPath, adminHandler := admin.NewAdminServiceHandler(services.Admin)
	mux.Handle(adminPath, adminHandler)

	log.Info().Str("admin", adminPath).Msg("routes registered")
}
