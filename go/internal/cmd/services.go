package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/admin"
	"github.com/mcdev12/quizarena/go/internal/bridge"
	"github.com/mcdev12/quizarena/go/internal/clock"
	"github.com/mcdev12/quizarena/go/internal/config"
	"github.com/mcdev12/quizarena/go/internal/events"
	"github.com/mcdev12/quizarena/go/internal/gateway"
	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/ratelimit"
	"github.com/mcdev12/quizarena/go/internal/session"
	"github.com/mcdev12/quizarena/go/internal/store"
)

type Services struct {
	Metrics *metrics.Registry
	Gateway *gateway.Service
	Engine  *session.Engine
	Admin   *admin.Service
	Bridge  *bridge.Bridge

	db   *sql.DB
	nats *nats.Conn
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Collaborators → Gateway (transport) → Engine → Gateway.Attach
	svcs := &Services{}

	reg := metrics.NewRegistry(cfg.MetricsNamespace, cfg.MetricsResetToken)
	metrics.RegisterDefaults(reg)
	svcs.Metrics = reg

	clk := clock.NewReal(cfg.ClockScale)
	deps := session.Deps{
		Clock:   clk,
		Limiter: ratelimit.New(clk),
		Metrics: reg,
	}

	// Questions and persistence
	if cfg.DatabaseEnabled {
		database, err := setupDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		svcs.db = database
		repo := store.NewRepository(database)
		deps.Store = repo
		deps.Bank = repo
	}
	if cfg.QuizFile != "" {
		bank, err := loadBankFile(cfg.QuizFile)
		if err != nil {
			svcs.Close()
			return nil, err
		}
		deps.Bank = bank
	}

	// History and chat bridge
	if cfg.NATSURL != "" {
		connCfg := events.DefaultConnConfig()
		connCfg.URL = cfg.NATSURL
		nc, err := events.Connect(connCfg)
		if err != nil {
			svcs.Close()
			return nil, err
		}
		svcs.nats = nc

		histCfg := events.DefaultHistoryConfig()
		histCfg.StreamName = cfg.NATSStream
		histCfg.SubjectPrefix = cfg.HistoryPrefix
		history, err := events.NewHistoryPublisher(ctx, nc, histCfg)
		if err != nil {
			svcs.Close()
			return nil, fmt.Errorf("failed to set up history publisher: %w", err)
		}
		deps.History = history
	} else {
		log.Warn().Msg("NATS_URL not set, game history and chat bridge disabled")
	}

	// Gateway first: the engine sends through its connection manager
	gwCfg := gateway.DefaultConfig()
	gwCfg.JWTSecret = cfg.JWTSecret
	gwCfg.ConnectionConfig.MaxMessageSize = cfg.MaxMessageSize
	gwCfg.ConnectionConfig.SendBufferSize = cfg.SendBufferSize
	gw := gateway.NewService(gwCfg, reg)
	deps.Transport = gw.Transport()
	svcs.Gateway = gw

	if svcs.nats != nil && cfg.BridgeEnabled {
		svcs.Bridge = bridge.New(svcs.nats, bridge.Config{SubjectPrefix: cfg.BridgePrefix}, clk, gw.Validator())
		deps.Bridge = svcs.Bridge
	}

	engine, err := session.NewEngine(cfg.Session, deps)
	if err != nil {
		svcs.Close()
		return nil, fmt.Errorf("failed to create session engine: %w", err)
	}
	svcs.Engine = engine
	gw.Attach(engine)

	var links admin.Links
	if svcs.Bridge != nil {
		if err := svcs.Bridge.Start(engine); err != nil {
			svcs.Close()
			return nil, fmt.Errorf("failed to start chat bridge: %w", err)
		}
		links = svcs.Bridge
	}
	svcs.Admin = admin.NewService(engine, reg, links, gw.Validator())

	return svcs, nil
}

// Close tears down in dependency order: connections, sessions, then
// external clients.
func (s *Services) Close() {
	if s.Gateway != nil {
		s.Gateway.Stop()
	}
	if s.Bridge != nil {
		if err := s.Bridge.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop chat bridge")
		}
	}
	if s.Engine != nil {
		s.Engine.Close()
	}
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
