package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/session"
)

// Engine is what the gateway needs from the session engine.
type Engine interface {
	MessageHandler
	StateProvider
}

type Config struct {
	ConnectionConfig ConnectionConfig
	// JWTSecret verifies player tokens. Empty enables development identities.
	JWTSecret string
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// Service is the websocket and HTTP front of the session engine.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	validator         *protocol.Validator
	auth              *Authenticator
}

// NewService builds the transport. The engine is attached afterwards since
// it needs the transport to be constructed.
func NewService(config Config, m Metrics) *Service {
	validator := protocol.NewValidator()
	auth := NewAuthenticator(config.JWTSecret)
	cm := NewConnectionManager(config.ConnectionConfig, validator, m)

	if config.JWTSecret == "" {
		log.Warn().Msg("JWT secret not set, trusting userId query parameter")
	}

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, auth),
		validator:         validator,
		auth:              auth,
	}
}

func (s *Service) Transport() session.Transport {
	return s.connectionManager
}

func (s *Service) Auth() *Authenticator {
	return s.auth
}

func (s *Service) Validator() *protocol.Validator {
	return s.validator
}

func (s *Service) Attach(engine Engine) {
	s.connectionManager.Bind(engine)
	s.stateHandler = NewStateHandler(engine, s.validator)
}

func (s *Service) Stop() {
	s.connectionManager.Close()
	log.Info().Msg("session gateway stopped")
}

// RegisterRoutes mounts the websocket, state and health routes. Attach must
// be called first.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	if s.stateHandler != nil {
		s.stateHandler.RegisterStateRoutes(mux)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	log.Info().Msg("session gateway routes registered")
}

func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
