// Package config loads process settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/dbconfig"
	"github.com/mcdev12/quizarena/go/internal/ratelimit"
	"github.com/mcdev12/quizarena/go/internal/session"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// ClockScale multiplies every game duration; 0.1 runs ten times faster.
	ClockScale float64
	Session    session.Config

	MetricsNamespace  string
	MetricsResetToken string
	JWTSecret         string
	CORSOrigins       []string
	MaxMessageSize    int64
	SendBufferSize    int

	// QuizFile is the YAML bank; with the database enabled and no file,
	// questions come from Postgres.
	QuizFile        string
	DatabaseEnabled bool
	Database        dbconfig.Config

	NATSURL       string
	NATSStream    string
	HistoryPrefix string
	BridgeEnabled bool
	BridgePrefix  string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	defaults := session.DefaultConfig()
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		ClockScale: getEnvAsFloat("CLOCK_SCALE", 1),
		Session: session.Config{
			DetachedTTL:       getEnvAsDuration("DETACHED_TTL", defaults.DetachedTTL),
			FinishedTTL:       getEnvAsDuration("FINISHED_SESSION_TTL", defaults.FinishedTTL),
			IdleTTL:           getEnvAsDuration("IDLE_SESSION_TTL", defaults.IdleTTL),
			AutoNextDelay:     getEnvAsDuration("AUTO_NEXT_DELAY", defaults.AutoNextDelay),
			SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", defaults.SweepInterval),
			SideEffectTimeout: getEnvAsDuration("SIDE_EFFECT_TIMEOUT", defaults.SideEffectTimeout),
			AnswerRule: ratelimit.Rule{
				Max:    getEnvAsInt("ANSWER_RATE_MAX", defaults.AnswerRule.Max),
				Window: getEnvAsDuration("ANSWER_RATE_WINDOW", defaults.AnswerRule.Window),
			},
			ReactionRule: ratelimit.Rule{
				Max:    getEnvAsInt("REACTION_RATE_MAX", defaults.ReactionRule.Max),
				Window: getEnvAsDuration("REACTION_RATE_WINDOW", defaults.ReactionRule.Window),
			},
			InboxSize: getEnvAsInt("SESSION_INBOX_SIZE", defaults.InboxSize),
		},

		MetricsNamespace:  getEnv("METRICS_NAMESPACE", "quizarena"),
		MetricsResetToken: os.Getenv("METRICS_RESET_TOKEN"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CORSOrigins:       getEnvAsList("CORS_ORIGINS"),
		MaxMessageSize:    int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 4096)),
		SendBufferSize:    getEnvAsInt("WS_SEND_BUFFER", 256),

		QuizFile:        os.Getenv("QUIZ_FILE"),
		DatabaseEnabled: getEnvAsBool("DATABASE_ENABLED", false),
		Database:        dbconfig.NewConfigFromEnv(),

		NATSURL:       os.Getenv("NATS_URL"),
		NATSStream:    getEnv("NATS_STREAM", "QUIZ_HISTORY"),
		HistoryPrefix: getEnv("NATS_HISTORY_PREFIX", "quiz.history"),
		BridgeEnabled: getEnvAsBool("BRIDGE_ENABLED", true),
		BridgePrefix:  getEnv("BRIDGE_SUBJECT_PREFIX", "quiz.bridge"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClockScale <= 0 {
		return fmt.Errorf("CLOCK_SCALE must be positive, got %v", c.ClockScale)
	}
	if c.QuizFile == "" && !c.DatabaseEnabled {
		return fmt.Errorf("no question source: set QUIZ_FILE or DATABASE_ENABLED=true")
	}
	if c.Session.AnswerRule.Max <= 0 || c.Session.ReactionRule.Max <= 0 {
		return fmt.Errorf("rate limit maximums must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid integer, using default")
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid number, using default")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid boolean, using default")
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
