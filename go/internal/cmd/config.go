package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/config"
	"github.com/mcdev12/quizarena/go/internal/quiz"
)

func setupLogging(cfg *config.Config) {
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func loadBankFile(path string) (*quiz.MemoryBank, error) {
	quizzes, err := quiz.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz bank: %w", err)
	}

	bank := quiz.NewMemoryBank(quizzes...)
	log.Info().
		Str("file", path).
		Strs("quizzes", bank.IDs()).
		Msg("quiz bank loaded")
	return bank, nil
}
