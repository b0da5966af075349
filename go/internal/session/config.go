package session

import (
	"time"

	"github.com/mcdev12/quizarena/go/internal/ratelimit"
)

// Config tunes session lifetimes and throttles. Durations are game time.
type Config struct {
	DetachedTTL       time.Duration
	FinishedTTL       time.Duration
	IdleTTL           time.Duration
	AutoNextDelay     time.Duration
	SweepInterval     time.Duration
	SideEffectTimeout time.Duration
	AnswerRule        ratelimit.Rule
	ReactionRule      ratelimit.Rule
	InboxSize         int
}

func DefaultConfig() Config {
	return Config{
		DetachedTTL:       10 * time.Minute,
		FinishedTTL:       30 * time.Minute,
		IdleTTL:           2 * time.Hour,
		AutoNextDelay:     5 * time.Second,
		SweepInterval:     30 * time.Second,
		SideEffectTimeout: 5 * time.Second,
		AnswerRule:        ratelimit.Rule{Window: time.Second, Max: 3},
		ReactionRule:      ratelimit.Rule{Window: 2 * time.Second, Max: 5},
		InboxSize:         256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DetachedTTL <= 0 {
		c.DetachedTTL = d.DetachedTTL
	}
	if c.FinishedTTL <= 0 {
		c.FinishedTTL = d.FinishedTTL
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.AutoNextDelay < 0 {
		c.AutoNextDelay = d.AutoNextDelay
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = d.SideEffectTimeout
	}
	if c.AnswerRule.Window <= 0 || c.AnswerRule.Max <= 0 {
		c.AnswerRule = d.AnswerRule
	}
	if c.ReactionRule.Window <= 0 || c.ReactionRule.Max <= 0 {
		c.ReactionRule = d.ReactionRule
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	return c
}
