package session

import (
	"context"
	"time"
)

type nopStore struct{}

func (nopStore) CodeExists(context.Context, string) (bool, error) { return false, nil }
func (nopStore) LoadSessionConfig(context.Context, string) (SessionConfig, bool, error) {
	return SessionConfig{}, false, nil
}
func (nopStore) SaveSession(context.Context, SessionRecord) error          { return nil }
func (nopStore) SavePlayer(context.Context, PlayerRecord) error            { return nil }
func (nopStore) SaveAnswer(context.Context, AnswerRecord) error            { return nil }
func (nopStore) SaveResults(context.Context, string, []PlayerResult) error { return nil }

type nopHistory struct{}

func (nopHistory) RecordGame(context.Context, GameRecord) error { return nil }

type nopBridge struct{}

func (nopBridge) Push(context.Context, string, Update) error { return nil }

type nopMetrics struct{}

func (nopMetrics) Inc(string)                            {}
func (nopMetrics) Dec(string)                            {}
func (nopMetrics) AddGauge(string, float64)              {}
func (nopMetrics) ObserveDuration(string, time.Duration) {}
