package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/session"
)

const EventGameFinished = "game_finished"

type HistoryConfig struct {
	StreamName      string
	SubjectPrefix   string
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		StreamName:      "QUIZ_HISTORY",
		SubjectPrefix:   "quiz.history",
		MaxAge:          30 * 24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// HistoryPublisher implements session.History on a JetStream stream. It
// does not own the NATS connection.
type HistoryPublisher struct {
	js     jetstream.JetStream
	config HistoryConfig
}

var _ session.History = (*HistoryPublisher)(nil)

func NewHistoryPublisher(ctx context.Context, nc *nats.Conn, cfg HistoryConfig) (*HistoryPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &HistoryPublisher{js: js, config: cfg}
	if err := p.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *HistoryPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Finished quiz games",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}
}

func (p *HistoryPublisher) ensureStream(ctx context.Context) error {
	sc := p.streamConfig()

	stream, err := p.js.Stream(ctx, sc.Name)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !sameLimits(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("updated JetStream stream")
	}
	return nil
}

// Envelope is the JSON body of a history message.
type Envelope struct {
	EventID     string             `json:"eventId"`
	EventType   string             `json:"eventType"`
	SessionCode string             `json:"sessionCode"`
	Timestamp   time.Time          `json:"timestamp"`
	Payload     session.GameRecord `json:"payload"`
}

// eventID is stable for one finished game so JetStream dedupes retries.
func eventID(rec session.GameRecord) uuid.UUID {
	name := rec.SessionCode + "|" + rec.FinishedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
}

// buildMessage renders rec into the message published on the stream.
func buildMessage(prefix string, rec session.GameRecord) (*nats.Msg, string, error) {
	id := eventID(rec).String()
	env := Envelope{
		EventID:     id,
		EventType:   EventGameFinished,
		SessionCode: rec.SessionCode,
		Timestamp:   rec.FinishedAt.UTC(),
		Payload:     rec,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, "", fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: fmt.Sprintf("%s.%s", prefix, EventGameFinished),
		Data:    data,
		Header: nats.Header{
			"Event-Type":   []string{EventGameFinished},
			"Session-Code": []string{rec.SessionCode},
			"Quiz-ID":      []string{rec.QuizID},
			"Event-ID":     []string{id},
		},
	}
	return msg, id, nil
}

// RecordGame publishes rec to the history stream.
func (p *HistoryPublisher) RecordGame(ctx context.Context, rec session.GameRecord) error {
	msg, id, err := buildMessage(p.config.SubjectPrefix, rec)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(id),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", msg.Subject).
		Str("event_id", id).
		Str("code", rec.SessionCode).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("game history published")
	return nil
}

func sameLimits(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
