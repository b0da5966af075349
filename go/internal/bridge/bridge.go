// Package bridge relays live sessions to external chat channels over NATS.
// Linked sessions publish rendered text on <prefix>.<code>.out and accept
// answers on <prefix>.<code>.in.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/clock"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/session"
)

var ErrNotLinked = errors.New("session is not linked to a chat")

// Submitter injects answers into a live session.
type Submitter interface {
	SubmitExternal(code, externalID, nickname, questionID string, answer quiz.Answer) (session.AnswerOutcome, error)
}

type Config struct {
	SubjectPrefix string
}

func DefaultConfig() Config {
	return Config{SubjectPrefix: "quiz.bridge"}
}

// Link binds a session code to one external channel.
type Link struct {
	Code      string    `json:"code"`
	ChannelID string    `json:"channelId"`
	LinkedAt  time.Time `json:"linkedAt"`

	question *quiz.PublicQuestion
}

// Bridge implements session.ChatBridge.
type Bridge struct {
	config  Config
	clock   clock.Clock
	publish func(subject string, data []byte) error
	nc      *nats.Conn

	mu    sync.RWMutex
	links map[string]*Link

	validator *protocol.Validator
	submitter Submitter
	sub       *nats.Subscription
}

var _ session.ChatBridge = (*Bridge)(nil)

func New(nc *nats.Conn, cfg Config, clk clock.Clock, v *protocol.Validator) *Bridge {
	b := newBridge(cfg, clk, v, nc.Publish)
	b.nc = nc
	return b
}

func newBridge(cfg Config, clk clock.Clock, v *protocol.Validator, publish func(string, []byte) error) *Bridge {
	return &Bridge{
		config:    cfg,
		clock:     clk,
		publish:   publish,
		links:     make(map[string]*Link),
		validator: v,
	}
}

// Link attaches code to channelID, replacing any previous link.
func (b *Bridge) Link(code, channelID string) Link {
	l := &Link{Code: strings.ToUpper(code), ChannelID: channelID, LinkedAt: b.clock.Now()}

	b.mu.Lock()
	b.links[l.Code] = l
	b.mu.Unlock()

	log.Info().Str("code", l.Code).Str("channel_id", channelID).Msg("chat linked")
	return *l
}

// Unlink removes the link for code and reports whether one existed.
func (b *Bridge) Unlink(code string) bool {
	code = strings.ToUpper(code)

	b.mu.Lock()
	_, ok := b.links[code]
	delete(b.links, code)
	b.mu.Unlock()

	if ok {
		log.Info().Str("code", code).Msg("chat unlinked")
	}
	return ok
}

// Links lists active links ordered by code.
func (b *Bridge) Links() []Link {
	b.mu.RLock()
	out := make([]Link, 0, len(b.links))
	for _, l := range b.links {
		out = append(out, *l)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (b *Bridge) link(code string) (Link, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.links[code]
	if !ok {
		return Link{}, false
	}
	return *l, true
}

// Outbound is published for every update of a linked session.
type Outbound struct {
	Code      string             `json:"code"`
	ChannelID string             `json:"channelId"`
	Kind      session.UpdateKind `json:"kind"`
	Text      string             `json:"text"`
	Buttons   []Button           `json:"buttons,omitempty"`
}

// Button is a one-tap answer; Data is accepted back on the inbound subject.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Push renders u and publishes it to the linked channel. Unlinked sessions
// are ignored.
func (b *Bridge) Push(_ context.Context, code string, u session.Update) error {
	b.mu.Lock()
	l, ok := b.links[code]
	if ok && u.Kind == session.UpdateQuestion {
		l.question = u.Question
	}
	var asked *quiz.PublicQuestion
	if ok {
		asked = l.question
	}
	channel := ""
	if ok {
		channel = l.ChannelID
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}

	out := Outbound{Code: code, ChannelID: channel, Kind: u.Kind}
	switch u.Kind {
	case session.UpdateQuestion:
		out.Text = FormatQuestion(u)
		out.Buttons = buttons(u.Question)
	case session.UpdateReveal:
		out.Text = FormatReveal(u, asked)
	case session.UpdateLeaderboard:
		out.Text = FormatLeaderboard(u.Leaderboard, 5)
	case session.UpdateFinished:
		out.Text = FormatFinished(u.Leaderboard)
	default:
		return fmt.Errorf("unknown update kind %q", u.Kind)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outbound: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.out", b.config.SubjectPrefix, code)
	if err := b.publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func buttons(q *quiz.PublicQuestion) []Button {
	if q == nil || q.Type == quiz.KindTextInput || q.Type == quiz.KindOrdering {
		return nil
	}
	out := make([]Button, 0, len(q.Options))
	for _, o := range q.Options {
		out = append(out, Button{Text: o.Text, Data: fmt.Sprintf("ans:%s:%s", q.ID, o.ID)})
	}
	return out
}

// Start subscribes to inbound answers of every linked session.
func (b *Bridge) Start(s Submitter) error {
	if b.nc == nil {
		return errors.New("bridge has no NATS connection")
	}
	b.submitter = s

	subject := fmt.Sprintf("%s.*.in", b.config.SubjectPrefix)
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		reply := b.handleInbound(msg.Subject, msg.Data)
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			log.Error().Err(err).Msg("marshal bridge reply")
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("bridge reply failed")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.sub = sub

	log.Info().Str("subject", subject).Msg("chat bridge listening")
	return nil
}

// Stop drops the inbound subscription.
func (b *Bridge) Stop() error {
	if b.sub == nil {
		return nil
	}
	if err := b.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	b.sub = nil
	return nil
}
