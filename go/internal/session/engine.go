package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/clock"
	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/ratelimit"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 20
)

// Deps are the engine collaborators. Transport, Clock and Bank are required;
// the rest fall back to no-ops.
type Deps struct {
	Clock     clock.Clock
	Limiter   *ratelimit.Limiter
	Metrics   Metrics
	Transport Transport
	Bank      QuestionBank
	Store     Store
	History   History
	Bridge    ChatBridge
}

// Engine routes connection events to sessions.
type Engine struct {
	cfg       Config
	clock     clock.Clock
	limiter   *ratelimit.Limiter
	metrics   Metrics
	transport Transport
	bank      QuestionBank
	store     Store
	history   History
	bridge    ChatBridge

	registry *Registry

	connsMu sync.RWMutex
	conns   map[string]string // connection id -> session code

	effects sync.WaitGroup
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Clock == nil {
		return nil, errors.New("session engine: clock is required")
	}
	if deps.Transport == nil {
		return nil, errors.New("session engine: transport is required")
	}
	if deps.Bank == nil {
		return nil, errors.New("session engine: question bank is required")
	}

	e := &Engine{
		cfg:       cfg.withDefaults(),
		clock:     deps.Clock,
		limiter:   deps.Limiter,
		metrics:   deps.Metrics,
		transport: deps.Transport,
		bank:      deps.Bank,
		store:     deps.Store,
		history:   deps.History,
		bridge:    deps.Bridge,
		registry:  NewRegistry(),
		conns:     make(map[string]string),
	}
	if e.limiter == nil {
		e.limiter = ratelimit.New(deps.Clock)
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.store == nil {
		e.store = nopStore{}
	}
	if e.history == nil {
		e.history = nopHistory{}
	}
	if e.bridge == nil {
		e.bridge = nopBridge{}
	}
	return e, nil
}

// Registry exposes the session registry for read-only inspection.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Handle dispatches one validated inbound message from connID.
func (e *Engine) Handle(ctx context.Context, connID string, id Identity, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.JoinSession:
		e.join(ctx, connID, id, m)
	case protocol.SubmitAnswer:
		e.submitAnswer(connID, m)
	case protocol.Reaction:
		e.react(connID, m)
	case protocol.StartQuestion:
		e.hostCommand(connID, m, func(s *Session) Reason { return s.startQuestion() })
	case protocol.ForceReveal:
		e.hostCommand(connID, m, func(s *Session) Reason { return s.forceReveal() })
	case protocol.AdvanceNext:
		e.hostCommand(connID, m, func(s *Session) Reason { return s.advanceNext() })
	case protocol.ToggleAutoNext:
		e.hostCommand(connID, m, func(s *Session) Reason { return s.toggleAutoNext(*m.Enabled) })
	case protocol.ToggleSpectatorReactions:
		e.hostCommand(connID, m, func(s *Session) Reason { return s.toggleSpectatorReactions(*m.Enabled) })
	case protocol.TransferHost:
		e.hostCommand(connID, m, func(s *Session) Reason { return s.transferHost(m.TargetPlayerID) })
	default:
		log.Warn().Str("conn_id", connID).Str("type", string(msg.MessageType())).Msg("unhandled message type")
	}
}

// Disconnect removes connID from whatever session it joined.
func (e *Engine) Disconnect(connID string) {
	code, ok := e.unbind(connID)
	if !ok {
		return
	}
	s, ok := e.registry.Get(code)
	if !ok {
		return
	}
	if err := s.call(func() { s.leave(connID) }); err != nil {
		log.Debug().Err(err).Str("code", code).Str("conn_id", connID).Msg("disconnect after session closed")
	}
}

// EnsureSession returns the code of a session for quizID, creating it when
// needed. An empty code allocates a new one.
func (e *Engine) EnsureSession(ctx context.Context, quizID, code string) (string, error) {
	code = normalizeCode(code)
	if code == "" {
		var err error
		if code, err = e.newCode(ctx); err != nil {
			return "", err
		}
	}
	if _, err := e.ensure(ctx, code, quizID); err != nil {
		return "", err
	}
	return code, nil
}

// SubmitExternal injects an answer from the chat bridge on behalf of an
// external participant. An empty questionID targets the open question.
func (e *Engine) SubmitExternal(code, externalID, nickname, questionID string, answer quiz.Answer) (AnswerOutcome, error) {
	s, ok := e.registry.Get(normalizeCode(code))
	if !ok {
		return AnswerOutcome{Reason: ReasonUnknownSession}, ErrUnknownSession
	}
	if answer == nil || externalID == "" {
		return AnswerOutcome{Reason: ReasonInvalidPayload}, errors.New("external answer needs a player id and an answer")
	}

	var out AnswerOutcome
	err := s.call(func() {
		out = s.submitExternal(externalID, nickname, questionID, answer)
	})
	if err != nil {
		return AnswerOutcome{Reason: ReasonUnknownSession}, ErrUnknownSession
	}
	if out.Accepted {
		e.metrics.Inc(metrics.BridgeAnswersInjected)
	}
	return out, nil
}

func (e *Engine) join(ctx context.Context, connID string, id Identity, m protocol.JoinSession) {
	code := normalizeCode(m.Code)
	assigned := false
	if code == "" {
		var err error
		if code, err = e.newCode(ctx); err != nil {
			log.Error().Err(err).Str("conn_id", connID).Msg("failed to allocate session code")
			e.transport.Send(connID, protocol.TypeError, protocol.ErrorMessage{Code: "internal_error"})
			return
		}
		assigned = true
	}

	for attempt := 0; attempt < 2; attempt++ {
		s, err := e.ensure(ctx, code, m.QuizID)
		if err != nil {
			reason := ReasonUnknownSession
			if errors.Is(err, ErrQuizMismatch) {
				reason = ReasonQuizMismatch
			}
			log.Warn().Err(err).Str("code", code).Str("quiz_id", m.QuizID).Msg("join rejected")
			e.transport.Send(connID, protocol.RejectedType(protocol.TypeJoinSession), protocol.Rejected{
				Code:    string(reason),
				Message: err.Error(),
			})
			return
		}

		if prev, ok := e.lookup(connID); ok && prev != code {
			e.Disconnect(connID)
		}
		e.bind(connID, code)

		if assigned && attempt == 0 {
			e.transport.Send(connID, protocol.TypeSessionCodeAssigned, protocol.SessionCodeAssigned{Code: code})
		}

		err = s.call(func() { s.join(connID, id, m.Nickname, m.Spectator) })
		if err == nil {
			return
		}
		// Evicted between lookup and join; build it again.
		e.unbind(connID)
	}
	e.transport.Send(connID, protocol.TypeError, protocol.ErrorMessage{Code: "internal_error"})
}

func (e *Engine) submitAnswer(connID string, m protocol.SubmitAnswer) {
	s := e.resolve(connID, m.Code)
	if s == nil {
		e.metrics.Inc(metrics.AnswersRejected)
		e.transport.Send(connID, protocol.TypeAnswerAck, protocol.AnswerAck{
			QuestionID: m.QuestionID,
			Reason:     string(ReasonUnknownSession),
		})
		return
	}
	if err := s.call(func() { s.submitFromConn(connID, m) }); err != nil {
		e.transport.Send(connID, protocol.TypeAnswerAck, protocol.AnswerAck{
			QuestionID: m.QuestionID,
			Reason:     string(ReasonUnknownSession),
		})
	}
}

func (e *Engine) react(connID string, m protocol.Reaction) {
	s := e.resolve(connID, m.Code)
	if s == nil {
		e.transport.Send(connID, protocol.RejectedType(protocol.TypeReaction), protocol.Rejected{Code: string(ReasonUnknownSession)})
		return
	}
	if err := s.call(func() { s.react(connID, m.Emoji) }); err != nil {
		e.transport.Send(connID, protocol.RejectedType(protocol.TypeReaction), protocol.Rejected{Code: string(ReasonUnknownSession)})
	}
}

// hostCommand checks host authority and phase through fn on the actor.
func (e *Engine) hostCommand(connID string, m protocol.Addressed, fn func(s *Session) Reason) {
	action := m.MessageType()
	s := e.resolve(connID, m.SessionCode())
	if s == nil {
		e.transport.Send(connID, protocol.RejectedType(action), protocol.Rejected{Code: string(ReasonUnknownSession)})
		return
	}

	err := s.call(func() {
		if connID != s.hostID {
			e.metrics.Inc(metrics.HostRejections)
			s.reject(connID, action, ReasonNotHost, "")
			return
		}
		if reason := fn(s); reason != "" {
			e.metrics.Inc(metrics.HostRejections)
			s.reject(connID, action, reason, "")
			return
		}
		s.lastActivity = e.clock.Now()
	})
	if err != nil {
		e.transport.Send(connID, protocol.RejectedType(action), protocol.Rejected{Code: string(ReasonUnknownSession)})
	}
}

// resolve finds the session addressed by code, or the one connID joined.
func (e *Engine) resolve(connID, code string) *Session {
	code = normalizeCode(code)
	if code == "" {
		var ok bool
		if code, ok = e.lookup(connID); !ok {
			return nil
		}
	}
	s, ok := e.registry.Get(code)
	if !ok {
		return nil
	}
	return s
}

func (e *Engine) ensure(ctx context.Context, code, quizID string) (*Session, error) {
	s, err := e.registry.CreateOrGet(code, func() (*Session, error) {
		return e.create(ctx, code, quizID)
	})
	if err != nil {
		return nil, err
	}
	if s.quizID != quizID {
		return nil, fmt.Errorf("%w: %s", ErrQuizMismatch, code)
	}
	return s, nil
}

func (e *Engine) create(ctx context.Context, code, quizID string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SideEffectTimeout)
	defer cancel()

	cfg, found, err := e.store.LoadSessionConfig(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("failed to load persisted session config")
	}
	if found && cfg.QuizID != "" && cfg.QuizID != quizID {
		return nil, fmt.Errorf("%w: %s", ErrQuizMismatch, code)
	}

	questions, err := e.bank.LoadQuestions(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions for %s: %w", quizID, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyQuiz, quizID)
	}

	s := newSession(e, code, quizID, questions, cfg)
	rec := s.record()
	go s.run()

	e.metrics.Inc(metrics.SessionsCreated)
	e.metrics.AddGauge(metrics.SessionsActive, 1)
	e.persist(code, "save session", func(ctx context.Context, st Store) error {
		return st.SaveSession(ctx, rec)
	})

	log.Info().
		Str("code", code).
		Str("quiz_id", quizID).
		Int("questions", len(questions)).
		Bool("restored_config", found).
		Msg("session created")
	return s, nil
}

// evict removes s from the registry. Must run on the actor of s.
func (e *Engine) evict(s *Session, why string) {
	if !e.registry.Remove(s.code, s) {
		return
	}
	s.stop()
	e.metrics.Inc(metrics.SessionsEvicted)
	e.metrics.AddGauge(metrics.SessionsActive, -1)
	log.Info().Str("code", s.code).Str("reason", why).Msg("session evicted")
}

func (e *Engine) newCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := randomCode()
		if e.registry.Has(code) {
			continue
		}
		exists, err := e.store.CodeExists(ctx, code)
		if err != nil {
			log.Warn().Err(err).Str("code", code).Msg("code collision check failed")
			continue
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (e *Engine) bind(connID, code string) {
	e.connsMu.Lock()
	e.conns[connID] = code
	e.connsMu.Unlock()
}

func (e *Engine) unbind(connID string) (string, bool) {
	e.connsMu.Lock()
	defer e.connsMu.Unlock()
	code, ok := e.conns[connID]
	delete(e.conns, connID)
	return code, ok
}

func (e *Engine) lookup(connID string) (string, bool) {
	e.connsMu.RLock()
	defer e.connsMu.RUnlock()
	code, ok := e.conns[connID]
	return code, ok
}

// Run sweeps expired snapshots, aged-out sessions and stale rate limiter
// buckets until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.cfg.SweepInterval).Msg("session sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session sweeper stopped")
			return
		case <-ticker.Chan():
			e.Sweep()
		}
	}
}

// Sweep queues a sweep on every session.
func (e *Engine) Sweep() {
	for _, s := range e.registry.Sessions() {
		s.do(s.sweep)
	}
	if n := e.limiter.Sweep(); n > 0 {
		log.Debug().Int("buckets", n).Int("remaining", e.limiter.Len()).Msg("rate limiter buckets swept")
	}
}

// Close stops every session and waits for in-flight side effects.
func (e *Engine) Close() {
	for _, s := range e.registry.Sessions() {
		s.call(func() { e.evict(s, "shutdown") })
	}
	e.effects.Wait()
}

// persist runs a best-effort write-through call off the actor.
func (e *Engine) persist(code, what string, fn func(ctx context.Context, st Store) error) {
	e.sideEffect(code, what, func(ctx context.Context) error { return fn(ctx, e.store) })
}

func (e *Engine) sideEffect(code, what string, fn func(ctx context.Context) error) {
	e.effects.Add(1)
	go func() {
		defer e.effects.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SideEffectTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			e.metrics.Inc(metrics.SideEffectFailures)
			log.Error().
				Err(err).
				Str("code", code).
				Str("side_effect", what).
				Msg("best-effort side effect failed")
		}
	}()
}
