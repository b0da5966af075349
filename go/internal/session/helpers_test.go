package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/quizarena/go/internal/clock"
	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
)

type sent struct {
	Type protocol.Type
	Data any
}

type recorder struct {
	mu   sync.Mutex
	msgs map[string][]sent
	down map[string]bool
}

func newRecorder() *recorder {
	return &recorder{msgs: make(map[string][]sent), down: make(map[string]bool)}
}

func (r *recorder) Send(connID string, t protocol.Type, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[connID] = append(r.msgs[connID], sent{Type: t, Data: data})
}

func (r *recorder) IsConnected(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.down[connID]
}

func (r *recorder) setDown(connID string) {
	r.mu.Lock()
	r.down[connID] = true
	r.mu.Unlock()
}

func (r *recorder) count(connID string, t protocol.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs[connID] {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(connID string, t protocol.Type) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.msgs[connID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == t {
			return msgs[i].Data, true
		}
	}
	return nil, false
}

func (r *recorder) lastAck(t *testing.T, connID string) protocol.AnswerAck {
	t.Helper()
	data, ok := r.last(connID, protocol.TypeAnswerAck)
	if !ok {
		t.Fatalf("no answer_ack sent to %s", connID)
	}
	return data.(protocol.AnswerAck)
}

func (r *recorder) lastRejected(t *testing.T, connID string, action protocol.Type) protocol.Rejected {
	t.Helper()
	data, ok := r.last(connID, protocol.RejectedType(action))
	if !ok {
		t.Fatalf("no %s_rejected sent to %s", action, connID)
	}
	return data.(protocol.Rejected)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []GameRecord
}

func (h *fakeHistory) RecordGame(_ context.Context, rec GameRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) all() []GameRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]GameRecord(nil), h.records...)
}

type sessionStore struct {
	nopStore
	mu       sync.Mutex
	sessions []SessionRecord
}

func (s *sessionStore) SaveSession(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, rec)
	return nil
}

func (s *sessionStore) saved() []SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SessionRecord(nil), s.sessions...)
}

type harness struct {
	t       *testing.T
	engine  *Engine
	fake    *clockwork.FakeClock
	rec     *recorder
	history *fakeHistory
	metrics *metrics.Registry
}

func mcQuestion(id string, limit time.Duration) quiz.Question {
	return quiz.MultipleChoice{
		Base: quiz.Base{ID: id, Prompt: "Pick " + id, TimeLimit: limit},
		Options: []quiz.Option{
			{ID: "a", Text: "right", Correct: true},
			{ID: "b", Text: "wrong"},
		},
	}
}

func testBank() *quiz.MemoryBank {
	return quiz.NewMemoryBank(
		quiz.Quiz{ID: "two", Questions: []quiz.Question{mcQuestion("q1", 2*time.Second), mcQuestion("q2", 2*time.Second)}},
		quiz.Quiz{ID: "other", Questions: []quiz.Question{mcQuestion("x1", time.Second)}},
		quiz.Quiz{ID: "order", Questions: []quiz.Question{
			quiz.Ordering{
				Base: quiz.Base{ID: "o1", Prompt: "Sort", TimeLimit: 10 * time.Second},
				Items: []quiz.Item{
					{ID: "a", Text: "first", Position: 0},
					{ID: "b", Text: "second", Position: 1},
					{ID: "c", Text: "third", Position: 2},
					{ID: "d", Text: "fourth", Position: 3},
				},
			},
		}},
	)
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessWithStore(t, cfg, nil)
}

func newHarnessWithStore(t *testing.T, cfg Config, store Store) *harness {
	t.Helper()
	fake := clockwork.NewFakeClock()
	rec := newRecorder()
	hist := &fakeHistory{}
	reg := metrics.NewRegistry("quiz", "")
	metrics.RegisterDefaults(reg)

	e, err := NewEngine(cfg, Deps{
		Clock:     clock.New(fake, 1),
		Transport: rec,
		Bank:      testBank(),
		Store:     store,
		History:   hist,
		Metrics:   reg,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	return &harness{t: t, engine: e, fake: fake, rec: rec, history: hist, metrics: reg}
}

func (h *harness) handle(connID, userID string, msg protocol.Inbound) {
	h.engine.Handle(context.Background(), connID, Identity{UserID: userID}, msg)
}

func (h *harness) join(connID, userID, code, quizID string) {
	h.handle(connID, userID, protocol.JoinSession{Code: code, QuizID: quizID, Nickname: connID})
}

func (h *harness) answer(connID, questionID, optionID string) protocol.AnswerAck {
	h.t.Helper()
	h.handle(connID, "", protocol.SubmitAnswer{QuestionID: questionID, OptionID: &optionID})
	return h.rec.lastAck(h.t, connID)
}

func (h *harness) inspect(code string, fn func(s *Session)) {
	h.t.Helper()
	s, ok := h.engine.registry.Get(code)
	if !ok {
		h.t.Fatalf("session %s not found", code)
	}
	if err := s.call(func() { fn(s) }); err != nil {
		h.t.Fatalf("inspect %s: %v", code, err)
	}
}

func (h *harness) phase(code string) Phase {
	var p Phase
	h.inspect(code, func(s *Session) { p = s.phase })
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func boolPtr(b bool) *bool { return &b }
