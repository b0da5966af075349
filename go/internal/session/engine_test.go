package session

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
)

const room = "ROOM01"

func TestFastCorrectAnswersRevealEarly(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")

	h.handle("c1", "u1", protocol.StartQuestion{Code: room})
	if got := h.rec.count("c2", protocol.TypeQuestionStarted); got != 1 {
		t.Fatalf("expected question_started, got %d", got)
	}

	h.fake.Advance(100 * time.Millisecond)
	if ack := h.answer("c1", "q1", "a"); !ack.Accepted || !*ack.Correct {
		t.Fatalf("expected accepted correct answer, got %+v", ack)
	}
	if h.rec.count("c1", protocol.TypeQuestionReveal) != 0 {
		t.Fatal("revealed before every player answered")
	}

	h.fake.Advance(100 * time.Millisecond)
	if ack := h.answer("c2", "q1", "a"); !ack.Accepted {
		t.Fatalf("expected accepted answer, got %+v", ack)
	}

	if got := h.rec.count("c1", protocol.TypeQuestionReveal); got != 1 {
		t.Fatalf("expected immediate reveal, got %d", got)
	}
	if h.phase(room) != PhaseReveal {
		t.Fatalf("expected reveal phase")
	}

	data, _ := h.rec.last("c2", protocol.TypeLeaderboardUpdate)
	board := data.(protocol.LeaderboardUpdate).Entries
	if len(board) != 2 || board[0].PlayerID != "c1" || board[0].Score <= board[1].Score {
		t.Fatalf("expected faster player strictly ahead, got %+v", board)
	}
	if board[0].Rank != 1 || board[1].Rank != 2 {
		t.Fatalf("unexpected ranks: %+v", board)
	}
	if h.metrics.Counter(metrics.AutoReveals) != 1 {
		t.Fatalf("expected one auto reveal")
	}
}

func TestFinishedWithoutAnswersRecordsHistory(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")

	h.handle("c1", "u1", protocol.StartQuestion{Code: room})

	h.fake.Advance(2 * time.Second)
	waitFor(t, "first reveal", func() bool { return h.rec.count("c1", protocol.TypeQuestionReveal) == 1 })

	h.handle("c1", "u1", protocol.AdvanceNext{Code: room})
	if got := h.rec.count("c1", protocol.TypeQuestionStarted); got != 2 {
		t.Fatalf("expected second question to start, got %d", got)
	}

	h.fake.Advance(2 * time.Second)
	waitFor(t, "second reveal", func() bool { return h.rec.count("c1", protocol.TypeQuestionReveal) == 2 })

	h.handle("c1", "u1", protocol.AdvanceNext{Code: room})
	if h.rec.count("c1", protocol.TypeSessionFinished) != 1 {
		t.Fatal("expected session_finished")
	}

	waitFor(t, "history record", func() bool { return len(h.history.all()) == 1 })
	rec := h.history.all()[0]
	if rec.SessionCode != room || len(rec.Results) != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if r := rec.Results[0]; r.UserID != "u1" || r.CorrectCount != 0 || r.AnsweredCount != 0 || r.Score != 0 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if h.phase(room) != PhaseFinished {
		t.Fatal("expected finished phase")
	}
}

func TestSpectatorAnswerRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.handle("s1", "", protocol.JoinSession{Code: room, QuizID: "two"})
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})

	before := h.rec.count("c1", protocol.TypeLeaderboardUpdate)
	ack := h.answer("s1", "q1", "a")
	if ack.Accepted || ack.Reason != string(ReasonSpectator) {
		t.Fatalf("expected spectator rejection, got %+v", ack)
	}
	if got := h.rec.count("c1", protocol.TypeLeaderboardUpdate); got != before {
		t.Fatalf("leaderboard broadcast after spectator answer")
	}

	h.inspect(room, func(s *Session) {
		if len(s.answered) != 0 {
			t.Fatalf("spectator entered answered set")
		}
	})
}

func TestSecondAnswerIsRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})

	if ack := h.answer("c1", "q1", "b"); !ack.Accepted || *ack.Correct {
		t.Fatalf("expected accepted wrong answer, got %+v", ack)
	}
	if ack := h.answer("c1", "q1", "a"); ack.Accepted || ack.Reason != string(ReasonAlreadyAnswered) {
		t.Fatalf("expected already_answered, got %+v", ack)
	}
	h.inspect(room, func(s *Session) {
		if s.players["c1"].Score != 0 {
			t.Fatalf("second answer changed score")
		}
	})
}

func TestConcurrentSubmitsAcceptOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opt := "a"
			h.handle("c1", "", protocol.SubmitAnswer{QuestionID: "q1", OptionID: &opt})
		}()
	}
	wg.Wait()

	accepted := 0
	h.rec.mu.Lock()
	for _, m := range h.rec.msgs["c1"] {
		if ack, ok := m.Data.(protocol.AnswerAck); ok && ack.Accepted {
			accepted++
		}
	}
	h.rec.mu.Unlock()
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted answer, got %d", accepted)
	}
}

func TestAnswerRejectionReasons(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")

	if ack := h.answer("c1", "q1", "a"); ack.Reason != string(ReasonInvalidPhase) {
		t.Fatalf("expected invalid_phase in lobby, got %+v", ack)
	}

	h.handle("c1", "u1", protocol.StartQuestion{Code: room})
	if ack := h.answer("c1", "q2", "a"); ack.Reason != string(ReasonUnknownQuestion) {
		t.Fatalf("expected unknown_question, got %+v", ack)
	}

	text := "right"
	h.handle("c1", "", protocol.SubmitAnswer{QuestionID: "q1", TextAnswer: &text})
	if ack := h.rec.lastAck(t, "c1"); ack.Reason != string(ReasonInvalidPayload) {
		t.Fatalf("expected invalid_payload, got %+v", ack)
	}

	h.handle("zz", "", protocol.SubmitAnswer{QuestionID: "q1", OptionID: &text})
	if ack := h.rec.lastAck(t, "zz"); ack.Reason != string(ReasonUnknownSession) {
		t.Fatalf("expected unknown_session, got %+v", ack)
	}
}

func TestAnswerRateLimit(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")

	for i := 0; i < 3; i++ {
		if ack := h.answer("c1", "q1", "a"); ack.Reason != string(ReasonInvalidPhase) {
			t.Fatalf("attempt %d: expected invalid_phase, got %+v", i, ack)
		}
	}
	if ack := h.answer("c1", "q1", "a"); ack.Reason != string(ReasonRateLimited) {
		t.Fatalf("expected rate_limited, got %+v", ack)
	}
}

func TestAutoRevealWaitsForEveryLivePlayer(t *testing.T) {
	h := newHarness(t, Config{})
	for _, c := range []string{"c1", "c2", "c3"} {
		h.join(c, "u"+c, room, "two")
	}
	h.handle("c1", "uc1", protocol.StartQuestion{Code: room})

	h.answer("c1", "q1", "a")
	h.answer("c2", "q1", "b")
	if h.phase(room) != PhaseQuestion {
		t.Fatal("revealed with a player still answering")
	}

	h.inspect(room, func(s *Session) {
		for id := range s.answered {
			if _, ok := s.players[id]; !ok {
				t.Fatalf("answered id %s is not a player", id)
			}
		}
	})

	h.answer("c3", "q1", "a")
	if h.phase(room) != PhaseReveal {
		t.Fatal("expected reveal once every player answered")
	}
}

func TestLeavingLastUnansweredPlayerReveals(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})

	h.answer("c1", "q1", "a")
	h.rec.setDown("c2")
	h.engine.Disconnect("c2")
	if h.phase(room) != PhaseReveal {
		t.Fatal("expected reveal after the only pending player left")
	}
}

func TestReconnectRestoresProgress(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})

	ack := h.answer("c2", "q1", "a")
	var score, streak int
	h.inspect(room, func(s *Session) { score, streak = s.players["c2"].Score, s.players["c2"].Streak })
	if score != *ack.ScoreDelta || streak != 1 {
		t.Fatalf("unexpected progress %d/%d", score, streak)
	}

	h.rec.setDown("c2")
	h.engine.Disconnect("c2")
	h.inspect(room, func(s *Session) {
		if len(s.detached) != 1 {
			t.Fatalf("expected one detached snapshot, got %d", len(s.detached))
		}
	})

	h.join("c3", "u2", room, "two")
	h.inspect(room, func(s *Session) {
		p := s.players["c3"]
		if p == nil || p.Score != score || p.Streak != streak || p.Nickname != "c2" {
			t.Fatalf("progress not restored: %+v", p)
		}
		if len(s.detached) != 0 {
			t.Fatalf("snapshot not removed")
		}
	})

	if ack := h.answer("c3", "q1", "a"); ack.Reason != string(ReasonAlreadyAnswered) {
		t.Fatalf("expected already_answered after reconnect, got %+v", ack)
	}
}

func TestDetachedSnapshotExpires(t *testing.T) {
	h := newHarness(t, Config{DetachedTTL: time.Minute})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})
	h.answer("c2", "q1", "a")
	h.rec.setDown("c2")
	h.engine.Disconnect("c2")

	h.fake.Advance(2 * time.Minute)
	h.join("c3", "u2", room, "two")
	h.inspect(room, func(s *Session) {
		if s.players["c3"].Score != 0 {
			t.Fatalf("expired snapshot was restored")
		}
	})
}

func TestTakeOverLiveConnection(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u1", room, "two")

	h.inspect(room, func(s *Session) {
		if len(s.players) != 1 || s.players["c2"] == nil {
			t.Fatalf("expected single player on new connection, got %d", len(s.players))
		}
		if s.hostID != "c2" {
			t.Fatalf("host not moved to new connection: %q", s.hostID)
		}
	})
	if _, ok := h.rec.last("c1", protocol.TypeError); !ok {
		t.Fatal("expected old connection to be told it was replaced")
	}

	h.engine.Disconnect("c1")
	h.inspect(room, func(s *Session) {
		if s.players["c2"] == nil {
			t.Fatal("stale disconnect removed the new connection")
		}
	})
}

func TestHostReassignment(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")

	h.engine.Disconnect("c1")
	data, ok := h.rec.last("c2", protocol.TypeHostChanged)
	if !ok || data.(protocol.HostChanged).HostID != "c2" {
		t.Fatalf("expected c2 to become host, got %+v", data)
	}

	h.engine.Disconnect("c2")
	h.inspect(room, func(s *Session) {
		if s.hostID != "" {
			t.Fatalf("expected host unset, got %q", s.hostID)
		}
	})

	h.join("c3", "u3", room, "two")
	h.inspect(room, func(s *Session) {
		if s.hostID != "c3" {
			t.Fatalf("expected first joiner to become host, got %q", s.hostID)
		}
	})
}

func TestHostOnlyControls(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("s1", "", protocol.JoinSession{Code: room, QuizID: "two", Spectator: true})

	cases := []struct {
		name   string
		conn   string
		msg    protocol.Inbound
		reason Reason
	}{
		{"player start", "c2", protocol.StartQuestion{Code: room}, ReasonNotHost},
		{"spectator reveal", "s1", protocol.ForceReveal{Code: room}, ReasonNotHost},
		{"reveal in lobby", "c1", protocol.ForceReveal{Code: room}, ReasonInvalidPhase},
		{"advance in lobby", "c1", protocol.AdvanceNext{Code: room}, ReasonInvalidPhase},
		{"unknown target", "c1", protocol.TransferHost{Code: room, TargetPlayerID: "s1"}, ReasonUnknownTarget},
		{"player toggle", "c2", protocol.ToggleAutoNext{Code: room, Enabled: boolPtr(true)}, ReasonNotHost},
	}
	for _, tc := range cases {
		h.handle(tc.conn, "", tc.msg)
		got := h.rec.lastRejected(t, tc.conn, tc.msg.MessageType())
		if got.Code != string(tc.reason) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.reason, got.Code)
		}
	}

	h.inspect(room, func(s *Session) {
		if s.phase != PhaseLobby || s.hostID != "c1" || s.autoNext {
			t.Fatalf("rejected commands mutated state: phase=%s host=%s autoNext=%v", s.phase, s.hostID, s.autoNext)
		}
	})

	h.handle("c1", "", protocol.StartQuestion{Code: "NOPE00"})
	if got := h.rec.lastRejected(t, "c1", protocol.TypeStartQuestion); got.Code != string(ReasonUnknownSession) {
		t.Fatalf("expected unknown_session, got %s", got.Code)
	}
}

func TestTransferHost(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")

	h.handle("c1", "", protocol.TransferHost{Code: room, TargetPlayerID: "c2"})
	data, _ := h.rec.last("c1", protocol.TypeSessionState)
	if st := data.(protocol.SessionState); st.IsHost || st.HostID != "c2" {
		t.Fatalf("expected c1 state to show c2 as host: %+v", st)
	}

	h.handle("c2", "", protocol.StartQuestion{Code: room})
	if h.phase(room) != PhaseQuestion {
		t.Fatal("new host could not start")
	}
}

func TestForceRevealCancelsTimer(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("c1", "", protocol.StartQuestion{Code: room})

	h.fake.Advance(time.Second)
	h.handle("c1", "", protocol.ForceReveal{Code: room})
	h.handle("c1", "", protocol.AdvanceNext{Code: room})
	if h.phase(room) != PhaseQuestion {
		t.Fatal("expected second question")
	}

	h.fake.Advance(1500 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if got := h.rec.count("c1", protocol.TypeQuestionReveal); got != 1 {
		t.Fatalf("stale timer revealed the second question: %d reveals", got)
	}

	h.fake.Advance(time.Second)
	waitFor(t, "second reveal", func() bool { return h.rec.count("c1", protocol.TypeQuestionReveal) == 2 })
}

func TestAutoNextAdvances(t *testing.T) {
	h := newHarness(t, Config{AutoNextDelay: 3 * time.Second})
	h.join("c1", "u1", room, "two")
	h.handle("c1", "", protocol.ToggleAutoNext{Code: room, Enabled: boolPtr(true)})
	if data, ok := h.rec.last("c1", protocol.TypeAutoNextToggled); !ok || !data.(protocol.Toggled).Enabled {
		t.Fatal("expected auto_next_toggled")
	}

	h.handle("c1", "", protocol.StartQuestion{Code: room})
	h.answer("c1", "q1", "a")
	if h.phase(room) != PhaseReveal {
		t.Fatal("expected reveal")
	}

	h.fake.Advance(3 * time.Second)
	waitFor(t, "next question", func() bool { return h.rec.count("c1", protocol.TypeQuestionStarted) == 2 })

	h.answer("c1", "q2", "a")
	h.fake.Advance(3 * time.Second)
	waitFor(t, "finish", func() bool { return h.rec.count("c1", protocol.TypeSessionFinished) == 1 })
}

func TestQuizMismatch(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "other")

	if got := h.rec.lastRejected(t, "c2", protocol.TypeJoinSession); got.Code != string(ReasonQuizMismatch) {
		t.Fatalf("expected quiz_mismatch, got %s", got.Code)
	}

	h.join("c3", "u3", "", "missing")
	if got := h.rec.lastRejected(t, "c3", protocol.TypeJoinSession); got.Code != string(ReasonUnknownSession) {
		t.Fatalf("expected unknown_session for unknown quiz, got %s", got.Code)
	}
}

func TestJoinWithoutCodeAssignsOne(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", "", "two")

	data, ok := h.rec.last("c1", protocol.TypeSessionCodeAssigned)
	if !ok {
		t.Fatal("expected session_code_assigned")
	}
	code := data.(protocol.SessionCodeAssigned).Code
	if len(code) != 6 || strings.ToUpper(code) != code {
		t.Fatalf("unexpected code %q", code)
	}

	state, _ := h.rec.last("c1", protocol.TypeSessionState)
	if st := state.(protocol.SessionState); st.Code != code || !st.IsHost || st.TotalQuestions != 2 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestUnauthenticatedJoinIsSpectator(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.handle("anon", "", protocol.JoinSession{Code: room, QuizID: "two", Nickname: "guest"})

	data, _ := h.rec.last("anon", protocol.TypeSessionState)
	if st := data.(protocol.SessionState); !st.IsSpectator || len(st.Spectators) != 1 {
		t.Fatalf("expected spectator state, got %+v", st)
	}
}

func TestSpectatorReactions(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.handle("s1", "", protocol.JoinSession{Code: room, QuizID: "two", Spectator: true})

	h.handle("s1", "", protocol.Reaction{Emoji: "🎉"})
	if got := h.rec.lastRejected(t, "s1", protocol.TypeReaction); got.Code != string(ReasonSpectatorDisabled) {
		t.Fatalf("expected spectator_disabled, got %s", got.Code)
	}

	h.handle("c1", "", protocol.ToggleSpectatorReactions{Code: room, Enabled: boolPtr(true)})
	h.handle("s1", "", protocol.Reaction{Emoji: "🎉"})
	data, ok := h.rec.last("c1", protocol.TypeReactionBroadcast)
	if !ok || data.(protocol.ReactionBroadcast).PlayerID != "s1" {
		t.Fatalf("expected reaction broadcast from s1, got %+v", data)
	}
}

func TestOrderingPartialCredit(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "order")
	h.join("c2", "u2", room, "order")
	h.handle("c1", "", protocol.StartQuestion{Code: room})

	h.handle("c1", "", protocol.SubmitAnswer{QuestionID: "o1", OrderedOptionIDs: []string{"a", "b", "d", "c"}})
	ack := h.rec.lastAck(t, "c1")
	if !ack.Accepted || *ack.Correct || *ack.ScoreDelta != 25 || *ack.PartialScore != 0.5 {
		t.Fatalf("unexpected partial ack: %+v", ack)
	}
}

func TestSweepEvictsAgedSessions(t *testing.T) {
	h := newHarness(t, Config{FinishedTTL: time.Minute, IdleTTL: time.Hour})

	h.join("c1", "u1", room, "other")
	h.handle("c1", "", protocol.StartQuestion{Code: room})
	h.answer("c1", "x1", "a")
	h.handle("c1", "", protocol.AdvanceNext{Code: room})
	if h.phase(room) != PhaseFinished {
		t.Fatal("expected finished")
	}

	h.join("i1", "u9", "IDLE01", "two")
	h.engine.Disconnect("i1")

	h.engine.Sweep()
	time.Sleep(20 * time.Millisecond)
	if !h.engine.registry.Has(room) {
		t.Fatal("finished session with a player was evicted")
	}

	h.engine.Disconnect("c1")
	h.fake.Advance(2 * time.Minute)
	h.engine.Sweep()
	waitFor(t, "finished eviction", func() bool { return !h.engine.registry.Has(room) })
	if !h.engine.registry.Has("IDLE01") {
		t.Fatal("idle session evicted before its ttl")
	}

	h.fake.Advance(time.Hour)
	h.engine.Sweep()
	waitFor(t, "idle eviction", func() bool { return !h.engine.registry.Has("IDLE01") })

	if _, err := h.engine.Status(room); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if got := h.metrics.Gauge(metrics.SessionsActive); got != 0 {
		t.Fatalf("expected no active sessions, got %v", got)
	}
}

func TestSubmitExternal(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.handle("c1", "", protocol.StartQuestion{Code: room})

	out, err := h.engine.SubmitExternal(room, "tg42", "bob", "", quiz.OptionAnswer{OptionID: "a"})
	if err != nil || !out.Accepted || !out.Correct {
		t.Fatalf("unexpected outcome %+v (%v)", out, err)
	}
	if h.phase(room) != PhaseQuestion {
		t.Fatal("external answer must not count towards auto reveal")
	}
	out, _ = h.engine.SubmitExternal(room, "tg42", "bob", "", quiz.OptionAnswer{OptionID: "a"})
	if out.Reason != ReasonAlreadyAnswered {
		t.Fatalf("expected already_answered, got %+v", out)
	}

	if _, err := h.engine.SubmitExternal("NOPE00", "tg42", "bob", "", quiz.OptionAnswer{OptionID: "a"}); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if h.metrics.Counter(metrics.BridgeAnswersInjected) != 1 {
		t.Fatal("expected one injected answer")
	}
}

func TestSummaryAndCSV(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.handle("c1", "", protocol.StartQuestion{Code: room})
	h.answer("c1", "q1", "a")
	h.answer("c2", "q1", "b")

	sum, err := h.engine.Summary(room)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum.Podium) != 2 || sum.Podium[0].PlayerID != "c1" {
		t.Fatalf("unexpected podium: %+v", sum.Podium)
	}
	q1 := sum.Questions[0]
	if q1.Answers != 2 || q1.Correct != 1 || q1.Choices["a"] != 1 || q1.Choices["b"] != 1 {
		t.Fatalf("unexpected question stats: %+v", q1)
	}

	var buf bytes.Buffer
	if err := h.engine.WriteLeaderboardCSV(&buf, room); err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[0] != "rank,player_id,nickname,score,correct,answered" || !strings.HasPrefix(lines[1], "1,c1,c1,") {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}

	st, err := h.engine.Status(room)
	if err != nil || st.Status != PhaseReveal || st.PlayersCount != 2 {
		t.Fatalf("unexpected status %+v (%v)", st, err)
	}
	pq, err := h.engine.CurrentQuestion(room)
	if err != nil || pq.ID != "q1" || len(pq.Options) != 2 {
		t.Fatalf("unexpected question %+v (%v)", pq, err)
	}
}

func TestEnsureSession(t *testing.T) {
	h := newHarness(t, Config{})
	code, err := h.engine.EnsureSession(t.Context(), "two", "")
	if err != nil || len(code) != 6 {
		t.Fatalf("ensure: %q %v", code, err)
	}
	again, err := h.engine.EnsureSession(t.Context(), "two", strings.ToLower(code))
	if err != nil || again != code {
		t.Fatalf("expected same code, got %q %v", again, err)
	}
	if _, err := h.engine.EnsureSession(t.Context(), "other", code); !errors.Is(err, ErrQuizMismatch) {
		t.Fatalf("expected ErrQuizMismatch, got %v", err)
	}
	if len(h.engine.List()) != 1 {
		t.Fatal("expected one listed session")
	}
}

func TestRegistryCreatesOnce(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*Session, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.CreateOrGet("ABC123", func() (*Session, error) {
				calls.Add(1)
				<-release
				return &Session{code: "ABC123"}, nil
			})
			if err != nil {
				t.Errorf("create: %v", err)
			}
			results[i] = s
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one create call, got %d", calls.Load())
	}
	for _, s := range results {
		if s != results[0] {
			t.Fatal("callers got different sessions")
		}
	}
	if !r.Remove("ABC123", results[0]) || r.Len() != 0 {
		t.Fatal("expected remove to succeed")
	}
}

func TestCreatedSessionIsSavedAsCreated(t *testing.T) {
	store := &sessionStore{}
	h := newHarnessWithStore(t, Config{}, store)
	h.join("c1", "u1", room, "two")
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})
	if h.phase(room) != PhaseQuestion {
		t.Fatal("expected question phase")
	}

	waitFor(t, "session saved", func() bool { return len(store.saved()) > 0 })
	first := store.saved()[0]
	if first.Code != room || first.QuizID != "two" || first.Phase != PhaseLobby {
		t.Fatalf("unexpected first session record: %+v", first)
	}
}

func TestExternalPlayerAddedOnlyWhenAccepted(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")

	playerCount := func() int {
		n := 0
		h.inspect(room, func(s *Session) { n = len(s.players) })
		return n
	}

	out, err := h.engine.SubmitExternal(room, "tg7", "eve", "", quiz.OptionAnswer{OptionID: "a"})
	if err != nil || out.Reason != ReasonInvalidPhase {
		t.Fatalf("expected invalid_phase in lobby, got %+v (%v)", out, err)
	}
	if n := playerCount(); n != 1 {
		t.Fatalf("rejected chat answer added a player: %d players", n)
	}

	h.handle("c1", "u1", protocol.StartQuestion{Code: room})
	out, _ = h.engine.SubmitExternal(room, "tg7", "eve", "q2", quiz.OptionAnswer{OptionID: "a"})
	if out.Reason != ReasonUnknownQuestion {
		t.Fatalf("expected unknown_question, got %+v", out)
	}
	if n := playerCount(); n != 1 {
		t.Fatalf("rejected chat answer added a player: %d players", n)
	}

	out, _ = h.engine.SubmitExternal(room, "tg7", "eve", "q1", quiz.OptionAnswer{OptionID: "a"})
	if !out.Accepted {
		t.Fatalf("expected accepted answer, got %+v", out)
	}
	if n := playerCount(); n != 2 {
		t.Fatalf("expected the chat player on the leaderboard, got %d players", n)
	}
}

func TestSummaryAfterPlayersLeave(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "other")
	h.join("c2", "u2", room, "other")
	h.handle("c1", "u1", protocol.StartQuestion{Code: room})
	h.answer("c1", "x1", "a")
	h.answer("c2", "x1", "b")
	if h.phase(room) != PhaseReveal {
		t.Fatal("expected reveal once both answered")
	}
	h.handle("c1", "u1", protocol.AdvanceNext{Code: room})
	if h.phase(room) != PhaseFinished {
		t.Fatal("expected finished phase")
	}

	h.engine.Disconnect("c1")
	h.engine.Disconnect("c2")

	sum, err := h.engine.Summary(room)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum.Leaderboard) != 2 || len(sum.Podium) != 2 || len(sum.Players) != 2 {
		t.Fatalf("expected final standings to survive, got %+v", sum)
	}
	if top := sum.Players[0]; top.Nickname != "c1" || top.Rank != 1 || top.CorrectCount != 1 || top.Score == 0 {
		t.Fatalf("unexpected winner: %+v", top)
	}
	if sum.Questions[0].Answers != 2 {
		t.Fatalf("unexpected question stats: %+v", sum.Questions[0])
	}

	var buf bytes.Buffer
	if err := h.engine.WriteLeaderboardCSV(&buf, room); err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "1,c1,c1,") {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
}

func TestConnectionGauges(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("c1", "u1", room, "two")
	h.join("c2", "u2", room, "two")
	h.join("s1", "", room, "two")

	if got := h.metrics.Gauge(metrics.PlayersConnected); got != 2 {
		t.Fatalf("players gauge = %v, want 2", got)
	}
	if got := h.metrics.Gauge(metrics.SpectatorsConnected); got != 1 {
		t.Fatalf("spectators gauge = %v, want 1", got)
	}
	if got := h.metrics.Gauge(metrics.SessionsActive); got != 1 {
		t.Fatalf("sessions gauge = %v, want 1", got)
	}

	h.engine.Disconnect("c2")
	h.engine.Disconnect("s1")
	if got := h.metrics.Gauge(metrics.PlayersConnected); got != 1 {
		t.Fatalf("players gauge = %v, want 1", got)
	}
	if got := h.metrics.Gauge(metrics.SpectatorsConnected); got != 0 {
		t.Fatalf("spectators gauge = %v, want 0", got)
	}
}
