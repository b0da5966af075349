package session

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/clock"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
)

// answerLog is kept for post-game statistics.
type answerLog struct {
	questionIndex int
	playerID      string
	nickname      string
	choice        string
	correct       bool
	scoreDelta    int
	elapsed       time.Duration
}

// Session is one live game. Every field below the channels is owned by the
// actor goroutine started in run.
type Session struct {
	code      string
	quizID    string
	questions []quiz.Question
	engine    *Engine

	inbox   chan func()
	stopped chan struct{}

	phase                   Phase
	index                   int
	hostID                  string
	autoNext                bool
	allowSpectatorReactions bool
	createdAt               time.Time
	startedAt               time.Time
	questionStartedAt       time.Time
	finishedAt              time.Time
	lastActivity            time.Time

	players    map[string]*Player
	detached   map[string]*detached
	spectators map[string]*Spectator
	answered   map[string]struct{}
	answers    []answerLog

	// final is the ranked result set frozen when the session finishes.
	final []PlayerResult

	timer    clock.Timer
	timerGen uint64
}

func newSession(e *Engine, code, quizID string, questions []quiz.Question, cfg SessionConfig) *Session {
	now := e.clock.Now()
	return &Session{
		code:                    code,
		quizID:                  quizID,
		questions:               questions,
		engine:                  e,
		inbox:                   make(chan func(), e.cfg.InboxSize),
		stopped:                 make(chan struct{}),
		phase:                   PhaseLobby,
		autoNext:                cfg.AutoNext,
		allowSpectatorReactions: cfg.AllowSpectatorReactions,
		createdAt:               now,
		lastActivity:            now,
		players:                 make(map[string]*Player),
		detached:                make(map[string]*detached),
		spectators:              make(map[string]*Spectator),
		answered:                make(map[string]struct{}),
	}
}

func (s *Session) Code() string   { return s.code }
func (s *Session) QuizID() string { return s.quizID }

func (s *Session) run() {
	for {
		select {
		case fn := <-s.inbox:
			s.exec(fn)
		case <-s.stopped:
			return
		}
	}
}

func (s *Session) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("code", s.code).
				Interface("panic", r).
				Msg("session handler panicked")
		}
	}()
	fn()
}

// do queues fn on the actor without waiting for it.
func (s *Session) do(fn func()) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.inbox <- fn:
		return true
	case <-s.stopped:
		return false
	}
}

// call runs fn on the actor and waits for it to finish.
func (s *Session) call(fn func()) error {
	done := make(chan struct{})
	ok := s.do(func() {
		defer close(done)
		fn()
	})
	if !ok {
		return ErrSessionClosed
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

// stop ends the actor. Must run on the actor.
func (s *Session) stop() {
	s.cancelTimer()
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
}

// schedule replaces the pending timer. The callback runs on the actor and is
// dropped when another schedule or cancelTimer happened in between.
func (s *Session) schedule(d time.Duration, fn func()) {
	s.cancelTimer()
	gen := s.timerGen
	s.timer = s.engine.clock.AfterFunc(d, func() {
		s.do(func() {
			if gen != s.timerGen {
				return
			}
			s.timer = nil
			fn()
		})
	})
}

func (s *Session) cancelTimer() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) currentQuestion() quiz.Question {
	if s.index < 0 || s.index >= len(s.questions) {
		return nil
	}
	return s.questions[s.index]
}

// remaining is the game time left on the open question.
func (s *Session) remaining() time.Duration {
	if s.phase != PhaseQuestion {
		return 0
	}
	q := s.currentQuestion()
	if q == nil {
		return 0
	}
	left := q.Info().TimeLimit - s.engine.clock.Since(s.questionStartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// livePlayers counts transport-connected players. Chat bridge players have no
// connection and never count.
func (s *Session) livePlayers() []string {
	ids := make([]string, 0, len(s.players))
	for id, p := range s.players {
		if p.External || !s.engine.transport.IsConnected(id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) allAnswered() bool {
	live := s.livePlayers()
	if len(live) == 0 {
		return false
	}
	for _, id := range live {
		if _, ok := s.answered[id]; !ok {
			return false
		}
	}
	return true
}

// recipients are all connections attached to the session.
func (s *Session) recipients() []string {
	ids := make([]string, 0, len(s.players)+len(s.spectators))
	for id, p := range s.players {
		if !p.External {
			ids = append(ids, id)
		}
	}
	for id := range s.spectators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Session) send(connID string, t protocol.Type, data any) {
	s.engine.transport.Send(connID, t, data)
}

func (s *Session) broadcast(t protocol.Type, data any) {
	for _, id := range s.recipients() {
		s.send(id, t, data)
	}
}

func (s *Session) reject(connID string, action protocol.Type, reason Reason, message string) {
	if action == protocol.TypeSubmitAnswer {
		s.send(connID, protocol.TypeAnswerAck, protocol.AnswerAck{Reason: string(reason), Message: message})
		return
	}
	s.send(connID, protocol.RejectedType(action), protocol.Rejected{Code: string(reason), Message: message})
}

func (s *Session) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Nickname != out[j].Nickname {
			return out[i].Nickname < out[j].Nickname
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// leaderboard ranks players by score; tied scores share a rank.
func (s *Session) leaderboard() []protocol.LeaderboardEntry {
	players := s.sortedPlayers()
	entries := make([]protocol.LeaderboardEntry, 0, len(players))
	for i, p := range players {
		rank := i + 1
		if i > 0 && p.Score == players[i-1].Score {
			rank = entries[i-1].Rank
		}
		entries = append(entries, protocol.LeaderboardEntry{
			PlayerID: p.ID,
			Nickname: p.Nickname,
			Score:    p.Score,
			Rank:     rank,
		})
	}
	return entries
}

func (s *Session) broadcastLeaderboard() {
	board := s.leaderboard()
	s.broadcast(protocol.TypeLeaderboardUpdate, protocol.LeaderboardUpdate{Entries: board})
}

func (s *Session) stateFor(connID string) protocol.SessionState {
	st := protocol.SessionState{
		Code:                    s.code,
		Status:                  string(s.phase),
		QuestionIndex:           s.index,
		RemainingMs:             s.remaining().Milliseconds(),
		TotalQuestions:          len(s.questions),
		IsHost:                  connID != "" && connID == s.hostID,
		AutoNext:                s.autoNext,
		HostID:                  s.hostID,
		SelfID:                  connID,
		Players:                 make([]protocol.PlayerView, 0, len(s.players)),
		Spectators:              make([]protocol.SpectatorView, 0, len(s.spectators)),
		AllowSpectatorReactions: s.allowSpectatorReactions,
	}
	_, st.IsSpectator = s.spectators[connID]

	for _, p := range s.sortedPlayers() {
		st.Players = append(st.Players, protocol.PlayerView{
			PlayerID:  p.ID,
			Nickname:  p.Nickname,
			Score:     p.Score,
			Streak:    p.Streak,
			IsHost:    p.ID == s.hostID,
			External:  p.External,
			Connected: p.External || s.engine.transport.IsConnected(p.ID),
		})
	}

	ids := make([]string, 0, len(s.spectators))
	for id := range s.spectators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st.Spectators = append(st.Spectators, protocol.SpectatorView{ID: id, Nickname: s.spectators[id].Nickname})
	}
	return st
}

func (s *Session) sendState(connID string) {
	s.send(connID, protocol.TypeSessionState, s.stateFor(connID))
}

func (s *Session) broadcastState() {
	for _, id := range s.recipients() {
		s.sendState(id)
	}
}

func (s *Session) record() SessionRecord {
	rec := SessionRecord{
		Code:                    s.code,
		QuizID:                  s.quizID,
		Phase:                   s.phase,
		AutoNext:                s.autoNext,
		AllowSpectatorReactions: s.allowSpectatorReactions,
		CreatedAt:               s.createdAt,
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		rec.FinishedAt = &finished
	}
	return rec
}

func (s *Session) empty() bool {
	return len(s.players) == 0 && len(s.spectators) == 0
}
