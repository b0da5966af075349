package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/scoring"
)

const externalPrefix = "ext:"

func (s *Session) startQuestion() Reason {
	if s.phase != PhaseLobby || s.currentQuestion() == nil {
		return ReasonInvalidPhase
	}
	if s.startedAt.IsZero() {
		s.startedAt = s.engine.clock.Now()
	}
	s.beginQuestion()
	return ""
}

func (s *Session) beginQuestion() {
	e := s.engine
	q := s.currentQuestion()
	info := q.Info()

	s.phase = PhaseQuestion
	s.questionStartedAt = e.clock.Now()
	s.answered = make(map[string]struct{})
	s.schedule(info.TimeLimit, func() { s.reveal(false) })

	e.metrics.Inc(metrics.QuestionsStarted)

	public := quiz.Public(q)
	s.broadcast(protocol.TypeQuestionStarted, protocol.QuestionStarted{
		QuestionID:  info.ID,
		Index:       s.index,
		TimeLimitMs: info.TimeLimit.Milliseconds(),
		Question:    public,
	})
	s.pushBridge(Update{Kind: UpdateQuestion, Index: s.index, Total: len(s.questions), Question: &public})

	log.Debug().
		Str("code", s.code).
		Int("index", s.index).
		Str("question_id", info.ID).
		Dur("time_limit", info.TimeLimit).
		Msg("question started")
}

func (s *Session) forceReveal() Reason {
	if s.phase != PhaseQuestion {
		return ReasonInvalidPhase
	}
	s.reveal(false)
	return ""
}

// reveal closes the open question. auto marks reveals triggered by every
// live player having answered.
func (s *Session) reveal(auto bool) {
	if s.phase != PhaseQuestion {
		return
	}
	e := s.engine
	s.cancelTimer()
	s.phase = PhaseReveal

	e.metrics.ObserveDuration(metrics.QuestionDurationMs, e.clock.Since(s.questionStartedAt))
	e.metrics.Inc(metrics.QuestionsRevealed)
	if auto {
		e.metrics.Inc(metrics.AutoReveals)
	}

	q := s.currentQuestion()
	public := quiz.Public(q)
	reveal := protocol.QuestionReveal{
		QuestionID:       q.Info().ID,
		CorrectOptionIDs: quiz.CorrectOptionIDs(q),
		AcceptedAnswers:  quiz.AcceptedAnswers(q),
	}
	s.broadcast(protocol.TypeQuestionReveal, reveal)
	board := s.leaderboard()
	s.broadcast(protocol.TypeLeaderboardUpdate, protocol.LeaderboardUpdate{Entries: board})

	s.pushBridge(Update{
		Kind:             UpdateReveal,
		Index:            s.index,
		Total:            len(s.questions),
		Question:         &public,
		CorrectOptionIDs: reveal.CorrectOptionIDs,
		AcceptedAnswers:  reveal.AcceptedAnswers,
	})
	s.pushBridge(Update{Kind: UpdateLeaderboard, Index: s.index, Total: len(s.questions), Leaderboard: board})

	if s.autoNext {
		s.schedule(e.cfg.AutoNextDelay, s.advance)
	}

	log.Debug().Str("code", s.code).Int("index", s.index).Bool("auto", auto).Msg("question revealed")
}

func (s *Session) advanceNext() Reason {
	if s.phase != PhaseReveal {
		return ReasonInvalidPhase
	}
	s.advance()
	return ""
}

// advance moves past a revealed question: through the lobby straight into
// the next question, or to finished after the last one.
func (s *Session) advance() {
	if s.phase != PhaseReveal {
		return
	}
	s.cancelTimer()

	if s.index+1 >= len(s.questions) {
		s.finish()
		return
	}

	s.index++
	s.phase = PhaseLobby
	s.broadcastState()
	s.beginQuestion()
}

func (s *Session) finish() {
	e := s.engine
	now := e.clock.Now()

	s.cancelTimer()
	s.phase = PhaseFinished
	s.finishedAt = now
	s.lastActivity = now

	started := s.startedAt
	if started.IsZero() {
		started = s.createdAt
	}
	e.metrics.Inc(metrics.SessionsFinished)
	e.metrics.ObserveDuration(metrics.SessionDurationMs, e.clock.Since(s.createdAt))

	final := s.leaderboard()
	s.broadcast(protocol.TypeSessionFinished, protocol.SessionFinished{Final: final})
	s.pushBridge(Update{Kind: UpdateFinished, Index: s.index, Total: len(s.questions), Leaderboard: final})

	results := s.results(final)
	s.final = results
	s.detached = make(map[string]*detached)

	rec := GameRecord{
		SessionCode:    s.code,
		QuizID:         s.quizID,
		TotalQuestions: len(s.questions),
		StartedAt:      started,
		FinishedAt:     now,
		Results:        results,
	}
	sessionRec := s.record()
	e.persist(s.code, "save session", func(ctx context.Context, st Store) error { return st.SaveSession(ctx, sessionRec) })
	e.persist(s.code, "save results", func(ctx context.Context, st Store) error { return st.SaveResults(ctx, s.code, results) })
	e.sideEffect(s.code, "record game", func(ctx context.Context) error { return e.history.RecordGame(ctx, rec) })

	log.Info().
		Str("code", s.code).
		Int("players", len(results)).
		Msg("session finished")
}

// results ranks active players and detached snapshots together.
func (s *Session) results(board []protocol.LeaderboardEntry) []PlayerResult {
	out := make([]PlayerResult, 0, len(board)+len(s.detached))
	for _, entry := range board {
		p := s.players[entry.PlayerID]
		out = append(out, PlayerResult{
			PlayerID:      p.ID,
			UserID:        p.UserID,
			Nickname:      p.Nickname,
			Score:         p.Score,
			CorrectCount:  p.CorrectCount,
			AnsweredCount: p.AnsweredCount,
			External:      p.External,
		})
	}
	for _, snap := range s.detached {
		out = append(out, PlayerResult{
			UserID:        snap.UserID,
			Nickname:      snap.Nickname,
			Score:         snap.Score,
			CorrectCount:  snap.CorrectCount,
			AnsweredCount: snap.AnsweredCount,
			Disconnected:  true,
		})
	}
	rankResults(out)
	return out
}

func (s *Session) toggleAutoNext(enabled bool) Reason {
	if s.phase == PhaseFinished {
		return ReasonInvalidPhase
	}
	s.autoNext = enabled
	if s.phase == PhaseReveal {
		if enabled {
			s.schedule(s.engine.cfg.AutoNextDelay, s.advance)
		} else {
			s.cancelTimer()
		}
	}
	s.broadcast(protocol.TypeAutoNextToggled, protocol.Toggled{Enabled: enabled})
	s.saveConfig()
	return ""
}

func (s *Session) toggleSpectatorReactions(enabled bool) Reason {
	if s.phase == PhaseFinished {
		return ReasonInvalidPhase
	}
	s.allowSpectatorReactions = enabled
	s.broadcast(protocol.TypeSpectatorReactionsToggled, protocol.Toggled{Enabled: enabled})
	s.saveConfig()
	return ""
}

func (s *Session) transferHost(target string) Reason {
	if s.phase == PhaseFinished {
		return ReasonInvalidPhase
	}
	p, ok := s.players[target]
	if !ok || p.External {
		return ReasonUnknownTarget
	}
	if target == s.hostID {
		return ""
	}
	s.hostID = target
	s.broadcast(protocol.TypeHostChanged, protocol.HostChanged{HostID: target})
	s.broadcastState()
	return ""
}

func (s *Session) saveConfig() {
	rec := s.record()
	s.engine.persist(s.code, "save session", func(ctx context.Context, st Store) error { return st.SaveSession(ctx, rec) })
}

func (s *Session) react(connID, emoji string) {
	e := s.engine
	_, isPlayer := s.players[connID]
	_, isSpectator := s.spectators[connID]

	switch {
	case !isPlayer && !isSpectator:
		s.reject(connID, protocol.TypeReaction, ReasonUnknownSession, "")
		return
	case isSpectator && !s.allowSpectatorReactions:
		s.reject(connID, protocol.TypeReaction, ReasonSpectatorDisabled, "")
		return
	case !e.limiter.Allow("reaction:"+connID, e.cfg.ReactionRule):
		s.reject(connID, protocol.TypeReaction, ReasonRateLimited, "")
		return
	}

	e.metrics.Inc(metrics.Reactions)
	s.broadcast(protocol.TypeReactionBroadcast, protocol.ReactionBroadcast{PlayerID: connID, Emoji: emoji})
}

func (s *Session) submitFromConn(connID string, m protocol.SubmitAnswer) {
	out := s.submit(connID, m.QuestionID, m.Answer())

	ack := protocol.AnswerAck{
		QuestionID: m.QuestionID,
		Accepted:   out.Accepted,
		Reason:     string(out.Reason),
		Message:    out.Message,
	}
	if out.Accepted {
		correct, delta := out.Correct, out.ScoreDelta
		ack.Correct = &correct
		ack.ScoreDelta = &delta
		if _, ok := s.currentQuestion().(quiz.Ordering); ok {
			partial := out.Partial
			ack.PartialScore = &partial
		}
	}
	s.send(connID, protocol.TypeAnswerAck, ack)

	if out.Accepted {
		s.afterAccepted()
	}
}

// submitExternal answers on behalf of a chat bridge user. The external player
// joins the leaderboard only once one of its answers is accepted.
func (s *Session) submitExternal(externalID, nickname, questionID string, a quiz.Answer) AnswerOutcome {
	id := externalPrefix + externalID
	_, known := s.players[id]
	if !known {
		if nickname == "" {
			nickname = externalID
		}
		s.players[id] = &Player{ID: id, Nickname: nickname, JoinedAt: s.engine.clock.Now(), External: true}
	}
	if questionID == "" {
		if q := s.currentQuestion(); q != nil {
			questionID = q.Info().ID
		}
	}

	out := s.submit(id, questionID, a)
	if !out.Accepted {
		if !known {
			delete(s.players, id)
		}
		return out
	}
	if !known {
		p := s.players[id]
		rec := PlayerRecord{SessionCode: s.code, PlayerID: id, Nickname: p.Nickname, External: true, JoinedAt: p.JoinedAt}
		s.engine.persist(s.code, "save player", func(ctx context.Context, st Store) error { return st.SavePlayer(ctx, rec) })
	}
	s.afterAccepted()
	return out
}

// submit applies the answer rules in order: sender must be a player, within
// its rate limit, during an open question, answering that question, once.
func (s *Session) submit(playerID, questionID string, a quiz.Answer) AnswerOutcome {
	e := s.engine
	rejected := func(reason Reason, msg string) AnswerOutcome {
		e.metrics.Inc(metrics.AnswersRejected)
		return AnswerOutcome{Reason: reason, Message: msg}
	}

	p, ok := s.players[playerID]
	if !ok {
		return rejected(ReasonSpectator, "")
	}
	if !e.limiter.Allow("answer:"+playerID, e.cfg.AnswerRule) {
		return rejected(ReasonRateLimited, "")
	}
	if s.phase != PhaseQuestion {
		return rejected(ReasonInvalidPhase, "")
	}
	q := s.currentQuestion()
	if q.Info().ID != questionID {
		return rejected(ReasonUnknownQuestion, "")
	}
	if _, done := s.answered[playerID]; done {
		return rejected(ReasonAlreadyAnswered, "")
	}

	res, err := quiz.Evaluate(q, a)
	if err != nil {
		if !errors.Is(err, quiz.ErrAnswerMismatch) && !errors.Is(err, quiz.ErrUnknownOption) {
			log.Error().Err(err).Str("code", s.code).Msg("answer evaluation failed")
		}
		return rejected(ReasonInvalidPayload, err.Error())
	}

	s.answered[playerID] = struct{}{}
	now := e.clock.Now()
	elapsed := e.clock.Since(s.questionStartedAt)
	limit := q.Info().TimeLimit

	delta := 0
	switch {
	case res.Correct:
		p.Streak++
		p.CorrectCount++
		delta = scoring.Score(true, elapsed, limit, p.Streak)
	case res.Partial > 0:
		p.Streak = 0
		delta = scoring.Partial(res.Partial)
	default:
		p.Streak = 0
	}
	p.Score += delta
	p.AnsweredCount++
	s.lastActivity = now

	s.answers = append(s.answers, answerLog{
		questionIndex: s.index,
		playerID:      p.ID,
		nickname:      p.Nickname,
		choice:        res.Choice,
		correct:       res.Correct,
		scoreDelta:    delta,
		elapsed:       elapsed,
	})

	e.metrics.Inc(metrics.AnswersAccepted)
	if res.Correct {
		e.metrics.Inc(metrics.AnswersCorrect)
	}
	e.metrics.ObserveDuration(metrics.AnswerLatencyMs, elapsed)

	rec := AnswerRecord{
		SessionCode:   s.code,
		QuestionID:    questionID,
		QuestionIndex: s.index,
		PlayerID:      p.ID,
		UserID:        p.UserID,
		Answer:        a,
		Correct:       res.Correct,
		Partial:       res.Partial,
		ScoreDelta:    delta,
		Elapsed:       elapsed,
		AnsweredAt:    now,
	}
	e.persist(s.code, "save answer", func(ctx context.Context, st Store) error { return st.SaveAnswer(ctx, rec) })

	return AnswerOutcome{Accepted: true, Correct: res.Correct, ScoreDelta: delta, Partial: res.Partial}
}

// afterAccepted broadcasts standings and reveals early once every live
// player has answered.
func (s *Session) afterAccepted() {
	s.broadcastLeaderboard()
	if s.allAnswered() {
		s.reveal(true)
	}
}

func (s *Session) pushBridge(u Update) {
	e := s.engine
	if _, ok := e.bridge.(nopBridge); ok {
		return
	}
	code := s.code
	e.sideEffect(code, "bridge push", func(ctx context.Context) error { return e.bridge.Push(ctx, code, u) })
}
