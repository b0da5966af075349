package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/protocol"
)

func (s *Session) join(connID string, id Identity, nickname string, spectator bool) {
	e := s.engine
	now := e.clock.Now()
	s.lastActivity = now

	if _, ok := s.players[connID]; ok {
		s.sendState(connID)
		return
	}
	if _, ok := s.spectators[connID]; ok {
		s.sendState(connID)
		return
	}

	if nickname == "" {
		nickname = id.Name
	}

	if spectator || id.UserID == "" {
		if nickname == "" {
			nickname = fmt.Sprintf("Spectator-%s", shortID(connID))
		}
		s.spectators[connID] = &Spectator{ID: connID, Nickname: nickname}
		e.metrics.Inc(metrics.SpectatorsJoined)
		e.metrics.AddGauge(metrics.SpectatorsConnected, 1)
		s.sendState(connID)
		s.broadcastState()
		return
	}

	s.purgeDetached()

	p := &Player{ID: connID, UserID: id.UserID, Nickname: nickname, JoinedAt: now}
	reconnected := false

	if snap, ok := s.detached[id.UserID]; ok {
		p.Nickname = snap.Nickname
		p.Score = snap.Score
		p.Streak = snap.Streak
		p.CorrectCount = snap.CorrectCount
		p.AnsweredCount = snap.AnsweredCount
		if s.phase == PhaseQuestion && snap.AnsweredIndex == s.index {
			s.answered[connID] = struct{}{}
		}
		delete(s.detached, id.UserID)
		reconnected = true
	} else if old := s.playerByUser(id.UserID); old != nil {
		s.takeOver(old, p)
		reconnected = true
	}

	if p.Nickname == "" {
		p.Nickname = fmt.Sprintf("Player-%s", shortID(connID))
	}
	s.players[connID] = p

	hostChanged := false
	if s.hostID == "" {
		s.hostID = connID
		hostChanged = true
	}

	e.metrics.Inc(metrics.PlayersJoined)
	if reconnected {
		e.metrics.Inc(metrics.PlayersReconnected)
	}
	e.metrics.AddGauge(metrics.PlayersConnected, 1)

	rec := PlayerRecord{
		SessionCode: s.code,
		PlayerID:    p.ID,
		UserID:      p.UserID,
		Nickname:    p.Nickname,
		JoinedAt:    now,
	}
	e.persist(s.code, "save player", func(ctx context.Context, st Store) error { return st.SavePlayer(ctx, rec) })

	log.Info().
		Str("code", s.code).
		Str("conn_id", connID).
		Str("user_id", id.UserID).
		Bool("reconnected", reconnected).
		Bool("host", s.hostID == connID).
		Msg("player joined")

	s.sendState(connID)
	s.broadcastState()
	if hostChanged {
		s.broadcast(protocol.TypeHostChanged, protocol.HostChanged{HostID: s.hostID})
	}
}

// takeOver moves an existing player entry with the same user id onto the
// new connection. A still-live previous connection loses its seat.
func (s *Session) takeOver(old, p *Player) {
	e := s.engine

	p.Nickname = old.Nickname
	p.Score = old.Score
	p.Streak = old.Streak
	p.CorrectCount = old.CorrectCount
	p.AnsweredCount = old.AnsweredCount

	if _, ok := s.answered[old.ID]; ok {
		delete(s.answered, old.ID)
		s.answered[p.ID] = struct{}{}
	}
	if s.hostID == old.ID {
		s.hostID = p.ID
	}
	delete(s.players, old.ID)
	e.metrics.AddGauge(metrics.PlayersConnected, -1)

	if e.transport.IsConnected(old.ID) {
		if code, ok := e.lookup(old.ID); ok && code == s.code {
			e.unbind(old.ID)
		}
		s.send(old.ID, protocol.TypeError, protocol.ErrorMessage{
			Code:    "session_taken_over",
			Message: "this player joined from another connection",
		})
	}
}

func (s *Session) playerByUser(userID string) *Player {
	for _, p := range s.players {
		if p.UserID == userID && !p.External {
			return p
		}
	}
	return nil
}

func (s *Session) leave(connID string) {
	e := s.engine
	now := e.clock.Now()
	s.lastActivity = now

	if _, ok := s.spectators[connID]; ok {
		delete(s.spectators, connID)
		e.metrics.AddGauge(metrics.SpectatorsConnected, -1)
		s.broadcastState()
		return
	}

	p, ok := s.players[connID]
	if !ok {
		return
	}
	delete(s.players, connID)
	e.metrics.AddGauge(metrics.PlayersConnected, -1)

	_, answered := s.answered[connID]
	delete(s.answered, connID)

	if p.UserID != "" && s.phase != PhaseFinished {
		answeredIndex := -1
		if answered {
			answeredIndex = s.index
		}
		s.detached[p.UserID] = &detached{
			UserID:        p.UserID,
			Nickname:      p.Nickname,
			Score:         p.Score,
			Streak:        p.Streak,
			CorrectCount:  p.CorrectCount,
			AnsweredCount: p.AnsweredCount,
			AnsweredIndex: answeredIndex,
			ExpiresAt:     now.Add(e.clock.Scale(e.cfg.DetachedTTL)),
		}
	}

	log.Info().
		Str("code", s.code).
		Str("conn_id", connID).
		Str("user_id", p.UserID).
		Msg("player left")

	if s.hostID == connID {
		s.hostID = s.pickHost()
		s.broadcast(protocol.TypeHostChanged, protocol.HostChanged{HostID: s.hostID})
	}
	s.broadcastLeaderboard()

	if s.phase == PhaseQuestion && s.allAnswered() {
		s.reveal(true)
	}
}

// pickHost returns the earliest-joined connected player, or "".
func (s *Session) pickHost() string {
	candidates := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		if !p.External {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].JoinedAt.Equal(candidates[j].JoinedAt) {
			return candidates[i].JoinedAt.Before(candidates[j].JoinedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID
}

func (s *Session) purgeDetached() int {
	now := s.engine.clock.Now()
	n := 0
	for userID, snap := range s.detached {
		if !now.Before(snap.ExpiresAt) {
			delete(s.detached, userID)
			n++
		}
	}
	return n
}

// sweep purges expired snapshots and evicts the session once it is empty
// and aged out.
func (s *Session) sweep() {
	e := s.engine
	if n := s.purgeDetached(); n > 0 {
		log.Debug().Str("code", s.code).Int("snapshots", n).Msg("expired detached snapshots purged")
	}
	if !s.empty() {
		return
	}

	now := e.clock.Now()
	switch {
	case s.phase == PhaseFinished && now.Sub(s.finishedAt) >= e.clock.Scale(e.cfg.FinishedTTL):
		e.evict(s, "finished")
	case s.phase != PhaseFinished && now.Sub(s.lastActivity) >= e.clock.Scale(e.cfg.IdleTTL):
		e.evict(s, "idle")
	}
}

func shortID(id string) string {
	if len(id) > 4 {
		return id[:4]
	}
	return id
}
