package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
)

// Status is the public snapshot served over HTTP.
type Status struct {
	Code            string    `json:"code"`
	QuizID          string    `json:"quizId"`
	Status          Phase     `json:"status"`
	QuestionIndex   int       `json:"questionIndex"`
	TotalQuestions  int       `json:"totalQuestions"`
	PlayersCount    int       `json:"playersCount"`
	SpectatorsCount int       `json:"spectatorsCount"`
	AutoNext        bool      `json:"autoNext"`
	RemainingMs     int64     `json:"remainingMs"`
	CreatedAt       time.Time `json:"createdAt"`
}

type QuestionStats struct {
	QuestionID   string         `json:"questionId"`
	Index        int            `json:"index"`
	Type         quiz.Kind      `json:"type"`
	Prompt       string         `json:"prompt"`
	Answers      int            `json:"answers"`
	Correct      int            `json:"correct"`
	AvgLatencyMs int64          `json:"avgLatencyMs"`
	Choices      map[string]int `json:"choices"`
}

type PlayerStats struct {
	PlayerID      string  `json:"playerId"`
	Nickname      string  `json:"nickname"`
	Score         int     `json:"score"`
	Rank          int     `json:"rank"`
	CorrectCount  int     `json:"correctCount"`
	AnsweredCount int     `json:"answeredCount"`
	Accuracy      float64 `json:"accuracy"`
	AvgLatencyMs  int64   `json:"avgLatencyMs"`
}

// Summary is the post-hoc view of a session.
type Summary struct {
	Code        string                      `json:"code"`
	QuizID      string                      `json:"quizId"`
	Status      Phase                       `json:"status"`
	Leaderboard []protocol.LeaderboardEntry `json:"leaderboard"`
	Podium      []protocol.LeaderboardEntry `json:"podium"`
	Questions   []QuestionStats             `json:"questions"`
	Players     []PlayerStats               `json:"players"`
}

func (e *Engine) Status(code string) (Status, error) {
	var st Status
	err := e.query(code, func(s *Session) { st = s.status() })
	return st, err
}

// CurrentQuestion returns the public view of the question at the current
// index, whatever the phase.
func (e *Engine) CurrentQuestion(code string) (quiz.PublicQuestion, error) {
	var pq quiz.PublicQuestion
	var found bool
	err := e.query(code, func(s *Session) {
		if q := s.currentQuestion(); q != nil {
			pq, found = quiz.Public(q), true
		}
	})
	if err == nil && !found {
		err = ErrUnknownSession
	}
	return pq, err
}

func (e *Engine) Summary(code string) (Summary, error) {
	var sum Summary
	err := e.query(code, func(s *Session) { sum = s.summary() })
	return sum, err
}

// List returns the status of every live session ordered by code.
func (e *Engine) List() []Status {
	sessions := e.registry.Sessions()
	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		var st Status
		if err := s.call(func() { st = s.status() }); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// WriteLeaderboardCSV writes the ranked players of code as CSV.
func (e *Engine) WriteLeaderboardCSV(w io.Writer, code string) error {
	var players []PlayerStats
	if err := e.query(code, func(s *Session) { players = s.summary().Players }); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rank", "player_id", "nickname", "score", "correct", "answered"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range players {
		row := []string{
			strconv.Itoa(p.Rank),
			p.PlayerID,
			p.Nickname,
			strconv.Itoa(p.Score),
			strconv.Itoa(p.CorrectCount),
			strconv.Itoa(p.AnsweredCount),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Engine) query(code string, fn func(s *Session)) error {
	s, ok := e.registry.Get(normalizeCode(code))
	if !ok {
		return ErrUnknownSession
	}
	if err := s.call(func() { fn(s) }); err != nil {
		return ErrUnknownSession
	}
	return nil
}

func (s *Session) status() Status {
	return Status{
		Code:            s.code,
		QuizID:          s.quizID,
		Status:          s.phase,
		QuestionIndex:   s.index,
		TotalQuestions:  len(s.questions),
		PlayersCount:    len(s.players),
		SpectatorsCount: len(s.spectators),
		AutoNext:        s.autoNext,
		RemainingMs:     s.remaining().Milliseconds(),
		CreatedAt:       s.createdAt,
	}
}

// standings returns the frozen results of a finished session, or the live
// players ranked by score.
func (s *Session) standings() []PlayerResult {
	if s.phase == PhaseFinished && s.final != nil {
		return s.final
	}
	board := s.leaderboard()
	out := make([]PlayerResult, 0, len(board))
	for _, entry := range board {
		p := s.players[entry.PlayerID]
		out = append(out, PlayerResult{
			PlayerID:      p.ID,
			UserID:        p.UserID,
			Nickname:      p.Nickname,
			Score:         p.Score,
			Rank:          entry.Rank,
			CorrectCount:  p.CorrectCount,
			AnsweredCount: p.AnsweredCount,
			External:      p.External,
		})
	}
	return out
}

func (s *Session) summary() Summary {
	standings := s.standings()
	board := make([]protocol.LeaderboardEntry, len(standings))
	for i, r := range standings {
		board[i] = protocol.LeaderboardEntry{PlayerID: r.PlayerID, Nickname: r.Nickname, Score: r.Score, Rank: r.Rank}
	}
	sum := Summary{
		Code:        s.code,
		QuizID:      s.quizID,
		Status:      s.phase,
		Leaderboard: board,
		Podium:      board[:min(3, len(board))],
		Questions:   make([]QuestionStats, len(s.questions)),
		Players:     make([]PlayerStats, 0, len(board)),
	}

	latency := make([]time.Duration, len(s.questions))
	for i, q := range s.questions {
		info := q.Info()
		sum.Questions[i] = QuestionStats{
			QuestionID: info.ID,
			Index:      i,
			Type:       q.Kind(),
			Prompt:     info.Prompt,
			Choices:    make(map[string]int),
		}
	}

	type playerAgg struct {
		answers int
		latency time.Duration
	}
	perPlayer := make(map[string]*playerAgg)

	for _, a := range s.answers {
		qs := &sum.Questions[a.questionIndex]
		qs.Answers++
		if a.correct {
			qs.Correct++
		}
		qs.Choices[a.choice]++
		latency[a.questionIndex] += a.elapsed

		agg, ok := perPlayer[a.playerID]
		if !ok {
			agg = &playerAgg{}
			perPlayer[a.playerID] = agg
		}
		agg.answers++
		agg.latency += a.elapsed
	}
	for i := range sum.Questions {
		if n := sum.Questions[i].Answers; n > 0 {
			sum.Questions[i].AvgLatencyMs = (latency[i] / time.Duration(n)).Milliseconds()
		}
	}

	for _, r := range standings {
		ps := PlayerStats{
			PlayerID:      r.PlayerID,
			Nickname:      r.Nickname,
			Score:         r.Score,
			Rank:          r.Rank,
			CorrectCount:  r.CorrectCount,
			AnsweredCount: r.AnsweredCount,
		}
		if r.AnsweredCount > 0 {
			ps.Accuracy = float64(r.CorrectCount) / float64(r.AnsweredCount)
		}
		if agg, ok := perPlayer[r.PlayerID]; ok && r.PlayerID != "" && agg.answers > 0 {
			ps.AvgLatencyMs = (agg.latency / time.Duration(agg.answers)).Milliseconds()
		}
		sum.Players = append(sum.Players, ps)
	}
	return sum
}

// rankResults orders results by score and assigns competition ranks.
func rankResults(results []PlayerResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Nickname < results[j].Nickname
	})
	for i := range results {
		results[i].Rank = i + 1
		if i > 0 && results[i].Score == results[i-1].Score {
			results[i].Rank = results[i-1].Rank
		}
	}
}
