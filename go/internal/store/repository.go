// Package store persists sessions, players, answers and final results to
// Postgres, and serves quiz questions stored by the seed tool.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/session"
	"github.com/mcdev12/quizarena/go/internal/sqlutil"
	"github.com/mcdev12/quizarena/go/internal/store/db"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	SessionCodeExists(ctx context.Context, code string) (bool, error)
	GetSession(ctx context.Context, code string) (db.QuizSession, error)
	UpsertSession(ctx context.Context, arg db.UpsertSessionParams) error
	UpsertPlayer(ctx context.Context, arg db.UpsertPlayerParams) error
	InsertAnswer(ctx context.Context, arg db.InsertAnswerParams) error
	DeleteResults(ctx context.Context, sessionCode string) error
	InsertResult(ctx context.Context, arg db.InsertResultParams) error
	ListResults(ctx context.Context, sessionCode string) ([]db.SessionResult, error)
	GetQuiz(ctx context.Context, id string) (db.Quiz, error)
	ListQuizQuestions(ctx context.Context, quizID string) ([]db.QuizQuestion, error)
}

// Repository implements session.Store and session.QuestionBank on Postgres.
type Repository struct {
	queries Querier
	inTx    func(ctx context.Context, fn func(Querier) error) error
}

var (
	_ session.Store        = (*Repository)(nil)
	_ session.QuestionBank = (*Repository)(nil)
)

// NewRepository creates a repository backed by conn.
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		queries: db.New(conn),
		inTx: func(ctx context.Context, fn func(Querier) error) error {
			return sqlutil.Run(ctx, conn, db.New(conn).WithTx, func(q *db.Queries) error {
				return fn(q)
			})
		},
	}
}

// newRepositoryWithQuerier runs "transactions" directly on q.
func newRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{
		queries: q,
		inTx: func(_ context.Context, fn func(Querier) error) error {
			return fn(q)
		},
	}
}

type sessionSettings struct {
	AutoNext                bool `json:"auto_next"`
	AllowSpectatorReactions bool `json:"allow_spectator_reactions"`
}

// CodeExists reports whether a session row already uses code.
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	exists, err := r.queries.SessionCodeExists(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to check session code: %w", err)
	}
	return exists, nil
}

// LoadSessionConfig returns the persisted flags of a session, if any.
func (r *Repository) LoadSessionConfig(ctx context.Context, code string) (session.SessionConfig, bool, error) {
	row, err := r.queries.GetSession(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return session.SessionConfig{}, false, nil
	}
	if err != nil {
		return session.SessionConfig{}, false, fmt.Errorf("failed to get session: %w", err)
	}

	cfg := session.SessionConfig{QuizID: row.QuizID}
	if row.Settings.Valid {
		var s sessionSettings
		if err := json.Unmarshal(row.Settings.RawMessage, &s); err != nil {
			return session.SessionConfig{}, false, fmt.Errorf("failed to unmarshal session settings: %w", err)
		}
		cfg.AutoNext = s.AutoNext
		cfg.AllowSpectatorReactions = s.AllowSpectatorReactions
	}
	return cfg, true, nil
}

// SaveSession upserts the session row.
func (r *Repository) SaveSession(ctx context.Context, rec session.SessionRecord) error {
	settings, err := json.Marshal(sessionSettings{
		AutoNext:                rec.AutoNext,
		AllowSpectatorReactions: rec.AllowSpectatorReactions,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session settings: %w", err)
	}

	err = r.queries.UpsertSession(ctx, db.UpsertSessionParams{
		Code:       rec.Code,
		QuizID:     rec.QuizID,
		Status:     string(rec.Phase),
		Settings:   pqtype.NullRawMessage{RawMessage: settings, Valid: true},
		CreatedAt:  rec.CreatedAt,
		FinishedAt: sqlutil.ToSqlTime(rec.FinishedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.Code, err)
	}
	return nil
}

// SavePlayer upserts a session participant.
func (r *Repository) SavePlayer(ctx context.Context, rec session.PlayerRecord) error {
	err := r.queries.UpsertPlayer(ctx, db.UpsertPlayerParams{
		SessionCode: rec.SessionCode,
		PlayerID:    rec.PlayerID,
		UserID:      sqlutil.NullString(rec.UserID),
		Nickname:    rec.Nickname,
		External:    rec.External,
		JoinedAt:    rec.JoinedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save player %s: %w", rec.PlayerID, err)
	}
	return nil
}

// SaveAnswer appends one accepted answer.
func (r *Repository) SaveAnswer(ctx context.Context, rec session.AnswerRecord) error {
	arg := db.InsertAnswerParams{
		ID:            uuid.New(),
		SessionCode:   rec.SessionCode,
		QuestionID:    rec.QuestionID,
		QuestionIndex: sqlutil.Int32(rec.QuestionIndex),
		PlayerID:      rec.PlayerID,
		UserID:        sqlutil.NullString(rec.UserID),
		Correct:       rec.Correct,
		Partial:       rec.Partial,
		ScoreDelta:    sqlutil.Int32(rec.ScoreDelta),
		ElapsedMs:     rec.Elapsed.Milliseconds(),
		AnsweredAt:    rec.AnsweredAt,
	}
	switch a := rec.Answer.(type) {
	case quiz.OptionAnswer:
		arg.OptionID = sqlutil.NullString(a.OptionID)
	case quiz.TextAnswer:
		arg.TextAnswer = sql.NullString{String: a.Text, Valid: true}
	case quiz.OrderAnswer:
		arg.OrderedOptionIds = a.OptionIDs
	default:
		return fmt.Errorf("unsupported answer type %T", rec.Answer)
	}

	if err := r.queries.InsertAnswer(ctx, arg); err != nil {
		return fmt.Errorf("failed to save answer for %s: %w", rec.PlayerID, err)
	}
	return nil
}

// SaveResults replaces the final standings of a session in one transaction.
func (r *Repository) SaveResults(ctx context.Context, code string, results []session.PlayerResult) error {
	err := r.inTx(ctx, func(q Querier) error {
		if err := q.DeleteResults(ctx, code); err != nil {
			return fmt.Errorf("failed to clear results: %w", err)
		}
		for _, res := range results {
			err := q.InsertResult(ctx, db.InsertResultParams{
				ID:            uuid.New(),
				SessionCode:   code,
				Rank:          sqlutil.Int32(res.Rank),
				PlayerID:      sqlutil.NullString(res.PlayerID),
				UserID:        sqlutil.NullString(res.UserID),
				Nickname:      res.Nickname,
				Score:         sqlutil.Int32(res.Score),
				CorrectCount:  sqlutil.Int32(res.CorrectCount),
				AnsweredCount: sqlutil.Int32(res.AnsweredCount),
				External:      res.External,
				Disconnected:  res.Disconnected,
			})
			if err != nil {
				return fmt.Errorf("failed to insert result for %s: %w", res.Nickname, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save results for %s: %w", code, err)
	}
	return nil
}

// Results returns the stored final standings of a session, best rank first.
func (r *Repository) Results(ctx context.Context, code string) ([]session.PlayerResult, error) {
	rows, err := r.queries.ListResults(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	out := make([]session.PlayerResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, session.PlayerResult{
			PlayerID:      sqlutil.FromNullString(row.PlayerID),
			UserID:        sqlutil.FromNullString(row.UserID),
			Nickname:      row.Nickname,
			Score:         int(row.Score),
			Rank:          int(row.Rank),
			CorrectCount:  int(row.CorrectCount),
			AnsweredCount: int(row.AnsweredCount),
			External:      row.External,
			Disconnected:  row.Disconnected,
		})
	}
	return out, nil
}

// LoadQuestions returns the ordered questions of a seeded quiz.
func (r *Repository) LoadQuestions(ctx context.Context, quizID string) ([]quiz.Question, error) {
	if _, err := r.queries.GetQuiz(ctx, quizID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", quiz.ErrUnknownQuiz, quizID)
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	rows, err := r.queries.ListQuizQuestions(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz questions: %w", err)
	}

	questions := make([]quiz.Question, 0, len(rows))
	for _, row := range rows {
		q, err := quiz.DecodeJSON(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("question %s of %s: %w", row.QuestionID, quizID, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}
