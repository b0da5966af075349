package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const sessionCodeExists = `-- name: SessionCodeExists :one
SELECT EXISTS (SELECT 1 FROM quiz_sessions WHERE code = $1)
`

func (q *Queries) SessionCodeExists(ctx context.Context, code string) (bool, error) {
	row := q.db.QueryRowContext(ctx, sessionCodeExists, code)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const getSession = `-- name: GetSession :one
SELECT code, quiz_id, status, settings, created_at, finished_at, updated_at
FROM quiz_sessions
WHERE code = $1
`

func (q *Queries) GetSession(ctx context.Context, code string) (QuizSession, error) {
	row := q.db.QueryRowContext(ctx, getSession, code)
	var i QuizSession
	err := row.Scan(
		&i.Code,
		&i.QuizID,
		&i.Status,
		&i.Settings,
		&i.CreatedAt,
		&i.FinishedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertSession = `-- name: UpsertSession :exec
INSERT INTO quiz_sessions (code, quiz_id, status, settings, created_at, finished_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (code) DO UPDATE
SET status      = EXCLUDED.status,
    settings    = EXCLUDED.settings,
    finished_at = EXCLUDED.finished_at,
    updated_at  = NOW()
`

type UpsertSessionParams struct {
	Code       string                `json:"code"`
	QuizID     string                `json:"quiz_id"`
	Status     string                `json:"status"`
	Settings   pqtype.NullRawMessage `json:"settings"`
	CreatedAt  time.Time             `json:"created_at"`
	FinishedAt sql.NullTime          `json:"finished_at"`
}

func (q *Queries) UpsertSession(ctx context.Context, arg UpsertSessionParams) error {
	_, err := q.db.ExecContext(ctx, upsertSession,
		arg.Code,
		arg.QuizID,
		arg.Status,
		arg.Settings,
		arg.CreatedAt,
		arg.FinishedAt,
	)
	return err
}

const upsertPlayer = `-- name: UpsertPlayer :exec
INSERT INTO session_players (session_code, player_id, user_id, nickname, external, joined_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_code, player_id) DO UPDATE
SET nickname = EXCLUDED.nickname
`

type UpsertPlayerParams struct {
	SessionCode string         `json:"session_code"`
	PlayerID    string         `json:"player_id"`
	UserID      sql.NullString `json:"user_id"`
	Nickname    string         `json:"nickname"`
	External    bool           `json:"external"`
	JoinedAt    time.Time      `json:"joined_at"`
}

func (q *Queries) UpsertPlayer(ctx context.Context, arg UpsertPlayerParams) error {
	_, err := q.db.ExecContext(ctx, upsertPlayer,
		arg.SessionCode,
		arg.PlayerID,
		arg.UserID,
		arg.Nickname,
		arg.External,
		arg.JoinedAt,
	)
	return err
}

const insertAnswer = `-- name: InsertAnswer :exec
INSERT INTO session_answers (
    id, session_code, question_id, question_index, player_id, user_id,
    option_id, text_answer, ordered_option_ids, correct, partial, score_delta,
    elapsed_ms, answered_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

type InsertAnswerParams struct {
	ID               uuid.UUID      `json:"id"`
	SessionCode      string         `json:"session_code"`
	QuestionID       string         `json:"question_id"`
	QuestionIndex    int32          `json:"question_index"`
	PlayerID         string         `json:"player_id"`
	UserID           sql.NullString `json:"user_id"`
	OptionID         sql.NullString `json:"option_id"`
	TextAnswer       sql.NullString `json:"text_answer"`
	OrderedOptionIds []string       `json:"ordered_option_ids"`
	Correct          bool           `json:"correct"`
	Partial          float64        `json:"partial"`
	ScoreDelta       int32          `json:"score_delta"`
	ElapsedMs        int64          `json:"elapsed_ms"`
	AnsweredAt       time.Time      `json:"answered_at"`
}

func (q *Queries) InsertAnswer(ctx context.Context, arg InsertAnswerParams) error {
	_, err := q.db.ExecContext(ctx, insertAnswer,
		arg.ID,
		arg.SessionCode,
		arg.QuestionID,
		arg.QuestionIndex,
		arg.PlayerID,
		arg.UserID,
		arg.OptionID,
		arg.TextAnswer,
		pq.Array(arg.OrderedOptionIds),
		arg.Correct,
		arg.Partial,
		arg.ScoreDelta,
		arg.ElapsedMs,
		arg.AnsweredAt,
	)
	return err
}

const deleteResults = `-- name: DeleteResults :exec
DELETE FROM session_results WHERE session_code = $1
`

func (q *Queries) DeleteResults(ctx context.Context, sessionCode string) error {
	_, err := q.db.ExecContext(ctx, deleteResults, sessionCode)
	return err
}

const insertResult = `-- name: InsertResult :exec
INSERT INTO session_results (
    id, session_code, rank, player_id, user_id, nickname, score,
    correct_count, answered_count, external, disconnected
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

type InsertResultParams struct {
	ID            uuid.UUID      `json:"id"`
	SessionCode   string         `json:"session_code"`
	Rank          int32          `json:"rank"`
	PlayerID      sql.NullString `json:"player_id"`
	UserID        sql.NullString `json:"user_id"`
	Nickname      string         `json:"nickname"`
	Score         int32          `json:"score"`
	CorrectCount  int32          `json:"correct_count"`
	AnsweredCount int32          `json:"answered_count"`
	External      bool           `json:"external"`
	Disconnected  bool           `json:"disconnected"`
}

func (q *Queries) InsertResult(ctx context.Context, arg InsertResultParams) error {
	_, err := q.db.ExecContext(ctx, insertResult,
		arg.ID,
		arg.SessionCode,
		arg.Rank,
		arg.PlayerID,
		arg.UserID,
		arg.Nickname,
		arg.Score,
		arg.CorrectCount,
		arg.AnsweredCount,
		arg.External,
		arg.Disconnected,
	)
	return err
}

const listResults = `-- name: ListResults :many
SELECT id, session_code, rank, player_id, user_id, nickname, score,
       correct_count, answered_count, external, disconnected
FROM session_results
WHERE session_code = $1
ORDER BY rank, nickname
`

func (q *Queries) ListResults(ctx context.Context, sessionCode string) ([]SessionResult, error) {
	rows, err := q.db.QueryContext(ctx, listResults, sessionCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionResult
	for rows.Next() {
		var i SessionResult
		if err := rows.Scan(
			&i.ID,
			&i.SessionCode,
			&i.Rank,
			&i.PlayerID,
			&i.UserID,
			&i.Nickname,
			&i.Score,
			&i.CorrectCount,
			&i.AnsweredCount,
			&i.External,
			&i.Disconnected,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getQuiz = `-- name: GetQuiz :one
SELECT id, title, created_at, updated_at FROM quizzes WHERE id = $1
`

func (q *Queries) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := q.db.QueryRowContext(ctx, getQuiz, id)
	var i Quiz
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listQuizQuestions = `-- name: ListQuizQuestions :many
SELECT quiz_id, position, question_id, payload
FROM quiz_questions
WHERE quiz_id = $1
ORDER BY position
`

func (q *Queries) ListQuizQuestions(ctx context.Context, quizID string) ([]QuizQuestion, error) {
	rows, err := q.db.QueryContext(ctx, listQuizQuestions, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []QuizQuestion
	for rows.Next() {
		var i QuizQuestion
		if err := rows.Scan(
			&i.QuizID,
			&i.Position,
			&i.QuestionID,
			&i.Payload,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
