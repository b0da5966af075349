package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Quiz struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type QuizQuestion struct {
	QuizID     string          `json:"quiz_id"`
	Position   int32           `json:"position"`
	QuestionID string          `json:"question_id"`
	Payload    json.RawMessage `json:"payload"`
}

type QuizSession struct {
	Code       string                `json:"code"`
	QuizID     string                `json:"quiz_id"`
	Status     string                `json:"status"`
	Settings   pqtype.NullRawMessage `json:"settings"`
	CreatedAt  time.Time             `json:"created_at"`
	FinishedAt sql.NullTime          `json:"finished_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

type SessionPlayer struct {
	SessionCode string         `json:"session_code"`
	PlayerID    string         `json:"player_id"`
	UserID      sql.NullString `json:"user_id"`
	Nickname    string         `json:"nickname"`
	External    bool           `json:"external"`
	JoinedAt    time.Time      `json:"joined_at"`
}

type SessionAnswer struct {
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

type SessionResult struct {
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
