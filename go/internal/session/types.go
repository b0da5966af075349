// Package session is the live quiz engine. Every session is owned by a
// single actor goroutine; handlers, timer callbacks and sweeps are closures
// executed on that goroutine, so session state is never touched concurrently.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
)

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseReveal   Phase = "reveal"
	PhaseFinished Phase = "finished"
)

// Reason is a stable rejection code delivered to the requesting connection.
type Reason string

const (
	ReasonUnknownSession    Reason = "unknown_session"
	ReasonQuizMismatch      Reason = "quiz_mismatch"
	ReasonNotHost           Reason = "not_host"
	ReasonInvalidPhase      Reason = "invalid_phase"
	ReasonInvalidPayload    Reason = "invalid_payload"
	ReasonSpectator         Reason = "spectator"
	ReasonAlreadyAnswered   Reason = "already_answered"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonUnknownQuestion   Reason = "unknown_question"
	ReasonUnknownTarget     Reason = "unknown_target"
	ReasonSpectatorDisabled Reason = "spectator_disabled"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrQuizMismatch   = errors.New("session belongs to another quiz")
	ErrEmptyQuiz      = errors.New("quiz has no questions")
	ErrSessionClosed  = errors.New("session closed")
	ErrCodeExhausted  = errors.New("could not allocate a unique session code")
)

// Identity is what the transport knows about a connection. An empty UserID
// means the connection is unauthenticated.
type Identity struct {
	UserID string
	Name   string
}

// Player is an answering participant. ID is the connection id, or an
// "ext:" prefixed id for players injected through the chat bridge.
type Player struct {
	ID            string
	UserID        string
	Nickname      string
	Score         int
	Streak        int
	CorrectCount  int
	AnsweredCount int
	JoinedAt      time.Time
	External      bool
}

type Spectator struct {
	ID       string
	Nickname string
}

// detached keeps a disconnected player's progress for reconnection.
type detached struct {
	UserID        string
	Nickname      string
	Score         int
	Streak        int
	CorrectCount  int
	AnsweredCount int
	// AnsweredIndex is the question index the player already answered in the
	// current question, or -1.
	AnsweredIndex int
	ExpiresAt     time.Time
}

// Transport delivers outbound messages to connections. Send must not block.
type Transport interface {
	Send(connID string, msgType protocol.Type, data any)
	IsConnected(connID string) bool
}

// Metrics is the subset of the metrics registry the engine records into.
type Metrics interface {
	Inc(name string)
	Dec(name string)
	AddGauge(name string, delta float64)
	ObserveDuration(name string, d time.Duration)
}

// QuestionBank returns the ordered, immutable question list of a quiz.
type QuestionBank interface {
	LoadQuestions(ctx context.Context, quizID string) ([]quiz.Question, error)
}

// SessionConfig is the persisted part of a session used to restore flags.
type SessionConfig struct {
	QuizID                  string
	AutoNext                bool
	AllowSpectatorReactions bool
}

type SessionRecord struct {
	Code                    string
	QuizID                  string
	Phase                   Phase
	AutoNext                bool
	AllowSpectatorReactions bool
	CreatedAt               time.Time
	FinishedAt              *time.Time
}

type PlayerRecord struct {
	SessionCode string
	PlayerID    string
	UserID      string
	Nickname    string
	External    bool
	JoinedAt    time.Time
}

type AnswerRecord struct {
	SessionCode   string
	QuestionID    string
	QuestionIndex int
	PlayerID      string
	UserID        string
	Answer        quiz.Answer
	Correct       bool
	Partial       float64
	ScoreDelta    int
	Elapsed       time.Duration
	AnsweredAt    time.Time
}

// PlayerResult is one player's final standing.
type PlayerResult struct {
	PlayerID      string `json:"playerId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Nickname      string `json:"nickname"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
	CorrectCount  int    `json:"correctCount"`
	AnsweredCount int    `json:"answeredCount"`
	External      bool   `json:"external,omitempty"`
	Disconnected  bool   `json:"disconnected,omitempty"`
}

// GameRecord is handed to the history collaborator when a session finishes.
type GameRecord struct {
	SessionCode    string         `json:"sessionCode"`
	QuizID         string         `json:"quizId"`
	TotalQuestions int            `json:"totalQuestions"`
	StartedAt      time.Time      `json:"startedAt"`
	FinishedAt     time.Time      `json:"finishedAt"`
	Results        []PlayerResult `json:"results"`
}

// Store is the best-effort write-through persistence collaborator.
type Store interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	LoadSessionConfig(ctx context.Context, code string) (SessionConfig, bool, error)
	SaveSession(ctx context.Context, rec SessionRecord) error
	SavePlayer(ctx context.Context, rec PlayerRecord) error
	SaveAnswer(ctx context.Context, rec AnswerRecord) error
	SaveResults(ctx context.Context, code string, results []PlayerResult) error
}

// History records finished games for long-term progression.
type History interface {
	RecordGame(ctx context.Context, rec GameRecord) error
}

// UpdateKind says what a chat bridge update carries.
type UpdateKind string

const (
	UpdateQuestion    UpdateKind = "question"
	UpdateReveal      UpdateKind = "reveal"
	UpdateLeaderboard UpdateKind = "leaderboard"
	UpdateFinished    UpdateKind = "finished"
)

// Update is pushed to the chat bridge for linked sessions.
type Update struct {
	Kind             UpdateKind                  `json:"kind"`
	Index            int                         `json:"index"`
	Total            int                         `json:"total"`
	Question         *quiz.PublicQuestion        `json:"question,omitempty"`
	CorrectOptionIDs []string                    `json:"correctOptionIds,omitempty"`
	AcceptedAnswers  []string                    `json:"acceptedAnswers,omitempty"`
	Leaderboard      []protocol.LeaderboardEntry `json:"leaderboard,omitempty"`
}

// ChatBridge pushes session updates to an external text channel.
type ChatBridge interface {
	Push(ctx context.Context, code string, update Update) error
}

// AnswerOutcome is the result of one answer submission.
type AnswerOutcome struct {
	Accepted   bool
	Reason     Reason
	Message    string
	Correct    bool
	ScoreDelta int
	Partial    float64
}
