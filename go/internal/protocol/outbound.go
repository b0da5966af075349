package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/quizarena/go/internal/quiz"
)

const (
	TypeSessionState              Type = "session_state"
	TypeSessionCodeAssigned       Type = "session_code_assigned"
	TypeQuestionStarted           Type = "question_started"
	TypeAnswerAck                 Type = "answer_ack"
	TypeQuestionReveal            Type = "question_reveal"
	TypeLeaderboardUpdate         Type = "leaderboard_update"
	TypeSessionFinished           Type = "session_finished"
	TypeHostChanged               Type = "host_changed"
	TypeAutoNextToggled           Type = "auto_next_toggled"
	TypeSpectatorReactionsToggled Type = "spectator_reactions_toggled"
	TypeReactionBroadcast         Type = "reaction_broadcast"
	TypeError                     Type = "error"
)

// RejectedType returns the rejection message type for an inbound action.
func RejectedType(action Type) Type {
	return Type(string(action) + "_rejected")
}

type PlayerView struct {
	PlayerID  string `json:"playerId"`
	Nickname  string `json:"nickname"`
	Score     int    `json:"score"`
	Streak    int    `json:"streak"`
	IsHost    bool   `json:"isHost"`
	External  bool   `json:"external,omitempty"`
	Connected bool   `json:"connected"`
}

type SpectatorView struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

type SessionState struct {
	Code                    string          `json:"code,omitempty"`
	Status                  string          `json:"status"`
	QuestionIndex           int             `json:"questionIndex"`
	RemainingMs             int64           `json:"remainingMs"`
	TotalQuestions          int             `json:"totalQuestions"`
	IsHost                  bool            `json:"isHost"`
	IsSpectator             bool            `json:"isSpectator"`
	AutoNext                bool            `json:"autoNext"`
	HostID                  string          `json:"hostId"`
	SelfID                  string          `json:"selfId,omitempty"`
	Players                 []PlayerView    `json:"players"`
	Spectators              []SpectatorView `json:"spectators"`
	AllowSpectatorReactions bool            `json:"allowSpectatorReactions"`
}

type SessionCodeAssigned struct {
	Code string `json:"code"`
}

type QuestionStarted struct {
	QuestionID  string              `json:"questionId"`
	Index       int                 `json:"index"`
	TimeLimitMs int64               `json:"timeLimitMs"`
	Question    quiz.PublicQuestion `json:"question"`
}

type AnswerAck struct {
	QuestionID   string   `json:"questionId"`
	Accepted     bool     `json:"accepted"`
	Correct      *bool    `json:"correct,omitempty"`
	ScoreDelta   *int     `json:"scoreDelta,omitempty"`
	PartialScore *float64 `json:"partialScore,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Message      string   `json:"message,omitempty"`
}

type QuestionReveal struct {
	QuestionID       string   `json:"questionId"`
	CorrectOptionIDs []string `json:"correctOptionIds"`
	AcceptedAnswers  []string `json:"acceptedAnswers,omitempty"`
}

type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

type LeaderboardUpdate struct {
	Entries []LeaderboardEntry `json:"entries"`
}

type SessionFinished struct {
	Final []LeaderboardEntry `json:"final"`
}

type HostChanged struct {
	HostID string `json:"hostId"`
}

type Toggled struct {
	Enabled bool `json:"enabled"`
}

type ReactionBroadcast struct {
	PlayerID string `json:"playerId"`
	Emoji    string `json:"emoji"`
}

type Rejected struct {
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Outbound is an encoded-on-demand server message.
type Outbound struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Encode marshals an outbound envelope.
func Encode(t Type, data any) ([]byte, error) {
	b, err := json.Marshal(Outbound{Type: t, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}
