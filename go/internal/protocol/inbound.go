// Package protocol defines the websocket message envelope, the inbound and
// outbound payloads, and the validator that guards the session engine.
package protocol

import (
	"encoding/json"

	"github.com/mcdev12/quizarena/go/internal/quiz"
)

// Type names an inbound or outbound message.
type Type string

const (
	TypeJoinSession              Type = "join_session"
	TypeStartQuestion            Type = "start_question"
	TypeSubmitAnswer             Type = "submit_answer"
	TypeReaction                 Type = "reaction"
	TypeForceReveal              Type = "force_reveal"
	TypeAdvanceNext              Type = "advance_next"
	TypeToggleAutoNext           Type = "toggle_auto_next"
	TypeToggleSpectatorReactions Type = "toggle_spectator_reactions"
	TypeTransferHost             Type = "transfer_host"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is implemented by every client message payload.
type Inbound interface {
	MessageType() Type
}

// Addressed is implemented by inbound messages that may carry a session code.
type Addressed interface {
	Inbound
	SessionCode() string
}

type JoinSession struct {
	Code      string `json:"code,omitempty" validate:"omitempty,len=6,alphanum" jsonschema:"minLength=6,maxLength=6,description=Session code; omitted to create a new session"`
	QuizID    string `json:"quizId" validate:"required,max=128" jsonschema:"minLength=1,maxLength=128"`
	Nickname  string `json:"nickname,omitempty" validate:"omitempty,max=32" jsonschema:"maxLength=32"`
	Spectator bool   `json:"spectator,omitempty"`
}

type StartQuestion struct {
	Code string `json:"code" validate:"required,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
}

// SubmitAnswer carries exactly one of OptionID, TextAnswer or OrderedOptionIDs.
type SubmitAnswer struct {
	QuestionID       string   `json:"questionId" validate:"required,max=128" jsonschema:"minLength=1"`
	OptionID         *string  `json:"optionId,omitempty" validate:"omitempty,max=64"`
	TextAnswer       *string  `json:"textAnswer,omitempty" validate:"omitempty,max=256"`
	OrderedOptionIDs []string `json:"orderedOptionIds,omitempty" validate:"omitempty,max=32,dive,required,max=64"`
	ClientTs         int64    `json:"clientTs" validate:"gte=0" jsonschema:"description=Client timestamp in unix milliseconds"`
	Code             string   `json:"code,omitempty" validate:"omitempty,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
}

type Reaction struct {
	Emoji string `json:"emoji" validate:"required,max=16" jsonschema:"minLength=1,maxLength=16"`
	Code  string `json:"code,omitempty" validate:"omitempty,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
}

type ForceReveal struct {
	Code string `json:"code" validate:"required,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
}

type AdvanceNext struct {
	Code string `json:"code" validate:"required,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
}

type ToggleAutoNext struct {
	Code    string `json:"code" validate:"required,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

type ToggleSpectatorReactions struct {
	Code    string `json:"code" validate:"required,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

type TransferHost struct {
	Code           string `json:"code" validate:"required,len=6,alphanum" jsonschema:"minLength=6,maxLength=6"`
	TargetPlayerID string `json:"targetPlayerId" validate:"required,max=64" jsonschema:"minLength=1"`
}

func (JoinSession) MessageType() Type              { return TypeJoinSession }
func (StartQuestion) MessageType() Type            { return TypeStartQuestion }
func (SubmitAnswer) MessageType() Type             { return TypeSubmitAnswer }
func (Reaction) MessageType() Type                 { return TypeReaction }
func (ForceReveal) MessageType() Type              { return TypeForceReveal }
func (AdvanceNext) MessageType() Type              { return TypeAdvanceNext }
func (ToggleAutoNext) MessageType() Type           { return TypeToggleAutoNext }
func (ToggleSpectatorReactions) MessageType() Type { return TypeToggleSpectatorReactions }
func (TransferHost) MessageType() Type             { return TypeTransferHost }

func (m JoinSession) SessionCode() string              { return m.Code }
func (m StartQuestion) SessionCode() string            { return m.Code }
func (m SubmitAnswer) SessionCode() string             { return m.Code }
func (m Reaction) SessionCode() string                 { return m.Code }
func (m ForceReveal) SessionCode() string              { return m.Code }
func (m AdvanceNext) SessionCode() string              { return m.Code }
func (m ToggleAutoNext) SessionCode() string           { return m.Code }
func (m ToggleSpectatorReactions) SessionCode() string { return m.Code }
func (m TransferHost) SessionCode() string             { return m.Code }

// Answer converts the validated payload to its answer variant.
func (m SubmitAnswer) Answer() quiz.Answer {
	switch {
	case m.OptionID != nil:
		return quiz.OptionAnswer{OptionID: *m.OptionID}
	case m.TextAnswer != nil:
		return quiz.TextAnswer{Text: *m.TextAnswer}
	default:
		return quiz.OrderAnswer{OptionIDs: append([]string(nil), m.OrderedOptionIDs...)}
	}
}

// newInbound returns an empty payload for t, or nil when t is not a client message.
func newInbound(t Type) Inbound {
	switch t {
	case TypeJoinSession:
		return &JoinSession{}
	case TypeStartQuestion:
		return &StartQuestion{}
	case TypeSubmitAnswer:
		return &SubmitAnswer{}
	case TypeReaction:
		return &Reaction{}
	case TypeForceReveal:
		return &ForceReveal{}
	case TypeAdvanceNext:
		return &AdvanceNext{}
	case TypeToggleAutoNext:
		return &ToggleAutoNext{}
	case TypeToggleSpectatorReactions:
		return &ToggleSpectatorReactions{}
	case TypeTransferHost:
		return &TransferHost{}
	default:
		return nil
	}
}
