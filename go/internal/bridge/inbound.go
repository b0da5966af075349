package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/session"
)

// Inbound is one chat answer. Data is "ans:<question>:<option>",
// "txt:<question>:<text>" or "ord:<question>:<a,b,c>"; an empty question id
// targets the open question.
type Inbound struct {
	ChannelID string `json:"channelId" validate:"omitempty,max=128"`
	UserID    string `json:"userId" validate:"required,max=64"`
	Nickname  string `json:"nickname" validate:"omitempty,max=32"`
	Data      string `json:"data" validate:"required,max=512"`
}

// Reply answers a request-reply inbound message.
type Reply struct {
	Accepted   bool           `json:"accepted"`
	Reason     session.Reason `json:"reason,omitempty"`
	Message    string         `json:"message,omitempty"`
	Correct    bool           `json:"correct,omitempty"`
	ScoreDelta int            `json:"scoreDelta,omitempty"`
}

var errBadAnswer = errors.New("malformed answer data")

// ParseAnswer decodes the Data field of an inbound message.
func ParseAnswer(data string) (string, quiz.Answer, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return "", nil, errBadAnswer
	}
	questionID, value := parts[1], strings.TrimSpace(parts[2])
	if value == "" {
		return "", nil, errBadAnswer
	}

	switch parts[0] {
	case "ans":
		return questionID, quiz.OptionAnswer{OptionID: value}, nil
	case "txt":
		return questionID, quiz.TextAnswer{Text: value}, nil
	case "ord":
		ids := strings.Split(value, ",")
		for i, id := range ids {
			ids[i] = strings.TrimSpace(id)
			if ids[i] == "" {
				return "", nil, errBadAnswer
			}
		}
		return questionID, quiz.OrderAnswer{OptionIDs: ids}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown prefix %q", errBadAnswer, parts[0])
	}
}

// codeFromSubject extracts the session code of <prefix>.<code>.in.
func (b *Bridge) codeFromSubject(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, b.config.SubjectPrefix+".")
	if !ok {
		return "", false
	}
	code, ok := strings.CutSuffix(rest, ".in")
	if !ok || code == "" || strings.Contains(code, ".") {
		return "", false
	}
	return strings.ToUpper(code), true
}

func (b *Bridge) handleInbound(subject string, data []byte) Reply {
	invalid := func(msg string) Reply {
		return Reply{Reason: session.ReasonInvalidPayload, Message: msg}
	}

	code, ok := b.codeFromSubject(subject)
	if !ok {
		return invalid("bad subject")
	}
	l, ok := b.link(code)
	if !ok {
		return Reply{Reason: session.ReasonUnknownSession, Message: ErrNotLinked.Error()}
	}

	var in Inbound
	if err := decodeJSON(data, &in); err != nil {
		return invalid(err.Error())
	}
	if err := b.validator.Check(in); err != nil {
		return invalid(err.Error())
	}
	if l.ChannelID != "" && in.ChannelID != "" && in.ChannelID != l.ChannelID {
		return Reply{Reason: session.ReasonUnknownSession, Message: "channel is not linked to this session"}
	}

	questionID, answer, err := ParseAnswer(in.Data)
	if err != nil {
		return invalid(err.Error())
	}
	if b.submitter == nil {
		return Reply{Reason: session.ReasonUnknownSession, Message: "bridge not started"}
	}

	out, err := b.submitter.SubmitExternal(code, in.UserID, in.Nickname, questionID, answer)
	if err != nil {
		log.Debug().Err(err).Str("code", code).Str("user_id", in.UserID).Msg("external answer failed")
	}
	return Reply{
		Accepted:   out.Accepted,
		Reason:     out.Reason,
		Message:    out.Message,
		Correct:    out.Correct,
		ScoreDelta: out.ScoreDelta,
	}
}
