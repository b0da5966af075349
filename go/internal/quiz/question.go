// Package quiz holds the immutable question model used by live sessions.
// Questions and answers are closed sum types: every variant lives in this
// package and the unexported marker methods keep outside code from adding
// new ones, so type switches over them stay exhaustive.
package quiz

import (
	"time"
)

// Kind identifies a question variant.
type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindTextInput      Kind = "text_input"
	KindOrdering       Kind = "ordering"
)

// DefaultTimeLimit applies when a question does not declare one.
const DefaultTimeLimit = 20 * time.Second

// Base carries the fields shared by every question variant.
type Base struct {
	ID        string
	Prompt    string
	MediaURL  string
	TimeLimit time.Duration
}

// Info returns the shared fields.
func (b Base) Info() Base { return b }

// Question is implemented by MultipleChoice, TrueFalse, TextInput and Ordering.
type Question interface {
	Info() Base
	Kind() Kind
	question()
}

// Option is a selectable answer for choice questions.
type Option struct {
	ID      string
	Text    string
	Correct bool
}

// Item is one entry of an ordering question; Position is its zero-based
// place in the correct sequence.
type Item struct {
	ID       string
	Text     string
	Position int
}

type MultipleChoice struct {
	Base
	Options []Option
}

type TrueFalse struct {
	Base
	Options []Option
}

type TextInput struct {
	Base
	Accepted      []string
	CaseSensitive bool
}

type Ordering struct {
	Base
	Items []Item
}

func (MultipleChoice) Kind() Kind { return KindMultipleChoice }
func (TrueFalse) Kind() Kind      { return KindTrueFalse }
func (TextInput) Kind() Kind      { return KindTextInput }
func (Ordering) Kind() Kind       { return KindOrdering }

func (MultipleChoice) question() {}
func (TrueFalse) question()      {}
func (TextInput) question()      {}
func (Ordering) question()       {}

// Quiz is an ordered question list addressed by id.
type Quiz struct {
	ID        string
	Title     string
	Questions []Question
}

// Answer is implemented by OptionAnswer, TextAnswer and OrderAnswer.
type Answer interface {
	answer()
}

type OptionAnswer struct {
	OptionID string
}

type TextAnswer struct {
	Text string
}

type OrderAnswer struct {
	OptionIDs []string
}

func (OptionAnswer) answer() {}
func (TextAnswer) answer()   {}
func (OrderAnswer) answer()  {}

// PublicOption is an option with its correctness stripped.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is the view sent to clients while a question is open.
type PublicQuestion struct {
	ID          string         `json:"id"`
	Type        Kind           `json:"type"`
	Prompt      string         `json:"prompt"`
	MediaURL    string         `json:"mediaUrl,omitempty"`
	TimeLimitMs int64          `json:"timeLimitMs"`
	Options     []PublicOption `json:"options,omitempty"`
}

// Public strips correctness data from q.
func Public(q Question) PublicQuestion {
	info := q.Info()
	pq := PublicQuestion{
		ID:          info.ID,
		Type:        q.Kind(),
		Prompt:      info.Prompt,
		MediaURL:    info.MediaURL,
		TimeLimitMs: info.TimeLimit.Milliseconds(),
	}

	switch v := q.(type) {
	case MultipleChoice:
		pq.Options = publicOptions(v.Options)
	case TrueFalse:
		pq.Options = publicOptions(v.Options)
	case Ordering:
		for _, it := range v.Items {
			pq.Options = append(pq.Options, PublicOption{ID: it.ID, Text: it.Text})
		}
	case TextInput:
	}
	return pq
}

func publicOptions(opts []Option) []PublicOption {
	out := make([]PublicOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, PublicOption{ID: o.ID, Text: o.Text})
	}
	return out
}

// CorrectOptionIDs lists the correct options of a choice question, or the
// item ids in correct order for an ordering question.
func CorrectOptionIDs(q Question) []string {
	var ids []string
	switch v := q.(type) {
	case MultipleChoice:
		ids = correctIDs(v.Options)
	case TrueFalse:
		ids = correctIDs(v.Options)
	case Ordering:
		ids = make([]string, len(v.Items))
		for _, it := range v.Items {
			if it.Position >= 0 && it.Position < len(ids) {
				ids[it.Position] = it.ID
			}
		}
	case TextInput:
	}
	if ids == nil {
		ids = []string{}
	}
	return ids
}

// AcceptedAnswers returns the accepted texts of a text question.
func AcceptedAnswers(q Question) []string {
	if v, ok := q.(TextInput); ok {
		return append([]string(nil), v.Accepted...)
	}
	return nil
}

func correctIDs(opts []Option) []string {
	var ids []string
	for _, o := range opts {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}
