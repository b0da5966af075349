package quiz

import (
	"encoding/json"
	"fmt"
	"time"
)

// Spec is the serialized form of a question shared by the YAML bank file and
// the JSONB payload column in Postgres.
type Spec struct {
	ID            string       `yaml:"id" json:"id"`
	Type          Kind         `yaml:"type" json:"type"`
	Prompt        string       `yaml:"prompt" json:"prompt"`
	MediaURL      string       `yaml:"media_url,omitempty" json:"mediaUrl,omitempty"`
	TimeLimitMs   int64        `yaml:"time_limit_ms,omitempty" json:"timeLimitMs,omitempty"`
	Options       []OptionSpec `yaml:"options,omitempty" json:"options,omitempty"`
	Accepted      []string     `yaml:"accepted,omitempty" json:"accepted,omitempty"`
	CaseSensitive bool         `yaml:"case_sensitive,omitempty" json:"caseSensitive,omitempty"`
}

// OptionSpec serializes both choice options and ordering items.
type OptionSpec struct {
	ID       string `yaml:"id" json:"id"`
	Text     string `yaml:"text" json:"text"`
	Correct  bool   `yaml:"correct,omitempty" json:"correct,omitempty"`
	Position *int   `yaml:"position,omitempty" json:"position,omitempty"`
}

// Build validates s and converts it to its question variant.
func (s Spec) Build() (Question, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("question id is required")
	}
	if s.Prompt == "" {
		return nil, fmt.Errorf("question %s: prompt is required", s.ID)
	}
	if s.TimeLimitMs < 0 {
		return nil, fmt.Errorf("question %s: negative time limit", s.ID)
	}

	base := Base{
		ID:        s.ID,
		Prompt:    s.Prompt,
		MediaURL:  s.MediaURL,
		TimeLimit: time.Duration(s.TimeLimitMs) * time.Millisecond,
	}
	if base.TimeLimit == 0 {
		base.TimeLimit = DefaultTimeLimit
	}

	switch s.Type {
	case KindMultipleChoice:
		opts, err := s.choiceOptions(2)
		if err != nil {
			return nil, err
		}
		return MultipleChoice{Base: base, Options: opts}, nil

	case KindTrueFalse:
		opts, err := s.choiceOptions(2)
		if err != nil {
			return nil, err
		}
		if len(opts) != 2 {
			return nil, fmt.Errorf("question %s: true_false needs exactly 2 options", s.ID)
		}
		return TrueFalse{Base: base, Options: opts}, nil

	case KindTextInput:
		if len(s.Accepted) == 0 {
			return nil, fmt.Errorf("question %s: text_input needs accepted answers", s.ID)
		}
		return TextInput{
			Base:          base,
			Accepted:      append([]string(nil), s.Accepted...),
			CaseSensitive: s.CaseSensitive,
		}, nil

	case KindOrdering:
		items, err := s.orderingItems()
		if err != nil {
			return nil, err
		}
		return Ordering{Base: base, Items: items}, nil

	default:
		return nil, fmt.Errorf("question %s: unknown type %q", s.ID, s.Type)
	}
}

func (s Spec) choiceOptions(minOptions int) ([]Option, error) {
	if len(s.Options) < minOptions {
		return nil, fmt.Errorf("question %s: needs at least %d options", s.ID, minOptions)
	}
	seen := make(map[string]bool, len(s.Options))
	opts := make([]Option, 0, len(s.Options))
	correct := 0
	for _, o := range s.Options {
		if o.ID == "" || seen[o.ID] {
			return nil, fmt.Errorf("question %s: option ids must be unique and non-empty", s.ID)
		}
		seen[o.ID] = true
		if o.Correct {
			correct++
		}
		opts = append(opts, Option{ID: o.ID, Text: o.Text, Correct: o.Correct})
	}
	if correct == 0 {
		return nil, fmt.Errorf("question %s: no correct option", s.ID)
	}
	return opts, nil
}

// orderingItems uses explicit positions when given and list order otherwise.
func (s Spec) orderingItems() ([]Item, error) {
	if len(s.Options) < 2 {
		return nil, fmt.Errorf("question %s: ordering needs at least 2 items", s.ID)
	}
	taken := make(map[int]bool, len(s.Options))
	seen := make(map[string]bool, len(s.Options))
	items := make([]Item, 0, len(s.Options))
	for i, o := range s.Options {
		if o.ID == "" || seen[o.ID] {
			return nil, fmt.Errorf("question %s: item ids must be unique and non-empty", s.ID)
		}
		seen[o.ID] = true
		pos := i
		if o.Position != nil {
			pos = *o.Position
		}
		if pos < 0 || pos >= len(s.Options) || taken[pos] {
			return nil, fmt.Errorf("question %s: item %s has invalid position %d", s.ID, o.ID, pos)
		}
		taken[pos] = true
		items = append(items, Item{ID: o.ID, Text: o.Text, Position: pos})
	}
	return items, nil
}

// SpecOf converts q back to its serialized form.
func SpecOf(q Question) Spec {
	info := q.Info()
	s := Spec{
		ID:          info.ID,
		Type:        q.Kind(),
		Prompt:      info.Prompt,
		MediaURL:    info.MediaURL,
		TimeLimitMs: info.TimeLimit.Milliseconds(),
	}
	switch v := q.(type) {
	case MultipleChoice:
		s.Options = optionSpecs(v.Options)
	case TrueFalse:
		s.Options = optionSpecs(v.Options)
	case TextInput:
		s.Accepted = append([]string(nil), v.Accepted...)
		s.CaseSensitive = v.CaseSensitive
	case Ordering:
		for _, it := range v.Items {
			pos := it.Position
			s.Options = append(s.Options, OptionSpec{ID: it.ID, Text: it.Text, Position: &pos})
		}
	}
	return s
}

func optionSpecs(opts []Option) []OptionSpec {
	out := make([]OptionSpec, 0, len(opts))
	for _, o := range opts {
		out = append(out, OptionSpec{ID: o.ID, Text: o.Text, Correct: o.Correct})
	}
	return out
}

// EncodeJSON serializes q for storage.
func EncodeJSON(q Question) ([]byte, error) {
	return json.Marshal(SpecOf(q))
}

// DecodeJSON parses a stored question payload.
func DecodeJSON(data []byte) (Question, error) {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	return s.Build()
}
