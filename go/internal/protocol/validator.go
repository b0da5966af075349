package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error is a decode or validation failure. Type is empty when the envelope
// itself could not be understood.
type Error struct {
	Type    Type
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Validator decodes envelopes and checks payloads against their struct rules.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	v.RegisterStructValidation(validateSubmitAnswer, SubmitAnswer{})
	return &Validator{validate: v}
}

// Decode parses raw into a validated inbound payload value.
func (v *Validator) Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Message: "malformed envelope: " + err.Error()}
	}

	msg := newInbound(env.Type)
	if msg == nil {
		return nil, &Error{Message: fmt.Sprintf("unknown message type %q", env.Type)}
	}

	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &Error{Type: env.Type, Message: "invalid data: " + err.Error()}
	}

	if err := v.validate.Struct(msg); err != nil {
		return nil, fieldError(env.Type, err)
	}
	return deref(msg), nil
}

// Check validates any tagged struct with the same rules and field naming.
func (v *Validator) Check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		return fieldError("", err)
	}
	return nil
}

func fieldError(t Type, err error) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Type: t, Message: err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+fields[name])
	}
	return &Error{Type: t, Message: strings.Join(parts, "; "), Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "alphanum":
		return "must be alphanumeric"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "exactly_one_answer":
		return "exactly one of optionId, textAnswer or orderedOptionIds is required"
	default:
		return "failed " + fe.Tag()
	}
}

func validateSubmitAnswer(sl validator.StructLevel) {
	m := sl.Current().Interface().(SubmitAnswer)
	n := 0
	if m.OptionID != nil {
		n++
	}
	if m.TextAnswer != nil {
		n++
	}
	if len(m.OrderedOptionIDs) > 0 {
		n++
	}
	if n != 1 {
		sl.ReportError(m.OptionID, "answer", "OptionID", "exactly_one_answer", "")
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func deref(msg Inbound) Inbound {
	switch m := msg.(type) {
	case *JoinSession:
		return *m
	case *StartQuestion:
		return *m
	case *SubmitAnswer:
		return *m
	case *Reaction:
		return *m
	case *ForceReveal:
		return *m
	case *AdvanceNext:
		return *m
	case *ToggleAutoNext:
		return *m
	case *ToggleSpectatorReactions:
		return *m
	case *TransferHost:
		return *m
	default:
		return msg
	}
}
