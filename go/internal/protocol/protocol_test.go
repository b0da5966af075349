package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mcdev12/quizarena/go/internal/quiz"
)

func TestDecodeValidMessages(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		raw  string
		want Type
	}{
		{`{"type":"join_session","data":{"quizId":"capitals","nickname":"ana"}}`, TypeJoinSession},
		{`{"type":"join_session","data":{"code":"ABC123","quizId":"capitals","spectator":true}}`, TypeJoinSession},
		{`{"type":"start_question","data":{"code":"ABC123"}}`, TypeStartQuestion},
		{`{"type":"submit_answer","data":{"questionId":"q1","optionId":"a","clientTs":1}}`, TypeSubmitAnswer},
		{`{"type":"reaction","data":{"emoji":"🔥"}}`, TypeReaction},
		{`{"type":"toggle_auto_next","data":{"code":"ABC123","enabled":false}}`, TypeToggleAutoNext},
		{`{"type":"transfer_host","data":{"code":"ABC123","targetPlayerId":"p2"}}`, TypeTransferHost},
	}

	for _, tc := range cases {
		msg, err := v.Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.raw, err)
		}
		if msg.MessageType() != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.raw, tc.want, msg.MessageType())
		}
	}
}

func TestDecodeReturnsValues(t *testing.T) {
	v := NewValidator()
	msg, err := v.Decode([]byte(`{"type":"toggle_spectator_reactions","data":{"code":"ABC123","enabled":true}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	toggle, ok := msg.(ToggleSpectatorReactions)
	if !ok {
		t.Fatalf("expected value type, got %T", msg)
	}
	if toggle.Enabled == nil || !*toggle.Enabled || toggle.SessionCode() != "ABC123" {
		t.Fatalf("unexpected payload: %+v", toggle)
	}
}

func TestDecodeRejections(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name     string
		raw      string
		wantType Type
		field    string
	}{
		{"malformed", `{"type":`, "", ""},
		{"unknown type", `{"type":"teleport","data":{}}`, "", ""},
		{"missing quiz", `{"type":"join_session","data":{"nickname":"ana"}}`, TypeJoinSession, "quizId"},
		{"short code", `{"type":"start_question","data":{"code":"AB"}}`, TypeStartQuestion, "code"},
		{"no answer", `{"type":"submit_answer","data":{"questionId":"q1","clientTs":1}}`, TypeSubmitAnswer, "answer"},
		{"two answers", `{"type":"submit_answer","data":{"questionId":"q1","optionId":"a","textAnswer":"x","clientTs":1}}`, TypeSubmitAnswer, "answer"},
		{"missing enabled", `{"type":"toggle_auto_next","data":{"code":"ABC123"}}`, TypeToggleAutoNext, "enabled"},
		{"wrong json type", `{"type":"reaction","data":{"emoji":5}}`, TypeReaction, ""},
		{"long nickname", `{"type":"join_session","data":{"quizId":"q","nickname":"` + strings.Repeat("x", 40) + `"}}`, TypeJoinSession, "nickname"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Decode([]byte(tc.raw))
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if perr.Type != tc.wantType {
				t.Fatalf("expected type %q, got %q", tc.wantType, perr.Type)
			}
			if tc.field != "" {
				if _, ok := perr.Fields[tc.field]; !ok {
					t.Fatalf("expected field error for %s, got %v", tc.field, perr.Fields)
				}
				if !strings.Contains(perr.Message, tc.field) {
					t.Fatalf("expected message to name %s, got %q", tc.field, perr.Message)
				}
			}
		})
	}
}

func TestSubmitAnswerVariants(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		raw  string
		want quiz.Answer
	}{
		{`{"questionId":"q","optionId":"a","clientTs":0}`, quiz.OptionAnswer{OptionID: "a"}},
		{`{"questionId":"q","textAnswer":"Tokyo","clientTs":0}`, quiz.TextAnswer{Text: "Tokyo"}},
	}
	for _, tc := range cases {
		msg, err := v.Decode([]byte(`{"type":"submit_answer","data":` + tc.raw + `}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := msg.(SubmitAnswer).Answer(); got != tc.want {
			t.Fatalf("expected %#v, got %#v", tc.want, got)
		}
	}

	msg, err := v.Decode([]byte(`{"type":"submit_answer","data":{"questionId":"q","orderedOptionIds":["b","a"],"clientTs":0}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order, ok := msg.(SubmitAnswer).Answer().(quiz.OrderAnswer)
	if !ok || len(order.OptionIDs) != 2 || order.OptionIDs[0] != "b" {
		t.Fatalf("unexpected ordering answer: %#v", msg)
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(RejectedType(TypeStartQuestion), Rejected{Code: "not_host"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "start_question_rejected" || env.Data["code"] != "not_host" {
		t.Fatalf("unexpected envelope: %s", data)
	}
}

func TestInboundSchema(t *testing.T) {
	data, err := json.Marshal(InboundSchema())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	out := string(data)
	for _, want := range []string{"Quiz session inbound messages", "join_session", "quizId", "orderedOptionIds", "targetPlayerId"} {
		if !strings.Contains(out, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}
