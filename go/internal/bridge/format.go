package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/session"
)

var medals = map[int]string{1: "🥇", 2: "🥈", 3: "🥉"}

func FormatQuestion(u session.Update) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "❓ Question %d of %d", u.Index+1, u.Total)
	q := u.Question
	if q == nil {
		return sb.String()
	}
	fmt.Fprintf(&sb, "\n\n%s", q.Prompt)
	for _, o := range q.Options {
		fmt.Fprintf(&sb, "\n[%s] %s", o.ID, o.Text)
	}
	switch q.Type {
	case quiz.KindTextInput:
		fmt.Fprintf(&sb, "\n\nReply txt:%s:<answer>", q.ID)
	case quiz.KindOrdering:
		fmt.Fprintf(&sb, "\n\nReply ord:%s:<ids in order>", q.ID)
	}
	fmt.Fprintf(&sb, "\n⏱ %ds", q.TimeLimitMs/1000)
	return sb.String()
}

// FormatReveal names the correct answer, using the option texts of the
// question when they are known.
func FormatReveal(u session.Update, q *quiz.PublicQuestion) string {
	answers := u.AcceptedAnswers
	if len(u.CorrectOptionIDs) > 0 {
		texts := make(map[string]string)
		if q != nil {
			for _, o := range q.Options {
				texts[o.ID] = o.Text
			}
		}
		answers = make([]string, 0, len(u.CorrectOptionIDs))
		for _, id := range u.CorrectOptionIDs {
			if t, ok := texts[id]; ok {
				answers = append(answers, t)
			} else {
				answers = append(answers, id)
			}
		}
	}
	sep := ", "
	if q != nil && q.Type == quiz.KindOrdering {
		sep = " → "
	}
	return fmt.Sprintf("✅ Answer: %s", strings.Join(answers, sep))
}

func FormatLeaderboard(entries []protocol.LeaderboardEntry, limit int) string {
	if len(entries) == 0 {
		return "📊 No scores yet"
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	lines := []string{"📊 Leaderboard"}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s: %d", place(e.Rank), e.Nickname, e.Score))
	}
	return strings.Join(lines, "\n")
}

func FormatFinished(entries []protocol.LeaderboardEntry) string {
	lines := []string{"🏁 Quiz finished!"}
	for _, e := range entries {
		if e.Rank > 3 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s: %d", place(e.Rank), e.Nickname, e.Score))
	}
	return strings.Join(lines, "\n")
}

func place(rank int) string {
	if m, ok := medals[rank]; ok {
		return m
	}
	return fmt.Sprintf("%d.", rank)
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
