package quiz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAnswerMismatch means the answer variant does not fit the question type.
	ErrAnswerMismatch = errors.New("answer does not match question type")
	// ErrUnknownOption means the answer references an option the question does not have.
	ErrUnknownOption = errors.New("unknown option")
)

// Result is the outcome of evaluating one answer.
type Result struct {
	Correct bool
	// Partial is the fraction of ordering positions that matched. It is 1 for
	// a correct answer and 0 for choice and text questions answered wrong.
	Partial float64
	// Choice is a normalized form of the submitted answer used for statistics.
	Choice string
}

// Evaluate checks a against q.
func Evaluate(q Question, a Answer) (Result, error) {
	switch v := q.(type) {
	case MultipleChoice:
		return evaluateOption(v.Options, a)
	case TrueFalse:
		return evaluateOption(v.Options, a)
	case TextInput:
		return evaluateText(v, a)
	case Ordering:
		return evaluateOrder(v, a)
	default:
		return Result{}, fmt.Errorf("unsupported question type %T", q)
	}
}

func evaluateOption(opts []Option, a Answer) (Result, error) {
	ans, ok := a.(OptionAnswer)
	if !ok {
		return Result{}, ErrAnswerMismatch
	}
	for _, o := range opts {
		if o.ID == ans.OptionID {
			res := Result{Correct: o.Correct, Choice: o.ID}
			if o.Correct {
				res.Partial = 1
			}
			return res, nil
		}
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownOption, ans.OptionID)
}

func evaluateText(q TextInput, a Answer) (Result, error) {
	ans, ok := a.(TextAnswer)
	if !ok {
		return Result{}, ErrAnswerMismatch
	}
	given := strings.TrimSpace(ans.Text)
	res := Result{Choice: given}
	for _, accepted := range q.Accepted {
		accepted = strings.TrimSpace(accepted)
		if q.CaseSensitive && given == accepted || !q.CaseSensitive && strings.EqualFold(given, accepted) {
			res.Correct = true
			res.Partial = 1
			break
		}
	}
	if !q.CaseSensitive {
		res.Choice = strings.ToLower(given)
	}
	return res, nil
}

func evaluateOrder(q Ordering, a Answer) (Result, error) {
	ans, ok := a.(OrderAnswer)
	if !ok {
		return Result{}, ErrAnswerMismatch
	}
	if len(ans.OptionIDs) != len(q.Items) {
		return Result{}, fmt.Errorf("%w: expected %d items, got %d", ErrAnswerMismatch, len(q.Items), len(ans.OptionIDs))
	}

	positions := make(map[string]int, len(q.Items))
	for _, it := range q.Items {
		positions[it.ID] = it.Position
	}

	seen := make(map[string]bool, len(ans.OptionIDs))
	matched := 0
	for i, id := range ans.OptionIDs {
		pos, ok := positions[id]
		if !ok {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownOption, id)
		}
		if seen[id] {
			return Result{}, fmt.Errorf("%w: %q listed twice", ErrAnswerMismatch, id)
		}
		seen[id] = true
		if pos == i {
			matched++
		}
	}

	res := Result{Choice: strings.Join(ans.OptionIDs, ",")}
	if len(q.Items) > 0 {
		res.Partial = float64(matched) / float64(len(q.Items))
	}
	res.Correct = matched == len(q.Items)
	return res, nil
}
