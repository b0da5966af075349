package quiz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownQuiz is returned when a bank has no quiz with the requested id.
var ErrUnknownQuiz = errors.New("unknown quiz")

// QuizSpec is one quiz entry of a bank file.
type QuizSpec struct {
	ID        string `yaml:"id" json:"id"`
	Title     string `yaml:"title" json:"title"`
	Questions []Spec `yaml:"questions" json:"questions"`
}

// BankFile is the top-level layout of a YAML bank file.
type BankFile struct {
	Quizzes []QuizSpec `yaml:"quizzes"`
}

// Build converts every question spec of the quiz.
func (qs QuizSpec) Build() (Quiz, error) {
	if qs.ID == "" {
		return Quiz{}, fmt.Errorf("quiz id is required")
	}
	q := Quiz{ID: qs.ID, Title: qs.Title}
	for i, s := range qs.Questions {
		question, err := s.Build()
		if err != nil {
			return Quiz{}, fmt.Errorf("quiz %s question %d: %w", qs.ID, i, err)
		}
		q.Questions = append(q.Questions, question)
	}
	return q, nil
}

// ParseBank parses YAML bank data.
func ParseBank(data []byte) ([]Quiz, error) {
	var file BankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse quiz bank: %w", err)
	}

	seen := make(map[string]bool, len(file.Quizzes))
	quizzes := make([]Quiz, 0, len(file.Quizzes))
	for _, spec := range file.Quizzes {
		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate quiz id %q", spec.ID)
		}
		seen[spec.ID] = true
		q, err := spec.Build()
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, nil
}

// LoadFile reads and parses a YAML bank file.
func LoadFile(path string) ([]Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz bank %s: %w", path, err)
	}
	return ParseBank(data)
}

// MemoryBank serves quizzes held in memory, typically loaded from a file.
type MemoryBank struct {
	mu      sync.RWMutex
	quizzes map[string]Quiz
}

func NewMemoryBank(quizzes ...Quiz) *MemoryBank {
	b := &MemoryBank{quizzes: make(map[string]Quiz, len(quizzes))}
	for _, q := range quizzes {
		b.quizzes[q.ID] = q
	}
	return b
}

// Put adds or replaces a quiz.
func (b *MemoryBank) Put(q Quiz) {
	b.mu.Lock()
	b.quizzes[q.ID] = q
	b.mu.Unlock()
}

// LoadQuestions returns a copy of the quiz's ordered question list.
func (b *MemoryBank) LoadQuestions(_ context.Context, quizID string) ([]Question, error) {
	b.mu.RLock()
	q, ok := b.quizzes[quizID]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuiz, quizID)
	}
	return append([]Question(nil), q.Questions...), nil
}

// IDs lists the known quiz ids in sorted order.
func (b *MemoryBank) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.quizzes))
	for id := range b.quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
