package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/session"
	"github.com/mcdev12/quizarena/go/internal/store/db"
)

type fakeQuerier struct {
	sessions  map[string]db.QuizSession
	players   []db.UpsertPlayerParams
	answers   []db.InsertAnswerParams
	results   map[string][]db.SessionResult
	quizzes   map[string]db.Quiz
	questions map[string][]db.QuizQuestion
	failOn    string
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		sessions:  make(map[string]db.QuizSession),
		results:   make(map[string][]db.SessionResult),
		quizzes:   make(map[string]db.Quiz),
		questions: make(map[string][]db.QuizQuestion),
	}
}

var errBoom = errors.New("boom")

func (f *fakeQuerier) fail(op string) error {
	if f.failOn == op {
		return errBoom
	}
	return nil
}

func (f *fakeQuerier) SessionCodeExists(_ context.Context, code string) (bool, error) {
	_, ok := f.sessions[code]
	return ok, f.fail("exists")
}

func (f *fakeQuerier) GetSession(_ context.Context, code string) (db.QuizSession, error) {
	s, ok := f.sessions[code]
	if !ok {
		return db.QuizSession{}, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakeQuerier) UpsertSession(_ context.Context, arg db.UpsertSessionParams) error {
	f.sessions[arg.Code] = db.QuizSession{
		Code:       arg.Code,
		QuizID:     arg.QuizID,
		Status:     arg.Status,
		Settings:   arg.Settings,
		CreatedAt:  arg.CreatedAt,
		FinishedAt: arg.FinishedAt,
	}
	return nil
}

func (f *fakeQuerier) UpsertPlayer(_ context.Context, arg db.UpsertPlayerParams) error {
	f.players = append(f.players, arg)
	return nil
}

func (f *fakeQuerier) InsertAnswer(_ context.Context, arg db.InsertAnswerParams) error {
	f.answers = append(f.answers, arg)
	return nil
}

func (f *fakeQuerier) DeleteResults(_ context.Context, code string) error {
	delete(f.results, code)
	return nil
}

func (f *fakeQuerier) InsertResult(_ context.Context, arg db.InsertResultParams) error {
	if err := f.fail("insert_result"); err != nil {
		return err
	}
	f.results[arg.SessionCode] = append(f.results[arg.SessionCode], db.SessionResult{
		ID:            arg.ID,
		SessionCode:   arg.SessionCode,
		Rank:          arg.Rank,
		PlayerID:      arg.PlayerID,
		UserID:        arg.UserID,
		Nickname:      arg.Nickname,
		Score:         arg.Score,
		CorrectCount:  arg.CorrectCount,
		AnsweredCount: arg.AnsweredCount,
		External:      arg.External,
		Disconnected:  arg.Disconnected,
	})
	return nil
}

func (f *fakeQuerier) ListResults(_ context.Context, code string) ([]db.SessionResult, error) {
	return f.results[code], nil
}

func (f *fakeQuerier) GetQuiz(_ context.Context, id string) (db.Quiz, error) {
	q, ok := f.quizzes[id]
	if !ok {
		return db.Quiz{}, sql.ErrNoRows
	}
	return q, nil
}

func (f *fakeQuerier) ListQuizQuestions(_ context.Context, quizID string) ([]db.QuizQuestion, error) {
	return f.questions[quizID], nil
}

func TestSessionConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	fq := newFakeQuerier()
	repo := newRepositoryWithQuerier(fq)

	if _, ok, err := repo.LoadSessionConfig(ctx, "ABC123"); ok || err != nil {
		t.Fatalf("missing session: ok=%v err=%v", ok, err)
	}

	finished := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := repo.SaveSession(ctx, session.SessionRecord{
		Code:                    "ABC123",
		QuizID:                  "capitals",
		Phase:                   session.PhaseFinished,
		AutoNext:                true,
		AllowSpectatorReactions: false,
		CreatedAt:               finished.Add(-time.Hour),
		FinishedAt:              &finished,
	})
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	row := fq.sessions["ABC123"]
	if row.Status != "finished" || !row.FinishedAt.Valid || !row.Settings.Valid {
		t.Fatalf("unexpected row %+v", row)
	}

	cfg, ok, err := repo.LoadSessionConfig(ctx, "ABC123")
	if err != nil || !ok {
		t.Fatalf("LoadSessionConfig: ok=%v err=%v", ok, err)
	}
	if cfg.QuizID != "capitals" || !cfg.AutoNext || cfg.AllowSpectatorReactions {
		t.Fatalf("config = %+v", cfg)
	}

	exists, err := repo.CodeExists(ctx, "ABC123")
	if err != nil || !exists {
		t.Fatalf("CodeExists = %v, %v", exists, err)
	}
}

func TestSaveAnswerVariants(t *testing.T) {
	ctx := context.Background()
	fq := newFakeQuerier()
	repo := newRepositoryWithQuerier(fq)

	base := session.AnswerRecord{
		SessionCode:   "ABC123",
		QuestionID:    "q1",
		QuestionIndex: 2,
		PlayerID:      "conn-1",
		Elapsed:       1500 * time.Millisecond,
		AnsweredAt:    time.Now(),
	}

	answers := []quiz.Answer{
		quiz.OptionAnswer{OptionID: "a"},
		quiz.TextAnswer{Text: "Paris"},
		quiz.OrderAnswer{OptionIDs: []string{"b", "a"}},
	}
	for _, a := range answers {
		rec := base
		rec.Answer = a
		if err := repo.SaveAnswer(ctx, rec); err != nil {
			t.Fatalf("SaveAnswer(%T): %v", a, err)
		}
	}

	if len(fq.answers) != 3 {
		t.Fatalf("got %d answers", len(fq.answers))
	}
	if got := fq.answers[0]; got.OptionID.String != "a" || got.TextAnswer.Valid || got.ElapsedMs != 1500 || got.UserID.Valid {
		t.Fatalf("option answer row = %+v", got)
	}
	if got := fq.answers[1]; !got.TextAnswer.Valid || got.TextAnswer.String != "Paris" || got.OptionID.Valid {
		t.Fatalf("text answer row = %+v", got)
	}
	if got := fq.answers[2]; len(got.OrderedOptionIds) != 2 || got.OrderedOptionIds[0] != "b" {
		t.Fatalf("order answer row = %+v", got)
	}
	if fq.answers[0].ID == fq.answers[1].ID {
		t.Fatalf("answer ids should be unique")
	}
}

func TestSaveResultsReplacesStandings(t *testing.T) {
	ctx := context.Background()
	fq := newFakeQuerier()
	repo := newRepositoryWithQuerier(fq)

	first := []session.PlayerResult{
		{PlayerID: "p1", UserID: "u1", Nickname: "Ann", Score: 900, Rank: 1, CorrectCount: 1, AnsweredCount: 1},
		{PlayerID: "p2", Nickname: "Bob", Score: 0, Rank: 2, AnsweredCount: 1},
	}
	if err := repo.SaveResults(ctx, "ABC123", first); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	if err := repo.SaveResults(ctx, "ABC123", first[:1]); err != nil {
		t.Fatalf("SaveResults again: %v", err)
	}

	got, err := repo.Results(ctx, "ABC123")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(got) != 1 || got[0] != first[0] {
		t.Fatalf("Results = %+v", got)
	}

	fq.failOn = "insert_result"
	if err := repo.SaveResults(ctx, "ABC123", first); !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped insert failure, got %v", err)
	}
}

func TestLoadQuestions(t *testing.T) {
	ctx := context.Background()
	fq := newFakeQuerier()
	repo := newRepositoryWithQuerier(fq)

	if _, err := repo.LoadQuestions(ctx, "nope"); !errors.Is(err, quiz.ErrUnknownQuiz) {
		t.Fatalf("expected ErrUnknownQuiz, got %v", err)
	}

	spec := quiz.Spec{
		ID:          "q1",
		Type:        quiz.KindMultipleChoice,
		Prompt:      "Capital of France?",
		TimeLimitMs: 10000,
		Options: []quiz.OptionSpec{
			{ID: "a", Text: "Paris", Correct: true},
			{ID: "b", Text: "Lyon"},
		},
	}
	payload, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fq.quizzes["capitals"] = db.Quiz{ID: "capitals", Title: "Capitals"}
	fq.questions["capitals"] = []db.QuizQuestion{{QuizID: "capitals", Position: 0, QuestionID: "q1", Payload: payload}}

	qs, err := repo.LoadQuestions(ctx, "capitals")
	if err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}
	if len(qs) != 1 || qs[0].Info().ID != "q1" || qs[0].Kind() != quiz.KindMultipleChoice {
		t.Fatalf("questions = %+v", qs)
	}
	if qs[0].Info().TimeLimit != 10*time.Second {
		t.Fatalf("time limit = %v", qs[0].Info().TimeLimit)
	}

	fq.questions["capitals"][0].Payload = []byte(`{"id":"q1"}`)
	if _, err := repo.LoadQuestions(ctx, "capitals"); err == nil {
		t.Fatalf("expected decode error for bad payload")
	}
}
