package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/quizarena/go/internal/dbconfig"
	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/store"
)

func main() {
	path := "go/internal/assets/quizzes.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load and validate the YAML bank
	quizzes, err := quiz.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load bank: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, store.Schema()); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Replace each quiz and count
	var (
		total     = len(quizzes)
		seeded    int
		questions int
		errs      int
	)

	for _, q := range quizzes {
		n, err := seedQuiz(ctx, pool, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding quiz %s: %v\n", q.ID, err)
			errs++
			continue
		}
		seeded++
		questions += n
	}

	// 4) Print summary
	fmt.Printf(
		"Quiz seed complete: %d total, %d seeded, %d questions, %d errors\n",
		total, seeded, questions, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}

// seedQuiz upserts the quiz row and rewrites its questions in one transaction.
func seedQuiz(ctx context.Context, pool *pgxpool.Pool, q quiz.Quiz) (int, error) {
	var n int
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO quizzes (id, title) VALUES ($1, $2)
            ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = NOW()
        `, q.ID, q.Title); err != nil {
			return fmt.Errorf("upsert quiz: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM quiz_questions WHERE quiz_id = $1`, q.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}

		for i, question := range q.Questions {
			payload, err := quiz.EncodeJSON(question)
			if err != nil {
				return fmt.Errorf("encode %s: %w", question.Info().ID, err)
			}
			if _, err := tx.Exec(ctx, `
                INSERT INTO quiz_questions (quiz_id, position, question_id, payload)
                VALUES ($1, $2, $3, $4)
            `, q.ID, i, question.Info().ID, payload); err != nil {
				return fmt.Errorf("insert %s: %w", question.Info().ID, err)
			}
			n++
		}
		return nil
	})
	return n, err
}
