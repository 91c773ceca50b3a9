package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/domain"
)

// Ledger is the durable submission store. The UNIQUE (identity, quiz_code)
// constraint plus the conditional insert make Record a single atomic
// check-and-insert: this row, not any in-memory flag, is the final arbiter of
// the one-attempt invariant across processes and restarts.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Record(ctx context.Context, sub domain.Submission) error {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO submissions (id, identity, quiz_code, score, answers, recorded_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		 ON CONFLICT (identity, quiz_code) DO NOTHING`,
		sub.ID, sub.Identity, sub.QuizCode, sub.Score, string(answers), sub.RecordedAt)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (l *Ledger) Lookup(ctx context.Context, key domain.AttemptKey) (domain.Submission, error) {
	var (
		sub domain.Submission
		raw []byte
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, identity, quiz_code, score, answers, recorded_at
		 FROM submissions WHERE identity=$1 AND quiz_code=$2`,
		key.Identity, key.QuizCode).
		Scan(&sub.ID, &sub.Identity, &sub.QuizCode, &sub.Score, &raw, &sub.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("lookup submission: %w", err)
	}
	if err := json.Unmarshal(raw, &sub.Answers); err != nil {
		return domain.Submission{}, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return sub, nil
}
