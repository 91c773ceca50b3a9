package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Ledger is an in-memory app.SubmissionLedger for tests and demo mode.
// Record is check-and-insert under a single mutex, mirroring the unique
// constraint the Postgres ledger enforces.
type Ledger struct {
	mu          sync.Mutex
	submissions map[domain.AttemptKey]domain.Submission
}

var _ app.SubmissionLedger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{submissions: make(map[domain.AttemptKey]domain.Submission)}
}

func (l *Ledger) Record(_ context.Context, sub domain.Submission) error {
	key := domain.AttemptKey{Identity: sub.Identity, QuizCode: sub.QuizCode}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.submissions[key]; ok {
		return domain.ErrAlreadySubmitted
	}
	l.submissions[key] = sub
	return nil
}

func (l *Ledger) Lookup(_ context.Context, key domain.AttemptKey) (domain.Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub, ok := l.submissions[key]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}
