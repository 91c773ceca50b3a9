package domain

import "errors"

var (
	// ErrUnauthorized is returned when the identity token is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQuizNotFound indicates the quiz code does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question index outside the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates the selected option is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrSessionNotFound is returned when no attempt session exists for the pair.
	ErrSessionNotFound = errors.New("attempt session not found")
	// ErrSessionFinalized rejects answer mutations once the session is finalized
	// or its deadline has passed.
	ErrSessionFinalized = errors.New("attempt session finalized")
	// ErrAlreadySubmitted means a submission is already durably recorded for the pair.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrSubmissionNotFound is returned by ledger lookups with no recorded submission.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrPersistenceFailure wraps a ledger write that failed after the finalize
	// claim succeeded. Not retried automatically; a later Finalize call goes
	// back through the ledger's idempotency check.
	ErrPersistenceFailure = errors.New("submission persistence failure")
)
