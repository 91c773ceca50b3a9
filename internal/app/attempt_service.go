package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

// SessionRepository abstracts where attempt sessions live (in-memory, Redis).
// GetOrCreate must fix startedAt exactly once per key; callers that race get
// the same session back, never a reset one.
type SessionRepository interface {
	GetOrCreate(ctx context.Context, key domain.AttemptKey, duration time.Duration) (*Session, error)
	Get(ctx context.Context, key domain.AttemptKey) (*Session, bool)
	SaveAnswer(ctx context.Context, key domain.AttemptKey, index int, option string) error
	MarkFinalized(ctx context.Context, key domain.AttemptKey) error
	Delete(ctx context.Context, key domain.AttemptKey)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, code string) (domain.Quiz, error)
}

// SubmissionLedger is the durable, append-only store of submissions. Record
// must be an atomic check-and-insert keyed (identity, quiz code): it is the
// final arbiter of the one-attempt invariant, across processes.
type SubmissionLedger interface {
	Record(ctx context.Context, sub domain.Submission) error
	Lookup(ctx context.Context, key domain.AttemptKey) (domain.Submission, error)
}

// QuestionView is the participant-facing shape of a question: the correct
// option never leaves the server.
type QuestionView struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// SessionView is the resumable state returned to a (re)connecting client.
type SessionView struct {
	QuizCode  string
	Title     string
	Questions []QuestionView
	StartedAt time.Time
	Deadline  time.Time
	Remaining time.Duration
	Answers   map[int]string
}

// StartResult is the outcome of StartOrResume: either a live session or the
// already-recorded submission.
type StartResult struct {
	AlreadySubmitted bool
	Submission       domain.Submission
	Session          SessionView
}

// AttemptService wires the attempt session, the finalize arbitration, the
// scoring function and the submission ledger together.
type AttemptService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	ledger   SubmissionLedger
	clock    func() time.Time
	tick     time.Duration
}

// Option configures an AttemptService.
type Option func(*AttemptService)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptService) { s.clock = now }
}

// WithTick overrides the countdown watcher granularity (default one second).
func WithTick(tick time.Duration) Option {
	return func(s *AttemptService) {
		if tick > 0 {
			s.tick = tick
		}
	}
}

func NewAttemptService(sessions SessionRepository, quizzes QuizRepository, ledger SubmissionLedger, opts ...Option) *AttemptService {
	s := &AttemptService{
		sessions: sessions,
		quizzes:  quizzes,
		ledger:   ledger,
		clock:    time.Now,
		tick:     time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartOrResume begins an attempt or resumes the existing one. If a
// submission is already recorded for the pair it is returned instead; no
// session is ever materialized past that point.
func (s *AttemptService) StartOrResume(ctx context.Context, quizCode, identity string) (StartResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizCode)
	if err != nil {
		return StartResult{}, err
	}
	key := domain.AttemptKey{Identity: identity, QuizCode: quizCode}

	if sub, err := s.ledger.Lookup(ctx, key); err == nil {
		return StartResult{AlreadySubmitted: true, Submission: sub}, nil
	} else if !errors.Is(err, domain.ErrSubmissionNotFound) {
		return StartResult{}, err
	}

	session, err := s.sessions.GetOrCreate(ctx, key, quiz.Duration())
	if err != nil {
		return StartResult{}, err
	}
	s.ensureWatch(session)
	return StartResult{Session: s.viewOf(quiz, session)}, nil
}

// SetAnswer upserts the participant's selection for one question. Rejected
// with ErrSessionFinalized once the session is finalized or past deadline.
func (s *AttemptService) SetAnswer(ctx context.Context, quizCode, identity string, index int, option string) error {
	key := domain.AttemptKey{Identity: identity, QuizCode: quizCode}
	session, ok := s.sessions.Get(ctx, key)
	if !ok {
		return domain.ErrSessionNotFound
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizCode)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(quiz.Questions) {
		return domain.ErrQuestionNotFound
	}
	if !containsOption(quiz.Questions[index].Options, option) {
		return domain.ErrOptionNotFound
	}

	if err := session.recordAnswer(index, option); err != nil {
		return err
	}
	return s.sessions.SaveAnswer(ctx, key, index, option)
}

// Finalize freezes the attempt, scores it once and records the submission.
// The manual and timer triggers both land here; a test-and-set claim on the
// session lets exactly one through. A caller that loses the claim is answered
// from the ledger — unless no durable record exists (a previous persistence
// failure), in which case the write is safely re-attempted because Record is
// idempotent per (identity, quiz code).
func (s *AttemptService) Finalize(ctx context.Context, quizCode, identity string, trigger domain.Trigger) (domain.Submission, error) {
	key := domain.AttemptKey{Identity: identity, QuizCode: quizCode}

	session, ok := s.sessions.Get(ctx, key)
	if !ok {
		sub, err := s.ledger.Lookup(ctx, key)
		if err == nil {
			return sub, domain.ErrAlreadySubmitted
		}
		if !errors.Is(err, domain.ErrSubmissionNotFound) {
			return domain.Submission{}, err
		}
		return domain.Submission{}, domain.ErrSessionNotFound
	}

	if !session.claimFinalize() {
		sub, err := s.ledger.Lookup(ctx, key)
		if err == nil {
			return sub, domain.ErrAlreadySubmitted
		}
		if !errors.Is(err, domain.ErrSubmissionNotFound) {
			return domain.Submission{}, err
		}
		// Claim taken but nothing durable: the earlier winner failed to
		// persist. Fall through and retry the write.
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizCode)
	if err != nil {
		return domain.Submission{}, err
	}

	answers := session.Answers()
	points, breakdown := Score(quiz, answers)
	sub := domain.Submission{
		ID:         uuid.NewString(),
		Identity:   identity,
		QuizCode:   quizCode,
		Score:      points,
		Answers:    breakdown,
		RecordedAt: s.clock(),
	}

	if err := s.sessions.MarkFinalized(ctx, key); err != nil {
		log.Printf("mark finalized %s/%s: %v", identity, quizCode, err)
	}

	if err := s.ledger.Record(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrAlreadySubmitted) {
			if existing, lerr := s.ledger.Lookup(ctx, key); lerr == nil {
				return existing, domain.ErrAlreadySubmitted
			}
			return domain.Submission{}, err
		}
		return domain.Submission{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	session.broadcast(Event{Type: EventFinalized, Trigger: trigger, Submission: &sub})
	s.sessions.Delete(ctx, key)
	return sub, nil
}

// Subscribe returns a channel of countdown events for a live attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AttemptService) Subscribe(ctx context.Context, quizCode, identity string) (<-chan Event, func(), error) {
	session, ok := s.sessions.Get(ctx, domain.AttemptKey{Identity: identity, QuizCode: quizCode})
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// ensureWatch starts the per-session countdown goroutine once. The watcher is
// what finalizes abandoned attempts: it keeps running with or without a
// connected client, recomputing the remaining time from the fixed deadline on
// every tick.
func (s *AttemptService) ensureWatch(session *Session) {
	if !session.claimWatch() {
		return
	}
	go s.watch(session)
}

func (s *AttemptService) watch(session *Session) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for range ticker.C {
		if session.Finalized() {
			return
		}
		remaining := session.deadline.Sub(s.clock())
		if remaining <= 0 {
			key := session.Key()
			if _, err := s.Finalize(context.Background(), key.QuizCode, key.Identity, domain.TriggerTimer); err != nil && !errors.Is(err, domain.ErrAlreadySubmitted) {
				log.Printf("auto finalize %s/%s: %v", key.Identity, key.QuizCode, err)
			}
			return
		}
		session.broadcast(Event{Type: EventTick, Remaining: remaining})
	}
}

func (s *AttemptService) viewOf(quiz domain.Quiz, session *Session) SessionView {
	questions := make([]QuestionView, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions = append(questions, QuestionView{Text: q.Text, Options: q.Options})
	}
	remaining := session.deadline.Sub(s.clock())
	if remaining < 0 {
		remaining = 0
	}
	return SessionView{
		QuizCode:  quiz.Code,
		Title:     quiz.Title,
		Questions: questions,
		StartedAt: session.StartedAt(),
		Deadline:  session.Deadline(),
		Remaining: remaining,
		Answers:   session.Answers(),
	}
}

func containsOption(options []string, option string) bool {
	for _, o := range options {
		if o == option {
			return true
		}
	}
	return false
}
