package app

import (
	"sync"
	"sync/atomic"
	"time"

	"quiz-attempt-service/internal/domain"
)

// EventType tags countdown events pushed to subscribers.
type EventType string

const (
	EventTick      EventType = "tick"
	EventFinalized EventType = "finalized"
)

// Event is delivered to session subscribers: a countdown tick while the
// attempt is running, then exactly one finalized event carrying the result.
type Event struct {
	Type       EventType
	Remaining  time.Duration
	Trigger    domain.Trigger
	Submission *domain.Submission
}

// Session is the in-memory state of one attempt: the fixed start time, the
// accumulated answers, and the finalize guard both triggers race for.
type Session struct {
	key       domain.AttemptKey
	startedAt time.Time
	deadline  time.Time
	now       func() time.Time

	finalized atomic.Bool
	watching  atomic.Bool

	mu          sync.RWMutex
	answers     map[int]string
	subscribers map[chan Event]struct{}
}

// NewSession builds a fresh session. The deadline is fixed here, from the
// quiz duration at the moment the attempt begins; later quiz edits must not
// move it.
func NewSession(key domain.AttemptKey, startedAt time.Time, duration time.Duration) *Session {
	return NewSessionWithClock(key, startedAt, duration, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(key domain.AttemptKey, startedAt time.Time, duration time.Duration, now func() time.Time) *Session {
	return &Session{
		key:         key,
		startedAt:   startedAt,
		deadline:    startedAt.Add(duration),
		now:         now,
		answers:     make(map[int]string),
		subscribers: make(map[chan Event]struct{}),
	}
}

// ResumeSession rebuilds a session from persisted state, e.g. after a process
// restart rehydrates from Redis. startedAt is the originally claimed value.
func ResumeSession(key domain.AttemptKey, startedAt time.Time, duration time.Duration, answers map[int]string, finalized bool) *Session {
	return ResumeSessionWithClock(key, startedAt, duration, answers, finalized, time.Now)
}

// ResumeSessionWithClock is ResumeSession with an injected clock.
func ResumeSessionWithClock(key domain.AttemptKey, startedAt time.Time, duration time.Duration, answers map[int]string, finalized bool, now func() time.Time) *Session {
	s := NewSessionWithClock(key, startedAt, duration, now)
	if answers != nil {
		s.answers = answers
	}
	s.finalized.Store(finalized)
	return s
}

func (s *Session) Key() domain.AttemptKey { return s.key }
func (s *Session) StartedAt() time.Time   { return s.startedAt }
func (s *Session) Deadline() time.Time    { return s.deadline }

// Remaining reports time left on the countdown, clamped at zero.
func (s *Session) Remaining() time.Duration {
	remaining := s.deadline.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Finalized reports whether the finalize claim has been taken.
func (s *Session) Finalized() bool {
	return s.finalized.Load()
}

// Answers returns a copy of the recorded answers.
func (s *Session) Answers() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string, len(s.answers))
	for i, opt := range s.answers {
		out[i] = opt
	}
	return out
}

// recordAnswer upserts the answer for a question index. Rejected once the
// session is finalized or its deadline has passed.
func (s *Session) recordAnswer(index int, option string) error {
	if s.finalized.Load() || !s.now().Before(s.deadline) {
		return domain.ErrSessionFinalized
	}
	s.mu.Lock()
	s.answers[index] = option
	s.mu.Unlock()
	return nil
}

// claimFinalize is the single synchronization point between the manual and
// timer triggers: a test-and-set that exactly one caller wins.
func (s *Session) claimFinalize() bool {
	return s.finalized.CompareAndSwap(false, true)
}

// claimWatch ensures at most one countdown watcher runs per session.
func (s *Session) claimWatch() bool {
	return s.watching.CompareAndSwap(false, true)
}

// subscribe returns a channel of countdown events. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *Session) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcast(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest queued event so slow readers never block the
			// countdown or the finalize path.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
