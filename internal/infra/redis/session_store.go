package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// SessionStore is a Redis-backed implementation of app.SessionRepository.
// Notes:
//   - Live *app.Session objects are kept in a local map so the in-process
//     finalize claim and countdown broadcast keep working unchanged.
//   - Redis holds the durable attempt state: the start-time claim, the
//     answers hash and the finalized flag. A process restart (or a second
//     instance) rehydrates a session from those keys with the original
//     startedAt, so the countdown resumes instead of resetting.
//   - The start time is claimed with SET NX: whichever process begins the
//     attempt first wins, and every later GetOrCreate reads that value back.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time

	mu       sync.RWMutex
	sessions map[domain.AttemptKey]*app.Session
}

type attemptMeta struct {
	StartedAt   int64 `json:"startedAt"` // unix nanos
	DurationSec int64 `json:"durationSec"`
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return NewSessionStoreWithClock(client, ttl, time.Now)
}

// NewSessionStoreWithClock allows deterministic start times in tests.
func NewSessionStoreWithClock(client *redis.Client, ttl time.Duration, now func() time.Time) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		clock:    now,
		sessions: make(map[domain.AttemptKey]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(ctx context.Context, key domain.AttemptKey, duration time.Duration) (*app.Session, error) {
	s.mu.RLock()
	if session, ok := s.sessions[key]; ok {
		s.mu.RUnlock()
		return session, nil
	}
	s.mu.RUnlock()

	// Claim the start time. The whole meta blob is written with a single
	// SET NX so a racing process can never observe a half-written claim.
	meta := attemptMeta{
		StartedAt:   s.clock().UnixNano(),
		DurationSec: int64(duration / time.Second),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal attempt meta: %w", err)
	}
	if _, err := s.client.SetNX(ctx, s.metaKey(key), raw, s.ttl).Result(); err != nil {
		return nil, fmt.Errorf("claim attempt start: %w", err)
	}

	// Read back whichever claim won; it may predate this process.
	stored, err := s.client.Get(ctx, s.metaKey(key)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("load attempt meta: %w", err)
	}
	if err := json.Unmarshal(stored, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal attempt meta: %w", err)
	}

	session, err := s.rehydrate(ctx, key, meta)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok {
		return existing, nil
	}
	s.sessions[key] = session
	return session, nil
}

func (s *SessionStore) Get(ctx context.Context, key domain.AttemptKey) (*app.Session, bool) {
	s.mu.RLock()
	if session, ok := s.sessions[key]; ok {
		s.mu.RUnlock()
		return session, true
	}
	s.mu.RUnlock()

	// Local miss: the session may have been started by another process or a
	// previous incarnation of this one.
	stored, err := s.client.Get(ctx, s.metaKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var meta attemptMeta
	if err := json.Unmarshal(stored, &meta); err != nil {
		return nil, false
	}
	session, err := s.rehydrate(ctx, key, meta)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok {
		return existing, true
	}
	s.sessions[key] = session
	return session, true
}

func (s *SessionStore) SaveAnswer(ctx context.Context, key domain.AttemptKey, index int, option string) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.answersKey(key), strconv.Itoa(index), option)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.answersKey(key), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (s *SessionStore) MarkFinalized(ctx context.Context, key domain.AttemptKey) error {
	if err := s.client.Set(ctx, s.finalizedKey(key), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key domain.AttemptKey) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	_ = s.client.Del(ctx, s.metaKey(key), s.answersKey(key), s.finalizedKey(key)).Err()
}

func (s *SessionStore) rehydrate(ctx context.Context, key domain.AttemptKey, meta attemptMeta) (*app.Session, error) {
	raw, err := s.client.HGetAll(ctx, s.answersKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	answers := make(map[int]string, len(raw))
	for field, option := range raw {
		index, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		answers[index] = option
	}

	finalized, err := s.client.Exists(ctx, s.finalizedKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("load finalized flag: %w", err)
	}

	startedAt := time.Unix(0, meta.StartedAt)
	duration := time.Duration(meta.DurationSec) * time.Second
	session := app.ResumeSessionWithClock(key, startedAt, duration, answers, finalized > 0, s.clock)
	return session, nil
}

func (s *SessionStore) metaKey(key domain.AttemptKey) string {
	return "attempt:" + key.Identity + ":" + key.QuizCode + ":meta"
}

func (s *SessionStore) answersKey(key domain.AttemptKey) string {
	return "attempt:" + key.Identity + ":" + key.QuizCode + ":answers"
}

func (s *SessionStore) finalizedKey(key domain.AttemptKey) string {
	return "attempt:" + key.Identity + ":" + key.QuizCode + ":finalized"
}
