package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{
			"QUIZ01": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(client, loader, time.Minute)

	quiz, err := repo.GetQuiz(context.Background(), "QUIZ01")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].Correct != "4" {
		t.Fatalf("quiz content lost through cache: %+v", quiz)
	}

	// Second call should hit cache, loader not incremented; the whole
	// document round-trips, options and all.
	cached, err := repo.GetQuiz(context.Background(), "QUIZ01")
	if err != nil {
		t.Fatalf("get quiz cached: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached.Questions[0].Options) != 2 {
		t.Fatalf("cached quiz should keep options, got %+v", cached.Questions[0])
	}
}

func TestQuizRepositoryUnknownCode(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	repo := NewQuizRepository(client, memory.NewStaticQuizLoader(nil), time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "NOPE"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, code)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Code:            "QUIZ01",
		Title:           "Arithmetic",
		DurationMinutes: 10,
		Questions: []domain.Question{
			{
				Text:    "What is 2 + 2?",
				Options: []string{"3", "4"},
				Correct: "4",
			},
		},
	}
}
