package memory

import (
	"context"
	"testing"
	"time"

	"civic-engage-service/internal/domain"
)

func TestQuizCatalogCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"env-basics": sampleQuiz(),
		}),
	}
	catalog := NewQuizCatalog(loader, time.Minute)

	if _, err := catalog.GetQuiz(context.Background(), "env-basics"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := catalog.GetQuiz(context.Background(), "env-basics"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuizCatalogUnknownQuiz(t *testing.T) {
	catalog := NewQuizCatalog(NewStaticQuizLoader(nil), time.Minute)
	if _, err := catalog.GetQuiz(context.Background(), "missing"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "env-basics",
		Title: "Environmental Basics",
		Questions: []domain.Question{
			{
				Prompt:  "Which of these is a renewable energy source?",
				Options: []string{"Coal", "Natural gas", "Solar power", "Nuclear power"},
				Correct: 2,
			},
		},
		PointsPerQuestion: 10,
	}
}
