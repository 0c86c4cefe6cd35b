package app_test

import (
	"errors"
	"testing"
	"time"

	"civic-engage-service/internal/app"
	"civic-engage-service/internal/domain"
)

func civicsQuiz() domain.Quiz {
	return domain.Quiz{
		ID:       "civics-101",
		Title:    "Civic Knowledge",
		Category: "environment",
		Questions: []domain.Question{
			{Prompt: "Q1", Options: []string{"a", "b", "c"}, Correct: 1},
			{Prompt: "Q2", Options: []string{"a", "b", "c"}, Correct: 0},
			{Prompt: "Q3", Options: []string{"a", "b", "c"}, Correct: 2},
		},
		PointsPerQuestion: 10,
	}
}

func TestQuizTwoOfThreeCorrect(t *testing.T) {
	session := app.NewQuizSession("u1", civicsQuiz())
	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Q1: correct.
	if err := session.SelectAnswer(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	result, err := session.Submit()
	if err != nil || !result.Correct || result.Awarded != 10 {
		t.Fatalf("expected correct for 10, got %+v err=%v", result, err)
	}
	if _, done, err := session.Advance(); err != nil || done {
		t.Fatalf("expected next question, done=%v err=%v", done, err)
	}

	// Q2: wrong.
	_ = session.SelectAnswer(2)
	result, _ = session.Submit()
	if result.Correct || result.Awarded != 0 || result.RunningScore != 10 {
		t.Fatalf("expected incorrect with score 10, got %+v", result)
	}
	if _, done, _ := session.Advance(); done {
		t.Fatalf("quiz ended early")
	}

	// Q3: correct.
	_ = session.SelectAnswer(2)
	result, _ = session.Submit()
	if !result.Correct || result.RunningScore != 20 {
		t.Fatalf("expected running score 20, got %+v", result)
	}

	completion, done, err := session.Advance()
	if err != nil || !done {
		t.Fatalf("expected completion, done=%v err=%v", done, err)
	}
	if completion.Kind != domain.QuizCompleted || completion.Score != 20 || completion.UserID != "u1" {
		t.Fatalf("unexpected completion action %+v", completion)
	}
	if completion.IdempotencyKey == "" {
		t.Fatalf("expected idempotency key on completion")
	}
	if session.State() != app.StateCompleted {
		t.Fatalf("expected completed state, got %v", session.State())
	}
}

func TestNoSelectionCountsAsIncorrect(t *testing.T) {
	session := app.NewQuizSession("u1", civicsQuiz())
	_ = session.Start()

	result, err := session.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Correct || result.Awarded != 0 {
		t.Fatalf("expected incorrect with no selection, got %+v", result)
	}
}

func TestDeadlineAutoSubmit(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	session := app.NewQuizSessionWithClock("u1", civicsQuiz(), func() time.Time { return current })
	_ = session.Start()

	// Not due yet.
	if _, due := session.ExpireIfDue(); due {
		t.Fatalf("deadline fired early")
	}

	// A selection made before the deadline is graded by the timeout.
	_ = session.SelectAnswer(1)
	current = current.Add(app.QuestionTime + time.Second)
	result, due := session.ExpireIfDue()
	if !due {
		t.Fatalf("expected deadline to fire")
	}
	if !result.Correct || result.Awarded != 10 {
		t.Fatalf("expected tentative choice graded, got %+v", result)
	}
	if session.State() != app.StateGraded {
		t.Fatalf("expected graded state, got %v", session.State())
	}

	// Next question gets a fresh deadline.
	if _, done, err := session.Advance(); err != nil || done {
		t.Fatalf("advance: done=%v err=%v", done, err)
	}
	_, _, deadline, err := session.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !deadline.Equal(current.Add(app.QuestionTime)) {
		t.Fatalf("expected fresh 30s deadline, got %v", deadline)
	}
}

func TestSelectAfterGradingRejected(t *testing.T) {
	session := app.NewQuizSession("u1", civicsQuiz())
	_ = session.Start()
	_, _ = session.Submit()

	if err := session.SelectAnswer(0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSelectOutOfRangeRejected(t *testing.T) {
	session := app.NewQuizSession("u1", civicsQuiz())
	_ = session.Start()

	if err := session.SelectAnswer(7); !errors.Is(err, domain.ErrNoChoice) {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
}

func TestExitForfeitsProgress(t *testing.T) {
	session := app.NewQuizSession("u1", civicsQuiz())
	_ = session.Start()
	_ = session.SelectAnswer(1)
	_, _ = session.Submit()

	if err := session.Exit(); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if session.State() != app.StateAbandoned {
		t.Fatalf("expected abandoned, got %v", session.State())
	}
	if _, _, err := session.Advance(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected no progress after exit, got %v", err)
	}
}

func TestCompletedSessionCannotExit(t *testing.T) {
	session := app.NewQuizSession("u1", domain.Quiz{
		ID:        "one",
		Questions: []domain.Question{{Prompt: "Q", Options: []string{"a", "b"}, Correct: 0}},
	})
	_ = session.Start()
	_, _ = session.Submit()
	if _, done, _ := session.Advance(); !done {
		t.Fatalf("expected completion")
	}
	if err := session.Exit(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected exit rejected after completion, got %v", err)
	}
}

func TestStartRequiresQuestions(t *testing.T) {
	session := app.NewQuizSession("u1", domain.Quiz{ID: "empty"})
	if err := session.Start(); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestDoubleStartRejected(t *testing.T) {
	session := app.NewQuizSession("u1", civicsQuiz())
	_ = session.Start()
	if err := session.Start(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
