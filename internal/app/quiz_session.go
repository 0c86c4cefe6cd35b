package app

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"civic-engage-service/internal/domain"
)

// QuestionTime is the per-question answer window.
const QuestionTime = 30 * time.Second

// SessionState enumerates the quiz session lifecycle.
type SessionState int

const (
	StateNotStarted SessionState = iota
	StateInQuestion
	StateGraded
	StateCompleted
	StateAbandoned
)

func (s SessionState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInQuestion:
		return "in_question"
	case StateGraded:
		return "graded"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

const noChoice = -1

// GradeResult reports the outcome of grading one question.
type GradeResult struct {
	QuestionIndex int    `json:"questionIndex"`
	Correct       bool   `json:"correct"`
	Awarded       int    `json:"awarded"`
	CorrectOption int    `json:"correctOption"`
	Explanation   string `json:"explanation,omitempty"`
	RunningScore  int    `json:"runningScore"`
}

// QuizSession is a short-lived, single-user state machine for one quiz
// attempt. Completion emits exactly one QuizCompleted action; exiting
// early forfeits all progress. Safe for the two goroutines that drive
// it (reader + deadline timer).
type QuizSession struct {
	userID string
	quiz   domain.Quiz
	now    func() time.Time

	mu       sync.Mutex
	state    SessionState
	index    int
	deadline time.Time
	choice   int
	score    int
	key      string
}

func NewQuizSession(userID string, quiz domain.Quiz) *QuizSession {
	return NewQuizSessionWithClock(userID, quiz, time.Now)
}

// NewQuizSessionWithClock allows deterministic deadlines in tests.
func NewQuizSessionWithClock(userID string, quiz domain.Quiz, now func() time.Time) *QuizSession {
	return &QuizSession{
		userID: userID,
		quiz:   quiz,
		now:    now,
		state:  StateNotStarted,
		choice: noChoice,
		key:    newIdempotencyKey(),
	}
}

// Start moves into the first question and resets the running score.
func (s *QuizSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNotStarted {
		return domain.ErrInvalidTransition
	}
	if len(s.quiz.Questions) == 0 {
		return domain.ErrQuizNotFound
	}
	s.state = StateInQuestion
	s.index = 0
	s.score = 0
	s.choice = noChoice
	s.deadline = s.now().Add(QuestionTime)
	return nil
}

// SelectAnswer stores a tentative choice without grading it. Allowed
// only while a question is open.
func (s *QuizSession) SelectAnswer(choice int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInQuestion {
		return domain.ErrInvalidTransition
	}
	if choice < 0 || choice >= len(s.quiz.Questions[s.index].Options) {
		return domain.ErrNoChoice
	}
	s.choice = choice
	return nil
}

// Submit grades the open question against its correct-option index.
// No selection counts as incorrect; there is no partial credit.
func (s *QuizSession) Submit() (GradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gradeLocked()
}

// ExpireIfDue advances a timed-out question unilaterally, grading
// whatever tentative choice exists. Returns false when the deadline
// has not passed or no question is open.
func (s *QuizSession) ExpireIfDue() (GradeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInQuestion || s.now().Before(s.deadline) {
		return GradeResult{}, false
	}
	result, err := s.gradeLocked()
	if err != nil {
		return GradeResult{}, false
	}
	return result, true
}

func (s *QuizSession) gradeLocked() (GradeResult, error) {
	if s.state != StateInQuestion {
		return GradeResult{}, domain.ErrInvalidTransition
	}
	question := s.quiz.Questions[s.index]
	correct := s.choice != noChoice && s.choice == question.Correct
	awarded := 0
	if correct {
		awarded = s.quiz.QuestionPoints()
		s.score += awarded
	}
	s.state = StateGraded
	return GradeResult{
		QuestionIndex: s.index,
		Correct:       correct,
		Awarded:       awarded,
		CorrectOption: question.Correct,
		Explanation:   question.Explanation,
		RunningScore:  s.score,
	}, nil
}

// Advance moves past a graded question: either into the next question
// or, after the last one, into Completed, returning the single
// QuizCompleted action to feed the award coordinator.
func (s *QuizSession) Advance() (domain.Action, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateGraded {
		return domain.Action{}, false, domain.ErrInvalidTransition
	}
	if s.index+1 < len(s.quiz.Questions) {
		s.index++
		s.choice = noChoice
		s.state = StateInQuestion
		s.deadline = s.now().Add(QuestionTime)
		return domain.Action{}, false, nil
	}
	s.state = StateCompleted
	return domain.Action{
		Kind:           domain.QuizCompleted,
		UserID:         s.userID,
		Category:       s.quiz.Category,
		Score:          s.score,
		Timestamp:      s.now(),
		IdempotencyKey: s.key,
	}, true, nil
}

// Exit abandons the attempt. No action is emitted and the accumulated
// score is forfeited. A completed session cannot be exited.
func (s *QuizSession) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleted {
		return domain.ErrInvalidTransition
	}
	s.state = StateAbandoned
	return nil
}

// State returns the current lifecycle state.
func (s *QuizSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the open question, its index, and its deadline.
func (s *QuizSession) Current() (domain.Question, int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInQuestion {
		return domain.Question{}, 0, time.Time{}, domain.ErrInvalidTransition
	}
	return s.quiz.Questions[s.index], s.index, s.deadline, nil
}

// Score returns the running score.
func (s *QuizSession) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// newIdempotencyKey mints a unique token for the session's completion
// action so a retried completion cannot double-award.
func newIdempotencyKey() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read on supported platforms does not fail; fall back to
		// a time-derived token rather than panicking mid-quiz.
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(buf)
}
