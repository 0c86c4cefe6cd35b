package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"civic-engage-service/internal/app"
	"civic-engage-service/internal/domain"
	"github.com/gorilla/websocket"
)

// deadlinePoll is how often the server checks an open question for
// timeout; expiry grades the question without waiting for the client.
const deadlinePoll = 500 * time.Millisecond

// WSHandler drives one quiz attempt per connection: the client selects
// and submits answers, the server grades, enforces the per-question
// deadline, and on completion pushes the single resulting award.
type WSHandler struct {
	awards   *app.AwardService
	quizzes  app.QuizCatalog
	upgrader websocket.Upgrader
}

func NewWSHandler(awards *app.AwardService, quizzes app.QuizCatalog) *WSHandler {
	return &WSHandler{
		awards:  awards,
		quizzes: quizzes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Choice int `json:"choice"`
}

type questionPayload struct {
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Prompt    string    `json:"prompt"`
	Options   []string  `json:"options"`
	Deadline  time.Time `json:"deadline"`
	PerAnswer int       `json:"perAnswer"`
}

type completedPayload struct {
	Score int                `json:"score"`
	Award domain.AwardResult `json:"award"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the quiz session protocol.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if quizID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing quizId, userId, or name", http.StatusBadRequest)
		return
	}

	quiz, err := h.quizzes.GetQuiz(r.Context(), quizID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrQuizNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	if _, err := h.awards.Provision(r.Context(), userID, displayName); err != nil {
		http.Error(w, "could not provision account", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := app.NewQuizSession(userID, quiz)
	if err := session.Start(); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	timerDone := make(chan struct{})

	// Single writer goroutine; everything else funnels through send.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Deadline watcher: grade timed-out questions unilaterally.
	go func() {
		defer close(timerDone)
		ticker := time.NewTicker(deadlinePoll)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if result, due := session.ExpireIfDue(); due {
					select {
					case send <- outboundMessage[any]{Type: "graded", Payload: result}:
					case <-closeSignals:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	h.sendQuestion(session, quiz, send)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}}
				continue
			}
			if err := session.SelectAnswer(payload.Choice); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "submit":
			result, err := session.Submit()
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "graded", Payload: result}
		case "advance":
			action, done, err := session.Advance()
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			if !done {
				h.sendQuestion(session, quiz, send)
				continue
			}
			award, err := h.awards.Apply(r.Context(), action)
			if err != nil {
				log.Printf("apply quiz completion for %s: %v", userID, err)
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "could not record quiz result"}}
				continue
			}
			send <- outboundMessage[any]{Type: "completed", Payload: completedPayload{Score: session.Score(), Award: award}}
		case "exit":
			if err := session.Exit(); err == nil {
				send <- outboundMessage[any]{Type: "exited", Payload: struct{}{}}
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	// An abandoned connection forfeits the attempt.
	if session.State() != app.StateCompleted {
		_ = session.Exit()
	}

	close(closeSignals)
	<-timerDone
	close(send)
	<-writerDone
}

func (h *WSHandler) sendQuestion(session *app.QuizSession, quiz domain.Quiz, send chan<- outboundMessage[any]) {
	question, index, deadline, err := session.Current()
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	send <- outboundMessage[any]{Type: "question", Payload: questionPayload{
		Index:     index,
		Total:     len(quiz.Questions),
		Prompt:    question.Prompt,
		Options:   question.Options,
		Deadline:  deadline,
		PerAnswer: quiz.QuestionPoints(),
	}}
}
