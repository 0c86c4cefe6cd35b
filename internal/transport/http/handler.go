package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"civic-engage-service/internal/app"
	"civic-engage-service/internal/domain"
)

// Handler exposes the REST entry points: account provisioning, action
// submission, and the leaderboard read.
type Handler struct {
	awards *app.AwardService
	board  app.LeaderboardIndex
}

func NewHandler(awards *app.AwardService, board app.LeaderboardIndex) *Handler {
	return &Handler{awards: awards, board: board}
}

// Register wires the REST routes into the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users", h.provisionUser)
	mux.HandleFunc("GET /api/users/{id}", h.getUser)
	mux.HandleFunc("POST /api/actions", h.submitAction)
	mux.HandleFunc("GET /api/leaderboard", h.leaderboard)
}

type provisionRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) provisionUser(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	account, err := h.awards.Provision(r.Context(), req.UserID, req.DisplayName)
	if err != nil {
		log.Printf("provision %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "could not provision account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	account, err := h.awards.Account(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrUnknownUser) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		log.Printf("get user: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) submitAction(w http.ResponseWriter, r *http.Request) {
	var action domain.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid action payload")
		return
	}
	if action.UserID == "" || action.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "userId and idempotencyKey are required")
		return
	}
	switch action.Kind {
	case domain.ReportSubmitted, domain.ReviewPosted, domain.FacilityAdded, domain.QuizCompleted:
	default:
		writeError(w, http.StatusBadRequest, "unsupported action kind")
		return
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}

	result, err := h.awards.Apply(r.Context(), action)
	switch {
	case errors.Is(err, domain.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, domain.ErrRetriesExhausted):
		writeError(w, http.StatusServiceUnavailable, "transient conflict, retry")
	case err != nil:
		log.Printf("apply action for %s: %v", action.UserID, err)
		writeError(w, http.StatusInternalServerError, "could not apply action")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
		n = parsed
	}
	entries, err := h.board.Top(r.Context(), app.ClampLeaderboardSize(n))
	if err != nil {
		log.Printf("leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
