package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/quiz"
	"github.com/mcdev12/quizarena/go/internal/session"
)

// StateProvider is the read side of the session engine plus explicit
// session creation.
type StateProvider interface {
	Status(code string) (session.Status, error)
	CurrentQuestion(code string) (quiz.PublicQuestion, error)
	Summary(code string) (session.Summary, error)
	WriteLeaderboardCSV(w io.Writer, code string) error
	List() []session.Status
	EnsureSession(ctx context.Context, quizID, code string) (string, error)
}

type ensureRequest struct {
	QuizID string `json:"quizId" validate:"required,max=128"`
	Code   string `json:"code,omitempty" validate:"omitempty,len=6,alphanum"`
}

type ensureResponse struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// StateHandler handles HTTP requests for session state
type StateHandler struct {
	stateProvider StateProvider
	validator     *protocol.Validator
	schema        []byte
}

func NewStateHandler(provider StateProvider, validator *protocol.Validator) *StateHandler {
	schema, err := json.MarshalIndent(protocol.InboundSchema(), "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to render inbound message schema")
	}
	return &StateHandler{
		stateProvider: provider,
		validator:     validator,
		schema:        schema,
	}
}

// HandleGetSession handles GET /api/sessions/{code}
func (h *StateHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	status, err := h.stateProvider.Status(r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleGetQuestion handles GET /api/sessions/{code}/question
func (h *StateHandler) HandleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.stateProvider.CurrentQuestion(r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleGetSummary handles GET /api/sessions/{code}/summary
func (h *StateHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.stateProvider.Summary(r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleLeaderboardCSV handles GET /api/sessions/{code}/leaderboard.csv
func (h *StateHandler) HandleLeaderboardCSV(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="leaderboard-`+code+`.csv"`)
	if err := h.stateProvider.WriteLeaderboardCSV(w, code); err != nil {
		w.Header().Del("Content-Disposition")
		h.writeError(w, err)
	}
}

// HandleListSessions handles GET /api/sessions
func (h *StateHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stateProvider.List())
}

// HandleEnsureSession handles POST /api/sessions
func (h *StateHandler) HandleEnsureSession(w http.ResponseWriter, r *http.Request) {
	var req ensureRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.validator.Check(req); err != nil {
		resp := errorResponse{Error: err.Error()}
		var perr *protocol.Error
		if errors.As(err, &perr) {
			resp.Details = perr.Fields
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	code, err := h.stateProvider.EnsureSession(r.Context(), req.QuizID, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ensureResponse{Code: code})
}

// HandleMessageSchema handles GET /api/schema/messages
func (h *StateHandler) HandleMessageSchema(w http.ResponseWriter, r *http.Request) {
	if h.schema == nil {
		http.Error(w, "schema unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.Write(h.schema)
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("POST /api/sessions", h.HandleEnsureSession)
	mux.HandleFunc("GET /api/sessions/{code}", h.HandleGetSession)
	mux.HandleFunc("GET /api/sessions/{code}/question", h.HandleGetQuestion)
	mux.HandleFunc("GET /api/sessions/{code}/summary", h.HandleGetSummary)
	mux.HandleFunc("GET /api/sessions/{code}/leaderboard.csv", h.HandleLeaderboardCSV)
	mux.HandleFunc("GET /api/schema/messages", h.HandleMessageSchema)
}

func (h *StateHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, quiz.ErrUnknownQuiz):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrQuizMismatch):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrEmptyQuiz):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("session state request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
