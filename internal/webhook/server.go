// Package webhook serves the HTTP surface: a message endpoint, named
// briefing triggers and a read-only transcript API.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/user/fairweather/internal/state"
	"github.com/user/fairweather/internal/types"
)

// Source prefixes conversation ids that arrive without one.
const Source = "http"

const defaultTurnLimit = 200

// Asker handles one message synchronously. *gateway.Gateway implements it.
type Asker interface {
	Ask(ctx context.Context, id types.ConversationID, text string) (string, error)
}

// Deliverer pushes a reply to the transport owning a conversation.
type Deliverer interface {
	Deliver(ctx context.Context, id types.ConversationID, message string) error
}

type Server struct {
	asker     Asker
	briefings *state.BriefingStore
	turns     types.TurnStore
	delivery  Deliverer
	validate  *validator.Validate
	router    chi.Router
}

type Option func(*Server)

// WithTranscript enables the /api/conversations endpoints.
func WithTranscript(turns types.TurnStore) Option {
	return func(s *Server) { s.turns = turns }
}

// WithDelivery also pushes briefing replies to their conversation when the
// conversation belongs to another transport.
func WithDelivery(d Deliverer) Option {
	return func(s *Server) { s.delivery = d }
}

func NewServer(asker Asker, briefings *state.BriefingStore, opts ...Option) *Server {
	s := &Server{
		asker:     asker,
		briefings: briefings,
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/messages", s.handleMessage)
	r.Post("/webhook/{task}", s.handleBriefing)
	r.Get("/api/conversations", s.handleConversations)
	r.Get("/api/conversations/{id}/turns", s.handleTurns)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,max=256"`
	Text           string `json:"text" validate:"required"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "conversation_id and text are required")
		return
	}

	id := types.ConversationID(req.ConversationID)
	if !strings.Contains(req.ConversationID, ":") {
		id = types.NewConversationID(Source, req.ConversationID)
	}

	resp, err := s.asker.Ask(r.Context(), id, req.Text)
	if err != nil {
		slog.Error("message handler failed", "conversation_id", string(id), "error", err)
		writeError(w, http.StatusServiceUnavailable, "unable to process message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

// briefingRequest is the optional body for POST /webhook/{task}.
type briefingRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleBriefing(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "task")
	b, err := s.briefings.Get(name)
	if errors.Is(err, state.ErrBriefingNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		slog.Error("load briefing failed", "task", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !b.Enabled {
		writeError(w, http.StatusForbidden, "task is disabled")
		return
	}

	utterance := b.Utterance()
	var body briefingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && strings.TrimSpace(body.Prompt) != "" {
		utterance = body.Prompt
	}

	resp, err := s.asker.Ask(r.Context(), b.ConversationID, utterance)
	if err != nil {
		slog.Error("briefing failed", "task", name, "error", err)
		writeError(w, http.StatusServiceUnavailable, "unable to process task")
		return
	}

	if s.delivery != nil && b.ConversationID.Source() != Source {
		if err := s.delivery.Deliver(r.Context(), b.ConversationID, resp); err != nil {
			slog.Warn("briefing delivery failed", "task", name, "conversation_id", string(b.ConversationID), "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

type conversationSummary struct {
	ConversationID string `json:"conversation_id"`
	Turns          int64  `json:"turns"`
}

// conversationLister is implemented by stores that can enumerate
// conversations, like *state.TranscriptStore.
type conversationLister interface {
	Conversations() ([]types.ConversationID, error)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.turns.(conversationLister)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "transcript API not configured")
		return
	}
	ids, err := lister.Conversations()
	if err != nil {
		slog.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]conversationSummary, 0, len(ids))
	for _, id := range ids {
		n, err := s.turns.Count(r.Context(), id)
		if err != nil {
			slog.Warn("count turns failed", "conversation_id", string(id), "error", err)
		}
		out = append(out, conversationSummary{ConversationID: string(id), Turns: n})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	if s.turns == nil {
		writeError(w, http.StatusServiceUnavailable, "transcript API not configured")
		return
	}
	id := types.ConversationID(chi.URLParam(r, "id"))

	limit := defaultTurnLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := s.turns.Tail(r.Context(), id, limit)
	if err != nil {
		slog.Error("tail turns failed", "conversation_id", string(id), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if turns == nil {
		turns = []*types.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}
