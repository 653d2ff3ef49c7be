package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/go-chi/chi/v5"
)

// maxChatHistory bounds how many prior turns are replayed to the model.
const maxChatHistory = 40

type questionsResponse struct {
	Questions []domain.Question `json:"questions"`
	Fallback  bool              `json:"fallback"`
}

type chatRequest struct {
	History []domain.ChatMessage `json:"history"`
	Message string               `json:"message"`
}

// GenerateQuestions returns diagnostic questions for a taxonomy selection.
// The generic question set is returned when generation fails.
func (h *Handler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var in agents.QuestionInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err, "questions")
		return
	}
	if strings.TrimSpace(in.CompanyName) == "" {
		h.fail(w, r, fmt.Errorf("%w: companyName is required", domain.ErrInvalidInput), "questions")
		return
	}
	if err := h.Taxonomy.Validate(in.Industry, in.SubIndustry, in.Niche); err != nil {
		h.fail(w, r, err, "questions")
		return
	}

	res := h.Questions.Generate(r.Context(), in)
	JSON(w, http.StatusOK, questionsResponse{Questions: res.Value, Fallback: res.Fallback})
}

// pathParam returns a decoded URL parameter. chi matches on the raw path when
// one is present, so names like "Food & Beverage" arrive escaped.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (h *Handler) ListIndustries(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string][]string{"industries": h.Taxonomy.Industries()})
}

func (h *Handler) ListSubIndustries(w http.ResponseWriter, r *http.Request) {
	subs, ok := h.Taxonomy.SubIndustries(pathParam(r, "industry"))
	if !ok {
		Error(w, http.StatusNotFound, "industry not found")
		return
	}
	JSON(w, http.StatusOK, map[string][]string{"subIndustries": subs})
}

func (h *Handler) ListNiches(w http.ResponseWriter, r *http.Request) {
	niches, ok := h.Taxonomy.Niches(pathParam(r, "industry"), pathParam(r, "subIndustry"))
	if !ok {
		Error(w, http.StatusNotFound, "sub-industry not found")
		return
	}
	JSON(w, http.StatusOK, map[string][]string{"niches": niches})
}

// Chat relays one consultant chat turn. Model failures are reported as 502
// so the client can tell them apart from its own mistakes.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "chat")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.fail(w, r, fmt.Errorf("%w: message is required", domain.ErrInvalidInput), "chat")
		return
	}
	for _, m := range req.History {
		if m.Role != "user" && m.Role != "model" {
			h.fail(w, r, fmt.Errorf("%w: history role must be user or model, got %q", domain.ErrInvalidInput, m.Role), "chat")
			return
		}
	}
	if h.Chatter == nil {
		Error(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	history := req.History
	if len(history) > maxChatHistory {
		history = history[len(history)-maxChatHistory:]
	}
	reply, err := h.Chatter.Chat(r.Context(), h.ChatModel, agents.ChatInstruction, history, req.Message)
	if err != nil {
		h.Logger.Warn("Chat failed", "stage", "chat", "error", err)
		Error(w, http.StatusBadGateway, "assistant unavailable, try again")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"reply": reply})
}
