// Package api provides the HTTP handlers for the discovery API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/identity"
	"github.com/ashureev/strategic-discovery/internal/jobs"
	"github.com/ashureev/strategic-discovery/internal/llm"
	"github.com/ashureev/strategic-discovery/internal/middleware"
	"github.com/ashureev/strategic-discovery/internal/taxonomy"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxBodyBytes caps request bodies. Profiles with answers stay well under it.
const maxBodyBytes = 1 << 20

// Sessions is the session/operation state machine. *operations.Service satisfies it.
type Sessions interface {
	InitSession(ctx context.Context, userID string) (domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	StartEnrichment(ctx context.Context, sessionID, companyIdentifier, language string) (domain.Operation, error)
	GetOperationStatus(ctx context.Context, sessionID, operationID string) (domain.Operation, error)
}

// Records persists reports and prospects. store.Repository satisfies it.
type Records interface {
	AppendReport(ctx context.Context, rec domain.ReportRecord) error
	GetReport(ctx context.Context, sessionID, reportID string) (domain.ReportRecord, error)
	CreateProspect(ctx context.Context, p domain.Prospect) error
}

// ReportAssembler builds a complete report. *report.Orchestrator satisfies it.
type ReportAssembler interface {
	AssembleReport(ctx context.Context, p domain.ProspectProfile) domain.StrategicReport
}

// QuestionGenerator produces diagnostic questions. It never fails.
type QuestionGenerator interface {
	Generate(ctx context.Context, in agents.QuestionInput) agents.Result[[]domain.Question]
}

// Deps holds everything the handlers call into.
type Deps struct {
	Sessions  Sessions
	Records   Records
	Reports   ReportAssembler
	Questions QuestionGenerator
	// Chat is optional. Without it the chat endpoint answers 503.
	Chatter   llm.Chatter
	ChatModel string
	Taxonomy  *taxonomy.Tree
	// Limiter is optional and applies to report and chat requests.
	Limiter *middleware.RateLimiter
	Logger  *slog.Logger
}

// Handler serves the discovery API.
type Handler struct {
	Deps
	now   func() time.Time
	newID func() string
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Taxonomy == nil {
		d.Taxonomy = taxonomy.Default()
	}
	return &Handler{
		Deps:  d,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// RegisterRoutes registers the API routes. Streaming routes live in the stream package.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/enrichments", h.StartEnrichment)
			r.Get("/operations/{operationID}", h.GetOperation)
			r.With(h.limited()...).Post("/reports", h.GenerateReport)
			r.Post("/prospects", h.SubmitProspect)
		})

		r.Post("/questions", h.GenerateQuestions)
		r.Get("/taxonomy", h.ListIndustries)
		r.Get("/taxonomy/{industry}", h.ListSubIndustries)
		r.Get("/taxonomy/{industry}/{subIndustry}", h.ListNiches)
		r.With(h.limited()...).Post("/chat", h.Chat)
	})
}

func (h *Handler) limited() []func(http.Handler) http.Handler {
	if h.Limiter == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{middleware.RateLimit(h.Limiter, callerKey)}
}

// callerKey identifies the caller by anonymous identity, then by IP.
func callerKey(r *http.Request) string {
	if id := identity.UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// fail maps domain errors to status codes. what names the resource for 404s.
// Anything unrecognised is logged and reported as a 500 without details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		w.Header().Set("Retry-After", "5")
		Error(w, http.StatusServiceUnavailable, "service busy, try again shortly")
	default:
		h.Logger.Error("Request failed", "path", r.URL.Path, "resource", what, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
