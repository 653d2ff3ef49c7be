package api

import (
	"net/http"

	"github.com/ashureev/strategic-discovery/internal/identity"
	"github.com/go-chi/chi/v5"
)

type enrichmentRequest struct {
	CompanyIdentifier string `json:"companyIdentifier"`
	Language          string `json:"language"`
}

// CreateSession starts a wizard session for the caller.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.InitSession(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err, "session")
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"sessionId": sess.ID})
}

// StartEnrichment queues a company lookup and returns its operation ID.
// Progress is read from the operation endpoints.
func (h *Handler) StartEnrichment(w http.ResponseWriter, r *http.Request) {
	var req enrichmentRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "enrichment")
		return
	}

	op, err := h.Sessions.StartEnrichment(r.Context(), chi.URLParam(r, "sessionID"), req.CompanyIdentifier, req.Language)
	if err != nil {
		h.fail(w, r, err, "session")
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"operationId": op.ID})
}

// GetOperation returns the current snapshot of an operation.
func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.Sessions.GetOperationStatus(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "operationID"))
	if err != nil {
		h.fail(w, r, err, "operation")
		return
	}
	JSON(w, http.StatusOK, op)
}
