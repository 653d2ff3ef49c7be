package api

import (
	"net/http"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/report"
	"github.com/go-chi/chi/v5"
)

type reportRequest struct {
	ProspectProfile domain.ProspectProfile `json:"prospectProfile"`
}

type reportResponse struct {
	ReportID string                 `json:"reportId"`
	Report   domain.StrategicReport `json:"report"`
}

type prospectRequest struct {
	ProspectProfile domain.ProspectProfile `json:"prospectProfile"`
	ReportID        string                 `json:"reportId"`
}

type prospectResponse struct {
	ProspectID string          `json:"prospectId"`
	LeadScore  domain.Score    `json:"leadScore"`
	LeadTier   domain.LeadTier `json:"leadTier"`
}

func (h *Handler) validProfile(p domain.ProspectProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return h.Taxonomy.ValidateProfile(p)
}

// GenerateReport runs the report orchestrator for a validated profile and
// stores the result under the session. Agent failures never surface here;
// their sections are replaced by fallbacks.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req reportRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "report")
		return
	}
	if err := h.validProfile(req.ProspectProfile); err != nil {
		h.fail(w, r, err, "report")
		return
	}
	ctx := r.Context()
	if _, err := h.Sessions.GetSession(ctx, sessionID); err != nil {
		h.fail(w, r, err, "session")
		return
	}

	start := time.Now()
	rep := h.Reports.AssembleReport(ctx, req.ProspectProfile)

	rec := domain.ReportRecord{
		ID:        h.newID(),
		SessionID: sessionID,
		Profile:   req.ProspectProfile,
		Report:    rep,
		CreatedAt: h.now(),
	}
	if err := h.Records.AppendReport(ctx, rec); err != nil {
		h.fail(w, r, err, "report")
		return
	}

	h.Logger.Info("Report generated",
		"session_id", sessionID,
		"report_id", rec.ID,
		"company", req.ProspectProfile.CompanyName,
		"health_score", rep.HealthScore,
		"duration_ms", time.Since(start).Milliseconds())
	JSON(w, http.StatusOK, reportResponse{ReportID: rec.ID, Report: rep})
}

// SubmitProspect scores and stores a lead. A reportId, when given, must
// belong to the session.
func (h *Handler) SubmitProspect(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req prospectRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "prospect")
		return
	}
	if err := req.ProspectProfile.Validate(); err != nil {
		h.fail(w, r, err, "prospect")
		return
	}
	ctx := r.Context()
	if _, err := h.Sessions.GetSession(ctx, sessionID); err != nil {
		h.fail(w, r, err, "session")
		return
	}
	if req.ReportID != "" {
		if _, err := h.Records.GetReport(ctx, sessionID, req.ReportID); err != nil {
			h.fail(w, r, err, "report")
			return
		}
	}

	score := report.LeadScore(req.ProspectProfile)
	p := domain.Prospect{
		ID:        h.newID(),
		SessionID: sessionID,
		ReportID:  req.ReportID,
		Profile:   req.ProspectProfile,
		LeadScore: score,
		LeadTier:  domain.LeadTierFor(score),
		CreatedAt: h.now(),
	}
	if err := h.Records.CreateProspect(ctx, p); err != nil {
		h.fail(w, r, err, "prospect")
		return
	}

	h.Logger.Info("Prospect submitted",
		"session_id", sessionID,
		"prospect_id", p.ID,
		"lead_score", p.LeadScore,
		"lead_tier", p.LeadTier)
	JSON(w, http.StatusCreated, prospectResponse{ProspectID: p.ID, LeadScore: p.LeadScore, LeadTier: p.LeadTier})
}
