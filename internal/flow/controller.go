// Package flow drives the discovery wizard from the first input to a
// submitted lead. It reacts to the enrichment operation's status updates to
// either request the report or roll back to the input stage.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
)

// Stage is a step of the wizard.
type Stage string

const (
	StageInput            Stage = "input"
	StageConfirm          Stage = "confirm"
	StageTaxonomy         Stage = "taxonomy"
	StageQuestionsLoading Stage = "questions_loading"
	StageQuestions        Stage = "questions"
	StageResearching      Stage = "researching"
	StageReport           Stage = "report"
	StageSubmitted        Stage = "submitted"
)

// ErrWrongStage is returned when an action is not valid in the current stage.
var ErrWrongStage = errors.New("action not allowed in current stage")

// Lead is the scored result of a submission.
type Lead struct {
	ProspectID string          `json:"prospectId"`
	LeadScore  domain.Score    `json:"leadScore"`
	LeadTier   domain.LeadTier `json:"leadTier"`
}

// Backend is the server side of the wizard. The unsubscribe function
// returned by Subscribe must be idempotent and safe to call from inside the
// update callback.
type Backend interface {
	CreateSession(ctx context.Context) (string, error)
	StartEnrichment(ctx context.Context, sessionID, companyIdentifier, language string) (string, error)
	Subscribe(ctx context.Context, sessionID, operationID string, onUpdate func(domain.Operation)) (func(), error)
	GenerateQuestions(ctx context.Context, in agents.QuestionInput) ([]domain.Question, error)
	GenerateReport(ctx context.Context, sessionID string, p domain.ProspectProfile) (string, domain.StrategicReport, error)
	SubmitProspect(ctx context.Context, sessionID, reportID string, p domain.ProspectProfile) (Lead, error)
}

// Listener is told about every stage change. It runs with the controller
// locked and must not call back into it.
type Listener func(from, to Stage)

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithListener(l Listener) Option {
	return func(c *Controller) { c.listener = l }
}

// Controller holds one wizard run. All methods are safe for concurrent use.
type Controller struct {
	backend  Backend
	prefs    PreferenceStore
	logger   *slog.Logger
	listener Listener

	// ctx outlives individual calls; status updates arrive after Answer returns.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	preferences Preferences
	stage       Stage
	profile     domain.ProspectProfile
	questions   []domain.Question
	cursor      int
	answers     map[string]domain.Answer
	sessionID   string
	operationID string
	settled     bool
	unsubscribe func()
	reportID    string
	report      *domain.StrategicReport
	lead        *Lead
	lastErr     string
}

// New loads preferences and returns a controller in the input stage.
func New(ctx context.Context, backend Backend, prefs PreferenceStore, opts ...Option) (*Controller, error) {
	p, err := prefs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Controller{
		backend:     backend,
		prefs:       prefs,
		logger:      slog.Default(),
		ctx:         runCtx,
		cancel:      cancel,
		preferences: p,
		stage:       StageInput,
		answers:     make(map[string]domain.Answer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close drops any live subscription and cancels pending report requests.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

func (c *Controller) Profile() domain.ProspectProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

func (c *Controller) Preferences() Preferences {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferences
}

// Report returns the generated report and its ID once the report stage is reached.
func (c *Controller) Report() (string, *domain.StrategicReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reportID, c.report
}

// Lead returns the submission result once the submitted stage is reached.
func (c *Controller) Lead() *Lead {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lead
}

// LastError returns the message that last sent the wizard back to input.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Question returns the current question and its position.
func (c *Controller) Question() (domain.Question, int, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageQuestions || len(c.questions) == 0 {
		return domain.Question{}, 0, 0, false
	}
	return c.questions[c.cursor], c.cursor, len(c.questions), true
}

// SetPreferences saves p and uses it for the next run.
func (c *Controller) SetPreferences(ctx context.Context, p Preferences) error {
	if err := c.prefs.Save(ctx, p); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	c.mu.Lock()
	c.preferences = p
	c.mu.Unlock()
	return nil
}

func (c *Controller) setStage(to Stage) {
	from := c.stage
	c.stage = to
	c.logger.Debug("Wizard stage changed", "from", from, "to", to, "session_id", c.sessionID)
	if c.listener != nil {
		c.listener(from, to)
	}
}

func (c *Controller) expect(action string, stages ...Stage) error {
	if !slices.Contains(stages, c.stage) {
		return fmt.Errorf("%w: %s in %s", ErrWrongStage, action, c.stage)
	}
	return nil
}

// SubmitInput records the prospect's details. Empty locale fields are
// taken from the preferences.
func (c *Controller) SubmitInput(p domain.ProspectProfile) error {
	if strings.TrimSpace(p.CompanyName) == "" {
		return fmt.Errorf("%w: companyName is required", domain.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.expect("submit input", StageInput); err != nil {
		return err
	}
	if p.Language == "" {
		p.Language = c.preferences.Language
	}
	if p.CountryCode == "" {
		p.CountryCode = c.preferences.CountryCode
	}
	if p.CurrencyCode == "" {
		p.CurrencyCode = c.preferences.CurrencyCode
	}
	c.profile = p
	c.lastErr = ""
	c.setStage(StageConfirm)
	return nil
}

// Confirm accepts the entered details.
func (c *Controller) Confirm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.expect("confirm", StageConfirm); err != nil {
		return err
	}
	c.setStage(StageTaxonomy)
	return nil
}

// SelectTaxonomy records the classification and loads the diagnostic
// questions. If loading fails the wizard stays at the taxonomy stage.
func (c *Controller) SelectTaxonomy(ctx context.Context, industry, subIndustry, niche string) error {
	c.mu.Lock()
	if err := c.expect("select taxonomy", StageTaxonomy); err != nil {
		c.mu.Unlock()
		return err
	}
	c.profile.Industry, c.profile.SubIndustry, c.profile.Niche = industry, subIndustry, niche
	if err := c.profile.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	in := agents.QuestionInput{
		CompanyName: c.profile.CompanyName,
		Industry:    industry,
		SubIndustry: subIndustry,
		Niche:       niche,
		Language:    c.profile.LanguageOrDefault(),
	}
	c.setStage(StageQuestionsLoading)
	c.mu.Unlock()

	qs, err := c.backend.GenerateQuestions(ctx, in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageQuestionsLoading {
		return fmt.Errorf("%w: wizard moved to %s while loading questions", ErrWrongStage, c.stage)
	}
	if err == nil && len(qs) == 0 {
		err = errors.New("no questions returned")
	}
	if err != nil {
		c.logger.Warn("Failed to load questions", "company", in.CompanyName, "stage", "questions", "error", err)
		c.setStage(StageTaxonomy)
		return fmt.Errorf("load questions: %w", err)
	}
	c.questions = qs
	c.cursor = 0
	c.answers = make(map[string]domain.Answer)
	c.setStage(StageQuestions)
	return nil
}

// Answer records choices (option IDs) for the current question and moves to
// the next one. Answering the last question starts the research.
func (c *Controller) Answer(ctx context.Context, choices ...string) error {
	c.mu.Lock()
	if err := c.expect("answer", StageQuestions); err != nil {
		c.mu.Unlock()
		return err
	}
	q := c.questions[c.cursor]
	labels, err := resolveChoices(q, choices)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.answers[q.ID] = domain.Answer{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		Answer:       labels,
		Category:     q.Category,
	}
	if c.cursor < len(c.questions)-1 {
		c.cursor++
		c.mu.Unlock()
		return nil
	}

	c.profile.DynamicAnswers = c.collectAnswers()
	c.setStage(StageResearching)
	c.mu.Unlock()

	return c.research(ctx)
}

func resolveChoices(q domain.Question, choices []string) (domain.Choices, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("%w: no option chosen for %s", domain.ErrInvalidInput, q.ID)
	}
	if q.Type != domain.QuestionMultiple && len(choices) > 1 {
		return nil, fmt.Errorf("%w: %s takes a single option", domain.ErrInvalidInput, q.ID)
	}
	labels := make(domain.Choices, 0, len(choices))
	for _, id := range choices {
		i := slices.IndexFunc(q.Options, func(o domain.Option) bool { return o.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s has no option %q", domain.ErrInvalidInput, q.ID, id)
		}
		labels = append(labels, q.Options[i].Label)
	}
	return labels, nil
}

// collectAnswers returns answers in question order.
func (c *Controller) collectAnswers() []domain.Answer {
	out := make([]domain.Answer, 0, len(c.answers))
	for _, q := range c.questions {
		if a, ok := c.answers[q.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Back moves to the previous question, or to the taxonomy stage from the
// first one.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.expect("back", StageQuestions); err != nil {
		return err
	}
	if c.cursor > 0 {
		c.cursor--
		return nil
	}
	c.setStage(StageTaxonomy)
	return nil
}

// research creates a session, starts enrichment and subscribes to it.
// Any failure here aborts to the input stage.
func (c *Controller) research(ctx context.Context) error {
	c.mu.Lock()
	company, language := c.profile.CompanyName, c.profile.LanguageOrDefault()
	c.mu.Unlock()

	sessionID, err := c.backend.CreateSession(ctx)
	if err != nil {
		return c.abort("create session", err)
	}
	opID, err := c.backend.StartEnrichment(ctx, sessionID, company, language)
	if err != nil {
		return c.abort("start enrichment", err)
	}

	c.mu.Lock()
	c.sessionID, c.operationID, c.settled = sessionID, opID, false
	c.mu.Unlock()

	unsub, err := c.backend.Subscribe(c.ctx, sessionID, opID, c.onUpdate)
	if err != nil {
		return c.abort("subscribe", err)
	}

	c.mu.Lock()
	if c.settled {
		// The terminal update arrived before Subscribe returned.
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.unsubscribe = unsub
	c.mu.Unlock()

	c.logger.Info("Research started", "session_id", sessionID, "operation_id", opID, "company", company)
	return nil
}

func (c *Controller) abort(step string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Error("Research failed", "session_id", c.sessionID, "stage", step, "error", err)
	c.lastErr = err.Error()
	if c.stage == StageResearching {
		c.setStage(StageInput)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// onUpdate handles operation snapshots. Only the first terminal snapshot of
// the current operation has an effect.
func (c *Controller) onUpdate(op domain.Operation) {
	c.mu.Lock()
	if op.ID != c.operationID || c.stage != StageResearching || c.settled || !op.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.settled = true
	unsub := c.unsubscribe
	c.unsubscribe = nil

	if op.Status == domain.StatusFailed {
		c.lastErr = op.Error
		c.logger.Warn("Enrichment failed", "session_id", op.SessionID, "operation_id", op.ID, "error", op.Error)
		c.setStage(StageInput)
		c.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		return
	}

	var company domain.EnrichedCompany
	if err := json.Unmarshal(op.Result, &company); err != nil {
		c.logger.Warn("Ignoring unreadable enrichment result", "operation_id", op.ID, "error", err)
	} else {
		c.profile = c.profile.ApplyEnrichment(company)
	}
	profile, sessionID := c.profile, c.sessionID
	c.mu.Unlock()

	reportID, rep, err := c.backend.GenerateReport(c.ctx, sessionID, profile)

	c.mu.Lock()
	if c.stage == StageResearching {
		if err != nil {
			c.lastErr = err.Error()
			c.logger.Error("Report request failed", "session_id", sessionID, "stage", "report", "error", err)
			c.setStage(StageInput)
		} else {
			c.reportID, c.report = reportID, &rep
			c.setStage(StageReport)
		}
	}
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Submit sends the prospect to the firm and records the lead score.
func (c *Controller) Submit(ctx context.Context) (Lead, error) {
	c.mu.Lock()
	if err := c.expect("submit", StageReport); err != nil {
		c.mu.Unlock()
		return Lead{}, err
	}
	sessionID, reportID, profile := c.sessionID, c.reportID, c.profile
	c.mu.Unlock()

	lead, err := c.backend.SubmitProspect(ctx, sessionID, reportID, profile)
	if err != nil {
		return Lead{}, fmt.Errorf("submit prospect: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageReport {
		return Lead{}, fmt.Errorf("%w: wizard moved to %s while submitting", ErrWrongStage, c.stage)
	}
	c.lead = &lead
	c.setStage(StageSubmitted)
	return lead, nil
}

// Restart clears the run and returns to the input stage. It is not allowed
// while research is in flight.
func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage == StageResearching || c.stage == StageQuestionsLoading {
		return fmt.Errorf("%w: restart in %s", ErrWrongStage, c.stage)
	}
	c.profile = domain.ProspectProfile{}
	c.questions, c.cursor = nil, 0
	c.answers = make(map[string]domain.Answer)
	c.sessionID, c.operationID, c.reportID = "", "", ""
	c.report, c.lead = nil, nil
	c.lastErr = ""
	if c.stage != StageInput {
		c.setStage(StageInput)
	}
	return nil
}
