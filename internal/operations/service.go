// Package operations owns the session and operation lifecycle: it creates
// sessions, runs enrichment out of band on the job queue, writes exactly one
// terminal transition per operation and fans snapshots out to subscribers.
package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/events"
	"github.com/ashureev/strategic-discovery/internal/jobs"
	"github.com/ashureev/strategic-discovery/internal/shared"
	"github.com/ashureev/strategic-discovery/internal/store"
	"github.com/google/uuid"
)

// DefaultEnrichmentTimeout bounds one enrichment run.
const DefaultEnrichmentTimeout = 60 * time.Second

// TimeoutMessage is recorded on operations whose enrichment ran out of time.
const TimeoutMessage = "lookup timeout"

// Submitter accepts background tasks. *jobs.Queue satisfies it.
type Submitter interface {
	Submit(name string, t jobs.Task) error
}

// Observer is told about every terminal transition.
type Observer interface {
	OperationFinished(typ domain.OperationType, status domain.OperationStatus, elapsed time.Duration)
}

// Service implements the session/operation state machine.
type Service struct {
	repo      store.Repository
	queue     Submitter
	enricher  agents.Enricher
	hub       *Hub
	publisher events.Publisher
	observer  Observer
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithEnrichmentTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates a Service.
func NewService(repo store.Repository, queue Submitter, enricher agents.Enricher, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		queue:     queue,
		enricher:  enricher,
		hub:       NewHub(),
		publisher: events.Noop{},
		logger:    slog.Default(),
		timeout:   DefaultEnrichmentTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub exposes the subscriber hub, mainly for gauges.
func (s *Service) Hub() *Hub { return s.hub }

// InitSession creates a session. An empty userID records an anonymous session.
func (s *Service) InitSession(ctx context.Context, userID string) (domain.Session, error) {
	if userID == "" {
		userID = domain.AnonymousUser
	}
	sess := domain.Session{
		ID:        s.newID(),
		UserID:    userID,
		Status:    domain.SessionStatusActive,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		s.logger.Error("Failed to create session", "user_id", userID, "stage", "init_session", "error", err)
		return domain.Session{}, err
	}
	s.logger.Info("Session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// GetSession returns a session or domain.ErrNotFound.
func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// StartEnrichment records a processing operation and queues the enrichment
// work. It returns before the work starts.
func (s *Service) StartEnrichment(ctx context.Context, sessionID, companyIdentifier, language string) (domain.Operation, error) {
	companyIdentifier = strings.TrimSpace(companyIdentifier)
	if companyIdentifier == "" {
		return domain.Operation{}, fmt.Errorf("%w: companyIdentifier is required", domain.ErrInvalidInput)
	}
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return domain.Operation{}, err
	}

	input := domain.OperationInput{CompanyIdentifier: companyIdentifier, Language: language}
	op := domain.NewOperation(s.newID(), sessionID, domain.OperationEnrichment, input, s.now())
	if err := s.repo.CreateOperation(ctx, op); err != nil {
		s.logger.Error("Failed to create operation",
			"session_id", sessionID, "stage", "start_enrichment", "error", err)
		return domain.Operation{}, err
	}
	s.announce(ctx, op)

	if err := s.submit(op); err != nil {
		// The record must not stay processing with nobody working on it.
		s.finish(context.WithoutCancel(ctx), op, nil, err)
		return domain.Operation{}, err
	}

	s.logger.Info("Enrichment started",
		"session_id", sessionID,
		"operation_id", op.ID,
		"company", companyIdentifier)
	return op, nil
}

func (s *Service) submit(op domain.Operation) error {
	return s.queue.Submit("enrichment:"+op.ID, func(ctx context.Context) {
		s.runEnrichment(ctx, op)
	})
}

// GetOperationStatus returns the stored operation or domain.ErrNotFound.
func (s *Service) GetOperationStatus(ctx context.Context, sessionID, operationID string) (domain.Operation, error) {
	return s.repo.GetOperation(ctx, sessionID, operationID)
}

// Subscribe delivers the current snapshot and then every later change to
// onUpdate until the returned func is called or ctx is done. The returned
// func is idempotent and may be called from inside onUpdate.
func (s *Service) Subscribe(ctx context.Context, sessionID, operationID string, onUpdate UpdateFunc) (func(), error) {
	sub, cancel := s.hub.subscribe(operationID, onUpdate)

	// Registered before the snapshot read, so no change can slip between them.
	op, err := s.repo.GetOperation(ctx, sessionID, operationID)
	if err != nil {
		cancel()
		return nil, err
	}
	sub.push(op)

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return cancel, nil
}

// Recover resubmits operations left processing by a previous process.
func (s *Service) Recover(ctx context.Context) (int, error) {
	ops, err := s.repo.ListOperationsByStatus(ctx, domain.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing operations: %w", err)
	}

	n := 0
	for _, op := range ops {
		if err := s.submit(op); err != nil {
			s.logger.Warn("Could not resubmit operation",
				"session_id", op.SessionID,
				"operation_id", op.ID,
				"stage", "recover",
				"error", err)
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("Resubmitted unfinished operations", "count", n)
	}
	return n, nil
}

func (s *Service) runEnrichment(ctx context.Context, op domain.Operation) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	company, err := s.enricher.Enrich(runCtx, op.Input)
	if err != nil && ctx.Err() != nil {
		// Shutdown, not a failure. Recover picks it up on the next start.
		s.logger.Warn("Enrichment interrupted by shutdown",
			"session_id", op.SessionID,
			"operation_id", op.ID)
		return
	}
	s.finish(context.WithoutCancel(ctx), op, &company, err)
}

func (s *Service) finish(ctx context.Context, op domain.Operation, company *domain.EnrichedCompany, cause error) {
	now := s.now()
	var transErr error
	if cause != nil {
		transErr = op.Fail(failureMessage(cause), now)
	} else {
		result, err := json.Marshal(company)
		if err != nil {
			transErr = op.Fail(fmt.Sprintf("encode enrichment result: %v", err), now)
		} else {
			transErr = op.Complete(result, now)
		}
	}
	if transErr != nil {
		s.logger.Error("Illegal operation transition",
			"session_id", op.SessionID, "operation_id", op.ID, "stage", "finish", "error", transErr)
		return
	}

	err := shared.RetryOnConflict(ctx, func() error {
		return s.repo.FinishOperation(ctx, op)
	})
	if err != nil {
		s.logger.Error("Failed to record operation result",
			"session_id", op.SessionID,
			"operation_id", op.ID,
			"stage", "finish",
			"status", op.Status,
			"error", err)
		return
	}

	if op.Status == domain.StatusFailed {
		s.logger.Warn("Enrichment failed",
			"session_id", op.SessionID, "operation_id", op.ID, "error", op.Error)
	} else {
		s.logger.Info("Enrichment completed", "session_id", op.SessionID, "operation_id", op.ID)
	}
	if s.observer != nil {
		s.observer.OperationFinished(op.Type, op.Status, now.Sub(op.CreatedAt))
	}
	s.announce(ctx, op)
}

func (s *Service) announce(ctx context.Context, op domain.Operation) {
	s.hub.Publish(op)
	if err := s.publisher.Publish(ctx, op); err != nil {
		s.logger.Warn("Failed to publish operation event",
			"session_id", op.SessionID, "operation_id", op.ID, "error", err)
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutMessage
	case errors.Is(err, jobs.ErrQueueFull):
		return "enrichment queue is full, try again shortly"
	case errors.Is(err, jobs.ErrClosed):
		return "server is shutting down"
	}
	return err.Error()
}
