// Package store persists sessions, operations, reports and prospects.
package store

import (
	"context"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
)

// Repository is the persistence boundary of the discovery backend.
// Lookups of missing records return domain.ErrNotFound.
type Repository interface {
	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (domain.Session, error)

	// CreateOperation inserts an operation in its initial state.
	CreateOperation(ctx context.Context, op domain.Operation) error

	// GetOperation retrieves an operation owned by sessionID.
	GetOperation(ctx context.Context, sessionID, operationID string) (domain.Operation, error)

	// FinishOperation writes a terminal operation. The write only applies
	// while the stored row is still processing; otherwise it returns
	// domain.ErrInvalidTransition.
	FinishOperation(ctx context.Context, op domain.Operation) error

	// ListOperationsByStatus returns operations in the given status, oldest first.
	ListOperationsByStatus(ctx context.Context, status domain.OperationStatus) ([]domain.Operation, error)

	// AppendReport stores a generated report. Reports are never updated.
	AppendReport(ctx context.Context, rec domain.ReportRecord) error

	// GetReport retrieves a report owned by sessionID.
	GetReport(ctx context.Context, sessionID, reportID string) (domain.ReportRecord, error)

	// ListReports returns the reports of a session, oldest first.
	ListReports(ctx context.Context, sessionID string) ([]domain.ReportRecord, error)

	// CreateProspect stores a submitted prospect.
	CreateProspect(ctx context.Context, p domain.Prospect) error

	// DeleteSessionsBefore removes sessions created before cutoff together
	// with everything they own.
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
