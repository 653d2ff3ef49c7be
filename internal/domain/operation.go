package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AnonymousUser is recorded on sessions created without an identity.
const AnonymousUser = "anonymous"

// SessionStatusActive is the only status a session currently takes.
const SessionStatusActive = "active"

// Session groups the operations and reports of one wizard run.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// OperationType names the kind of long-running work an operation tracks.
type OperationType string

const OperationEnrichment OperationType = "enrichment"

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

const (
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OperationInput is what the caller asked the operation to do.
type OperationInput struct {
	CompanyIdentifier string `json:"companyIdentifier"`
	Language          string `json:"language,omitempty"`
}

// Operation is a unit of asynchronous work owned by a session.
// Status only moves processing -> completed or processing -> failed.
type Operation struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	Type        OperationType   `json:"type"`
	Input       OperationInput  `json:"input"`
	Status      OperationStatus `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// NewOperation returns an operation in the processing state.
func NewOperation(id, sessionID string, typ OperationType, input OperationInput, now time.Time) Operation {
	return Operation{
		ID:        id,
		SessionID: sessionID,
		Type:      typ,
		Input:     input,
		Status:    StatusProcessing,
		Version:   1,
		CreatedAt: now,
	}
}

// Complete moves the operation to completed with the given result, stored
// compacted so it reads back byte-identical after encoding.
func (o *Operation) Complete(result json.RawMessage, now time.Time) error {
	var compact bytes.Buffer
	if len(result) > 0 {
		if err := json.Compact(&compact, result); err != nil {
			return fmt.Errorf("%w: operation result: %v", ErrInvalidInput, err)
		}
	}
	if err := o.transition(StatusCompleted); err != nil {
		return err
	}
	o.Result = nil
	if compact.Len() > 0 {
		o.Result = json.RawMessage(compact.Bytes())
	}
	o.Error = ""
	o.CompletedAt = &now
	return nil
}

// Fail moves the operation to failed with the given message.
func (o *Operation) Fail(message string, now time.Time) error {
	if err := o.transition(StatusFailed); err != nil {
		return err
	}
	o.Result = nil
	o.Error = message
	o.CompletedAt = &now
	return nil
}

func (o *Operation) transition(to OperationStatus) error {
	if o.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.Version++
	return nil
}

// ReportRecord is a generated report stored under its session.
type ReportRecord struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Profile   ProspectProfile `json:"profile"`
	Report    StrategicReport `json:"report"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Prospect is a submitted lead.
type Prospect struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	ReportID  string          `json:"reportId,omitempty"`
	Profile   ProspectProfile `json:"profile"`
	LeadScore Score           `json:"leadScore"`
	LeadTier  LeadTier        `json:"leadTier"`
	CreatedAt time.Time       `json:"createdAt"`
}
