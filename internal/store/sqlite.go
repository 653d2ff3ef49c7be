package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS operations (
		operation_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		input_json TEXT NOT NULL,
		status TEXT NOT NULL,
		result_json TEXT,
		error TEXT,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_operations_session ON operations(session_id);
	CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);

	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		profile_json TEXT NOT NULL,
		report_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_session ON reports(session_id);

	CREATE TABLE IF NOT EXISTS prospects (
		prospect_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		report_id TEXT,
		profile_json TEXT NOT NULL,
		lead_score INTEGER NOT NULL,
		lead_tier TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prospects_session ON prospects(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess domain.Session) error {
	query := `INSERT INTO sessions (session_id, user_id, status, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, sess.ID, sess.UserID, sess.Status, sess.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	query := `SELECT session_id, user_id, status, created_at FROM sessions WHERE session_id = ?`

	var sess domain.Session
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&sess.ID, &sess.UserID, &sess.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session row: %w", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	return sess, nil
}

// CreateOperation inserts an operation in its initial state.
func (s *SQLiteStore) CreateOperation(ctx context.Context, op domain.Operation) error {
	input, err := json.Marshal(op.Input)
	if err != nil {
		return fmt.Errorf("encode operation input: %w", err)
	}

	query := `
	INSERT INTO operations (operation_id, session_id, type, input_json, status, version, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		op.ID, op.SessionID, string(op.Type), string(input),
		string(op.Status), op.Version, op.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

const operationColumns = `operation_id, session_id, type, input_json, status,
	result_json, error, version, created_at, completed_at`

// GetOperation retrieves an operation owned by sessionID.
func (s *SQLiteStore) GetOperation(ctx context.Context, sessionID, operationID string) (domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE operation_id = ? AND session_id = ?`

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, operationID, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Operation{}, fmt.Errorf("operation %s: %w", operationID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Operation{}, err
	}
	return op, nil
}

// FinishOperation writes a terminal operation if the stored row is still processing.
func (s *SQLiteStore) FinishOperation(ctx context.Context, op domain.Operation) error {
	if !op.Status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidTransition, op.Status)
	}

	var result, completedAt any
	if op.Result != nil {
		result = string(op.Result)
	}
	if op.CompletedAt != nil {
		completedAt = op.CompletedAt.Unix()
	}

	query := `
	UPDATE operations SET status = ?, result_json = ?, error = ?, version = ?, completed_at = ?
	WHERE operation_id = ? AND session_id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(op.Status), result, op.Error, op.Version, completedAt,
		op.ID, op.SessionID, string(domain.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := s.GetOperation(ctx, op.SessionID, op.ID)
	if err != nil {
		return err
	}
	slog.Warn("FinishOperation affected 0 rows",
		"operation_id", op.ID,
		"current_status", current.Status,
		"requested_status", op.Status)
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, op.Status)
}

// ListOperationsByStatus returns operations in the given status, oldest first.
func (s *SQLiteStore) ListOperationsByStatus(ctx context.Context, status domain.OperationStatus) ([]domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE status = ? ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close operation rows", "error", closeErr)
		}
	}()

	var ops []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (domain.Operation, error) {
	var op domain.Operation
	var typ, input, status string
	var result, errMsg sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64

	err := row.Scan(&op.ID, &op.SessionID, &typ, &input, &status,
		&result, &errMsg, &op.Version, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return op, err
	}
	if err != nil {
		return op, fmt.Errorf("scan operation row: %w", err)
	}

	if err := json.Unmarshal([]byte(input), &op.Input); err != nil {
		return op, fmt.Errorf("decode operation input: %w", err)
	}
	op.Type = domain.OperationType(typ)
	op.Status = domain.OperationStatus(status)
	if result.Valid {
		op.Result = json.RawMessage(result.String)
	}
	op.Error = errMsg.String
	op.CreatedAt = time.Unix(createdAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		op.CompletedAt = &t
	}
	return op, nil
}

// AppendReport stores a generated report.
func (s *SQLiteStore) AppendReport(ctx context.Context, rec domain.ReportRecord) error {
	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("encode report profile: %w", err)
	}
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	query := `
	INSERT INTO reports (report_id, session_id, profile_json, report_json, created_at)
	VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.SessionID, string(profile), string(report), rec.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport retrieves a report owned by sessionID.
func (s *SQLiteStore) GetReport(ctx context.Context, sessionID, reportID string) (domain.ReportRecord, error) {
	query := `
	SELECT report_id, session_id, profile_json, report_json, created_at
	FROM reports WHERE report_id = ? AND session_id = ?`

	rec, err := scanReport(s.db.QueryRowContext(ctx, query, reportID, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReportRecord{}, fmt.Errorf("report %s: %w", reportID, domain.ErrNotFound)
	}
	return rec, err
}

// ListReports returns the reports of a session, oldest first.
func (s *SQLiteStore) ListReports(ctx context.Context, sessionID string) ([]domain.ReportRecord, error) {
	query := `
	SELECT report_id, session_id, profile_json, report_json, created_at
	FROM reports WHERE session_id = ? ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close report rows", "error", closeErr)
		}
	}()

	recs := []domain.ReportRecord{}
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return recs, nil
}

func scanReport(row rowScanner) (domain.ReportRecord, error) {
	var rec domain.ReportRecord
	var profile, report string
	var createdAt int64

	err := row.Scan(&rec.ID, &rec.SessionID, &profile, &report, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan report row: %w", err)
	}
	if err := json.Unmarshal([]byte(profile), &rec.Profile); err != nil {
		return rec, fmt.Errorf("decode report profile: %w", err)
	}
	if err := json.Unmarshal([]byte(report), &rec.Report); err != nil {
		return rec, fmt.Errorf("decode report: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return rec, nil
}

// CreateProspect stores a submitted prospect.
func (s *SQLiteStore) CreateProspect(ctx context.Context, p domain.Prospect) error {
	profile, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("encode prospect profile: %w", err)
	}

	var reportID any
	if p.ReportID != "" {
		reportID = p.ReportID
	}

	query := `
	INSERT INTO prospects (prospect_id, session_id, report_id, profile_json, lead_score, lead_tier, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.SessionID, reportID, string(profile),
		int(p.LeadScore), string(p.LeadTier), p.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert prospect: %w", err)
	}
	return nil
}

// DeleteSessionsBefore removes sessions created before cutoff and everything they own.
// The delete is retried when SQLite reports a lock conflict.
func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, func() error {
		n, err := s.deleteSessionsBeforeOnce(ctx, cutoff.Unix())
		deleted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *SQLiteStore) deleteSessionsBeforeOnce(ctx context.Context, threshold int64) (n int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	owned := `session_id IN (SELECT session_id FROM sessions WHERE created_at < ?)`
	for _, table := range []string{"operations", "reports", "prospects"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+owned, threshold); err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}
