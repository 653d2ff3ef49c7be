package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "discovery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSession(t *testing.T, s *SQLiteStore, id string, created time.Time) {
	t.Helper()
	require.NoError(t, s.CreateSession(context.Background(), domain.Session{
		ID: id, UserID: domain.AnonymousUser, Status: domain.SessionStatusActive, CreatedAt: created,
	}))
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Unix(1_760_000_000, 0)

	seedSession(t, s, "s1", created)

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, domain.AnonymousUser, got.UserID)
	assert.True(t, created.Equal(got.CreatedAt))

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOperationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)
	seedSession(t, s, "s1", now)

	op := domain.NewOperation("op1", "s1", domain.OperationEnrichment,
		domain.OperationInput{CompanyIdentifier: "acme.com", Language: "en"}, now)
	require.NoError(t, s.CreateOperation(ctx, op))

	got, err := s.GetOperation(ctx, "s1", "op1")
	require.NoError(t, err)
	if diff := cmp.Diff(op, got); diff != "" {
		t.Errorf("created operation mismatch (-want +got):\n%s", diff)
	}

	_, err = s.GetOperation(ctx, "other-session", "op1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	done := op
	require.NoError(t, done.Complete(json.RawMessage(`{"companyName":"Acme"}`), now.Add(time.Minute)))
	require.NoError(t, s.FinishOperation(ctx, done))

	got, err = s.GetOperation(ctx, "s1", "op1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.JSONEq(t, `{"companyName":"Acme"}`, string(got.Result))
	require.NotNil(t, got.CompletedAt)

	// A second terminal write is rejected and leaves the row untouched.
	failed := op
	require.NoError(t, failed.Fail("late failure", now.Add(2*time.Minute)))
	err = s.FinishOperation(ctx, failed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err = s.GetOperation(ctx, "s1", "op1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.Error)
}

func TestFinishOperationErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	missing := domain.NewOperation("nope", "s1", domain.OperationEnrichment, domain.OperationInput{CompanyIdentifier: "x"}, now)
	require.NoError(t, missing.Fail("x", now))
	assert.ErrorIs(t, s.FinishOperation(ctx, missing), domain.ErrNotFound)

	processing := domain.NewOperation("op", "s1", domain.OperationEnrichment, domain.OperationInput{CompanyIdentifier: "x"}, now)
	assert.ErrorIs(t, s.FinishOperation(ctx, processing), domain.ErrInvalidTransition)
}

func TestListOperationsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)

	for i, id := range []string{"a", "b", "c"} {
		op := domain.NewOperation(id, "s1", domain.OperationEnrichment,
			domain.OperationInput{CompanyIdentifier: id}, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.CreateOperation(ctx, op))
	}
	b, err := s.GetOperation(ctx, "s1", "b")
	require.NoError(t, err)
	require.NoError(t, b.Fail("boom", now))
	require.NoError(t, s.FinishOperation(ctx, b))

	processing, err := s.ListOperationsByStatus(ctx, domain.StatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 2)
	assert.Equal(t, "a", processing[0].ID)
	assert.Equal(t, "c", processing[1].ID)

	failed, err := s.ListOperationsByStatus(ctx, domain.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)
}

func TestReportsAreAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_760_000_000, 0)

	profile := domain.ProspectProfile{CompanyName: "Acme Corp", Industry: "Software & SaaS"}
	report := domain.StrategicReport{MarketAnalysis: domain.MarketSizing{TAM: "$48B"}}
	report.HealthScore = 74
	report.Normalize()

	rec := domain.ReportRecord{ID: "r1", SessionID: "s1", Profile: profile, Report: report, CreatedAt: now}
	require.NoError(t, s.AppendReport(ctx, rec))
	require.NoError(t, s.AppendReport(ctx, domain.ReportRecord{ID: "r2", SessionID: "s1", Profile: profile, Report: report, CreatedAt: now}))
	assert.Error(t, s.AppendReport(ctx, rec), "duplicate report id must not overwrite")

	got, err := s.GetReport(ctx, "s1", "r1")
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	list, err := s.ListReports(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r1", list[0].ID)

	empty, err := s.ListReports(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = s.GetReport(ctx, "other", "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteSessionsBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Unix(1_700_000_000, 0)
	recent := time.Unix(1_760_000_000, 0)

	seedSession(t, s, "old", old)
	seedSession(t, s, "new", recent)
	require.NoError(t, s.CreateOperation(ctx, domain.NewOperation("op-old", "old", domain.OperationEnrichment, domain.OperationInput{CompanyIdentifier: "x"}, old)))
	require.NoError(t, s.CreateOperation(ctx, domain.NewOperation("op-new", "new", domain.OperationEnrichment, domain.OperationInput{CompanyIdentifier: "y"}, recent)))
	require.NoError(t, s.CreateProspect(ctx, domain.Prospect{ID: "p-old", SessionID: "old", LeadScore: 50, LeadTier: domain.LeadTierCool, CreatedAt: old}))

	n, err := s.DeleteSessionsBefore(ctx, recent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetOperation(ctx, "old", "op-old")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetOperation(ctx, "new", "op-new")
	assert.NoError(t, err)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
