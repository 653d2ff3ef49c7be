package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error { f.drained = true; return nil }
func (f *fakeConn) Close()       {}

func TestNATSPublisherSubjectAndPayload(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "", nil)

	op := domain.NewOperation("op1", "s1", domain.OperationEnrichment, domain.OperationInput{CompanyIdentifier: "acme.com"}, time.Now())
	require.NoError(t, op.Fail("lookup timeout", time.Now()))
	require.NoError(t, p.Publish(context.Background(), op))

	require.Len(t, fc.subjects, 1)
	assert.Equal(t, "discovery.operations.enrichment.failed", fc.subjects[0])

	var ev Event
	require.NoError(t, json.Unmarshal(fc.payloads[0], &ev))
	assert.Equal(t, "op1", ev.Operation.ID)
	assert.Equal(t, "lookup timeout", ev.Operation.Error)
	assert.Equal(t, 2, ev.Operation.Version)

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNATSPublisherErrors(t *testing.T) {
	fc := &fakeConn{err: errors.New("connection closed")}
	p := newNATSPublisher(fc, "custom", nil)
	op := domain.NewOperation("op1", "s1", domain.OperationEnrichment, domain.OperationInput{}, time.Now())

	err := p.Publish(context.Background(), op)
	assert.ErrorContains(t, err, "custom.enrichment.processing")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, op), context.Canceled)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), domain.Operation{}))
	assert.NoError(t, p.Close())
}
