package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentResult(t *testing.T) {
	m := New()
	m.AgentResult("swot", false, time.Second)
	m.AgentResult("swot", true, 2*time.Second)
	m.AgentResult("swot", true, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentCalls.WithLabelValues("swot", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.agentCalls.WithLabelValues("swot", "fallback")))
}

func TestReportAndOperationCounters(t *testing.T) {
	m := New()
	m.ReportAssembled(3*time.Second, 2)
	m.OperationFinished(domain.OperationEnrichment, domain.StatusFailed, time.Second)
	m.OperationFinished(domain.OperationEnrichment, domain.StatusCompleted, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("enrichment", "failed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.GaugeFunc("job_queue_depth", "Queued jobs.", func() float64 { return 3 })
	m.AgentResult("market_sizing", false, time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `discovery_agent_calls_total{agent="market_sizing",outcome="ok"} 1`)
	assert.Contains(t, string(body), "discovery_job_queue_depth 3")
}
