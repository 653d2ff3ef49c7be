package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/identity"
	"github.com/ashureev/strategic-discovery/internal/jobs"
	"github.com/ashureev/strategic-discovery/internal/llm"
	"github.com/ashureev/strategic-discovery/internal/middleware"
	"github.com/ashureev/strategic-discovery/internal/operations"
	"github.com/ashureev/strategic-discovery/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// The genai client's opencensus dependency starts a stats worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type assemblerFunc func(ctx context.Context, p domain.ProspectProfile) domain.StrategicReport

func (f assemblerFunc) AssembleReport(ctx context.Context, p domain.ProspectProfile) domain.StrategicReport {
	return f(ctx, p)
}

type fakeChatter struct {
	mu      sync.Mutex
	err     error
	history []domain.ChatMessage
	system  string
}

func (c *fakeChatter) Chat(_ context.Context, _, system string, history []domain.ChatMessage, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history, c.system = history, system
	if c.err != nil {
		return "", c.err
	}
	return "echo: " + message, nil
}

type fixture struct {
	router    http.Handler
	repo      *store.SQLiteStore
	assembled int
	mu        sync.Mutex
}

func (f *fixture) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assembled
}

func newFixture(t *testing.T, configure ...func(*Deps)) *fixture {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	q := jobs.New(1, 4, nil)
	t.Cleanup(func() {
		_ = q.Shutdown(context.Background())
		_ = repo.Close()
	})

	f := &fixture{repo: repo}
	failing := llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
		return "", llm.NewFatalError(errors.New("no model in tests"))
	})
	d := Deps{
		Sessions: operations.NewService(repo, q, agents.StaticEnricher{}),
		Records:  repo,
		Reports: assemblerFunc(func(_ context.Context, p domain.ProspectProfile) domain.StrategicReport {
			f.mu.Lock()
			f.assembled++
			f.mu.Unlock()
			var rep domain.StrategicReport
			rep.ExecutiveSummary = "Report for " + p.CompanyName
			rep.HealthScore = 70
			rep.Normalize()
			return rep
		}),
		Questions: agents.NewQuestions(failing),
		Chatter:   &fakeChatter{},
	}
	for _, c := range configure {
		c(&d)
	}

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	NewHandler(d).RegisterRoutes(r)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody[map[string]string](t, w)["sessionId"]
	require.NotEmpty(t, id)
	return id
}

func acmeProfile() domain.ProspectProfile {
	return domain.ProspectProfile{
		CompanyName:      "Acme Studios",
		Industry:         "Advertising & Marketing",
		SubIndustry:      "Brand & Creative",
		Niche:            "Content Studios",
		FinancialMetrics: domain.Metrics{"annualRevenue": "$1M - $5M"},
		Qualification: domain.Qualification{
			IsDecisionMaker: "Shared",
			DesiredTimeline: "0-3 months",
		},
	}
}

func TestEnrichmentOverHTTP(t *testing.T) {
	f := newFixture(t)
	sid := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+sid+"/enrichments", map[string]string{"companyIdentifier": "  Acme  "})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	opID := decodeBody[map[string]string](t, w)["operationId"]
	require.NotEmpty(t, opID)

	var op domain.Operation
	require.Eventually(t, func() bool {
		w := f.do(t, http.MethodGet, "/api/sessions/"+sid+"/operations/"+opID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		op = decodeBody[domain.Operation](t, w)
		return op.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.StatusCompleted, op.Status)
	assert.Equal(t, "Acme", op.Input.CompanyIdentifier)
	var company domain.EnrichedCompany
	require.NoError(t, json.Unmarshal(op.Result, &company))
	assert.Equal(t, "Acme", company.CompanyName)
}

func TestEnrichmentErrors(t *testing.T) {
	f := newFixture(t)
	sid := f.newSession(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"blank identifier", http.MethodPost, "/api/sessions/" + sid + "/enrichments", map[string]string{"companyIdentifier": "   "}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/sessions/" + sid + "/enrichments", `{"companyIdentifier":`, http.StatusBadRequest},
		{"unknown session", http.MethodPost, "/api/sessions/nope/enrichments", map[string]string{"companyIdentifier": "acme"}, http.StatusNotFound},
		{"unknown operation", http.MethodGet, "/api/sessions/" + sid + "/operations/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decodeBody[map[string]string](t, w)["error"])
		})
	}
}

func TestEnrichmentQueueFull(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Sessions = sessionsStub{err: jobs.ErrQueueFull}
	})
	w := f.do(t, http.MethodPost, "/api/sessions/s1/enrichments", map[string]string{"companyIdentifier": "acme"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

type sessionsStub struct {
	Sessions
	err error
}

func (s sessionsStub) StartEnrichment(context.Context, string, string, string) (domain.Operation, error) {
	return domain.Operation{}, s.err
}

func TestGenerateReport(t *testing.T) {
	f := newFixture(t)
	sid := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+sid+"/reports", map[string]any{"prospectProfile": acmeProfile()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[reportResponse](t, w)
	assert.Equal(t, "Report for Acme Studios", resp.Report.ExecutiveSummary)
	assert.Equal(t, domain.Score(70), resp.Report.HealthScore)

	rec, err := f.repo.GetReport(context.Background(), sid, resp.ReportID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Studios", rec.Profile.CompanyName)
	assert.Equal(t, 1, f.calls())
}

func TestGenerateReportValidatesBeforeWork(t *testing.T) {
	f := newFixture(t)
	sid := f.newSession(t)

	badNiche := acmeProfile()
	badNiche.Niche = "Quantum Bakeries"
	noCompany := acmeProfile()
	noCompany.CompanyName = " "

	for name, p := range map[string]domain.ProspectProfile{"bad niche": badNiche, "no company": noCompany} {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/sessions/"+sid+"/reports", map[string]any{"prospectProfile": p})
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := f.do(t, http.MethodPost, "/api/sessions/nope/reports", map[string]any{"prospectProfile": acmeProfile()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, f.calls(), "no report is assembled for rejected requests")
}

func TestSubmitProspect(t *testing.T) {
	f := newFixture(t)
	sid := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+sid+"/prospects", map[string]any{"prospectProfile": acmeProfile()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decodeBody[prospectResponse](t, w)
	assert.NotEmpty(t, got.ProspectID)
	assert.Equal(t, domain.Score(80), got.LeadScore)
	assert.Equal(t, domain.LeadTierWarm, got.LeadTier)

	w = f.do(t, http.MethodPost, "/api/sessions/"+sid+"/prospects", map[string]any{"prospectProfile": acmeProfile(), "reportId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/sessions/"+sid+"/reports", map[string]any{"prospectProfile": acmeProfile()})
	require.Equal(t, http.StatusOK, w.Code)
	reportID := decodeBody[reportResponse](t, w).ReportID

	w = f.do(t, http.MethodPost, "/api/sessions/"+sid+"/prospects", map[string]any{"prospectProfile": acmeProfile(), "reportId": reportID})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/sessions/"+sid+"/prospects", map[string]any{"prospectProfile": domain.ProspectProfile{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateQuestionsFallsBack(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/questions", agents.QuestionInput{
		CompanyName: "Acme",
		Industry:    "Advertising & Marketing",
		SubIndustry: "Brand & Creative",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeBody[questionsResponse](t, w)
	assert.True(t, got.Fallback)
	assert.Equal(t, agents.QuestionsFallback(), got.Questions)

	w = f.do(t, http.MethodPost, "/api/questions", agents.QuestionInput{CompanyName: "Acme", Industry: "Alchemy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, "/api/questions", agents.QuestionInput{Industry: "Advertising & Marketing"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaxonomyRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/taxonomy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody[map[string][]string](t, w)["industries"], "Advertising & Marketing")

	w = f.do(t, http.MethodGet, "/api/taxonomy/Advertising%20%26%20Marketing", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decodeBody[map[string][]string](t, w)["subIndustries"], "Brand & Creative")

	w = f.do(t, http.MethodGet, "/api/taxonomy/Advertising%20%26%20Marketing/Brand%20%26%20Creative", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decodeBody[map[string][]string](t, w)["niches"], "Content Studios")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/taxonomy/Alchemy", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/taxonomy/Advertising%20%26%20Marketing/Nope", nil).Code)
}

func TestChat(t *testing.T) {
	chat := &fakeChatter{}
	f := newFixture(t, func(d *Deps) { d.Chatter = chat })

	history := []domain.ChatMessage{{Role: "user", Text: "hi"}, {Role: "model", Text: "hello"}}
	w := f.do(t, http.MethodPost, "/api/chat", chatRequest{History: history, Message: "pricing?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "echo: pricing?", decodeBody[map[string]string](t, w)["reply"])
	assert.Equal(t, history, chat.history)
	assert.Equal(t, agents.ChatInstruction, chat.system)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "  "}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/chat",
		chatRequest{History: []domain.ChatMessage{{Role: "system", Text: "x"}}, Message: "hi"}).Code)

	chat.err = errors.New("upstream down")
	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "hi"}).Code)
}

func TestChatUnavailableWithoutModel(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Chatter = nil })
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "hi"}).Code)
}

func TestChatIsRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(1, time.Minute)
	t.Cleanup(rl.Stop)
	f := newFixture(t, func(d *Deps) { d.Limiter = rl })

	post := func(cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hi"}`))
		if cookie != nil {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	first := post(nil)
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)

	limited := post(cookies[0])
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, post(nil).Code, "a new anonymous identity gets its own window")
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/taxonomy", nil).Code, "taxonomy is not limited")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"healthy", nil, http.StatusOK, `{"status":"healthy","checks":{"api":"ok","database":"ok"}}`},
		{"degraded", errors.New("disk gone"), http.StatusServiceUnavailable, `{"status":"degraded","checks":{"api":"ok","database":"unreachable"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHealthHandler(pingerFunc(func(context.Context) error { return tt.err })).RegisterHealth(r)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}
