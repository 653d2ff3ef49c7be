// Package client talks to a discovery server over HTTP and websocket. It
// implements the backend the wizard flow controller needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/flow"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap maps status codes back to the domain errors the server started from.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	case http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

// Client is an API client. The cookie jar keeps the anonymous identity
// the server assigns on the first request.
type Client struct {
	base   *url.URL
	hc     *http.Client
	logger *slog.Logger

	pollInterval time.Duration
	pollAttempts int
}

const (
	defaultPollInterval = 500 * time.Millisecond
	maxPollInterval     = 5 * time.Second
	defaultPollAttempts = 20
)

var _ flow.Backend = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client. Its jar, if any, is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPolling sets how a subscription whose stream drops early polls for
// the terminal snapshot: the first delay, doubled up to a cap, and the
// number of attempts before the operation is reported failed.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if attempts > 0 {
			c.pollAttempts = attempts
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL must be http or https, got %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:   u,
		hc:     &http.Client{Jar: jar},
		logger: slog.Default(),

		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc.Jar == nil {
		c.hc.Jar = jar
	}
	return c, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "sessions"), nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func (c *Client) StartEnrichment(ctx context.Context, sessionID, companyIdentifier, language string) (string, error) {
	in := map[string]string{"companyIdentifier": companyIdentifier, "language": language}
	var out struct {
		OperationID string `json:"operationId"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "sessions", sessionID, "enrichments"), in, &out); err != nil {
		return "", err
	}
	return out.OperationID, nil
}

// Operation polls the current snapshot of an operation.
func (c *Client) Operation(ctx context.Context, sessionID, operationID string) (domain.Operation, error) {
	var op domain.Operation
	err := c.do(ctx, http.MethodGet, c.endpoint("api", "sessions", sessionID, "operations", operationID), nil, &op)
	return op, err
}

// Subscribe opens the websocket status stream and calls onUpdate for every
// snapshot until the server closes it after the terminal one. If the stream
// ends before a terminal snapshot, the operation is polled until it settles;
// when polling gives up a failed snapshot is delivered instead, so a
// subscriber always sees a terminal update unless it unsubscribes first.
func (c *Client) Subscribe(ctx context.Context, sessionID, operationID string, onUpdate func(domain.Operation)) (func(), error) {
	wsURL := *c.base
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	target := strings.Replace(c.endpoint("ws", "sessions", sessionID, "operations", operationID), c.base.String(), wsURL.String(), 1)

	// The websocket library rejects clients with a Timeout; contexts bound the dial.
	hc := *c.hc
	hc.Timeout = 0

	ctx, cancel := context.WithCancel(ctx)
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPClient: &hc})
	if err != nil {
		cancel()
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &StatusError{Code: resp.StatusCode, Message: "subscribe failed"}
		}
		return nil, fmt.Errorf("dial status stream: %w", err)
	}

	go func() {
		defer cancel()
		var last domain.Operation
		for {
			var op domain.Operation
			err := wsjson.Read(ctx, conn, &op)
			if err == nil {
				last = op
				onUpdate(op)
				continue
			}
			conn.CloseNow()
			if ctx.Err() != nil || last.Status.Terminal() {
				return
			}
			c.logger.Warn("Status stream ended early, polling", "operation_id", operationID, "error", err)
			if op, ok := c.awaitTerminal(ctx, sessionID, operationID, last); ok {
				onUpdate(op)
			}
			return
		}
	}()
	return cancel, nil
}

// awaitTerminal polls an operation with doubling delays until it is
// terminal. When attempts run out, or the operation is gone, it returns a
// failed snapshot built on last. ok is false only if ctx ended first.
func (c *Client) awaitTerminal(ctx context.Context, sessionID, operationID string, last domain.Operation) (domain.Operation, bool) {
	delay := c.pollInterval
	var lastErr error
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		op, err := c.Operation(ctx, sessionID, operationID)
		if err == nil && op.Status.Terminal() {
			return op, true
		}
		if ctx.Err() != nil {
			return domain.Operation{}, false
		}
		if err == nil {
			last = op
		} else {
			lastErr = err
			if errors.Is(err, domain.ErrNotFound) {
				break
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Operation{}, false
		case <-timer.C:
		}
		delay = min(delay*2, maxPollInterval)
	}

	msg := "status stream lost before the operation finished"
	if lastErr != nil {
		msg = fmt.Sprintf("%s: %v", msg, lastErr)
	}
	c.logger.Warn("Giving up on operation status", "operation_id", operationID, "error", msg)
	return lostOperation(sessionID, operationID, last, msg), true
}

// lostOperation fails the last known snapshot, or a placeholder when none
// arrived, so its version moves past anything already delivered.
func lostOperation(sessionID, operationID string, last domain.Operation, msg string) domain.Operation {
	now := time.Now().UTC()
	op := last
	if op.ID == "" {
		op = domain.NewOperation(operationID, sessionID, domain.OperationEnrichment, domain.OperationInput{}, now)
	}
	if err := op.Fail(msg, now); err != nil {
		op.Status, op.Error, op.Result = domain.StatusFailed, msg, nil
		op.Version++
	}
	return op
}

func (c *Client) GenerateQuestions(ctx context.Context, in agents.QuestionInput) ([]domain.Question, error) {
	var out struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "questions"), in, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

func (c *Client) GenerateReport(ctx context.Context, sessionID string, p domain.ProspectProfile) (string, domain.StrategicReport, error) {
	in := map[string]any{"prospectProfile": p}
	var out struct {
		ReportID string                 `json:"reportId"`
		Report   domain.StrategicReport `json:"report"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "sessions", sessionID, "reports"), in, &out); err != nil {
		return "", domain.StrategicReport{}, err
	}
	return out.ReportID, out.Report, nil
}

func (c *Client) SubmitProspect(ctx context.Context, sessionID, reportID string, p domain.ProspectProfile) (flow.Lead, error) {
	in := map[string]any{"prospectProfile": p, "reportId": reportID}
	var lead flow.Lead
	err := c.do(ctx, http.MethodPost, c.endpoint("api", "sessions", sessionID, "prospects"), in, &lead)
	return lead, err
}

// Taxonomy lists industries, sub-industries of path[0], or niches of
// path[0] > path[1].
func (c *Client) Taxonomy(ctx context.Context, path ...string) ([]string, error) {
	if len(path) > 2 {
		return nil, errors.New("taxonomy path has at most two levels")
	}
	var out map[string][]string
	if err := c.do(ctx, http.MethodGet, c.endpoint(append([]string{"api", "taxonomy"}, path...)...), nil, &out); err != nil {
		return nil, err
	}
	for _, v := range out {
		return v, nil
	}
	return nil, nil
}

// Chat sends one consultant chat turn.
func (c *Client) Chat(ctx context.Context, history []domain.ChatMessage, message string) (string, error) {
	in := map[string]any{"history": history, "message": message}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "chat"), in, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}
