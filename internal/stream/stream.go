// Package stream pushes operation snapshots to browsers over websocket and
// server-sent events. Both transports close once a terminal snapshot is sent.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/strategic-discovery/internal/api"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/operations"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

// Subscriber is the status channel. *operations.Service satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID, operationID string, onUpdate operations.UpdateFunc) (func(), error)
}

// Handler serves the operation status streams.
type Handler struct {
	subs          Subscriber
	keepalive     time.Duration
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger

	done     chan struct{}
	doneOnce sync.Once
}

// NewHandler creates a stream handler.
func NewHandler(subs Subscriber, keepalive time.Duration, allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	return &Handler{
		subs:          subs,
		keepalive:     keepalive,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

// Shutdown ends every open stream so http.Server.Shutdown is not held up
// by them. Websocket clients get a going-away close and SSE clients
// reconnect after the retry delay. Register it with RegisterOnShutdown.
func (h *Handler) Shutdown() {
	h.doneOnce.Do(func() { close(h.done) })
}

// RegisterRoutes registers the SSE and websocket endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/sessions/{sessionID}/operations/{operationID}/events", h.ServeSSE)
	r.Get("/ws/sessions/{sessionID}/operations/{operationID}", h.ServeWS)
}

// subscribe opens a subscription that feeds a channel. The channel is
// buffered because an operation changes at most twice.
func (h *Handler) subscribe(ctx context.Context, sessionID, operationID string) (<-chan domain.Operation, func(), error) {
	updates := make(chan domain.Operation, 4)
	unsubscribe, err := h.subs.Subscribe(ctx, sessionID, operationID, func(op domain.Operation) {
		select {
		case updates <- op:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return updates, unsubscribe, nil
}

func (h *Handler) subscribeError(w http.ResponseWriter, err error, sessionID, operationID string) {
	if errors.Is(err, domain.ErrNotFound) {
		api.Error(w, http.StatusNotFound, "operation not found")
		return
	}
	h.logger.Error("Failed to subscribe to operation",
		"session_id", sessionID, "operation_id", operationID, "stage", "subscribe", "error", err)
	api.Error(w, http.StatusInternalServerError, "failed to subscribe")
}

// ServeSSE streams snapshots as "operation" events with the version as event ID.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	operationID := chi.URLParam(r, "operationID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	updates, unsubscribe, err := h.subscribe(ctx, sessionID, operationID)
	if err != nil {
		h.subscribeError(w, err, sessionID, operationID)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Operation stream disconnected", "operation_id", operationID)
			return
		case <-h.done:
			return
		case op := <-updates:
			data, err := json.Marshal(op)
			if err != nil {
				h.logger.Error("Failed to encode operation", "operation_id", operationID, "error", err)
				return
			}
			if err := writeSSEWithID(w, int64(op.Version), "operation", string(data)); err != nil {
				h.logger.Warn("Failed to write SSE event", "operation_id", operationID, "error", err)
				return
			}
			flusher.Flush()
			if op.Status.Terminal() {
				return
			}
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}

// ServeWS streams snapshots as JSON text messages.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	operationID := chi.URLParam(r, "operationID")

	if !h.checkOrigin(r) {
		api.Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe, err := h.subscribe(ctx, sessionID, operationID)
	if err != nil {
		h.subscribeError(w, err, sessionID, operationID)
		return
	}
	defer unsubscribe()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "operation_id", operationID, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.CloseNow(); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	// Clients only listen; CloseRead handles their pings and close frames.
	ctx = ws.CloseRead(ctx)

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			if err := ws.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
				h.logger.Debug("Failed to close websocket", "error", err)
			}
			return
		case op := <-updates:
			if err := h.writeJSON(ctx, ws, op); err != nil {
				h.logger.Warn("Failed to write operation", "operation_id", operationID, "error", err)
				return
			}
			if op.Status.Terminal() {
				if err := ws.Close(websocket.StatusNormalClosure, "operation finished"); err != nil {
					h.logger.Debug("Failed to close websocket", "error", err)
				}
				return
			}
		case <-keepalive.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
