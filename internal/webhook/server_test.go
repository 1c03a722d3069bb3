package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overseerr-tg-bot/internal/config"
	"overseerr-tg-bot/internal/notify"
)

type captureSink struct {
	events []notify.Event
}

func (c *captureSink) HandleEvent(_ context.Context, ev notify.Event) {
	c.events = append(c.events, ev)
}

type fakePinger struct {
	err error
}

func (f *fakePinger) CheckHealth(context.Context) error { return f.err }

func newTestServer() (*Server, *captureSink) {
	sink := &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(config.WebhookConfig{Enabled: true, ListenAddr: ":0"}, sink, &fakePinger{}, logger), sink
}

func TestHandleOverseerrDecodesPayload(t *testing.T) {
	srv, sink := newTestServer()

	body := `{
		"notification_type": "MEDIA_PENDING",
		"subject": "The Matrix (1999)",
		"message": "A hacker learns the truth.",
		"media": {"media_type": "movie"},
		"request": {
			"id": 42,
			"is4k": true,
			"requestedBy": {"displayName": "Bob", "username": "bob"}
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/overseerr", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleOverseerr(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.NotEmpty(t, ev.TraceID)
	assert.Equal(t, notify.EventMediaPending, ev.Type)
	assert.Equal(t, "The Matrix (1999)", ev.Subject)
	assert.Equal(t, "movie", ev.MediaType)
	assert.Equal(t, 42, ev.RequestID)
	assert.Equal(t, "Bob", ev.RequestedBy)
	assert.True(t, ev.Is4K)
}

func TestHandleOverseerrTemplatedRequestID(t *testing.T) {
	// Some installs template the request id as a string field.
	srv, sink := newTestServer()

	body := `{
		"notification_type": "MEDIA_APPROVED",
		"subject": "The Matrix (1999)",
		"request": {"request_id": "42", "requestedBy_username": "bob"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/overseerr", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleOverseerr(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, 42, sink.events[0].RequestID)
	assert.Equal(t, "bob", sink.events[0].RequestedBy)
}

func TestHandleOverseerrEventFieldFallback(t *testing.T) {
	srv, sink := newTestServer()

	body := `{"event": "MEDIA_AVAILABLE", "subject": "The Matrix (1999)"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/overseerr", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleOverseerr(rec, req)

	require.Len(t, sink.events, 1)
	assert.Equal(t, notify.EventMediaAvailable, sink.events[0].Type)
}

func TestHandleOverseerrMalformedPayload(t *testing.T) {
	srv, sink := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/webhook/overseerr", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.handleOverseerr(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandleOverseerrRejectsGet(t *testing.T) {
	srv, sink := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/webhook/overseerr", nil)
	rec := httptest.NewRecorder()
	srv.handleOverseerr(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/webhook/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])

	post := httptest.NewRequest(http.MethodPost, "/webhook/health", nil)
	rec = httptest.NewRecorder()
	srv.handleHealth(rec, post)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealthUnreachableOverseerr(t *testing.T) {
	sink := &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(config.WebhookConfig{Enabled: true, ListenAddr: ":0"}, sink,
		&fakePinger{err: assert.AnError}, logger)

	req := httptest.NewRequest(http.MethodGet, "/webhook/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp["status"])
}
