package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"overseerr-tg-bot/internal/config"
	"overseerr-tg-bot/internal/notify"
)

// Sink consumes decoded Overseerr events.
type Sink interface {
	HandleEvent(ctx context.Context, ev notify.Event)
}

// Pinger checks whether the upstream Overseerr instance is reachable.
type Pinger interface {
	CheckHealth(ctx context.Context) error
}

// Server receives Overseerr webhook deliveries on POST /webhook/overseerr
// and answers health probes on GET /webhook/health.
type Server struct {
	addr    string
	sink    Sink
	checker Pinger
	logger  *slog.Logger
}

// NewServer creates a webhook server.
func NewServer(cfg config.WebhookConfig, sink Sink, checker Pinger, logger *slog.Logger) *Server {
	return &Server{
		addr:    cfg.ListenAddr,
		sink:    sink,
		checker: checker,
		logger:  logger,
	}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/overseerr", s.handleOverseerr)
	mux.HandleFunc("/webhook/health", s.handleHealth)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown webhook server: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.checker.CheckHealth(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleOverseerr(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		s.logger.Warn("malformed webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ev := p.toEvent()
	ev.TraceID = uuid.NewString()
	s.logger.Info("webhook received", "trace_id", ev.TraceID, "type", ev.Type, "subject", ev.Subject)

	// Delivery is acknowledged once the payload decodes; routing failures
	// are the bot's to report, not the sender's to retry.
	s.sink.HandleEvent(r.Context(), ev)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// payload is the Overseerr webhook wire format. Overseerr templates differ
// between installs, so the request id is accepted both as a number and as
// the templated request_id string.
type payload struct {
	NotificationType string `json:"notification_type"`
	Event            string `json:"event"`
	Subject          string `json:"subject"`
	Message          string `json:"message"`
	Media            struct {
		MediaType string `json:"media_type"`
	} `json:"media"`
	Request struct {
		ID          int    `json:"id"`
		RequestID   string `json:"request_id"`
		Is4K        bool   `json:"is4k"`
		RequestedBy struct {
			DisplayName string `json:"displayName"`
			Username    string `json:"username"`
		} `json:"requestedBy"`
		RequestedByUsername string `json:"requestedBy_username"`
	} `json:"request"`
}

func (p payload) toEvent() notify.Event {
	typ := p.NotificationType
	if typ == "" {
		typ = p.Event
	}

	requestID := p.Request.ID
	if requestID == 0 && p.Request.RequestID != "" {
		if id, err := strconv.Atoi(p.Request.RequestID); err == nil {
			requestID = id
		}
	}

	requester := p.Request.RequestedBy.DisplayName
	if requester == "" {
		requester = p.Request.RequestedBy.Username
	}
	if requester == "" {
		requester = p.Request.RequestedByUsername
	}

	return notify.Event{
		Type:        typ,
		Subject:     p.Subject,
		Message:     p.Message,
		MediaType:   p.Media.MediaType,
		RequestID:   requestID,
		RequestedBy: requester,
		Is4K:        p.Request.Is4K,
	}
}
