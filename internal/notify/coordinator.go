package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"overseerr-tg-bot/internal/botcfg"
	"overseerr-tg-bot/internal/overseerr"
)

// Status is the approval lifecycle of a tracked request.
// pending -> approved | declined, both terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
)

// ErrAlreadyDecided rejects a second transition on a terminal request.
var ErrAlreadyDecided = errors.New("request already approved or declined")

// ErrDecisionInFlight rejects concurrent decisions on the same request.
var ErrDecisionInFlight = errors.New("a decision for this request is already being processed")

// notice is one admin notification message that must be edited once the
// request reaches a terminal state.
type notice struct {
	chatID    int64
	messageID int
}

// PendingRequest tracks one request awaiting an admin decision. Tracked in
// memory only; Overseerr stays authoritative across restarts.
type PendingRequest struct {
	ID          int
	MediaTitle  string
	RequestedBy string
	Status      Status

	inflight bool
	notices  []notice
}

// Messenger is the slice of the Telegram bot the coordinator sends through.
type Messenger interface {
	SendMessage(chatID int64, threadID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (messageID int, err error)
	EditMessage(chatID int64, messageID int, text string) error
}

// RequestClient reads and mutates request state in Overseerr.
type RequestClient interface {
	GetRequest(ctx context.Context, requestID int) (*overseerr.Request, error)
	Approve(ctx context.Context, requestID int) error
	Decline(ctx context.Context, requestID int) error
}

// Coordinator routes inbound Overseerr events to Telegram chats and drives
// the approve/decline state machine for pending requests.
type Coordinator struct {
	cfg    botcfg.Store
	client RequestClient
	msgr   Messenger
	logger *slog.Logger

	mu       sync.Mutex
	requests map[int]*PendingRequest
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg botcfg.Store, client RequestClient, msgr Messenger, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		client:   client,
		msgr:     msgr,
		logger:   logger,
		requests: make(map[int]*PendingRequest),
	}
}

// HandleEvent consumes one decoded webhook event. New pending requests open
// the admin approval flow; every other known type is forwarded as a status
// notification.
func (c *Coordinator) HandleEvent(ctx context.Context, ev Event) {
	log := c.logger.With("trace_id", ev.TraceID, "type", ev.Type, "request_id", ev.RequestID)

	switch {
	case ev.Type == EventTest:
		log.Info("test notification received")
	case ev.isNewRequest():
		c.notifyAdmins(ev, log)
	case ev.Type == EventMediaApproved, ev.Type == EventMediaAutoApproved,
		ev.Type == EventMediaDeclined, ev.Type == EventMediaAvailable,
		ev.Type == EventMediaFailed:
		c.forwardStatus(ev, log)
	default:
		log.Debug("ignoring webhook event")
	}
}

// notifyAdmins tracks the request and sends the approval keyboard to every
// admin chat (or the primary chat in Group Mode).
func (c *Coordinator) notifyAdmins(ev Event, log *slog.Logger) {
	if ev.RequestID == 0 {
		log.Warn("pending request event without request id")
		return
	}

	c.mu.Lock()
	req, ok := c.requests[ev.RequestID]
	if !ok {
		req = &PendingRequest{
			ID:          ev.RequestID,
			MediaTitle:  ev.Subject,
			RequestedBy: ev.RequestedBy,
			Status:      StatusPending,
		}
		c.requests[ev.RequestID] = req
	}
	c.mu.Unlock()
	if ok {
		// Overseerr re-delivered the webhook; the admins already know.
		log.Debug("duplicate pending request event")
		return
	}

	text := formatPendingMessage(ev)
	keyboard := approvalKeyboard(ev.RequestID)

	sent := 0
	for _, target := range c.targets() {
		msgID, err := c.msgr.SendMessage(target.chatID, target.threadID, text, &keyboard)
		if err != nil {
			log.Error("failed to notify admin chat", "chat_id", target.chatID, "error", err)
			continue
		}
		sent++
		c.mu.Lock()
		req.notices = append(req.notices, notice{chatID: target.chatID, messageID: msgID})
		c.mu.Unlock()
	}
	log.Info("admins notified of pending request", "chats", sent)
}

// forwardStatus relays non-pending notifications to the configured chats,
// plus the requester's private chat when their username is registered.
func (c *Coordinator) forwardStatus(ev Event, log *slog.Logger) {
	text := formatStatusMessage(ev)
	targets := c.targets()
	if id, ok := c.requesterChat(ev.RequestedBy); ok {
		seen := false
		for _, t := range targets {
			if t.chatID == id {
				seen = true
				break
			}
		}
		if !seen {
			targets = append(targets, target{chatID: id})
		}
	}
	for _, target := range targets {
		if _, err := c.msgr.SendMessage(target.chatID, target.threadID, text, nil); err != nil {
			log.Error("failed to forward notification", "chat_id", target.chatID, "error", err)
		}
	}
}

// requesterChat maps an Overseerr requester name to a registered Telegram
// user's private chat, when exactly that username is known and usable.
func (c *Coordinator) requesterChat(requestedBy string) (int64, bool) {
	if requestedBy == "" {
		return 0, false
	}
	for key, u := range c.cfg.Get().Users {
		if u.Username != requestedBy || !u.IsAuthorized || u.IsBlocked {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}

type target struct {
	chatID   int64
	threadID int
}

// targets resolves where notifications go: the primary chat in Group Mode,
// otherwise each admin's private chat.
func (c *Coordinator) targets() []target {
	cfg := c.cfg.Get()
	if cfg.GroupMode && cfg.PrimaryChat.ChatID != 0 {
		return []target{{chatID: cfg.PrimaryChat.ChatID, threadID: cfg.PrimaryChat.MessageThreadID}}
	}
	var out []target
	for _, id := range cfg.AdminChatIDs() {
		out = append(out, target{chatID: id})
	}
	return out
}

// Approve transitions a request to approved via Overseerr.
func (c *Coordinator) Approve(ctx context.Context, requestID int, actorID int64) error {
	return c.decide(ctx, requestID, actorID, StatusApproved)
}

// Decline transitions a request to declined via Overseerr.
func (c *Coordinator) Decline(ctx context.Context, requestID int, actorID int64) error {
	return c.decide(ctx, requestID, actorID, StatusDeclined)
}

// decide runs the pending -> terminal transition. The terminal state is
// recorded only after Overseerr confirms, so a failed call leaves the
// request decidable. Exactly one terminal transition ever succeeds.
func (c *Coordinator) decide(ctx context.Context, requestID int, actorID int64, next Status) error {
	c.mu.Lock()
	req, ok := c.requests[requestID]
	if !ok {
		// Unknown to this process (e.g. restarted since the webhook).
		// Overseerr is authoritative, so adopt its current state before
		// deciding anything: a stale button must not re-decide a request
		// someone already handled there.
		c.mu.Unlock()
		req = c.adopt(ctx, requestID)
		c.mu.Lock()
	}
	if req.Status != StatusPending {
		c.mu.Unlock()
		return ErrAlreadyDecided
	}
	if req.inflight {
		c.mu.Unlock()
		return ErrDecisionInFlight
	}
	req.inflight = true
	c.mu.Unlock()

	var err error
	if next == StatusApproved {
		err = c.client.Approve(ctx, requestID)
	} else {
		err = c.client.Decline(ctx, requestID)
	}

	c.mu.Lock()
	req.inflight = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("request decision failed",
			"request_id", requestID, "decision", next, "actor_id", actorID, "error", err)
		return err
	}
	req.Status = next
	notices := append([]notice(nil), req.notices...)
	title := req.MediaTitle
	c.mu.Unlock()

	c.logger.Info("request decided", "request_id", requestID, "decision", next, "actor_id", actorID)

	outcome := formatOutcomeMessage(requestID, title, next)
	for _, n := range notices {
		if editErr := c.msgr.EditMessage(n.chatID, n.messageID, outcome); editErr != nil {
			c.logger.Error("failed to edit notification message",
				"chat_id", n.chatID, "message_id", n.messageID, "error", editErr)
		}
	}
	return nil
}

// adopt starts tracking a request this process has never seen, seeded from
// Overseerr's current state. When the fetch fails the request is assumed
// pending; the subsequent approve/decline call will surface the real error.
func (c *Coordinator) adopt(ctx context.Context, requestID int) *PendingRequest {
	status := StatusPending
	var requestedBy string
	remote, err := c.client.GetRequest(ctx, requestID)
	if err != nil {
		c.logger.Warn("could not fetch request state, assuming pending",
			"request_id", requestID, "error", err)
	} else {
		requestedBy = remote.RequestedBy.Name()
		switch remote.Status {
		case overseerr.RequestStatusApproved:
			status = StatusApproved
		case overseerr.RequestStatusDeclined:
			status = StatusDeclined
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if req, ok := c.requests[requestID]; ok {
		// Raced with a webhook delivery or another decision.
		return req
	}
	req := &PendingRequest{ID: requestID, RequestedBy: requestedBy, Status: status}
	c.requests[requestID] = req
	return req
}

// Request returns a snapshot of a tracked request, if any.
func (c *Coordinator) Request(requestID int) (PendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[requestID]
	if !ok {
		return PendingRequest{}, false
	}
	out := *req
	out.notices = nil
	return out, true
}

func approvalKeyboard(requestID int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", fmt.Sprintf("approve:%d", requestID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Decline", fmt.Sprintf("decline:%d", requestID)),
		),
	)
}

func formatPendingMessage(ev Event) string {
	requester := ev.RequestedBy
	if requester == "" {
		requester = "Unknown User"
	}
	text := fmt.Sprintf("🔔 *New Request*\n\n%s *%s*\n👤 Requested by: %s\n🆔 Request #%d",
		ev.mediaEmoji(), ev.Subject, requester, ev.RequestID)
	if ev.Is4K {
		text += "\n💿 Quality: 4K"
	}
	if ev.Message != "" {
		text += "\n\n💬 " + ev.Message
	}
	return text
}

func formatStatusMessage(ev Event) string {
	var header, action string
	switch ev.Type {
	case EventMediaApproved:
		header, action = "✅ *Request Approved*", "The request has been approved and will be processed soon."
	case EventMediaAutoApproved:
		header, action = "🤖 *Request Auto-Approved*", "The request was automatically approved and will be processed soon."
	case EventMediaDeclined:
		header, action = "❌ *Request Declined*", "The request has been declined."
	case EventMediaAvailable:
		header, action = "🎉 *Media Available*", "The requested media is now available!"
	case EventMediaFailed:
		header, action = "⚠️ *Processing Failed*", "Processing the request failed. Please check the system."
	default:
		header, action = "ℹ️ *Update*", ev.Message
	}

	requester := ev.RequestedBy
	if requester == "" {
		requester = "Unknown User"
	}
	text := fmt.Sprintf("%s\n\n%s *%s*\n👤 Requested by: %s", header, ev.mediaEmoji(), ev.Subject, requester)
	if ev.RequestID != 0 {
		text += fmt.Sprintf("\n🆔 Request #%d", ev.RequestID)
	}
	if action != "" {
		text += "\n\n" + action
	}
	if ev.Message != "" && ev.Message != action {
		text += "\n\n💬 " + ev.Message
	}
	return text
}

func formatOutcomeMessage(requestID int, title string, status Status) string {
	label := "✅ *Request Approved*"
	if status == StatusDeclined {
		label = "❌ *Request Declined*"
	}
	if title != "" {
		return fmt.Sprintf("%s\n\n*%s* (request #%d)", label, title, requestID)
	}
	return fmt.Sprintf("%s\n\nRequest #%d", label, requestID)
}
