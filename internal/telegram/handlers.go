package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"overseerr-tg-bot/internal/botcfg"
	apperrors "overseerr-tg-bot/internal/errors"
	"overseerr-tg-bot/internal/notify"
	"overseerr-tg-bot/internal/overseerr"
	"overseerr-tg-bot/internal/session"
)

// botAPI is the slice of the Telegram API the handler sends through.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// mediaClient is the slice of the Overseerr client the handler calls.
type mediaClient interface {
	Search(ctx context.Context, query string) ([]overseerr.Media, error)
	Users(ctx context.Context) ([]overseerr.User, error)
	GetUser(ctx context.Context, userID int) (*overseerr.User, error)
	CanRequest4K(ctx context.Context, userID int, mediaType string) (bool, error)
	RequestMedia(ctx context.Context, auth overseerr.Auth, req overseerr.MediaRequest) error
	CreateIssue(ctx context.Context, auth overseerr.Auth, issue overseerr.Issue) error
	PendingRequests(ctx context.Context, take, skip int) ([]overseerr.Request, error)
	TVSeasons(ctx context.Context, tmdbID int) ([]overseerr.Season, error)
	UserTelegramSettings(ctx context.Context, userID int) (*overseerr.TelegramSettings, error)
	SetUserTelegramSettings(ctx context.Context, userID int, settings overseerr.TelegramSettings) error
}

// Handler processes Telegram updates.
type Handler struct {
	api      botAPI
	cfg      botcfg.Store
	sessions *session.Manager
	client   mediaClient
	coord    *notify.Coordinator
	state    *stateTracker
	password string
	logger   *slog.Logger
}

// NewHandler creates a new update handler.
func NewHandler(
	api botAPI,
	cfg botcfg.Store,
	sessions *session.Manager,
	client mediaClient,
	coord *notify.Coordinator,
	password string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		api:      api,
		cfg:      cfg,
		sessions: sessions,
		client:   client,
		coord:    coord,
		state:    newStateTracker(),
		password: password,
		logger:   logger,
	}
}

// HandleUpdate processes a single update.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID
	cfg := h.cfg.Get()

	if msg.IsCommand() {
		// Group Mode and blocked users: silently ignored.
		if !cfg.CommandAllowed(chatID, messageThreadID(msg), userID) {
			h.logger.Debug("command ignored", "user_id", userID, "chat_id", chatID, "command", msg.Command())
			return
		}
		h.handleCommand(ctx, msg, cfg)
		return
	}

	if msg.Text != "" {
		h.handleText(ctx, msg, cfg)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message, cfg botcfg.Settings) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "check":
		h.handleCheck(ctx, msg, cfg)
	case "settings":
		h.handleSettings(ctx, msg, cfg)
	case "pending":
		h.handlePending(ctx, msg, cfg)
	default:
		if cfg.IsAuthorized(msg.From.ID) {
			h.sendText(msg.Chat.ID, "Unknown command. Try /check <title> or /settings.")
		}
	}
}

// handleStart registers the user (the very first one becomes admin), binds
// the primary chat when Group Mode awaits one, and walks unauthorized users
// through the password gate.
func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	username := msg.From.UserName
	if username == "" {
		username = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}

	var user botcfg.User
	var boundPrimary bool
	cfg, err := h.cfg.Update(func(s *botcfg.Settings) error {
		user = s.RegisterUser(userID, username, time.Now())
		if s.GroupMode && s.PrimaryChat.ChatID == 0 && chatID < 0 {
			s.PrimaryChat = botcfg.PrimaryChat{ChatID: chatID, MessageThreadID: messageThreadID(msg)}
			boundPrimary = true
		}
		if !user.IsAuthorized && h.password == "" {
			s.SetAuthorized(userID, true)
			user.IsAuthorized = true
		}
		return nil
	})
	if err != nil {
		h.logger.Error("failed to register user", "user_id", userID, "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	if user.IsBlocked {
		h.sendText(chatID, "❌ *Access denied.* You have been blocked from using this bot.")
		return
	}

	if boundPrimary {
		h.sendText(chatID, "✅ *Primary chat set!* This chat is now the primary chat for Group Mode.")
	}

	if !user.IsAuthorized {
		h.state.update(userID, func(st *userState) { st.dialog = dialogPassword })
		h.sendText(chatID, "🤖 *Overseerr Telegram Bot*\n\n🔐 Please enter the password to continue:")
		return
	}

	welcome := fmt.Sprintf(
		"🎬 *Welcome to the Overseerr Telegram Bot!*\n\n"+
			"🎯 *Current Mode:* %s\n\n"+
			"📚 *Available Commands:*\n"+
			"• `/check <title>` - Search for movies/TV shows\n"+
			"• `/settings` - Manage your account and bot settings\n\n"+
			"💡 *Tip:* Use `/check The Matrix` to search for movies!",
		modeLabel(cfg.Mode))
	if user.IsAdmin {
		welcome += "\n\n👑 *Admin:* `/pending` lists requests awaiting your approval."
	}
	h.sendText(chatID, welcome)
}

// handleCheck resolves the caller's identity first; a user with no usable
// identity gets the re-login/selection prompt and no search is made.
func (h *Handler) handleCheck(ctx context.Context, msg *tgbotapi.Message, cfg botcfg.Settings) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !cfg.IsAuthorized(userID) {
		h.sendText(chatID, "❌ *Access denied.* Please use /start first.")
		return
	}

	query := strings.TrimSpace(msg.CommandArguments())
	if query == "" {
		h.sendText(chatID, "🔍 *Please provide a search term.*\n\nExample: `/check The Matrix`")
		return
	}

	if _, err := h.sessions.Resolve(ctx, userID); err != nil {
		h.logger.Info("identity unresolved for /check", "user_id", userID, "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	results, err := h.client.Search(ctx, query)
	if err != nil {
		h.logger.Error("search failed", "user_id", userID, "query", query, "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}
	if len(results) == 0 {
		h.sendText(chatID, fmt.Sprintf("🤷 *No results found for:* %s\n\nTry a different search term.", query))
		return
	}

	h.state.update(userID, func(st *userState) {
		st.searchQuery = query
		st.results = results
		st.page = 0
	})

	text := fmt.Sprintf("🔍 *Results for:* %s", query)
	keyboard := resultsKeyboard(results, 0)
	h.send(chatID, text, &keyboard)
}

func (h *Handler) handleSettings(ctx context.Context, msg *tgbotapi.Message, cfg botcfg.Settings) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !cfg.IsAuthorized(userID) {
		h.sendText(chatID, "❌ *Access denied.* Please use /start first.")
		return
	}

	text := h.settingsText(ctx, userID, cfg)
	keyboard := settingsKeyboard(cfg, cfg.IsAdmin(userID))
	h.send(chatID, text, &keyboard)
}

const pendingPageSize = 20

// handlePending lists requests awaiting approval, one message per request
// with decision buttons. Admin-only and private-chat-only, so approvals
// never spill into group conversations.
func (h *Handler) handlePending(ctx context.Context, msg *tgbotapi.Message, cfg botcfg.Settings) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !cfg.IsAdmin(userID) {
		h.sendText(chatID, "❌ *Access denied.* This command is restricted to administrators.")
		return
	}
	if chatID != userID {
		h.sendText(chatID, "🔒 *Private chat required.* Send /pending in a direct message with the bot.")
		return
	}

	requests, err := h.client.PendingRequests(ctx, pendingPageSize, 0)
	if err != nil {
		h.logger.Error("failed to list pending requests", "user_id", userID, "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}
	if len(requests) == 0 {
		h.sendText(chatID, "🎬 *No pending requests found.*\n\nAll caught up!")
		return
	}

	h.sendText(chatID, fmt.Sprintf(
		"🎬 *Admin Review Required*\n\n*%d pending request(s)* need your approval:", len(requests)))
	for _, req := range requests {
		keyboard := decisionKeyboard(req.ID)
		h.send(chatID, h.formatPendingRequest(ctx, req), &keyboard)
	}
}

// formatPendingRequest renders one pending request. TV shows get a season
// count when the lookup succeeds; a failed lookup just drops the line.
func (h *Handler) formatPendingRequest(ctx context.Context, req overseerr.Request) string {
	requester := req.RequestedBy.Name()
	if requester == "" {
		requester = "Unknown User"
	}

	label := "Movie"
	if req.Media.MediaType == "tv" {
		label = "TV Show"
	}

	text := fmt.Sprintf("%s *%s* (TMDB #%d)\n👤 Requested by: %s\n🆔 Request #%d",
		mediaEmoji(req.Media.MediaType), label, req.Media.TmdbID, requester, req.ID)
	if req.Is4K {
		text += "\n💿 Quality: 4K"
	}
	if req.Media.MediaType == "tv" {
		if seasons, err := h.client.TVSeasons(ctx, req.Media.TmdbID); err == nil && len(seasons) > 0 {
			text += fmt.Sprintf("\n📅 %d season(s)", len(seasons))
		}
	}
	return text
}

// messageThreadID recovers the forum topic id of an incoming message.
// Telegram mirrors a topic message's thread as a reply to the topic's
// opening message; the API library in use has no typed thread field yet.
func messageThreadID(msg *tgbotapi.Message) int {
	if msg.Chat != nil && msg.Chat.IsSuperGroup() && msg.ReplyToMessage != nil {
		return msg.ReplyToMessage.MessageID
	}
	return 0
}

// modeLabel renders a mode name for display ("normal" -> "Normal").
func modeLabel(mode botcfg.Mode) string {
	s := string(mode)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (h *Handler) settingsText(ctx context.Context, userID int64, cfg botcfg.Settings) string {
	text := fmt.Sprintf("⚙️ *Settings*\n\n🎯 Mode: %s", cfg.Mode)
	if id, err := h.sessions.Resolve(ctx, userID); err == nil {
		text += fmt.Sprintf("\n👤 Acting as: %s", id.DisplayName)
	} else {
		text += "\n👤 " + apperrors.GetUserMessage(err)
	}
	return text
}

// handleText advances whatever dialog the user is in.
func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message, cfg botcfg.Settings) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	st := h.state.snapshot(userID)
	switch st.dialog {
	case dialogPassword:
		h.finishPasswordGate(ctx, msg, text)
	case dialogLoginEmail:
		h.state.update(userID, func(s *userState) {
			s.loginEmail = text
			s.dialog = dialogLoginPassword
		})
		h.sendText(chatID, "Please enter your Overseerr password:")
	case dialogLoginPassword:
		// The message holds a password; remove it from the chat.
		h.deleteMessage(chatID, msg.MessageID)
		h.finishLogin(ctx, userID, chatID, st.loginEmail, text)
	case dialogIssueText:
		h.finishIssueReport(ctx, userID, chatID, st, text)
	default:
		// Free text outside a dialog is only answered in private chats.
		if chatID > 0 && cfg.IsAuthorized(userID) {
			h.sendText(chatID, "Use `/check <title>` to search for media.")
		}
	}
}

func (h *Handler) finishPasswordGate(ctx context.Context, msg *tgbotapi.Message, text string) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	// Never leave the password sitting in the chat history.
	h.deleteMessage(chatID, msg.MessageID)

	if text != h.password {
		h.sendText(chatID, "❌ *Oops!* That's not the right password. Try again:")
		return
	}

	h.state.clearDialog(userID)
	if _, err := h.cfg.Update(func(s *botcfg.Settings) error {
		s.SetAuthorized(userID, true)
		return nil
	}); err != nil {
		h.logger.Error("failed to authorize user", "user_id", userID, "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}
	h.logger.Info("user authorized via password", "user_id", userID)
	h.sendText(chatID, "✅ *Access granted!* Use `/check <title>` to search for media.")
}

func (h *Handler) finishLogin(ctx context.Context, userID, chatID int64, email, password string) {
	h.state.clearDialog(userID)

	if err := h.sessions.Login(ctx, userID, email, password); err != nil {
		h.logger.Warn("login failed", "user_id", userID, "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}
	h.sendText(chatID, fmt.Sprintf("✅ *Logged in as* %s", email))
}

func (h *Handler) finishIssueReport(ctx context.Context, userID, chatID int64, st userState, description string) {
	h.state.clearDialog(userID)

	if description == "" || st.issueMedia.TmdbID == 0 || st.issueType == 0 {
		h.sendText(chatID, "❌ Issue report cancelled.")
		return
	}

	identity, err := h.sessions.Resolve(ctx, userID)
	if err != nil {
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	// Issues in API mode are attributed to the API key owner.
	auth := identity.Auth
	if identity.Mode == botcfg.ModeAPI {
		auth = overseerr.KeyAuth
	}

	issue := overseerr.Issue{
		MediaID:   st.issueMedia.TmdbID,
		MediaType: st.issueMedia.MediaType,
		IssueType: st.issueType,
		Message:   description,
	}
	if err := h.client.CreateIssue(ctx, auth, issue); err != nil {
		h.logger.Error("issue creation failed", "user_id", userID, "media_id", issue.MediaID, "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	h.logger.Info("issue reported", "user_id", userID, "media_id", issue.MediaID, "issue_type", st.issueType)
	h.sendText(chatID, fmt.Sprintf("🛠 *Issue reported for* %s (%s). Thank you!",
		st.issueMedia.Title, overseerr.IssueTypes[st.issueType]))
}

// send sends a Markdown message with an optional keyboard.
func (h *Handler) send(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) sendText(chatID int64, text string) {
	h.send(chatID, text, nil)
}

func (h *Handler) deleteMessage(chatID int64, messageID int) {
	if _, err := h.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		h.logger.Warn("failed to delete message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// editOrSend edits an existing message, falling back to a fresh one.
func (h *Handler) editOrSend(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	var err error
	if keyboard != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
		edit.ParseMode = tgbotapi.ModeMarkdown
		_, err = h.api.Send(edit)
	} else {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeMarkdown
		_, err = h.api.Send(edit)
	}
	if err != nil {
		h.logger.Warn("edit failed, sending new message", "chat_id", chatID, "message_id", messageID, "error", err)
		h.send(chatID, text, keyboard)
	}
}
