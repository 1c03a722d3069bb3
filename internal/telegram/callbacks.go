package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"overseerr-tg-bot/internal/botcfg"
	apperrors "overseerr-tg-bot/internal/errors"
	"overseerr-tg-bot/internal/notify"
	"overseerr-tg-bot/internal/overseerr"
)

// handleCallback validates and dispatches one inline-keyboard interaction.
func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil {
		return
	}
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID
	cfg := h.cfg.Get()

	cb, err := ParseCallback(cq.Data)
	if err != nil {
		h.logger.Warn("malformed callback payload", "user_id", userID, "data", cq.Data)
		h.answer(cq.ID, "Invalid action.")
		return
	}

	if !cfg.IsAuthorized(userID) {
		h.answer(cq.ID, "Please use /start first.")
		return
	}

	switch cb.Action {
	case ActionApprove, ActionDecline:
		h.handleDecision(ctx, cq, cfg, cb)

	case ActionSelectUser:
		h.handleSelectUser(ctx, cq, cb.UserID)

	case ActionUsersPage:
		h.showUserSelection(ctx, chatID, messageID, cb.Page)
		h.answer(cq.ID, "")

	case ActionPage:
		st := h.state.snapshot(userID)
		if len(st.results) == 0 {
			h.answer(cq.ID, "Search results expired. Run /check again.")
			return
		}
		h.state.update(userID, func(s *userState) { s.page = cb.Page })
		keyboard := resultsKeyboard(st.results, cb.Page)
		h.editOrSend(chatID, messageID, fmt.Sprintf("🔍 *Results for:* %s", st.searchQuery), &keyboard)
		h.answer(cq.ID, "")

	case ActionSelect:
		media, ok := h.resultAt(userID, cb.Index)
		if !ok {
			h.answer(cq.ID, "Search results expired. Run /check again.")
			return
		}
		text := formatDetail(media)
		if media.MediaType == "tv" {
			if seasons, err := h.client.TVSeasons(ctx, media.TmdbID); err == nil {
				text += formatSeasons(seasons)
			} else {
				h.logger.Warn("failed to fetch seasons", "tmdb_id", media.TmdbID, "error", err)
			}
		}
		keyboard := detailKeyboard(media, cb.Index)
		h.editOrSend(chatID, messageID, text, &keyboard)
		h.answer(cq.ID, "")

	case ActionBackToResults:
		st := h.state.snapshot(userID)
		if len(st.results) == 0 {
			h.answer(cq.ID, "Search results expired. Run /check again.")
			return
		}
		keyboard := resultsKeyboard(st.results, st.page)
		h.editOrSend(chatID, messageID, fmt.Sprintf("🔍 *Results for:* %s", st.searchQuery), &keyboard)
		h.answer(cq.ID, "")

	case ActionRequest:
		h.handleMediaRequest(ctx, cq, cb)

	case ActionReport:
		media, ok := h.resultAt(userID, cb.Index)
		if !ok {
			h.answer(cq.ID, "Search results expired. Run /check again.")
			return
		}
		keyboard := issueTypeKeyboard(cb.Index)
		text := fmt.Sprintf("🛠 *Report an issue for* %s (%s)\n\nWhat kind of issue?", media.Title, media.Year)
		h.editOrSend(chatID, messageID, text, &keyboard)
		h.answer(cq.ID, "")

	case ActionIssueType:
		media, ok := h.resultAt(userID, cb.Index)
		if !ok {
			h.answer(cq.ID, "Search results expired. Run /check again.")
			return
		}
		h.state.update(userID, func(s *userState) {
			s.dialog = dialogIssueText
			s.issueMedia = media
			s.issueType = cb.IssueType
		})
		h.answer(cq.ID, "")
		h.sendText(chatID, fmt.Sprintf("✍️ Describe the %s issue with *%s*:",
			overseerr.IssueTypes[cb.IssueType], media.Title))

	case ActionSetMode:
		h.handleSetMode(cq, cfg, cb.Mode)

	case ActionLogin:
		h.handleLoginStart(cq, cfg)

	case ActionLogout:
		if err := h.sessions.Logout(ctx, userID); err != nil {
			h.logger.Error("logout failed", "user_id", userID, "error", err)
			h.answer(cq.ID, "Logout failed.")
			return
		}
		h.answer(cq.ID, "Logged out.")
		h.sendText(chatID, "🚪 *Logged out.*")

	case ActionGroupToggle:
		h.handleGroupToggle(cq, cfg)

	case ActionSettings:
		text := h.settingsText(ctx, userID, cfg)
		keyboard := settingsKeyboard(cfg, cfg.IsAdmin(userID))
		h.editOrSend(chatID, messageID, text, &keyboard)
		h.answer(cq.ID, "")
	}
}

// handleDecision runs the admin approve/decline transition.
func (h *Handler) handleDecision(ctx context.Context, cq *tgbotapi.CallbackQuery, cfg botcfg.Settings, cb Callback) {
	userID := cq.From.ID

	if !cfg.IsAdmin(userID) {
		h.logger.Warn("non-admin attempted request decision", "user_id", userID, "request_id", cb.RequestID)
		h.answer(cq.ID, "Only admins can decide requests.")
		return
	}

	var err error
	if cb.Action == ActionApprove {
		err = h.coord.Approve(ctx, cb.RequestID, userID)
	} else {
		err = h.coord.Decline(ctx, cb.RequestID, userID)
	}

	switch {
	case err == nil:
		if cb.Action == ActionApprove {
			h.answer(cq.ID, "✅ Request approved!")
		} else {
			h.answer(cq.ID, "❌ Request declined.")
		}
	case errors.Is(err, notify.ErrAlreadyDecided):
		h.answer(cq.ID, "This request was already decided.")
	case errors.Is(err, notify.ErrDecisionInFlight):
		h.answer(cq.ID, "Hold on, this request is being processed.")
	default:
		h.answer(cq.ID, "Action failed.")
		h.sendText(cq.Message.Chat.ID, apperrors.GetUserMessage(err))
	}
}

func (h *Handler) handleSelectUser(ctx context.Context, cq *tgbotapi.CallbackQuery, overseerrID int) {
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID

	user, err := h.client.GetUser(ctx, overseerrID)
	if err != nil {
		h.logger.Error("failed to fetch selected user", "user_id", userID, "overseerr_user_id", overseerrID, "error", err)
		h.answer(cq.ID, apperrors.GetUserMessage(err))
		return
	}

	if err := h.sessions.SelectUser(userID, user.ID, user.Name()); err != nil {
		h.answer(cq.ID, "Failed to save selection.")
		return
	}

	h.syncTelegramSettings(ctx, user.ID, chatID)

	h.answer(cq.ID, "Selection saved.")
	h.editOrSend(chatID, cq.Message.MessageID,
		fmt.Sprintf("👤 *You now act as* %s *in Overseerr.*", user.Name()), nil)
}

// syncTelegramSettings points Overseerr's own Telegram notifications for the
// selected user at this chat, so Overseerr can reach them directly too.
// Best effort; a failure never blocks the selection.
func (h *Handler) syncTelegramSettings(ctx context.Context, overseerrID int, chatID int64) {
	settings, err := h.client.UserTelegramSettings(ctx, overseerrID)
	if err != nil {
		h.logger.Warn("failed to read telegram notification settings",
			"overseerr_user_id", overseerrID, "error", err)
		return
	}
	settings.Enabled = true
	settings.ChatID = strconv.FormatInt(chatID, 10)
	if err := h.client.SetUserTelegramSettings(ctx, overseerrID, *settings); err != nil {
		h.logger.Warn("failed to sync telegram notification settings",
			"overseerr_user_id", overseerrID, "error", err)
	}
}

func (h *Handler) showUserSelection(ctx context.Context, chatID int64, messageID, page int) {
	users, err := h.client.Users(ctx)
	if err != nil {
		h.logger.Error("failed to list overseerr users", "error", err)
		h.editOrSend(chatID, messageID, apperrors.GetUserMessage(err), nil)
		return
	}
	keyboard := userSelectionKeyboard(users, page)
	h.editOrSend(chatID, messageID, "👤 *Pick your Overseerr user:*", &keyboard)
}

// handleMediaRequest resolves the caller's identity and submits the request.
// 4K requests check the permission bit first when the Overseerr user is
// known; otherwise Overseerr's 403 is surfaced.
func (h *Handler) handleMediaRequest(ctx context.Context, cq *tgbotapi.CallbackQuery, cb Callback) {
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID

	media, ok := h.resultAt(userID, cb.Index)
	if !ok {
		h.answer(cq.ID, "Search results expired. Run /check again.")
		return
	}

	identity, err := h.sessions.Resolve(ctx, userID)
	if err != nil {
		h.answer(cq.ID, "")
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	if cb.Is4K && identity.UserID != 0 {
		allowed, permErr := h.client.CanRequest4K(ctx, identity.UserID, media.MediaType)
		if permErr != nil {
			h.logger.Error("4k permission check failed", "user_id", userID, "error", permErr)
		} else if !allowed {
			h.answer(cq.ID, "")
			h.sendText(chatID, apperrors.ErrPermissionDenied.UserMsg)
			return
		}
	}

	req := overseerr.MediaRequest{
		MediaType: media.MediaType,
		MediaID:   media.TmdbID,
		Is4K:      cb.Is4K,
	}
	if err := h.client.RequestMedia(ctx, identity.Auth, req); err != nil {
		h.logger.Error("media request failed",
			"user_id", userID, "media_id", media.TmdbID, "is4k", cb.Is4K, "error", err)
		h.answer(cq.ID, "")
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	quality := "1080p"
	if cb.Is4K {
		quality = "4K"
	}
	h.answer(cq.ID, "Request submitted!")
	h.sendText(chatID, fmt.Sprintf("📥 *Requested* %s (%s) *in %s as* %s.",
		media.Title, media.Year, quality, identity.DisplayName))
}

// handleSetMode switches the bot mode. The other modes' session files stay
// untouched so switching back restores them.
func (h *Handler) handleSetMode(cq *tgbotapi.CallbackQuery, cfg botcfg.Settings, mode botcfg.Mode) {
	userID := cq.From.ID

	if !cfg.IsAdmin(userID) {
		h.answer(cq.ID, "Only admins can change the mode.")
		return
	}
	if cfg.Mode == mode {
		h.answer(cq.ID, "Already in this mode.")
		return
	}

	next, err := h.cfg.Update(func(s *botcfg.Settings) error {
		s.Mode = mode
		return nil
	})
	if err != nil {
		h.logger.Error("mode switch failed", "user_id", userID, "mode", mode, "error", err)
		h.answer(cq.ID, "Failed to switch mode.")
		return
	}

	h.logger.Info("bot mode switched", "user_id", userID, "mode", mode)
	h.answer(cq.ID, fmt.Sprintf("Mode set to %s.", mode))
	keyboard := settingsKeyboard(next, true)
	h.editOrSend(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("⚙️ *Settings*\n\n🎯 Mode: %s", next.Mode), &keyboard)
}

func (h *Handler) handleLoginStart(cq *tgbotapi.CallbackQuery, cfg botcfg.Settings) {
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID

	switch cfg.Mode {
	case botcfg.ModeAPI:
		h.answer(cq.ID, "No login is required in API mode.")
		return
	case botcfg.ModeShared:
		if !cfg.IsAdmin(userID) {
			h.answer(cq.ID, "In Shared mode, only admins can log in.")
			return
		}
	}

	h.state.update(userID, func(s *userState) {
		s.dialog = dialogLoginEmail
		s.loginEmail = ""
	})
	h.answer(cq.ID, "")
	h.sendText(chatID, "📧 Please enter your Overseerr email:")
}

func (h *Handler) handleGroupToggle(cq *tgbotapi.CallbackQuery, cfg botcfg.Settings) {
	userID := cq.From.ID

	if !cfg.IsAdmin(userID) {
		h.answer(cq.ID, "Only admins can toggle Group Mode.")
		return
	}

	next, err := h.cfg.Update(func(s *botcfg.Settings) error {
		s.GroupMode = !s.GroupMode
		if !s.GroupMode {
			s.PrimaryChat = botcfg.PrimaryChat{}
		}
		return nil
	})
	if err != nil {
		h.logger.Error("group mode toggle failed", "user_id", userID, "error", err)
		h.answer(cq.ID, "Failed to toggle Group Mode.")
		return
	}

	state := "disabled"
	hint := ""
	if next.GroupMode {
		state = "enabled"
		hint = "\n\nSend /start in the target group to bind the primary chat."
	}
	h.logger.Info("group mode toggled", "user_id", userID, "enabled", next.GroupMode)
	h.answer(cq.ID, "Group Mode "+state+".")
	keyboard := settingsKeyboard(next, true)
	h.editOrSend(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("⚙️ *Settings*\n\n🎯 Mode: %s\n👥 Group Mode %s.%s", next.Mode, state, hint), &keyboard)
}

func (h *Handler) resultAt(userID int64, index int) (overseerr.Media, bool) {
	st := h.state.snapshot(userID)
	if index < 0 || index >= len(st.results) {
		return overseerr.Media{}, false
	}
	return st.results[index], true
}

func (h *Handler) answer(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		h.logger.Warn("failed to answer callback", "error", err)
	}
}
