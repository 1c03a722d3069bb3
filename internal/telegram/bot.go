package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"overseerr-tg-bot/internal/config"
)

// Bot runs the Telegram long-polling loop and implements the Messenger the
// notification coordinator sends through.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler *Handler
	cfg     config.TelegramConfig
	logger  *slog.Logger

	// Track active update processing
	activeRequests sync.WaitGroup
}

// NewBot creates a new Telegram bot around an update handler.
func NewBot(cfg config.TelegramConfig, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:    api,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// SetHandler attaches the update handler. Separate from NewBot because the
// handler needs the bot (as Messenger) while the coordinator needs it too.
func (b *Bot) SetHandler(h *Handler) {
	b.handler = h
}

// API exposes the underlying client for handler construction.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// Username returns the bot account's username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run starts the bot and blocks until context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollingTimeout

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping bot, waiting for active updates")

			b.api.StopReceivingUpdates()

			done := make(chan struct{})
			go func() {
				b.activeRequests.Wait()
				close(done)
			}()

			select {
			case <-done:
				b.logger.Info("all active updates completed")
			case <-time.After(25 * time.Second):
				b.logger.Warn("some updates may not have completed")
			}

			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return nil
			}

			b.activeRequests.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.activeRequests.Done()

				reqCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
				defer cancel()

				b.handler.HandleUpdate(reqCtx, upd)
			}(update)
		}
	}
}

// SendMessage sends a Markdown message, optionally into a forum thread and
// with an inline keyboard, returning the sent message id.
func (b *Bot) SendMessage(chatID int64, threadID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	if threadID != 0 {
		return b.sendToThread(chatID, threadID, text, keyboard)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// sendToThread targets a forum topic. The typed API predates topics, so the
// request goes through raw params.
func (b *Bot) sendToThread(chatID int64, threadID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	params := tgbotapi.Params{
		"chat_id":           strconv.FormatInt(chatID, 10),
		"message_thread_id": strconv.Itoa(threadID),
		"text":              text,
		"parse_mode":        tgbotapi.ModeMarkdown,
	}
	if keyboard != nil {
		markup, err := json.Marshal(keyboard)
		if err != nil {
			return 0, fmt.Errorf("encode keyboard: %w", err)
		}
		params["reply_markup"] = string(markup)
	}

	resp, err := b.api.MakeRequest("sendMessage", params)
	if err != nil {
		return 0, fmt.Errorf("send message to %d (thread %d): %w", chatID, threadID, err)
	}
	var sent struct {
		MessageID int `json:"message_id"`
	}
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, fmt.Errorf("decode sendMessage response: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessage replaces a message's text and drops its keyboard.
func (b *Bot) EditMessage(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}
