package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"overseerr-tg-bot/internal/botcfg"
	"overseerr-tg-bot/internal/overseerr"
)

const resultsPerPage = 5

// resultsKeyboard renders one page of search results as selection buttons
// plus pagination.
func resultsKeyboard(results []overseerr.Media, page int) tgbotapi.InlineKeyboardMarkup {
	start := page * resultsPerPage
	end := start + resultsPerPage
	if end > len(results) {
		end = len(results)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := start; i < end; i++ {
		m := results[i]
		label := fmt.Sprintf("%s %s (%s)", mediaEmoji(m.MediaType), m.Title, m.Year)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("select:%d", i)),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("page:%d", page-1)))
	}
	if end < len(results) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️ More", fmt.Sprintf("page:%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// detailKeyboard renders request and issue actions for one media item.
// Request buttons are omitted once that quality is already requested or
// available.
func detailKeyboard(m overseerr.Media, index int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	var requestRow []tgbotapi.InlineKeyboardButton
	if m.StatusHD < overseerr.StatusPending {
		requestRow = append(requestRow,
			tgbotapi.NewInlineKeyboardButtonData("📥 Request 1080p", fmt.Sprintf("req:%d:hd", index)))
	}
	if m.Status4K < overseerr.StatusPending {
		requestRow = append(requestRow,
			tgbotapi.NewInlineKeyboardButtonData("📥 Request 4K", fmt.Sprintf("req:%d:4k", index)))
	}
	if len(requestRow) > 0 {
		rows = append(rows, requestRow)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🛠 Report Issue", fmt.Sprintf("report:%d", index)),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Results", "results"),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// issueTypeKeyboard renders the four Overseerr issue categories.
func issueTypeKeyboard(index int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎞 Video", fmt.Sprintf("issue:%d:1", index)),
			tgbotapi.NewInlineKeyboardButtonData("🔊 Audio", fmt.Sprintf("issue:%d:2", index)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💬 Subtitle", fmt.Sprintf("issue:%d:3", index)),
			tgbotapi.NewInlineKeyboardButtonData("❓ Other", fmt.Sprintf("issue:%d:4", index)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back", fmt.Sprintf("select:%d", index)),
		),
	)
}

// decisionKeyboard renders approve/decline buttons for one pending request.
func decisionKeyboard(requestID int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", fmt.Sprintf("approve:%d", requestID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Decline", fmt.Sprintf("decline:%d", requestID)),
		),
	)
}

// settingsKeyboard renders the /settings menu for the caller. Mode and
// Group Mode rows are admin-only.
func settingsKeyboard(cfg botcfg.Settings, isAdmin bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	switch cfg.Mode {
	case botcfg.ModeAPI:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👤 Select Overseerr User", "users_page:0"),
		))
	case botcfg.ModeShared:
		if isAdmin {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔑 Log In", "login"),
				tgbotapi.NewInlineKeyboardButtonData("🚪 Log Out", "logout"),
			))
		}
	default:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Log In", "login"),
			tgbotapi.NewInlineKeyboardButtonData("🚪 Log Out", "logout"),
		))
	}

	if isAdmin {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			modeButton("🌟 Normal", botcfg.ModeNormal, cfg.Mode),
			modeButton("🔑 API", botcfg.ModeAPI, cfg.Mode),
			modeButton("👥 Shared", botcfg.ModeShared, cfg.Mode),
		))

		groupLabel := "👥 Group Mode: off"
		if cfg.GroupMode {
			groupLabel = "👥 Group Mode: on"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(groupLabel, "group_toggle"),
		))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func modeButton(label string, mode, current botcfg.Mode) tgbotapi.InlineKeyboardButton {
	if mode == current {
		label = "• " + label
	}
	return tgbotapi.NewInlineKeyboardButtonData(label, "mode:"+string(mode))
}

const usersPerPage = 5

// userSelectionKeyboard renders one page of Overseerr users for API mode.
func userSelectionKeyboard(users []overseerr.User, page int) tgbotapi.InlineKeyboardMarkup {
	start := page * usersPerPage
	end := start + usersPerPage
	if start > len(users) {
		start = len(users)
	}
	if end > len(users) {
		end = len(users)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, u := range users[start:end] {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(u.Name(), fmt.Sprintf("select_user:%d", u.ID)),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("users_page:%d", page-1)))
	}
	if end < len(users) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️ More", fmt.Sprintf("users_page:%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Settings", "settings"),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mediaEmoji(mediaType string) string {
	switch mediaType {
	case "movie":
		return "🎬"
	case "tv":
		return "📺"
	default:
		return "📽"
	}
}

func statusLabel(status int) string {
	switch status {
	case overseerr.StatusPending:
		return "requested"
	case overseerr.StatusProcessing:
		return "processing"
	case overseerr.StatusPartiallyAvailable:
		return "partially available"
	case overseerr.StatusAvailable:
		return "available"
	default:
		return "not requested"
	}
}

// formatSeasons renders a per-season availability summary for TV shows.
func formatSeasons(seasons []overseerr.Season) string {
	if len(seasons) == 0 {
		return ""
	}
	text := fmt.Sprintf("\n\n📅 *%d season(s):*", len(seasons))
	for _, s := range seasons {
		text += fmt.Sprintf("\n• Season %d: %d episodes, %s",
			s.SeasonNumber, s.EpisodeCount, statusLabel(s.Status))
	}
	return text
}

// formatDetail renders the media detail text shown above detailKeyboard.
func formatDetail(m overseerr.Media) string {
	desc := m.Description
	if len(desc) > 400 {
		desc = desc[:397] + "..."
	}
	return fmt.Sprintf("%s *%s (%s)*\n\n%s\n\n💿 1080p: %s\n💿 4K: %s",
		mediaEmoji(m.MediaType), m.Title, m.Year, desc,
		statusLabel(m.StatusHD), statusLabel(m.Status4K))
}
