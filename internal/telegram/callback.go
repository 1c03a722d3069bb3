package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"overseerr-tg-bot/internal/botcfg"
)

// Action enumerates every inline-keyboard action the bot understands.
// Callback payloads are parsed once, here, so malformed data is caught at a
// single validation boundary instead of scattered string handling.
type Action int

const (
	ActionApprove Action = iota
	ActionDecline
	ActionSelectUser
	ActionUsersPage
	ActionPage
	ActionSelect
	ActionRequest
	ActionReport
	ActionIssueType
	ActionSetMode
	ActionLogin
	ActionLogout
	ActionGroupToggle
	ActionBackToResults
	ActionSettings
)

// Callback is one parsed callback payload.
type Callback struct {
	Action Action

	// RequestID for approve/decline.
	RequestID int
	// UserID for select_user.
	UserID int
	// Page for page/users_page.
	Page int
	// Index into the cached search results for select/req/report/issue.
	Index int
	// Is4K for req.
	Is4K bool
	// IssueType for issue.
	IssueType int
	// Mode for mode.
	Mode botcfg.Mode
}

// ParseCallback validates and decodes a callback payload.
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, ":")
	malformed := func() (Callback, error) {
		return Callback{}, fmt.Errorf("malformed callback data %q", data)
	}

	switch parts[0] {
	case "approve", "decline":
		if len(parts) != 2 {
			return malformed()
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil || id <= 0 {
			return malformed()
		}
		action := ActionApprove
		if parts[0] == "decline" {
			action = ActionDecline
		}
		return Callback{Action: action, RequestID: id}, nil

	case "select_user":
		if len(parts) != 2 {
			return malformed()
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil || id <= 0 {
			return malformed()
		}
		return Callback{Action: ActionSelectUser, UserID: id}, nil

	case "users_page", "page":
		if len(parts) != 2 {
			return malformed()
		}
		page, err := strconv.Atoi(parts[1])
		if err != nil || page < 0 {
			return malformed()
		}
		action := ActionPage
		if parts[0] == "users_page" {
			action = ActionUsersPage
		}
		return Callback{Action: action, Page: page}, nil

	case "select", "report":
		if len(parts) != 2 {
			return malformed()
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 {
			return malformed()
		}
		action := ActionSelect
		if parts[0] == "report" {
			action = ActionReport
		}
		return Callback{Action: action, Index: idx}, nil

	case "req":
		if len(parts) != 3 {
			return malformed()
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 {
			return malformed()
		}
		switch parts[2] {
		case "hd":
			return Callback{Action: ActionRequest, Index: idx}, nil
		case "4k":
			return Callback{Action: ActionRequest, Index: idx, Is4K: true}, nil
		}
		return malformed()

	case "issue":
		if len(parts) != 3 {
			return malformed()
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 {
			return malformed()
		}
		issueType, err := strconv.Atoi(parts[2])
		if err != nil || issueType < 1 || issueType > 4 {
			return malformed()
		}
		return Callback{Action: ActionIssueType, Index: idx, IssueType: issueType}, nil

	case "mode":
		if len(parts) != 2 {
			return malformed()
		}
		mode, ok := botcfg.ParseMode(parts[1])
		if !ok {
			return malformed()
		}
		return Callback{Action: ActionSetMode, Mode: mode}, nil

	case "login", "logout", "group_toggle", "results", "settings":
		if len(parts) != 1 {
			return malformed()
		}
		switch parts[0] {
		case "login":
			return Callback{Action: ActionLogin}, nil
		case "logout":
			return Callback{Action: ActionLogout}, nil
		case "group_toggle":
			return Callback{Action: ActionGroupToggle}, nil
		case "results":
			return Callback{Action: ActionBackToResults}, nil
		default:
			return Callback{Action: ActionSettings}, nil
		}
	}

	return malformed()
}
