package session

import "time"

// File names inside the data directory. One file per mode so switching the
// bot mode never touches the other modes' data.
const (
	NormalSessionsFileName = "normal_mode_sessions.json"
	SharedSessionFileName  = "shared_mode_session.json"
	SelectionsFileName     = "api_mode_selections.json"
)

// UserSession is one Normal-mode login, keyed by Telegram user id.
type UserSession struct {
	Email     string    `json:"overseerr_email"`
	Cookie    string    `json:"session_token"`
	CreatedAt time.Time `json:"created_at"`
}

// SharedSession is the singleton Shared-mode login every caller acts through.
type SharedSession struct {
	Email  string `json:"overseerr_email"`
	Cookie string `json:"session_token"`
}

// Selection maps a Telegram user to the Overseerr identity they picked in
// API mode. Field names match the persisted file.
type Selection struct {
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
}

// NormalStore persists Normal-mode sessions.
type NormalStore interface {
	// Get returns the session for a Telegram user, or nil if none exists.
	Get(telegramID int64) (*UserSession, error)
	// Save stores or replaces the session for a Telegram user.
	Save(telegramID int64, s UserSession) error
	// Delete removes the session for a Telegram user.
	Delete(telegramID int64) error
}

// SharedStore persists the Shared-mode session.
type SharedStore interface {
	// Get returns the shared session, or nil if none exists.
	Get() (*SharedSession, error)
	// Save stores or replaces the shared session.
	Save(s SharedSession) error
	// Clear removes the shared session.
	Clear() error
}

// SelectionStore persists API-mode user selections.
type SelectionStore interface {
	// Get returns the selection for a Telegram user, or nil if none exists.
	Get(telegramID int64) (*Selection, error)
	// Save stores or replaces the selection; re-selection overwrites.
	Save(telegramID int64, sel Selection) error
}
