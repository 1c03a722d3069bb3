package botcfg

import (
	"strconv"
	"time"
)

// Mode is the bot-wide authentication strategy. Exactly one mode is active
// at a time; the stores for the other modes stay untouched on disk.
type Mode string

const (
	ModeNormal Mode = "normal" // per-user Overseerr login
	ModeAPI    Mode = "api"    // admin API key, users pick an Overseerr identity
	ModeShared Mode = "shared" // single shared account for everyone
)

// ParseMode validates a mode string from config or callback data.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeNormal, ModeAPI, ModeShared:
		return Mode(s), true
	}
	return "", false
}

// User is one Telegram user known to the bot.
type User struct {
	Username     string    `json:"username"`
	IsAuthorized bool      `json:"is_authorized"`
	IsBlocked    bool      `json:"is_blocked"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// PrimaryChat designates the single chat (and optional forum thread) the bot
// responds in while Group Mode is enabled. ChatID zero means unset.
type PrimaryChat struct {
	ChatID          int64 `json:"chat_id"`
	MessageThreadID int   `json:"message_thread_id"`
}

// Settings is the persisted bot-wide configuration (data/bot_config.json).
// User map keys are decimal Telegram user ids, matching the on-disk format.
type Settings struct {
	Mode        Mode            `json:"mode"`
	GroupMode   bool            `json:"group_mode"`
	PrimaryChat PrimaryChat     `json:"primary_chat_id"`
	Users       map[string]User `json:"users"`
}

// Store persists bot settings. Update serializes read-modify-write cycles so
// concurrent admin changes cannot lose updates.
type Store interface {
	// Get returns a snapshot of the current settings.
	Get() Settings
	// Update applies fn to the settings under the store lock and persists
	// the result. The settings are left unchanged if fn returns an error.
	Update(fn func(*Settings) error) (Settings, error)
}

func defaultSettings(mode Mode) Settings {
	return Settings{
		Mode:  mode,
		Users: map[string]User{},
	}
}

func userKey(telegramID int64) string {
	return strconv.FormatInt(telegramID, 10)
}

// UserByID looks up a user record by Telegram id.
func (s Settings) UserByID(telegramID int64) (User, bool) {
	u, ok := s.Users[userKey(telegramID)]
	return u, ok
}

// IsAdmin reports whether the user is an active (non-blocked) admin.
func (s Settings) IsAdmin(telegramID int64) bool {
	u, ok := s.UserByID(telegramID)
	return ok && u.IsAdmin && !u.IsBlocked
}

// IsAuthorized reports whether the user may use the bot.
func (s Settings) IsAuthorized(telegramID int64) bool {
	u, ok := s.UserByID(telegramID)
	return ok && u.IsAuthorized && !u.IsBlocked
}

// AdminChatIDs returns the private chat ids of all active admins. A private
// Telegram chat id equals the user id.
func (s Settings) AdminChatIDs() []int64 {
	var ids []int64
	for key, u := range s.Users {
		if !u.IsAdmin || !u.IsAuthorized || u.IsBlocked {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// HasUsers reports whether any user has registered yet. The first /start
// user becomes admin.
func (s Settings) HasUsers() bool {
	return len(s.Users) > 0
}

// CommandAllowed decides whether a command in the given chat/thread should
// be handled. Blocked users are always refused. Admins may always use the
// bot in private chats. With Group Mode on and a primary chat bound,
// commands outside that chat (or thread) are silently ignored.
func (s Settings) CommandAllowed(chatID int64, messageThreadID int, telegramID int64) bool {
	u, _ := s.UserByID(telegramID)
	if u.IsBlocked {
		return false
	}
	// Positive chat ids are private chats.
	if u.IsAdmin && chatID > 0 {
		return true
	}
	if !s.GroupMode {
		return true
	}
	if s.PrimaryChat.ChatID == 0 {
		return true
	}
	if chatID != s.PrimaryChat.ChatID {
		return false
	}
	// Thread ids are only comparable when the update carried one.
	if s.PrimaryChat.MessageThreadID != 0 && messageThreadID != 0 &&
		messageThreadID != s.PrimaryChat.MessageThreadID {
		return false
	}
	return true
}

// RegisterUser creates or refreshes the record for a Telegram user and
// returns it. The very first registered user is promoted to admin.
func (s *Settings) RegisterUser(telegramID int64, username string, now time.Time) User {
	key := userKey(telegramID)
	u, ok := s.Users[key]
	if !ok {
		u = User{
			IsAdmin:   !s.HasUsers(),
			CreatedAt: now.UTC(),
		}
	}
	u.Username = username
	s.Users[key] = u
	return u
}

// SetAuthorized flips the authorization bit for a known user.
func (s *Settings) SetAuthorized(telegramID int64, authorized bool) {
	key := userKey(telegramID)
	if u, ok := s.Users[key]; ok {
		u.IsAuthorized = authorized
		s.Users[key] = u
	}
}

// SetAdmin promotes or demotes a known user.
func (s *Settings) SetAdmin(telegramID int64, admin bool) {
	key := userKey(telegramID)
	if u, ok := s.Users[key]; ok {
		u.IsAdmin = admin
		s.Users[key] = u
	}
}

// SetBlocked blocks or unblocks a known user.
func (s *Settings) SetBlocked(telegramID int64, blocked bool) {
	key := userKey(telegramID)
	if u, ok := s.Users[key]; ok {
		u.IsBlocked = blocked
		s.Users[key] = u
	}
}

func (s Settings) clone() Settings {
	out := s
	out.Users = make(map[string]User, len(s.Users))
	for k, v := range s.Users {
		out.Users[k] = v
	}
	return out
}
