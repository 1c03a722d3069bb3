package botcfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"normal", ModeNormal, true},
		{"api", ModeAPI, true},
		{"shared", ModeShared, true},
		{"", "", false},
		{"Normal", "", false},
		{"hybrid", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, ok := ParseMode(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestRegisterUserFirstBecomesAdmin(t *testing.T) {
	s := defaultSettings(ModeNormal)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := s.RegisterUser(100, "alice", now)
	assert.True(t, first.IsAdmin)
	assert.False(t, first.IsAuthorized)
	assert.Equal(t, now, first.CreatedAt)

	second := s.RegisterUser(200, "bob", now)
	assert.False(t, second.IsAdmin)

	// Re-registering refreshes the username but keeps the record.
	s.SetAuthorized(100, true)
	again := s.RegisterUser(100, "alice2", now.Add(time.Hour))
	assert.True(t, again.IsAdmin)
	assert.True(t, again.IsAuthorized)
	assert.Equal(t, "alice2", again.Username)
	assert.Equal(t, now, again.CreatedAt)
}

func TestAuthorizationFlags(t *testing.T) {
	s := defaultSettings(ModeNormal)
	now := time.Now()
	s.RegisterUser(100, "alice", now)
	s.RegisterUser(200, "bob", now)

	assert.False(t, s.IsAuthorized(100))

	s.SetAuthorized(100, true)
	s.SetAuthorized(200, true)
	assert.True(t, s.IsAuthorized(100))
	assert.True(t, s.IsAdmin(100))
	assert.False(t, s.IsAdmin(200))

	// Blocking trumps both flags.
	s.SetBlocked(100, true)
	assert.False(t, s.IsAuthorized(100))
	assert.False(t, s.IsAdmin(100))

	// Unknown users are nobody.
	assert.False(t, s.IsAuthorized(999))
	assert.False(t, s.IsAdmin(999))
}

func TestAdminChatIDs(t *testing.T) {
	s := defaultSettings(ModeNormal)
	now := time.Now()
	s.RegisterUser(100, "alice", now)
	s.RegisterUser(200, "bob", now)
	s.SetAuthorized(100, true)
	s.SetAuthorized(200, true)
	s.SetAdmin(200, true)

	ids := s.AdminChatIDs()
	require.Len(t, ids, 2)
	assert.ElementsMatch(t, []int64{100, 200}, ids)

	s.SetBlocked(200, true)
	assert.Equal(t, []int64{100}, s.AdminChatIDs())
}

func TestCommandAllowed(t *testing.T) {
	const (
		adminID   = int64(100)
		userID    = int64(200)
		blockedID = int64(300)
		groupChat = int64(-1001234)
		otherChat = int64(-1009999)
	)

	base := defaultSettings(ModeNormal)
	now := time.Now()
	base.RegisterUser(adminID, "alice", now)
	base.RegisterUser(userID, "bob", now)
	base.RegisterUser(blockedID, "mallory", now)
	base.SetAuthorized(adminID, true)
	base.SetAuthorized(userID, true)
	base.SetBlocked(blockedID, true)

	tests := []struct {
		name      string
		groupMode bool
		primary   PrimaryChat
		chatID    int64
		threadID  int
		userID    int64
		want      bool
	}{
		{name: "blocked user always refused", chatID: blockedID, userID: blockedID, want: false},
		{name: "group mode off allows everywhere", chatID: otherChat, userID: userID, want: true},
		{
			name:      "group mode without bound chat allows",
			groupMode: true,
			chatID:    otherChat, userID: userID, want: true,
		},
		{
			name:      "non-admin outside primary chat ignored",
			groupMode: true,
			primary:   PrimaryChat{ChatID: groupChat},
			chatID:    otherChat, userID: userID, want: false,
		},
		{
			name:      "non-admin private chat ignored in group mode",
			groupMode: true,
			primary:   PrimaryChat{ChatID: groupChat},
			chatID:    userID, userID: userID, want: false,
		},
		{
			name:      "primary chat allowed",
			groupMode: true,
			primary:   PrimaryChat{ChatID: groupChat},
			chatID:    groupChat, userID: userID, want: true,
		},
		{
			name:      "admin keeps private access in group mode",
			groupMode: true,
			primary:   PrimaryChat{ChatID: groupChat},
			chatID:    adminID, userID: adminID, want: true,
		},
		{
			name:      "wrong thread in primary chat ignored",
			groupMode: true,
			primary:   PrimaryChat{ChatID: groupChat, MessageThreadID: 7},
			chatID:    groupChat, threadID: 8, userID: userID, want: false,
		},
		{
			name:      "matching thread allowed",
			groupMode: true,
			primary:   PrimaryChat{ChatID: groupChat, MessageThreadID: 7},
			chatID:    groupChat, threadID: 7, userID: userID, want: true,
		},
		{
			name:      "unknown thread id tolerated",
			groupMode: true,
			primary:   PrimaryChat{ChatID: groupChat, MessageThreadID: 7},
			chatID:    groupChat, threadID: 0, userID: userID, want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base.clone()
			s.GroupMode = tt.groupMode
			s.PrimaryChat = tt.primary
			assert.Equal(t, tt.want, s.CommandAllowed(tt.chatID, tt.threadID, tt.userID))
		})
	}
}

func TestCloneIsolatesUsers(t *testing.T) {
	s := defaultSettings(ModeNormal)
	s.RegisterUser(100, "alice", time.Now())

	c := s.clone()
	c.SetAuthorized(100, true)

	assert.False(t, s.IsAuthorized(100))
	assert.True(t, c.IsAuthorized(100))
}
