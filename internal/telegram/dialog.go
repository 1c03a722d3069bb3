package telegram

import (
	"sync"

	"overseerr-tg-bot/internal/overseerr"
)

// dialogKind says what the next text message from a user means.
type dialogKind int

const (
	dialogNone dialogKind = iota
	// dialogPassword awaits the bot access password.
	dialogPassword
	// dialogLoginEmail / dialogLoginPassword are the two Overseerr login steps.
	dialogLoginEmail
	dialogLoginPassword
	// dialogIssueText awaits the free-text issue description.
	dialogIssueText
)

// userState is the per-user conversational state: the active text dialog
// plus the cached search results the inline keyboards index into.
type userState struct {
	dialog     dialogKind
	loginEmail string

	issueMedia overseerr.Media
	issueType  int

	searchQuery string
	results     []overseerr.Media
	page        int
}

// stateTracker guards per-user state behind one mutex, same shape as a
// per-user limiter map.
type stateTracker struct {
	mu    sync.Mutex
	users map[int64]*userState
}

func newStateTracker() *stateTracker {
	return &stateTracker{users: make(map[int64]*userState)}
}

// update applies fn to the user's state under the lock.
func (t *stateTracker) update(userID int64, fn func(*userState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[userID]
	if !ok {
		st = &userState{}
		t.users[userID] = st
	}
	fn(st)
}

// snapshot returns a copy of the user's state under the lock.
func (t *stateTracker) snapshot(userID int64) userState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.users[userID]; ok {
		return *st
	}
	return userState{}
}

// clearDialog ends any active text dialog without touching search results.
func (t *stateTracker) clearDialog(userID int64) {
	t.update(userID, func(st *userState) {
		st.dialog = dialogNone
		st.loginEmail = ""
		st.issueMedia = overseerr.Media{}
		st.issueType = 0
	})
}
