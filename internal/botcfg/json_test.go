package botcfg

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJSONStoreFirstRunSeedsMode(t *testing.T) {
	dir := t.TempDir()

	store, err := NewJSONStore(dir, ModeAPI, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ModeAPI, store.Get().Mode)

	// The file exists after first run.
	_, err = os.Stat(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)

	// A second store ignores the seed mode; the file is authoritative.
	again, err := NewJSONStore(dir, ModeShared, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ModeAPI, again.Get().Mode)
}

func TestJSONStoreUpdatePersists(t *testing.T) {
	dir := t.TempDir()

	store, err := NewJSONStore(dir, ModeNormal, testLogger())
	require.NoError(t, err)

	_, err = store.Update(func(s *Settings) error {
		s.RegisterUser(100, "alice", time.Now())
		s.SetAuthorized(100, true)
		s.GroupMode = true
		s.PrimaryChat = PrimaryChat{ChatID: -1001234}
		return nil
	})
	require.NoError(t, err)

	reloaded, err := NewJSONStore(dir, ModeNormal, testLogger())
	require.NoError(t, err)

	got := reloaded.Get()
	assert.True(t, got.IsAuthorized(100))
	assert.True(t, got.IsAdmin(100))
	assert.True(t, got.GroupMode)
	assert.Equal(t, int64(-1001234), got.PrimaryChat.ChatID)
}

func TestJSONStoreUpdateErrorLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()

	store, err := NewJSONStore(dir, ModeNormal, testLogger())
	require.NoError(t, err)

	_, err = store.Update(func(s *Settings) error {
		s.Mode = ModeShared
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, ModeNormal, store.Get().Mode)
}

func TestJSONStoreCorruptFileResets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewJSONStore(dir, ModeShared, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ModeShared, store.Get().Mode)
	assert.NotNil(t, store.Get().Users)
}

func TestJSONStoreWriteIsDeterministic(t *testing.T) {
	dir := t.TempDir()

	store, err := NewJSONStore(dir, ModeNormal, testLogger())
	require.NoError(t, err)

	mutate := func() {
		_, err := store.Update(func(s *Settings) error {
			s.RegisterUser(100, "alice", time.Unix(1700000000, 0))
			s.RegisterUser(200, "bob", time.Unix(1700000000, 0))
			return nil
		})
		require.NoError(t, err)
	}

	mutate()
	first, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)

	mutate()
	second, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)

	// Same logical state always serializes to the same bytes.
	assert.Equal(t, string(first), string(second))
}
