package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("resolve identity: %w", ErrSessionExpired)

	assert.Equal(t, KindAuthentication, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrSessionExpired))
	assert.Equal(t, ErrSessionExpired.UserMsg, GetUserMessage(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, "An unexpected error occurred. Please try again later.", GetUserMessage(err))
}

func TestClassifiers(t *testing.T) {
	transient := New(KindTransient, errors.New("502"), "Overseerr is down.")
	assert.True(t, IsRetryable(transient))
	assert.False(t, IsAuthentication(transient))

	authn := Newf(KindAuthentication, "session dead for %d", 100)
	assert.True(t, IsAuthentication(authn))
	assert.False(t, IsRetryable(authn))
	assert.Equal(t, "Authentication failed. Please log in again.", GetUserMessage(authn))
}

func TestUserErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := New(KindNotFound, cause, "Not found.")

	assert.Equal(t, "underlying", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Not found.", GetUserMessage(err))
}
