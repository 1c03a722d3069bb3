package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handler-level branching.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthentication covers bad credentials and expired sessions (401).
	KindAuthentication
	// KindAuthorization covers insufficient Overseerr permissions (403),
	// e.g. a non-4K user requesting 4K.
	KindAuthorization
	// KindNotFound covers missing media, users or requests (404).
	KindNotFound
	// KindTransient covers network failures and 5xx responses; retryable.
	KindTransient
	// KindConfiguration covers invalid startup configuration; fatal.
	KindConfiguration
)

// UserError carries a technical error together with the message shown to the
// Telegram user and a classification the caller can branch on.
type UserError struct {
	Err     error
	Kind    Kind
	UserMsg string
}

func (e *UserError) Error() string {
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Predefined errors
var (
	ErrSessionExpired = &UserError{
		Err:     errors.New("overseerr session expired"),
		Kind:    KindAuthentication,
		UserMsg: "Your Overseerr session has expired. Please log in again via /settings.",
	}

	ErrNotLoggedIn = &UserError{
		Err:     errors.New("no overseerr session"),
		Kind:    KindAuthentication,
		UserMsg: "You are not logged in to Overseerr. Please log in via /settings first.",
	}

	ErrSelectionRequired = &UserError{
		Err:     errors.New("no overseerr user selected"),
		Kind:    KindAuthentication,
		UserMsg: "Please pick your Overseerr user via /settings before making requests.",
	}

	ErrSharedSessionMissing = &UserError{
		Err:     errors.New("shared session not initialized"),
		Kind:    KindAuthentication,
		UserMsg: "The shared account is not set up yet. An admin must log in via /settings.",
	}

	ErrPermissionDenied = &UserError{
		Err:     errors.New("overseerr permission denied"),
		Kind:    KindAuthorization,
		UserMsg: "You don't have permission for this action in Overseerr.",
	}

	ErrNotFound = &UserError{
		Err:     errors.New("not found"),
		Kind:    KindNotFound,
		UserMsg: "The requested item could not be found.",
	}

	ErrOverseerrUnavailable = &UserError{
		Err:     errors.New("overseerr unavailable"),
		Kind:    KindTransient,
		UserMsg: "Overseerr is not reachable right now. Please try again later.",
	}
)

// New builds a classified UserError around err.
func New(kind Kind, err error, userMsg string) *UserError {
	return &UserError{Err: err, Kind: kind, UserMsg: userMsg}
}

// Newf builds a classified UserError from a formatted technical message,
// reusing the default user message for the kind.
func Newf(kind Kind, format string, args ...any) *UserError {
	return &UserError{Err: fmt.Errorf(format, args...), Kind: kind, UserMsg: defaultUserMsg(kind)}
}

func defaultUserMsg(kind Kind) string {
	switch kind {
	case KindAuthentication:
		return "Authentication failed. Please log in again."
	case KindAuthorization:
		return "You don't have permission for this action."
	case KindNotFound:
		return "The requested item could not be found."
	case KindTransient:
		return "A temporary error occurred. Please try again later."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Kind
	}
	return KindUnknown
}

// GetUserMessage extracts the user-facing message from err.
func GetUserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) && userErr.UserMsg != "" {
		return userErr.UserMsg
	}
	return "An unexpected error occurred. Please try again later."
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsAuthentication reports whether err signals a re-login requirement.
func IsAuthentication(err error) bool {
	return KindOf(err) == KindAuthentication
}
