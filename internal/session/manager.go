package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"overseerr-tg-bot/internal/botcfg"
	apperrors "overseerr-tg-bot/internal/errors"
	"overseerr-tg-bot/internal/overseerr"
)

// Identity is the resolved Overseerr identity a Telegram user acts as.
type Identity struct {
	Mode        botcfg.Mode
	Auth        overseerr.Auth
	UserID      int // Overseerr user id when known (API mode selections)
	DisplayName string
}

// Authenticator is the slice of the Overseerr client the manager needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Logout(ctx context.Context, cookie string) error
	CheckSession(ctx context.Context, cookie string) error
}

// Manager resolves Telegram users to Overseerr identities according to the
// configured bot mode. Exactly one of the three stores is authoritative at
// a time; the others stay intact on disk so switching back restores them.
type Manager struct {
	cfg        botcfg.Store
	normal     NormalStore
	shared     SharedStore
	selections SelectionStore
	auth       Authenticator
	logger     *slog.Logger
}

// NewManager creates a session manager over the three mode stores.
func NewManager(
	cfg botcfg.Store,
	normal NormalStore,
	shared SharedStore,
	selections SelectionStore,
	auth Authenticator,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		cfg:        cfg,
		normal:     normal,
		shared:     shared,
		selections: selections,
		auth:       auth,
		logger:     logger,
	}
}

// Resolve returns the identity context for a Telegram user under the
// current mode, or a classified authentication error telling the caller
// what the user must do first.
func (m *Manager) Resolve(ctx context.Context, telegramID int64) (*Identity, error) {
	mode := m.cfg.Get().Mode

	switch mode {
	case botcfg.ModeNormal:
		return m.resolveNormal(ctx, telegramID)
	case botcfg.ModeAPI:
		return m.resolveAPI(telegramID)
	case botcfg.ModeShared:
		return m.resolveShared()
	default:
		return nil, apperrors.Newf(apperrors.KindConfiguration, "unknown bot mode %q", mode)
	}
}

func (m *Manager) resolveNormal(ctx context.Context, telegramID int64) (*Identity, error) {
	sess, err := m.normal.Get(telegramID)
	if err != nil {
		return nil, fmt.Errorf("load session for %d: %w", telegramID, err)
	}
	if sess == nil || sess.Cookie == "" {
		return nil, apperrors.ErrNotLoggedIn
	}

	// Explicit liveness check; a dead cookie is cleared so the next
	// resolve prompts for a fresh login instead of re-checking.
	if err := m.auth.CheckSession(ctx, sess.Cookie); err != nil {
		if apperrors.IsAuthentication(err) {
			m.logger.Info("session expired, clearing", "telegram_id", telegramID)
			if delErr := m.normal.Delete(telegramID); delErr != nil {
				m.logger.Error("failed to clear expired session", "telegram_id", telegramID, "error", delErr)
			}
			return nil, apperrors.ErrSessionExpired
		}
		return nil, fmt.Errorf("validate session for %d: %w", telegramID, err)
	}

	return &Identity{
		Mode:        botcfg.ModeNormal,
		Auth:        overseerr.Auth{SessionCookie: sess.Cookie},
		DisplayName: sess.Email,
	}, nil
}

func (m *Manager) resolveAPI(telegramID int64) (*Identity, error) {
	sel, err := m.selections.Get(telegramID)
	if err != nil {
		return nil, fmt.Errorf("load selection for %d: %w", telegramID, err)
	}
	if sel == nil {
		return nil, apperrors.ErrSelectionRequired
	}
	return &Identity{
		Mode:        botcfg.ModeAPI,
		Auth:        overseerr.Auth{OnBehalfOf: sel.UserID},
		UserID:      sel.UserID,
		DisplayName: sel.UserName,
	}, nil
}

func (m *Manager) resolveShared() (*Identity, error) {
	sess, err := m.shared.Get()
	if err != nil {
		return nil, fmt.Errorf("load shared session: %w", err)
	}
	if sess == nil {
		return nil, apperrors.ErrSharedSessionMissing
	}
	return &Identity{
		Mode:        botcfg.ModeShared,
		Auth:        overseerr.Auth{SessionCookie: sess.Cookie},
		DisplayName: sess.Email,
	}, nil
}

// Login performs an Overseerr login for a Telegram user and persists the
// session in the store matching the current mode. In Shared mode the
// resulting session is the one everybody acts through.
func (m *Manager) Login(ctx context.Context, telegramID int64, email, password string) error {
	cookie, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	switch m.cfg.Get().Mode {
	case botcfg.ModeShared:
		if err := m.shared.Save(SharedSession{Email: email, Cookie: cookie}); err != nil {
			return fmt.Errorf("save shared session: %w", err)
		}
		m.logger.Info("shared session established", "telegram_id", telegramID)
	default:
		sess := UserSession{Email: email, Cookie: cookie, CreatedAt: time.Now().UTC()}
		if err := m.normal.Save(telegramID, sess); err != nil {
			return fmt.Errorf("save session for %d: %w", telegramID, err)
		}
		m.logger.Info("user logged in", "telegram_id", telegramID)
	}
	return nil
}

// Logout invalidates and removes the caller's session for the current mode.
func (m *Manager) Logout(ctx context.Context, telegramID int64) error {
	switch m.cfg.Get().Mode {
	case botcfg.ModeShared:
		sess, err := m.shared.Get()
		if err != nil {
			return err
		}
		if sess != nil {
			if err := m.auth.Logout(ctx, sess.Cookie); err != nil {
				m.logger.Warn("remote logout failed", "error", err)
			}
		}
		return m.shared.Clear()
	default:
		sess, err := m.normal.Get(telegramID)
		if err != nil {
			return err
		}
		if sess != nil {
			if err := m.auth.Logout(ctx, sess.Cookie); err != nil {
				m.logger.Warn("remote logout failed", "telegram_id", telegramID, "error", err)
			}
		}
		return m.normal.Delete(telegramID)
	}
}

// SelectUser records which Overseerr identity an API-mode user acts as.
// Re-selection overwrites the previous choice.
func (m *Manager) SelectUser(telegramID int64, userID int, userName string) error {
	if err := m.selections.Save(telegramID, Selection{UserID: userID, UserName: userName}); err != nil {
		return fmt.Errorf("save selection for %d: %w", telegramID, err)
	}
	m.logger.Info("overseerr user selected", "telegram_id", telegramID, "overseerr_user_id", userID)
	return nil
}
