package overseerr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"overseerr-tg-bot/internal/config"
	apperrors "overseerr-tg-bot/internal/errors"
)

// Retry policy for transient failures: exponential backoff starting at
// 500ms, doubling, 3 attempts total. 401/403/404 are never retried.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxAttempts     = 3
)

// Client talks to the Overseerr REST API (base URL includes /api/v1).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Overseerr client.
func NewClient(cfg config.OverseerrConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.APIURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(bo, retryMaxAttempts-1), ctx)
}

// do executes one authenticated API call with bounded retry, decoding the
// JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, auth Auth, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setAuth(req, auth)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.New(apperrors.KindTransient, fmt.Errorf("send request: %w", err),
				apperrors.ErrOverseerrUnavailable.UserMsg)
		}
		defer resp.Body.Close()

		if err := statusError(resp); err != nil {
			if !apperrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	return backoff.Retry(op, c.newBackoff(ctx))
}

func (c *Client) setAuth(req *http.Request, auth Auth) {
	if auth.SessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: "connect.sid", Value: auth.SessionCookie})
		return
	}
	req.Header.Set("X-Api-Key", c.apiKey)
}

// statusError maps a non-2xx response to a classified error.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("overseerr returned %d: %s", resp.StatusCode, string(snippet))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.New(apperrors.KindAuthentication, err, apperrors.ErrSessionExpired.UserMsg)
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.KindAuthorization, err, apperrors.ErrPermissionDenied.UserMsg)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.KindNotFound, err, apperrors.ErrNotFound.UserMsg)
	case resp.StatusCode >= 500:
		return apperrors.New(apperrors.KindTransient, err, apperrors.ErrOverseerrUnavailable.UserMsg)
	default:
		return apperrors.New(apperrors.KindUnknown, err, "")
	}
}

// Login authenticates against /auth/local and returns the connect.sid
// session cookie. Transient failures retry like any other call; rejected
// credentials are permanent.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}

	var cookie string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/local", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.New(apperrors.KindTransient, fmt.Errorf("send login: %w", err),
				apperrors.ErrOverseerrUnavailable.UserMsg)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return backoff.Permanent(apperrors.New(apperrors.KindAuthentication,
					fmt.Errorf("login rejected with %d", resp.StatusCode),
					"Invalid email or password."))
			}
			serr := statusError(resp)
			if apperrors.IsRetryable(serr) {
				return serr
			}
			return backoff.Permanent(serr)
		}

		for _, ck := range resp.Cookies() {
			if ck.Name == "connect.sid" && ck.Value != "" {
				cookie = ck.Value
				return nil
			}
		}
		return backoff.Permanent(apperrors.Newf(apperrors.KindAuthentication,
			"login response missing connect.sid cookie"))
	}

	if err := backoff.Retry(op, c.newBackoff(ctx)); err != nil {
		return "", err
	}
	return cookie, nil
}

// Logout invalidates a session cookie.
func (c *Client) Logout(ctx context.Context, cookie string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", Auth{SessionCookie: cookie}, nil, nil)
}

// CheckSession verifies that a session cookie is still valid.
func (c *Client) CheckSession(ctx context.Context, cookie string) error {
	return c.do(ctx, http.MethodGet, "/auth/me", Auth{SessionCookie: cookie}, nil, nil)
}

// Search queries Overseerr for media matching the given title.
func (c *Client) Search(ctx context.Context, query string) ([]Media, error) {
	path := "/search?query=" + url.QueryEscape(query)
	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, path, KeyAuth, nil, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	media := make([]Media, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.MediaType != "movie" && r.MediaType != "tv" {
			continue
		}
		media = append(media, r.toMedia())
	}
	c.logger.Debug("search completed", "query", query, "results", len(media))
	return media, nil
}

// Users fetches all Overseerr users.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp usersResponse
	if err := c.do(ctx, http.MethodGet, "/user?take=256", KeyAuth, nil, &resp); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return resp.Results, nil
}

// GetUser fetches one Overseerr user, including permissions.
func (c *Client) GetUser(ctx context.Context, userID int) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user/"+strconv.Itoa(userID), KeyAuth, nil, &user); err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &user, nil
}

// CanRequest4K checks the 4K permission bit for a user and media type.
func (c *Client) CanRequest4K(ctx context.Context, userID int, mediaType string) (bool, error) {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Can4K(mediaType), nil
}

// RequestMedia submits a media request. TV requests cover all seasons
// unless req.Seasons says otherwise.
func (c *Client) RequestMedia(ctx context.Context, auth Auth, req MediaRequest) error {
	if req.MediaType == "tv" && req.Seasons == "" {
		req.Seasons = "all"
	}
	if auth.OnBehalfOf != 0 {
		req.UserID = auth.OnBehalfOf
	}
	if err := c.do(ctx, http.MethodPost, "/request", auth, req, nil); err != nil {
		return fmt.Errorf("request media %d: %w", req.MediaID, err)
	}
	c.logger.Info("media requested", "media_id", req.MediaID, "type", req.MediaType, "is4k", req.Is4K)
	return nil
}

// CreateIssue reports a playback issue for a media item.
func (c *Client) CreateIssue(ctx context.Context, auth Auth, issue Issue) error {
	if auth.OnBehalfOf != 0 {
		issue.UserID = auth.OnBehalfOf
	}
	if err := c.do(ctx, http.MethodPost, "/issue", auth, issue, nil); err != nil {
		return fmt.Errorf("create issue for media %d: %w", issue.MediaID, err)
	}
	return nil
}

// PendingRequests fetches requests awaiting approval.
func (c *Client) PendingRequests(ctx context.Context, take, skip int) ([]Request, error) {
	path := fmt.Sprintf("/request?filter=pending&take=%d&skip=%d", take, skip)
	var resp requestsResponse
	if err := c.do(ctx, http.MethodGet, path, KeyAuth, nil, &resp); err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return resp.Results, nil
}

// GetRequest fetches one request by id.
func (c *Client) GetRequest(ctx context.Context, requestID int) (*Request, error) {
	var req Request
	if err := c.do(ctx, http.MethodGet, "/request/"+strconv.Itoa(requestID), KeyAuth, nil, &req); err != nil {
		return nil, fmt.Errorf("get request %d: %w", requestID, err)
	}
	return &req, nil
}

// Approve approves a pending request.
func (c *Client) Approve(ctx context.Context, requestID int) error {
	path := fmt.Sprintf("/request/%d/approve", requestID)
	if err := c.do(ctx, http.MethodPost, path, KeyAuth, nil, nil); err != nil {
		return fmt.Errorf("approve request %d: %w", requestID, err)
	}
	c.logger.Info("request approved", "request_id", requestID)
	return nil
}

// Decline declines a pending request.
func (c *Client) Decline(ctx context.Context, requestID int) error {
	path := fmt.Sprintf("/request/%d/decline", requestID)
	if err := c.do(ctx, http.MethodPost, path, KeyAuth, nil, nil); err != nil {
		return fmt.Errorf("decline request %d: %w", requestID, err)
	}
	c.logger.Info("request declined", "request_id", requestID)
	return nil
}

// TVSeasons fetches the requestable seasons of a show, skipping specials
// and empty seasons.
func (c *Client) TVSeasons(ctx context.Context, tmdbID int) ([]Season, error) {
	var resp tvResponse
	if err := c.do(ctx, http.MethodGet, "/tv/"+strconv.Itoa(tmdbID), KeyAuth, nil, &resp); err != nil {
		return nil, fmt.Errorf("get tv %d: %w", tmdbID, err)
	}
	seasons := make([]Season, 0, len(resp.Seasons))
	for _, s := range resp.Seasons {
		if s.SeasonNumber > 0 && s.EpisodeCount > 0 {
			seasons = append(seasons, s)
		}
	}
	return seasons, nil
}

// UserTelegramSettings fetches a user's Telegram notification settings.
func (c *Client) UserTelegramSettings(ctx context.Context, userID int) (*TelegramSettings, error) {
	path := fmt.Sprintf("/user/%d/settings/notifications", userID)
	var settings TelegramSettings
	if err := c.do(ctx, http.MethodGet, path, KeyAuth, nil, &settings); err != nil {
		return nil, fmt.Errorf("get notification settings for user %d: %w", userID, err)
	}
	return &settings, nil
}

// SetUserTelegramSettings updates a user's Telegram notification settings.
func (c *Client) SetUserTelegramSettings(ctx context.Context, userID int, settings TelegramSettings) error {
	path := fmt.Sprintf("/user/%d/settings/notifications", userID)
	if err := c.do(ctx, http.MethodPost, path, KeyAuth, settings, nil); err != nil {
		return fmt.Errorf("update notification settings for user %d: %w", userID, err)
	}
	return nil
}

// CheckHealth verifies Overseerr is reachable.
func (c *Client) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/status", KeyAuth, nil, nil)
}
