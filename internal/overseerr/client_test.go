package overseerr

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overseerr-tg-bot/internal/config"
	apperrors "overseerr-tg-bot/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.OverseerrConfig{
		APIURL:  server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return client, server
}

func TestAuthSelection(t *testing.T) {
	var gotCookie, gotKey string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotCookie = ""
		if c, err := r.Cookie("connect.sid"); err == nil {
			gotCookie = c.Value
		}
		w.WriteHeader(http.StatusOK)
	}))

	// Session cookie wins over the API key.
	require.NoError(t, client.CheckSession(context.Background(), "abc123"))
	assert.Equal(t, "abc123", gotCookie)
	assert.Empty(t, gotKey)

	// Zero auth falls back to the API key header.
	require.NoError(t, client.do(context.Background(), http.MethodGet, "/status", KeyAuth, nil, nil))
	assert.Empty(t, gotCookie)
	assert.Equal(t, "test-key", gotKey)
}

func TestLoginExtractsSessionCookie(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/local", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice@example.com", body["email"])
		assert.Equal(t, "hunter2", body["password"])

		http.SetCookie(w, &http.Cookie{Name: "connect.sid", Value: "s%3Asession"})
		w.WriteHeader(http.StatusOK)
	}))

	cookie, err := client.Login(context.Background(), "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "s%3Asession", cookie)
}

func TestLoginRetriesOnServerError(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "connect.sid", Value: "s%3Aretry"})
		w.WriteHeader(http.StatusOK)
	}))

	cookie, err := client.Login(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "s%3Aretry", cookie)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoginRejectedIsAuthenticationError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.Login(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
	assert.Equal(t, "Invalid email or password.", apperrors.GetUserMessage(err))
}

func TestLoginRejectionNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Login(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPendingRequests(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/request", r.URL.Path)
		assert.Equal(t, "pending", r.URL.Query().Get("filter"))
		assert.Equal(t, "20", r.URL.Query().Get("take"))
		assert.Equal(t, "0", r.URL.Query().Get("skip"))

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"id": 42, "status": RequestStatusPending, "is4k": true,
					"media":       map[string]any{"tmdbId": 603, "mediaType": "movie"},
					"requestedBy": map[string]any{"id": 7, "displayName": "Bob"},
				},
			},
		})
	}))

	requests, err := client.PendingRequests(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, 42, requests[0].ID)
	assert.True(t, requests[0].Is4K)
	assert.Equal(t, 603, requests[0].Media.TmdbID)
	assert.Equal(t, "Bob", requests[0].RequestedBy.Name())
}

func TestGetRequest(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/request/42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id": 42, "status": RequestStatusApproved,
			"requestedBy": map[string]any{"id": 7, "username": "bob"},
		})
	}))

	req, err := client.GetRequest(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, RequestStatusApproved, req.Status)
	assert.Equal(t, "bob", req.RequestedBy.Name())
}

func TestLoginMissingCookieFails(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := client.Login(context.Background(), "alice@example.com", "pw")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := client.do(context.Background(), http.MethodGet, "/status", KeyAuth, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNoRetryOnClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   apperrors.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, apperrors.KindAuthentication},
		{"forbidden", http.StatusForbidden, apperrors.KindAuthorization},
		{"not found", http.StatusNotFound, apperrors.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			}))

			err := client.do(context.Background(), http.MethodGet, "/status", KeyAuth, nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors must not be retried")
		})
	}
}

func TestRetryGivesUpEventually(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := client.do(context.Background(), http.MethodGet, "/status", KeyAuth, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransient, apperrors.KindOf(err))
	assert.Equal(t, int32(retryMaxAttempts), atomic.LoadInt32(&calls))
}

func TestSearchFiltersAndMaps(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "the matrix", r.URL.Query().Get("query"))

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"id": 603, "mediaType": "movie", "title": "The Matrix",
					"releaseDate": "1999-03-30", "overview": "A hacker learns the truth.",
					"mediaInfo": map[string]any{"status": 5, "status4k": 1},
				},
				{
					"id": 1, "mediaType": "person", "name": "Keanu Reeves",
				},
				{
					"id": 2198, "mediaType": "tv", "name": "The Matrix Show",
					"firstAirDate": "2003-05-01",
				},
			},
		})
	}))

	results, err := client.Search(context.Background(), "the matrix")
	require.NoError(t, err)
	require.Len(t, results, 2, "person results are filtered out")

	movie := results[0]
	assert.Equal(t, 603, movie.TmdbID)
	assert.Equal(t, "The Matrix", movie.Title)
	assert.Equal(t, "1999", movie.Year)
	assert.Equal(t, StatusAvailable, movie.StatusHD)
	assert.Equal(t, StatusUnknown, movie.Status4K)

	show := results[1]
	assert.Equal(t, "tv", show.MediaType)
	assert.Equal(t, "The Matrix Show", show.Title)
	assert.Equal(t, "2003", show.Year)
	assert.Equal(t, "No description available", show.Description)
	assert.Equal(t, StatusUnknown, show.StatusHD)
}

func TestRequestMediaPayload(t *testing.T) {
	var got MediaRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/request", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	// TV requests default to all seasons.
	err := client.RequestMedia(context.Background(), KeyAuth, MediaRequest{MediaType: "tv", MediaID: 2198})
	require.NoError(t, err)
	assert.Equal(t, "all", got.Seasons)
	assert.Zero(t, got.UserID)

	// API-mode attribution rides along as userId.
	got = MediaRequest{}
	err = client.RequestMedia(context.Background(), Auth{OnBehalfOf: 7},
		MediaRequest{MediaType: "movie", MediaID: 603, Is4K: true})
	require.NoError(t, err)
	assert.Equal(t, 7, got.UserID)
	assert.True(t, got.Is4K)
	assert.Empty(t, got.Seasons)
}

func TestCreateIssueAttribution(t *testing.T) {
	var got Issue
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issue", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.CreateIssue(context.Background(), Auth{OnBehalfOf: 7}, Issue{
		MediaID: 603, MediaType: "movie", IssueType: 2, Message: "no sound",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got.UserID)
	assert.Equal(t, 2, got.IssueType)
}

func TestApproveDeclinePaths(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.Approve(context.Background(), 42))
	require.NoError(t, client.Decline(context.Background(), 43))
	assert.Equal(t, []string{"POST /request/42/approve", "POST /request/43/decline"}, paths)
}

func TestCanRequest4K(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/7", r.URL.Path)
		json.NewEncoder(w).Encode(User{ID: 7, Username: "alice", Permissions: Permission4KMovie})
	}))

	ok, err := client.CanRequest4K(context.Background(), 7, "movie")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.CanRequest4K(context.Background(), 7, "tv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTVSeasonsSkipsSpecialsAndEmpty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tv/2198", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"seasons": []Season{
				{SeasonNumber: 0, EpisodeCount: 3},
				{SeasonNumber: 1, EpisodeCount: 10},
				{SeasonNumber: 2, EpisodeCount: 0},
				{SeasonNumber: 3, EpisodeCount: 8},
			},
		})
	}))

	seasons, err := client.TVSeasons(context.Background(), 2198)
	require.NoError(t, err)
	require.Len(t, seasons, 2)
	assert.Equal(t, 1, seasons[0].SeasonNumber)
	assert.Equal(t, 3, seasons[1].SeasonNumber)
}

func TestUserName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"display name first", User{DisplayName: "Alice", Username: "alice", Email: "a@x"}, "Alice"},
		{"username fallback", User{Username: "alice", Email: "a@x"}, "alice"},
		{"email last resort", User{Email: "a@x"}, "a@x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Name())
		})
	}
}
