package overseerr

import "strings"

// Media availability status values used by Overseerr.
const (
	StatusUnknown            = 1
	StatusPending            = 2
	StatusProcessing         = 3
	StatusPartiallyAvailable = 4
	StatusAvailable          = 5
)

// Request approval workflow status values.
const (
	RequestStatusPending  = 1
	RequestStatusApproved = 2
	RequestStatusDeclined = 3
)

// Permission bits gating 4K requests.
const (
	Permission4KMovie = 2048
	Permission4KTV    = 4096
)

// IssueTypes maps Overseerr issue type ids to display names.
var IssueTypes = map[int]string{
	1: "Video",
	2: "Audio",
	3: "Subtitle",
	4: "Other",
}

// Auth selects how a client call is authenticated. A zero Auth uses the
// admin API key header.
type Auth struct {
	// SessionCookie is the connect.sid value from a login; empty means
	// the API key is used instead.
	SessionCookie string
	// OnBehalfOf attributes the request to this Overseerr user id.
	// Only meaningful with API-key auth (API mode). Zero means none.
	OnBehalfOf int
}

// KeyAuth authenticates with the admin API key, attributed to nobody.
var KeyAuth = Auth{}

// User is an Overseerr account.
type User struct {
	ID          int    `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Permissions int    `json:"permissions"`
}

// Name returns the best display label for the user.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Can4K reports whether the user may request 4K for the given media type.
func (u User) Can4K(mediaType string) bool {
	switch mediaType {
	case "movie":
		return u.Permissions&Permission4KMovie != 0
	case "tv":
		return u.Permissions&Permission4KTV != 0
	}
	return false
}

type usersResponse struct {
	Results []User `json:"results"`
}

// searchResult is the wire shape of one /search hit.
type searchResult struct {
	ID            int    `json:"id"`
	MediaType     string `json:"mediaType"`
	Name          string `json:"name"`
	OriginalName  string `json:"originalName"`
	Title         string `json:"title"`
	ReleaseDate   string `json:"releaseDate"`
	FirstAirDate  string `json:"firstAirDate"`
	PosterPath    string `json:"posterPath"`
	Overview      string `json:"overview"`
	MediaInfo     *struct {
		ID       int `json:"id"`
		Status   int `json:"status"`
		Status4K int `json:"status4k"`
	} `json:"mediaInfo"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Media is one processed search hit, reduced to what the bot displays.
type Media struct {
	TmdbID      int
	MediaType   string // "movie" or "tv"
	Title       string
	Year        string
	PosterPath  string
	Description string
	StatusHD    int
	Status4K    int
}

func (r searchResult) toMedia() Media {
	title := r.Name
	if title == "" {
		title = r.OriginalName
	}
	if title == "" {
		title = r.Title
	}
	if title == "" {
		title = "Unknown Title"
	}

	date := r.ReleaseDate
	if r.MediaType == "tv" {
		date = r.FirstAirDate
	}
	year := "Unknown Year"
	if i := strings.Index(date, "-"); i > 0 {
		year = date[:i]
	}

	m := Media{
		TmdbID:      r.ID,
		MediaType:   r.MediaType,
		Title:       title,
		Year:        year,
		PosterPath:  r.PosterPath,
		Description: r.Overview,
		StatusHD:    StatusUnknown,
		Status4K:    StatusUnknown,
	}
	if m.Description == "" {
		m.Description = "No description available"
	}
	if r.MediaInfo != nil {
		m.StatusHD = r.MediaInfo.Status
		m.Status4K = r.MediaInfo.Status4K
	}
	return m
}

// MediaRequest is the payload for requesting media.
type MediaRequest struct {
	MediaType string `json:"mediaType"`
	MediaID   int    `json:"mediaId"`
	Is4K      bool   `json:"is4k"`
	// Seasons is "all" for whole TV shows; unset for movies.
	Seasons string `json:"seasons,omitempty"`
	// UserID attributes the request in API mode.
	UserID int `json:"userId,omitempty"`
}

// Issue is the payload for reporting a playback issue.
type Issue struct {
	MediaID   int    `json:"mediaId"`
	MediaType string `json:"mediaType"`
	IssueType int    `json:"issueType"`
	Message   string `json:"message"`
	// UserID attributes the issue in API mode.
	UserID int `json:"userId,omitempty"`
}

// Request is one Overseerr media request.
type Request struct {
	ID     int  `json:"id"`
	Status int  `json:"status"`
	Is4K   bool `json:"is4k"`
	Media  struct {
		TmdbID    int    `json:"tmdbId"`
		MediaType string `json:"mediaType"`
	} `json:"media"`
	RequestedBy User `json:"requestedBy"`
}

type requestsResponse struct {
	PageInfo struct {
		Pages   int `json:"pages"`
		Results int `json:"results"`
	} `json:"pageInfo"`
	Results []Request `json:"results"`
}

// Season is one TV season with availability.
type Season struct {
	SeasonNumber int `json:"seasonNumber"`
	EpisodeCount int `json:"episodeCount"`
	Status       int `json:"status"`
}

type tvResponse struct {
	Seasons []Season `json:"seasons"`
}

// TelegramSettings mirrors a user's Telegram notification settings.
type TelegramSettings struct {
	Enabled      bool   `json:"telegramEnabled"`
	BotUsername  string `json:"telegramBotUsername"`
	BotAPI       string `json:"telegramBotAPI"`
	ChatID       string `json:"telegramChatId"`
	SendSilently bool   `json:"telegramSendSilently"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
