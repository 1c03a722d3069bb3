package notify

// Overseerr webhook notification types the bot reacts to.
const (
	EventMediaPending      = "MEDIA_PENDING"
	EventMediaApproved     = "MEDIA_APPROVED"
	EventMediaAutoApproved = "MEDIA_AUTO_APPROVED"
	EventMediaDeclined     = "MEDIA_DECLINED"
	EventMediaAvailable    = "MEDIA_AVAILABLE"
	EventMediaFailed       = "MEDIA_FAILED"
	EventTest              = "TEST_NOTIFICATION"
)

// Event is one inbound Overseerr notification, already decoded from the
// webhook payload.
type Event struct {
	// TraceID correlates log lines for one webhook delivery.
	TraceID string
	// Type is the Overseerr notification_type.
	Type string
	// Subject is the media title line Overseerr composed.
	Subject string
	// Message is the free-text body, if any.
	Message string

	MediaType   string
	RequestID   int
	RequestedBy string
	Is4K        bool
}

// isNewRequest reports whether the event announces a request awaiting
// admin approval.
func (e Event) isNewRequest() bool {
	return e.Type == EventMediaPending
}

func (e Event) mediaEmoji() string {
	switch e.MediaType {
	case "movie":
		return "\U0001F3AC" // 🎬
	case "tv":
		return "\U0001F4FA" // 📺
	default:
		return "\U0001F4FD" // 📽
	}
}
