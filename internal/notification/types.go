package notification

import "time"

// Kind classifies a notification for display purposes.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSuccess, KindError, KindWarning, KindInfo:
		return true
	}
	return false
}

// Icon returns the display hint used by rendering surfaces.
func (k Kind) Icon() string {
	switch k {
	case KindSuccess:
		return "check-circle"
	case KindError:
		return "x-circle"
	case KindWarning:
		return "alert-triangle"
	default:
		return "info-circle"
	}
}

// Candidate is a notification submitted to the store. The store assigns
// identity and timestamps; callers only provide content.
type Candidate struct {
	Title     string
	Message   string
	Kind      Kind
	Automated bool
}

// Record is a stored notification.
type Record struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"kind"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
	Automated bool      `json:"automated"`
}

// ChangeEvent is published on the event bus whenever the store mutates.
type ChangeEvent struct {
	Op     string `json:"op"` // "added" | "read" | "cleared"
	ID     int64  `json:"id,omitempty"`
	Unread int    `json:"unread"`
	Total  int    `json:"total"`
}
