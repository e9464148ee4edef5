package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the detection-history store.
//
// Driver values:
//   - "" or "none": disabled
//   - "memory": in-process only, lost on exit
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ChatMessage is a transcript snapshot line attached to an entry.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Entry is one completed image analysis.
// Keep it compact and schema-stable.
type Entry struct {
	ID             string        `json:"id"`
	At             time.Time     `json:"at"`
	Image          string        `json:"image"`
	Detection      string        `json:"detection"`
	Explanation    string        `json:"explanation"`
	Confidence     float64       `json:"confidence"`
	CropType       string        `json:"crop_type,omitempty"`
	CropConfidence float64       `json:"crop_confidence,omitempty"`
	ChatHistory    []ChatMessage `json:"chat_history,omitempty"`
}
