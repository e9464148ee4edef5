package config

// Config is the root configuration for the greenguard client.
//
// The file may be JSON or YAML (by extension); both are decoded strictly so
// typos and removed legacy keys are caught early, including on hot reload.
type Config struct {
	API           APIConfig           `json:"api"`
	Logging       LoggingConfig       `json:"logging"`
	Notifications NotificationsConfig `json:"notifications"`
	History       HistoryConfig       `json:"history"`
}

// APIConfig points the client at the remote detection/chat backend.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type APIConfig struct {
	BaseURL string `json:"base_url"`
	// Timeout bounds a single request. Image analysis can be slow, so the
	// default is generous ("60s").
	Timeout string `json:"timeout,omitempty"`
	// RatePerSec paces outbound calls. 0 means the default (2/s).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotificationsConfig controls the in-app notification engine.
//
// Defaults (when fields are omitted/zero):
//   - capacity: 50
//   - dedup_window: "5s"
//   - automated_window: "5m"
//   - automated_max: 3
type NotificationsConfig struct {
	Capacity        int    `json:"capacity,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	AutomatedWindow string `json:"automated_window,omitempty"`
	AutomatedMax    int    `json:"automated_max,omitempty"`

	Emitter EmitterConfig `json:"emitter"`

	// DigestSchedule is a cron spec or plain duration for the periodic
	// unread-summary notification. Empty disables the digest.
	DigestSchedule string `json:"digest_schedule,omitempty"`
}

// EmitterConfig controls the background tip/alert emitter.
//
// Defaults: initial_delay "30s", min_interval "2m", max_interval "3m",
// unread_suppress 12.
type EmitterConfig struct {
	Enabled        bool   `json:"enabled"`
	InitialDelay   string `json:"initial_delay,omitempty"`
	MinInterval    string `json:"min_interval,omitempty"`
	MaxInterval    string `json:"max_interval,omitempty"`
	UnreadSuppress int    `json:"unread_suppress,omitempty"`
}

// HistoryConfig controls the detection-history store.
//
// Driver values:
//   - "" or "none": disabled
//   - "memory": in-process only
//   - "file": JSON-lines file
//   - "sqlite": SQLite database file
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only

	// Retention drops entries older than this age ("0s" keeps everything).
	Retention string `json:"retention,omitempty"`
	// SweepSchedule is a cron spec or plain duration for the retention sweep.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}
