// Package history persists completed detections. The session model wipes
// the store at application start; within a session entries are append-only
// with an optional age-based retention sweep.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "greenguard/pkg/logx"
)

// Store is the persistence API for detection history.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// List returns all entries, newest-first.
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
	// Prune removes entries older than cutoff and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return newMemStore(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
