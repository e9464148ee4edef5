package app

import (
	"fmt"
	"strings"

	"greenguard/internal/api"
	"greenguard/internal/config"
	"greenguard/internal/history"
	"greenguard/internal/notification"
	"greenguard/internal/schedule"
)

// Mapping from the config file surface to component configs. Durations are
// strings in the file; they are parsed (and validated on hot reload) here.

func apiConfigFrom(cfg *config.Config) (api.Config, error) {
	timeout, err := config.ParseDurationOrDefault("api.timeout", cfg.API.Timeout, 0)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    timeout,
		RatePerSec: cfg.API.RatePerSec,
	}, nil
}

func storeConfigFrom(cfg *config.Config) (notification.StoreConfig, error) {
	dedup, err := config.ParseDurationOrDefault("notifications.dedup_window", cfg.Notifications.DedupWindow, 0)
	if err != nil {
		return notification.StoreConfig{}, err
	}
	window, err := config.ParseDurationOrDefault("notifications.automated_window", cfg.Notifications.AutomatedWindow, 0)
	if err != nil {
		return notification.StoreConfig{}, err
	}
	return notification.StoreConfig{
		Capacity:        cfg.Notifications.Capacity,
		DedupWindow:     dedup,
		AutomatedWindow: window,
		AutomatedMax:    cfg.Notifications.AutomatedMax,
	}, nil
}

func emitterConfigFrom(cfg *config.Config) (notification.EmitterConfig, error) {
	e := cfg.Notifications.Emitter
	initial, err := config.ParseDurationOrDefault("notifications.emitter.initial_delay", e.InitialDelay, 0)
	if err != nil {
		return notification.EmitterConfig{}, err
	}
	minI, err := config.ParseDurationOrDefault("notifications.emitter.min_interval", e.MinInterval, 0)
	if err != nil {
		return notification.EmitterConfig{}, err
	}
	maxI, err := config.ParseDurationOrDefault("notifications.emitter.max_interval", e.MaxInterval, 0)
	if err != nil {
		return notification.EmitterConfig{}, err
	}
	return notification.EmitterConfig{
		Enabled:        e.Enabled,
		InitialDelay:   initial,
		MinInterval:    minI,
		MaxInterval:    maxI,
		UnreadSuppress: e.UnreadSuppress,
	}, nil
}

func historyConfigFrom(cfg *config.Config) (history.Config, error) {
	busy, err := config.ParseDurationOrDefault("history.busy_timeout", cfg.History.BusyTimeout, 0)
	if err != nil {
		return history.Config{}, err
	}
	return history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
	}, nil
}

// validate rejects a config before it is committed, so a bad hot reload
// never reaches the running components.
func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if cfg.API.RatePerSec < 0 {
		return fmt.Errorf("api.rate_per_sec must be >= 0")
	}
	if _, err := apiConfigFrom(cfg); err != nil {
		return err
	}
	if _, err := storeConfigFrom(cfg); err != nil {
		return err
	}
	if _, err := emitterConfigFrom(cfg); err != nil {
		return err
	}
	if _, err := historyConfigFrom(cfg); err != nil {
		return err
	}
	if cfg.Notifications.Capacity < 0 {
		return fmt.Errorf("notifications.capacity must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.History.Driver)) {
	case "", "none", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.History.Path) == "" {
			return fmt.Errorf("history.path is required for driver %q", cfg.History.Driver)
		}
	default:
		return fmt.Errorf("unknown history driver %q", cfg.History.Driver)
	}

	if spec := strings.TrimSpace(cfg.Notifications.DigestSchedule); spec != "" {
		if _, err := schedule.ParseSchedule(spec); err != nil {
			return fmt.Errorf("notifications.digest_schedule: %w", err)
		}
	}
	if spec := strings.TrimSpace(cfg.History.SweepSchedule); spec != "" {
		if _, err := schedule.ParseSchedule(spec); err != nil {
			return fmt.Errorf("history.sweep_schedule: %w", err)
		}
		if _, err := config.ParseDurationOrDefault("history.retention", cfg.History.Retention, 0); err != nil {
			return err
		}
	}
	return nil
}
