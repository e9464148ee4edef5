package config

import (
	"strings"

	logx "greenguard/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Used by the hot-reload loop so operators can
// see what a reload actually touched.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if strings.TrimSpace(oldCfg.API.BaseURL) != strings.TrimSpace(newCfg.API.BaseURL) ||
		strings.TrimSpace(oldCfg.API.Timeout) != strings.TrimSpace(newCfg.API.Timeout) ||
		oldCfg.API.RatePerSec != newCfg.API.RatePerSec {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.String("api.base_url", strings.TrimSpace(newCfg.API.BaseURL)),
			logx.String("api.timeout", strings.TrimSpace(newCfg.API.Timeout)),
			logx.Int("api.rate_per_sec", newCfg.API.RatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Notifications != newCfg.Notifications {
		changed = append(changed, "notifications")
		attrs = append(attrs,
			logx.Int("notifications.capacity", newCfg.Notifications.Capacity),
			logx.Bool("notifications.emitter_enabled", newCfg.Notifications.Emitter.Enabled),
			logx.String("notifications.digest_schedule", strings.TrimSpace(newCfg.Notifications.DigestSchedule)),
		)
	}

	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(newCfg.History.Driver)),
			logx.String("history.retention", strings.TrimSpace(newCfg.History.Retention)),
		)
	}

	return changed, attrs
}
