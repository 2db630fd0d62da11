package config

import (
	"sort"
	"strings"

	logx "standupbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns safe log fields describing the new values. Secrets and roster
// contents are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := *oldCfg, *newCfg
	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if o.Telegram != n.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", o.Telegram.Token != n.Telegram.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(n.Telegram.PollTimeout)),
			logx.Bool("telegram.admin_chat_set", strings.TrimSpace(n.Telegram.AdminChat) != ""),
		)
	}
	if o.Logging != n.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file", n.Logging.File.Enabled),
			logx.Bool("logging.chat", n.Logging.Chat.Enabled),
		)
	}
	if o.Standup != n.Standup {
		changed = append(changed, "standup")
		attrs = append(attrs,
			logx.String("standup.schedule", n.Standup.Schedule),
			logx.Bool("standup.roster_changed", o.Standup.TargetUsers != n.Standup.TargetUsers),
			logx.Bool("standup.notifications_chat_set", strings.TrimSpace(n.Standup.NotificationsChat) != ""),
			logx.Int("standup.notify_workers", n.Standup.NotifyWorkers),
		)
	}
	if o.Storage != n.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", n.Storage.Driver))
	}
	if o.HTTP != n.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", n.HTTP.Addr))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartOnly lists changed sections that only take effect after a restart.
func RestartOnly(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage", "http":
			out = append(out, s)
		}
	}
	return out
}
