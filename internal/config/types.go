package config

// Config is the file-backed configuration. Durations are Go duration
// strings ("500ms", "15s"); empty means the documented default.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Standup  StandupConfig  `json:"standup"`
	Storage  StorageConfig  `json:"storage,omitempty"`
	HTTP     HTTPConfig     `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout. Default 10s.
	PollTimeout string `json:"poll_timeout,omitempty"`
	// AdminChat receives forwarded log lines: "chatID" or "chatID:topicID".
	AdminChat string `json:"admin_chat,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StandupConfig drives prompting and thread posting.
//
//	"standup": {
//	  "schedule": "0 9 * * 1-5",
//	  "target_users": "12345:America/New_York,67890",
//	  "notifications_chat": "-1001234567890:42"
//	}
type StandupConfig struct {
	Schedule        string `json:"schedule,omitempty"`
	TargetUsers     string `json:"target_users"`
	DefaultTimezone string `json:"default_timezone,omitempty"`
	// NotificationsChat is where day threads are posted. Empty disables posting.
	NotificationsChat string `json:"notifications_chat,omitempty"`
	// DateKeyTimezone is the server clock zone used for date keys. Empty
	// means the process local zone.
	DateKeyTimezone string `json:"date_key_timezone,omitempty"`

	NotifyTimeout    string `json:"notify_timeout,omitempty"`
	NotifyWorkers    int    `json:"notify_workers,omitempty"`
	NotifyRatePerSec int    `json:"notify_rate_per_sec,omitempty"`
	PostTimeout      string `json:"post_timeout,omitempty"`
	// FormTimeout abandons an unfinished answer form. Default 30m.
	FormTimeout string `json:"form_timeout,omitempty"`
}

// StorageConfig controls the optional submission journal.
//
//	"storage": { "driver": "sqlite", "path": "./standupbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // none|file|sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HTTPConfig controls the health and metrics listener.
type HTTPConfig struct {
	Addr         string `json:"addr,omitempty"` // default ":3000"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}
