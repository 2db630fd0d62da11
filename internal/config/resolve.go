package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"standupbot/internal/transport"
	logx "standupbot/pkg/logx"
)

// Defaults for omitted fields.
const (
	DefaultSchedule         = "0 9 * * 1-5"
	DefaultTimezone         = "Europe/Sofia"
	DefaultHTTPAddr         = ":3000"
	DefaultPollTimeout      = 10 * time.Second
	DefaultNotifyTimeout    = 15 * time.Second
	DefaultPostTimeout      = 15 * time.Second
	DefaultFormTimeout      = 30 * time.Minute
	DefaultNotifyWorkers    = 4
	DefaultNotifyRatePerSec = 5
	DefaultBusyTimeout      = 5 * time.Second
)

// duration parses raw as a non-negative Go duration; empty yields def.
func duration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Standup is StandupConfig with defaults applied and fields parsed. The
// schedule and roster stay raw; they are parsed by the standup package.
type Standup struct {
	Schedule          string
	TargetUsers       string
	DefaultTimezone   string
	NotificationsChat transport.ChatTarget
	DateLocation      *time.Location
	NotifyTimeout     time.Duration
	NotifyWorkers     int
	NotifyRatePerSec  int
	PostTimeout       time.Duration
	FormTimeout       time.Duration
}

func (c StandupConfig) Resolve() (Standup, error) {
	out := Standup{
		Schedule:         strings.TrimSpace(c.Schedule),
		TargetUsers:      c.TargetUsers,
		DefaultTimezone:  strings.TrimSpace(c.DefaultTimezone),
		NotifyWorkers:    c.NotifyWorkers,
		NotifyRatePerSec: c.NotifyRatePerSec,
	}
	if out.Schedule == "" {
		out.Schedule = DefaultSchedule
	}
	if out.DefaultTimezone == "" {
		out.DefaultTimezone = DefaultTimezone
	}
	if out.NotifyWorkers <= 0 {
		out.NotifyWorkers = DefaultNotifyWorkers
	}
	if out.NotifyRatePerSec <= 0 {
		out.NotifyRatePerSec = DefaultNotifyRatePerSec
	}

	var errs []error
	var err error
	if _, err = time.LoadLocation(out.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("standup.default_timezone: %w", err))
	}
	if out.NotificationsChat, err = transport.ParseChatTarget(c.NotificationsChat); err != nil {
		errs = append(errs, fmt.Errorf("standup.notifications_chat: %w", err))
	}
	out.DateLocation = time.Local
	if tz := strings.TrimSpace(c.DateKeyTimezone); tz != "" {
		if out.DateLocation, err = time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("standup.date_key_timezone: %w", err))
		}
	}
	if out.NotifyTimeout, err = duration("standup.notify_timeout", c.NotifyTimeout, DefaultNotifyTimeout); err != nil {
		errs = append(errs, err)
	}
	if out.PostTimeout, err = duration("standup.post_timeout", c.PostTimeout, DefaultPostTimeout); err != nil {
		errs = append(errs, err)
	}
	if out.FormTimeout, err = duration("standup.form_timeout", c.FormTimeout, DefaultFormTimeout); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// Telegram is TelegramConfig with defaults applied.
type Telegram struct {
	Token       string
	PollTimeout time.Duration
	AdminChat   transport.ChatTarget
}

func (c TelegramConfig) Resolve() (Telegram, error) {
	out := Telegram{Token: strings.TrimSpace(c.Token)}
	var errs []error
	var err error
	if out.PollTimeout, err = duration("telegram.poll_timeout", c.PollTimeout, DefaultPollTimeout); err != nil {
		errs = append(errs, err)
	}
	if out.AdminChat, err = transport.ParseChatTarget(c.AdminChat); err != nil {
		errs = append(errs, fmt.Errorf("telegram.admin_chat: %w", err))
	}
	return out, errors.Join(errs...)
}

// HTTP is HTTPConfig with defaults applied. Zero timeouts are disabled.
type HTTP struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c HTTPConfig) Resolve() (HTTP, error) {
	out := HTTP{Addr: strings.TrimSpace(c.Addr)}
	if out.Addr == "" {
		out.Addr = DefaultHTTPAddr
	}
	var errs []error
	var err error
	if out.ReadTimeout, err = duration("http.read_timeout", c.ReadTimeout, 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	if out.WriteTimeout, err = duration("http.write_timeout", c.WriteTimeout, 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// Storage is StorageConfig with defaults applied.
type Storage struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

func (c StorageConfig) Resolve() (Storage, error) {
	out := Storage{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
	}
	if out.Driver == "" {
		out.Driver = "none"
	}
	var errs []error
	switch out.Driver {
	case "none":
	case "file", "sqlite":
		if out.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", out.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", out.Driver))
	}
	var err error
	if out.BusyTimeout, err = duration("storage.busy_timeout", c.BusyTimeout, DefaultBusyTimeout); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// LogConfig maps the logging section onto logx. adminChat is the resolved
// telegram.admin_chat.
func (c LoggingConfig) LogConfig(adminChat transport.ChatTarget) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    c.Chat.Enabled,
			Target:     adminChat,
			MinLevel:   c.Chat.MinLevel,
			RatePerSec: c.Chat.RatePerSec,
		},
	}
}

// Validate checks every section. Schedule and roster syntax are checked by
// the caller's validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := cfg.Telegram.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Standup.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Storage.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.HTTP.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if ml := strings.TrimSpace(cfg.Logging.Chat.MinLevel); ml != "" && !logx.ValidLevel(ml) {
		errs = append(errs, fmt.Errorf("logging.chat.min_level: unknown level %q", ml))
	}
	return errors.Join(errs...)
}
