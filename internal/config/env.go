package config

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Env holds the environment overrides. A non-empty value wins over the file.
type Env struct {
	TelegramToken     string `envconfig:"TELEGRAM_TOKEN"`
	TargetUsers       string `envconfig:"TARGET_USERS"`
	Schedule          string `envconfig:"STANDUP_SCHEDULE"`
	NotificationsChat string `envconfig:"NOTIFICATIONS_CHANNEL_ID"`
	Port              string `envconfig:"PORT"`
	LogLevel          string `envconfig:"LOG_LEVEL"`
}

// ReadEnv reads the overrides from the process environment.
func ReadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// Overlay returns a copy of cfg with the non-empty overrides applied.
func (e Env) Overlay(cfg Config) Config {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, e.TelegramToken)
	set(&cfg.Standup.TargetUsers, e.TargetUsers)
	set(&cfg.Standup.Schedule, e.Schedule)
	set(&cfg.Standup.NotificationsChat, e.NotificationsChat)
	set(&cfg.Logging.Level, e.LogLevel)
	if p := strings.TrimSpace(e.Port); p != "" {
		cfg.HTTP.Addr = ":" + strings.TrimPrefix(p, ":")
	}
	return cfg
}
