package app

import (
	"context"
	"errors"

	"standupbot/internal/config"
	"standupbot/internal/standup"
)

// validate checks a whole config, including schedule and roster syntax.
// Schedule and roster failures come back as *standup.ConfigurationError.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	sc, err := cfg.Standup.Resolve()
	if err != nil {
		return err
	}
	var errs []error
	if _, err := standup.ParseSchedule(sc.Schedule); err != nil {
		errs = append(errs, err)
	}
	if _, err := standup.RequireRoster(sc.TargetUsers, sc.DefaultTimezone); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// reloadValidator rejects a reloaded config that would not start.
func reloadValidator(_ context.Context, cfg *config.Config) error {
	return validate(cfg)
}
