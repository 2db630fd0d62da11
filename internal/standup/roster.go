package standup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"standupbot/internal/schedule"
)

// ParseSchedule parses the configured trigger string, reporting failures as
// a ConfigurationError.
func ParseSchedule(raw string) (schedule.Spec, error) {
	s, err := schedule.Parse(raw)
	if err != nil {
		return schedule.Spec{}, &ConfigurationError{Field: "standup.schedule", Value: raw, Err: err}
	}
	return s, nil
}

// ParseRoster parses comma-separated "userId:timezone" entries. A missing
// timezone falls back to defaultTZ (or DefaultTimezone when empty).
//
// Entries with an unknown timezone are left out and reported in the returned
// error; the valid entries are still returned so a tick can proceed with them.
func ParseRoster(raw, defaultTZ string) ([]UserConfig, error) {
	if strings.TrimSpace(defaultTZ) == "" {
		defaultTZ = DefaultTimezone
	}

	var (
		users []UserConfig
		errs  []error
		seen  = map[string]bool{}
	)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, tz, _ := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		tz = strings.TrimSpace(tz)
		if id == "" {
			errs = append(errs, fmt.Errorf("entry %q: missing user id", entry))
			continue
		}
		if tz == "" {
			tz = defaultTZ
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q: unknown timezone %q", entry, tz))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("entry %q: duplicate user id", entry))
			continue
		}
		seen[id] = true
		users = append(users, UserConfig{UserID: id, Timezone: tz, Location: loc})
	}

	if len(errs) > 0 {
		return users, &ConfigurationError{Field: "standup.target_users", Value: raw, Err: errors.Join(errs...)}
	}
	return users, nil
}

// RequireRoster is ParseRoster for startup: any bad entry or an empty result
// is a ConfigurationError.
func RequireRoster(raw, defaultTZ string) ([]UserConfig, error) {
	users, err := ParseRoster(raw, defaultTZ)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, &ConfigurationError{Field: "standup.target_users", Value: raw, Err: ErrEmptyRoster}
	}
	return users, nil
}

// RosterFunc re-derives the roster from live configuration. It is called
// once per tick and never cached.
type RosterFunc func() ([]UserConfig, error)
