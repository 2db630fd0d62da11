package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"standupbot/internal/schedule"
	"standupbot/internal/standup"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"TELEGRAM_TOKEN", "TARGET_USERS", "STANDUP_SCHEDULE", "NOTIFICATIONS_CHANNEL_ID", "PORT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestExitCodes(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		body string
		cmd  string
		want int
	}{
		{
			name: "valid schedule",
			body: "standup:\n  schedule: \"30 9 * * 1-5\"\n  target_users: \"1:UTC\"\n",
			cmd:  "schedule",
			want: exitOK,
		},
		{
			name: "bad schedule",
			body: "standup:\n  schedule: \"x 9 * * *\"\n  target_users: \"1:UTC\"\n",
			cmd:  "schedule",
			want: exitConfig,
		},
		{
			name: "empty roster",
			body: "standup:\n  target_users: \"\"\n",
			cmd:  "roster",
			want: exitConfig,
		},
		{
			name: "unknown field",
			body: "standup:\n  nope: 1\n",
			cmd:  "roster",
			want: exitError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			require.Equal(t, tt.want, run([]string{tt.cmd, "--config", path}))
		})
	}
}

func TestPrintSchedule(t *testing.T) {
	t.Parallel()

	spec, err := schedule.Parse("0 9 * * 1-5")
	require.NoError(t, err)
	users, err := standup.RequireRoster("1:America/New_York", "")
	require.NoError(t, err)

	// Friday 2024-06-07 15:00 UTC is 11:00 in New York.
	now := time.Date(2024, 6, 7, 15, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printSchedule(&buf, spec, users, now, 2)

	out := buf.String()
	require.Contains(t, out, "schedule: 09:00 on weekdays [1,2,3,4,5]")
	require.Contains(t, out, "1 (America/New_York)")
	require.Contains(t, out, "Mon 2024-06-10 09:00 EDT")
	require.Contains(t, out, "Tue 2024-06-11 09:00 EDT")
}
