package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func staticEnv(e Env) func() (Env, error) {
	return func() (Env, error) { return e, nil }
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseJSONAndYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "c.json", `{
		"telegram": {"token": "t"},
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "chat": {"enabled": false, "min_level": "", "rate_per_sec": 0}},
		"standup": {"schedule": "30 8 * * 1-5", "target_users": "1:UTC"}
	}`)
	yamlPath := writeFile(t, dir, "c.yaml", `
telegram:
  token: t
logging:
  level: debug
  console: true
standup:
  schedule: "30 8 * * 1-5"
  target_users: "1:UTC"
`)

	for _, p := range []string{jsonPath, yamlPath} {
		m := NewManager(p)
		m.readEnv = staticEnv(Env{})
		cfg, err := m.Load()
		require.NoError(t, err, p)
		require.Equal(t, "t", cfg.Telegram.Token)
		require.Equal(t, "30 8 * * 1-5", cfg.Standup.Schedule)
		require.Equal(t, "1:UTC", cfg.Standup.TargetUsers)
		require.Same(t, cfg, m.Get())
	}
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown.json":  `{"standup": {"shedule": "x"}}`,
		"trailing.json": `{} {}`,
		"unknown.yaml":  "http:\n  port: 1\n",
	} {
		m := NewManager(writeFile(t, dir, name, body))
		m.readEnv = staticEnv(Env{})
		_, err := m.Parse()
		require.Error(t, err, name)
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()

	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	m.readEnv = staticEnv(Env{TargetUsers: "1:UTC"})
	_, err := m.Parse()
	require.Error(t, err)

	m.AllowMissing(true)
	cfg, err := m.Parse()
	require.NoError(t, err)
	require.Equal(t, "1:UTC", cfg.Standup.TargetUsers)
}

func TestEnvOverlay(t *testing.T) {
	t.Parallel()

	base := Config{}
	base.Standup.Schedule = "0 9 * * 1-5"
	base.Standup.TargetUsers = "1:UTC"
	base.HTTP.Addr = ":8080"

	got := Env{TargetUsers: "2:Asia/Tokyo", Port: "4000", NotificationsChat: " "}.Overlay(base)
	require.Equal(t, "2:Asia/Tokyo", got.Standup.TargetUsers)
	require.Equal(t, "0 9 * * 1-5", got.Standup.Schedule)
	require.Equal(t, ":4000", got.HTTP.Addr)
	require.Empty(t, got.Standup.NotificationsChat)
	require.Equal(t, "1:UTC", base.Standup.TargetUsers)
}

func TestReadEnv(t *testing.T) {
	t.Setenv("TARGET_USERS", "7:UTC")
	t.Setenv("STANDUP_SCHEDULE", "0 10 * * 1")
	e, err := ReadEnv()
	require.NoError(t, err)
	require.Equal(t, "7:UTC", e.TargetUsers)
	require.Equal(t, "0 10 * * 1", e.Schedule)
}

func TestLiveRereadsEnv(t *testing.T) {
	t.Parallel()

	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	m.AllowMissing(true)
	env := Env{TargetUsers: "1:UTC"}
	m.readEnv = func() (Env, error) { return env, nil }
	_, err := m.Load()
	require.NoError(t, err)

	env.TargetUsers = "1:UTC,2:UTC"
	require.Equal(t, "1:UTC,2:UTC", m.Live().Standup.TargetUsers)
}

func TestStandupResolveDefaults(t *testing.T) {
	t.Parallel()

	s, err := StandupConfig{NotificationsChat: "-100:5"}.Resolve()
	require.NoError(t, err)
	require.Equal(t, DefaultSchedule, s.Schedule)
	require.Equal(t, DefaultTimezone, s.DefaultTimezone)
	require.Equal(t, DefaultNotifyTimeout, s.NotifyTimeout)
	require.Equal(t, DefaultNotifyWorkers, s.NotifyWorkers)
	require.Equal(t, int64(-100), s.NotificationsChat.ChatID)
	require.Equal(t, 5, s.NotificationsChat.ThreadID)
	require.Equal(t, time.Local, s.DateLocation)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(&Config{}))

	bad := &Config{}
	bad.Standup.NotifyTimeout = "soon"
	bad.Standup.DateKeyTimezone = "Nowhere/Else"
	bad.Storage.Driver = "mongo"
	bad.Logging.Level = "loud"
	err := Validate(bad)
	require.Error(t, err)
	for _, s := range []string{"standup.notify_timeout", "standup.date_key_timezone", "storage.driver", "logging.level"} {
		require.Contains(t, err.Error(), s)
	}

	needPath := &Config{Storage: StorageConfig{Driver: "sqlite"}}
	require.ErrorContains(t, Validate(needPath), "storage.path")
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	o := &Config{}
	n := &Config{}
	n.Standup.TargetUsers = "1:UTC"
	n.HTTP.Addr = ":9"
	changed, attrs := SummarizeChange(o, n)
	require.Equal(t, []string{"http", "standup"}, changed)
	require.NotEmpty(t, attrs)
	require.Equal(t, []string{"http"}, RestartOnly(changed))
}

func TestReloadValidatesAndPublishes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"standup": {"target_users": "1:UTC"}}`)
	m := NewManager(p)
	m.readEnv = staticEnv(Env{})
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	rejectAll := true
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if rejectAll {
			return os.ErrInvalid
		}
		return nil
	})

	writeFile(t, dir, "c.json", `{"standup": {"target_users": "2:UTC"}}`)
	require.False(t, m.reload(context.Background()))
	require.Equal(t, "1:UTC", m.Get().Standup.TargetUsers)

	rejectAll = false
	require.True(t, m.reload(context.Background()))
	require.Equal(t, "2:UTC", (<-ch).Standup.TargetUsers)

	// same content again is a no-op
	require.False(t, m.reload(context.Background()))
}

func TestWatchPicksUpChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"standup": {"target_users": "1:UTC"}}`)
	m := NewManager(p)
	m.readEnv = staticEnv(Env{})
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "c.json", `{"standup": {"target_users": "3:UTC"}}`)

	select {
	case cfg := <-ch:
		require.Equal(t, "3:UTC", cfg.Standup.TargetUsers)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}
