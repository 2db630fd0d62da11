package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"standupbot/internal/config"
	"standupbot/internal/standup"
	"standupbot/internal/storage"
	logx "standupbot/pkg/logx"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		return &config.Config{
			Telegram: config.TelegramConfig{Token: "t"},
			Standup:  config.StandupConfig{TargetUsers: "1:UTC,2"},
		}
	}

	tests := []struct {
		name       string
		mutate     func(c *config.Config)
		wantErr    bool
		wantConfig bool
	}{
		{name: "ok", mutate: func(*config.Config) {}},
		{name: "bad schedule", mutate: func(c *config.Config) { c.Standup.Schedule = "x 9 * * *" }, wantErr: true, wantConfig: true},
		{name: "empty roster", mutate: func(c *config.Config) { c.Standup.TargetUsers = "" }, wantErr: true, wantConfig: true},
		{name: "bad roster tz", mutate: func(c *config.Config) { c.Standup.TargetUsers = "1:Mars/Base" }, wantErr: true, wantConfig: true},
		{name: "bad duration", mutate: func(c *config.Config) { c.Standup.PostTimeout = "soon" }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := validate(c)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, tt.wantConfig, standup.IsConfigurationError(err))
		})
	}
}

func TestJournalReplay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "standup.db")
	store, err := storage.Open(storage.Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	j := newJournal(store)
	old := standup.DailyUpdate{ID: "old", UserID: "1", SubmittedAt: now.AddDate(0, 0, -30)}
	cur := standup.DailyUpdate{ID: "cur", UserID: "1", SubmittedAt: now, Today: "ship"}
	require.NoError(t, j.AppendUpdate(ctx, "2024-05-11", old))
	require.NoError(t, j.AppendUpdate(ctx, "2024-06-10", cur))
	require.NoError(t, j.PutThread(ctx, "2024-06-10", "chat:0:77"))

	st := standup.NewState(logx.Nop(), nil)
	n, th, err := replay(ctx, store, st, now, time.UTC)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, th)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = st.Run(runCtx) }()

	us, err := st.Updates(ctx, "2024-06-10")
	require.NoError(t, err)
	require.Len(t, us, 1)
	require.Equal(t, "ship", us[0].Today)

	h, ok, err := st.Thread(ctx, "2024-06-10")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, standup.ThreadHandle("chat:0:77"), h)

	us, err = st.Updates(ctx, "2024-05-11")
	require.NoError(t, err)
	require.Empty(t, us)
}

func TestReplayWithoutStore(t *testing.T) {
	t.Parallel()

	require.Nil(t, newJournal(nil))
	n, th, err := replay(context.Background(), nil, standup.NewState(logx.Nop(), nil), time.Now(), time.UTC)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, th)
}
