package standup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func runState(t *testing.T, st *State) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = st.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-st.Done()
	})
}

func TestStateRestore(t *testing.T) {
	t.Parallel()

	st := NewState(testLogger(), nil)
	st.Restore(
		map[string][]DailyUpdate{"2024-06-03": {{ID: "a"}, {ID: "b"}}},
		map[string]ThreadHandle{"2024-06-03": "root-1", "2024-06-02": ""},
	)
	runState(t, st)

	ctx := context.Background()
	us, err := st.Updates(ctx, "2024-06-03")
	require.NoError(t, err)
	require.Len(t, us, 2)

	h, res, err := st.ResolveThread(ctx, "2024-06-03")
	require.NoError(t, err)
	require.Nil(t, res)
	require.Equal(t, ThreadHandle("root-1"), h)

	_, res, err = st.ResolveThread(ctx, "2024-06-02")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NoError(t, res.Release())
}

func TestStateUpdatesReturnsCopy(t *testing.T) {
	t.Parallel()

	st := NewState(testLogger(), nil)
	runState(t, st)

	ctx := context.Background()
	require.NoError(t, st.Append(ctx, "d", DailyUpdate{ID: "1"}))
	us, err := st.Updates(ctx, "d")
	require.NoError(t, err)
	us[0].ID = "mutated"

	again, err := st.Updates(ctx, "d")
	require.NoError(t, err)
	require.Equal(t, "1", again[0].ID)
}

func TestReservationWaitersSeeCommit(t *testing.T) {
	t.Parallel()

	st := NewState(testLogger(), nil)
	runState(t, st)
	ctx := context.Background()

	_, res, err := st.ResolveThread(ctx, "d")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "d", res.DateKey())

	got := make(chan ThreadHandle, 1)
	go func() {
		h, r, err := st.ResolveThread(ctx, "d")
		if err == nil && r == nil {
			got <- h
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("waiter returned before commit")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, res.Commit("root"))
	require.Equal(t, ThreadHandle("root"), <-got)

	// second commit is a no-op
	require.NoError(t, res.Commit("other"))
	h, ok, err := st.Thread(ctx, "d")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ThreadHandle("root"), h)
}

func TestReservationWaiterHonorsContext(t *testing.T) {
	t.Parallel()

	st := NewState(testLogger(), nil)
	runState(t, st)

	_, res, err := st.ResolveThread(context.Background(), "d")
	require.NoError(t, err)
	defer res.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = st.ResolveThread(ctx, "d")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseHandsReservationToWaiter(t *testing.T) {
	t.Parallel()

	st := NewState(testLogger(), nil)
	runState(t, st)
	ctx := context.Background()

	_, first, err := st.ResolveThread(ctx, "d")
	require.NoError(t, err)

	next := make(chan *Reservation, 1)
	go func() {
		_, r, _ := st.ResolveThread(ctx, "d")
		next <- r
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, first.Release())

	r := <-next
	require.NotNil(t, r)
	require.NoError(t, r.Commit("root-2"))
}

// gateJournal blocks every write until release is closed.
type gateJournal struct {
	entered chan string
	release chan struct{}
}

func (j *gateJournal) AppendUpdate(ctx context.Context, dateKey string, u DailyUpdate) error {
	j.entered <- "update"
	<-j.release
	return nil
}

func (j *gateJournal) PutThread(ctx context.Context, dateKey string, h ThreadHandle) error {
	j.entered <- "thread"
	<-j.release
	return nil
}

func TestStateSlowJournalDoesNotBlockOwner(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		entry string
		write func(st *State) error
	}{
		{
			name:  "append",
			entry: "update",
			write: func(st *State) error {
				return st.Append(context.Background(), "2024-06-03", DailyUpdate{ID: "a"})
			},
		},
		{
			name:  "commit",
			entry: "thread",
			write: func(st *State) error {
				_, res, err := st.ResolveThread(context.Background(), "2024-06-03")
				if err != nil {
					return err
				}
				return res.Commit("root-1")
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := &gateJournal{entered: make(chan string, 1), release: make(chan struct{})}
			st := NewState(testLogger(), j)
			runState(t, st)

			errc := make(chan error, 1)
			go func() { errc <- tt.write(st) }()
			require.Equal(t, tt.entry, <-j.entered)

			// The journal write is parked; the owner still serves reads.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, err := st.Updates(ctx, "2024-06-03")
			require.NoError(t, err)
			_, _, err = st.Thread(ctx, "2024-06-03")
			require.NoError(t, err)

			close(j.release)
			require.NoError(t, <-errc)
		})
	}
}
