package systemd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/require"

	logx "standupbot/pkg/logx"
)

// Tests swap the package-level notify func, so they run serially.

type recorder struct {
	mu     sync.Mutex
	states []string
	ok     bool
	err    error
}

func (r *recorder) fn(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return r.ok, r.err
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func swap(t *testing.T, r *recorder) {
	prev := notify
	notify = r.fn
	t.Cleanup(func() { notify = prev })
}

func TestReadyAndStopping(t *testing.T) {
	r := &recorder{ok: true}
	swap(t, r)

	require.True(t, Ready(logx.Nop()))
	require.True(t, Stopping(logx.Nop()))
	require.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, r.states)
}

func TestNotifyErrorIsSoft(t *testing.T) {
	swap(t, &recorder{err: errors.New("socket gone")})
	require.False(t, Ready(logx.Nop()))
}

func TestOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	require.False(t, Ready(logx.Nop()))

	done := make(chan struct{})
	go func() {
		Watchdog(context.Background(), logx.Nop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog should return when disabled")
	}
}

func TestRunWatchdog(t *testing.T) {
	r := &recorder{ok: true}
	swap(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runWatchdog(ctx, logx.Nop(), 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return r.count(daemon.SdNotifyWatchdog) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
