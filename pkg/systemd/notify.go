// Package systemd speaks the sd_notify protocol when running under a
// Type=notify unit. Every call is a no-op outside systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "standupbot/pkg/logx"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready reports READY=1. It returns false when NOTIFY_SOCKET is unset.
func Ready(log logx.Logger) bool {
	return send(log, daemon.SdNotifyReady)
}

// Stopping reports STOPPING=1.
func Stopping(log logx.Logger) bool {
	return send(log, daemon.SdNotifyStopping)
}

// Reloaded reports a finished config reload.
func Reloaded(log logx.Logger) bool {
	return send(log, daemon.SdNotifyReady)
}

func send(log logx.Logger, state string) bool {
	ok, err := notify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

// Watchdog pings WATCHDOG=1 at half the unit's WatchdogSec until ctx is
// done. It returns immediately when the watchdog is not enabled.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("watchdog probe failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	runWatchdog(ctx, log, interval/2)
}

func runWatchdog(ctx context.Context, log logx.Logger, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	log.Debug("watchdog enabled", logx.Duration("every", every))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			send(log, daemon.SdNotifyWatchdog)
		}
	}
}
