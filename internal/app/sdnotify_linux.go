//go:build linux

package app

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notifyReady tells systemd (Type=notify) startup finished. Outside a
// systemd unit the notify socket is absent and this is a silent no-op.
func notifyReady() { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }

// notifyStopping announces shutdown so systemd stops counting the unit's
// watchdog while we drain.
func notifyStopping() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }

func notifyWatchdog() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	return err
}

// watchdogInterval reports the WatchdogSec declared by the unit, 0 when
// the watchdog is not armed.
func watchdogInterval() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}
