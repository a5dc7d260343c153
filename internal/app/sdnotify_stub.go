//go:build !linux

package app

import "time"

func notifyReady() {}

func notifyStopping() {}

func notifyWatchdog() error { return nil }

func watchdogInterval() (time.Duration, error) { return 0, nil }
