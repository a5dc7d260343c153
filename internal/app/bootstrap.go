package app

import (
	"time"

	"cronner/internal/config"
	"cronner/internal/runtime/supervisor"
)

// ---- Config ----

type Config = config.Config

type JobConfig = config.JobConfig

type Manager = config.Manager

var NewManager = config.NewManager

// SummarizeConfigChange produces a safe, structured summary of config diffs.
// Kept here as an alias so the reload loop doesn't need to import
// internal/config directly.
var SummarizeConfigChange = config.SummarizeChange

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.New

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError
