package config

type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Dispatcher DispatcherConfig `json:"dispatcher"`

	// Engine controls the worker pool jobs execute on. Ignored when the
	// dispatcher runs in inline mode.
	Engine EngineConfig `json:"engine,omitempty"`

	Pprof PprofConfig `json:"pprof,omitempty"`

	// Jobs are command jobs registered at startup and reconciled on every
	// config reload: entries are upserted by name, absent names removed.
	Jobs []JobConfig `json:"jobs" validate:"omitempty,dive"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Tail    LoggingTail `json:"tail"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTail mirrors the warn+ tail sink: a second, rate-limited file
// holding only the serious lines.
type LoggingTail struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=trace debug info warn error"`
	RatePerSec int    `json:"rate_per_sec" validate:"omitempty,min=1,max=1000"`
}

// DispatcherConfig controls the tick loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type DispatcherConfig struct {
	// TickInterval is the poll period. Default "1s". Calendar constraints
	// have second granularity, so coarser ticks observe due instants late.
	TickInterval string `json:"tick_interval,omitempty" validate:"omitempty,duration"`

	// Mode is "pool" (default) or "inline".
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=inline pool"`

	// Timezone is the IANA zone schedules are evaluated in. Empty means
	// the process-local zone.
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

type EngineConfig struct {
	Workers   int `json:"workers,omitempty" validate:"omitempty,min=1,max=256"`
	QueueSize int `json:"queue_size,omitempty" validate:"omitempty,min=1,max=65536"`
}

// JobConfig declares one command job.
//
// Example:
//
//	{ "name": "backup", "schedule": "every:1d hour:3", "command": ["/usr/local/bin/backup.sh"] }
type JobConfig struct {
	Name string `json:"name" validate:"required,max=128"`

	// Schedule accepts the rule grammar ("every:5m hour:8-10", "30s",
	// "07:30") or a cron expression ("*/5 * * * *", "cron:0 3 * * *",
	// "@hourly").
	Schedule string `json:"schedule" validate:"required,schedule"`

	// Command is argv; Command[0] is the executable.
	Command []string `json:"command" validate:"required,min=1,dive,required"`

	Dir string            `json:"dir,omitempty"`
	Env map[string]string `json:"env,omitempty"`

	// Spread delays the first fire by a random amount up to this duration,
	// de-synchronizing herds of jobs with identical schedules.
	Spread string `json:"spread,omitempty" validate:"omitempty,duration"`

	// Enabled is a pointer so "omitted" (true) is distinct from an
	// explicit false.
	Enabled *bool `json:"enabled,omitempty"`

	Meta map[string]string `json:"meta,omitempty"`
}

// Active reports whether the job should be registered.
func (j JobConfig) Active() bool { return j.Enabled == nil || *j.Enabled }

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty" validate:"omitempty,duration"`
	WriteTimeout string `json:"write_timeout,omitempty" validate:"omitempty,duration"`
	IdleTimeout  string `json:"idle_timeout,omitempty" validate:"omitempty,duration"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
