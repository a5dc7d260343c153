package config

import (
	"reflect"
	"sort"
	"strings"

	logx "cronner/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections, (2) safe
// structured attrs for logging (never includes secrets like the pprof
// token), and (3) the names of jobs that were added, removed, or edited.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.tail_enabled", newCfg.Logging.Tail.Enabled),
		)
	}

	if oldCfg.Dispatcher != newCfg.Dispatcher {
		changed = append(changed, "dispatcher")
		attrs = append(attrs,
			logx.String("dispatcher.tick_interval", strings.TrimSpace(newCfg.Dispatcher.TickInterval)),
			logx.String("dispatcher.mode", newCfg.Dispatcher.Mode),
			logx.String("dispatcher.timezone", strings.TrimSpace(newCfg.Dispatcher.Timezone)),
		)
	}

	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.workers", newCfg.Engine.Workers),
			logx.Int("engine.queue_size", newCfg.Engine.QueueSize),
		)
	}

	// Pprof (never log the token itself, only whether one is set).
	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	jobsChanged := diffJobs(oldCfg.Jobs, newCfg.Jobs)
	if len(jobsChanged) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.changed_count", len(jobsChanged)),
			logx.Int("jobs.active_count", countActive(newCfg.Jobs)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, jobsChanged
}

func countActive(jobs []JobConfig) int {
	n := 0
	for _, j := range jobs {
		if j.Active() {
			n++
		}
	}
	return n
}

// diffJobs returns the names present in exactly one revision or differing
// between the two, sorted.
func diffJobs(oldJobs, newJobs []JobConfig) []string {
	oldBy := make(map[string]JobConfig, len(oldJobs))
	for _, j := range oldJobs {
		oldBy[j.Name] = j
	}
	newBy := make(map[string]JobConfig, len(newJobs))
	for _, j := range newJobs {
		newBy[j.Name] = j
	}

	set := make(map[string]struct{}, len(oldBy)+len(newBy))
	for k := range oldBy {
		set[k] = struct{}{}
	}
	for k := range newBy {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, inOld := oldBy[name]
		n, inNew := newBy[name]
		if inOld != inNew || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
