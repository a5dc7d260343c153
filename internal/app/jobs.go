package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"cronner/pkg/dispatch"
	logx "cronner/pkg/logx"
	"cronner/pkg/rule"
)

// maxCommandOutput caps captured stdout+stderr per invocation; the rest is
// counted and dropped so a chatty command can't flood the log.
const maxCommandOutput = 16 << 10

// applyJobs registers every active config job. Startup fails on the first
// bad one; reloads never get here with an invalid config (the manager
// validates before committing).
func (a *App) applyJobs(jobs []JobConfig) error {
	for i := range jobs {
		jc := jobs[i]
		if !jc.Active() {
			continue
		}
		if err := a.addConfigJob(jc); err != nil {
			return fmt.Errorf("jobs[%d] %q: %w", i, jc.Name, err)
		}
	}
	return nil
}

// addConfigJob parses the schedule and upserts the job by name.
func (a *App) addConfigJob(jc JobConfig) error {
	sched, err := rule.Parse(jc.Schedule)
	if err != nil {
		return err
	}
	spread, err := parseDurationOrDefault("jobs."+jc.Name+".spread", jc.Spread, 0)
	if err != nil {
		return err
	}
	_, err = a.disp.Add(dispatch.JobSpec{
		Name:     jc.Name,
		Schedule: sched,
		Run:      a.commandCallable(jc),
		Meta:     jc.Meta,
		Spread:   spread,
	})
	return err
}

// reconcileJobs applies a job-section diff: changed names present and
// active in the new config are upserted, the rest removed. An upsert
// replaces the registration whole, so an edited job starts over with a
// fresh cadence anchor.
func (a *App) reconcileJobs(changed []string, cfg *Config) {
	byName := make(map[string]JobConfig, len(cfg.Jobs))
	for _, jc := range cfg.Jobs {
		byName[jc.Name] = jc
	}
	for _, name := range changed {
		jc, ok := byName[name]
		if ok && jc.Active() {
			if err := a.addConfigJob(jc); err != nil {
				a.log.Warn("job upsert failed; previous registration kept",
					logx.String("job", name), logx.Err(err))
			}
			continue
		}
		if err := a.disp.Remove(name); err != nil && !errors.Is(err, dispatch.ErrNotFound) {
			a.log.Warn("job remove failed", logx.String("job", name), logx.Err(err))
		}
	}
}

// commandCallable builds the dispatch callable for one command job. It
// snapshots the JobConfig: edits arrive as a fresh registration via
// reconcile, never by mutating a live closure.
func (a *App) commandCallable(jc JobConfig) dispatch.Callable {
	argv := append([]string(nil), jc.Command...)
	dir := jc.Dir
	env := make(map[string]string, len(jc.Env))
	for k, v := range jc.Env {
		env[k] = v
	}
	log := a.log.With(logx.String("job", jc.Name))

	return func(ctx context.Context) error {
		if len(argv) == 0 {
			return errors.New("empty command")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		cmd.Env = commandEnv(env)

		out := &boundedBuffer{limit: maxCommandOutput}
		cmd.Stdout = out
		cmd.Stderr = out

		start := time.Now()
		err := cmd.Run()
		dur := time.Since(start)

		fields := []logx.Field{logx.Duration("dur", dur)}
		if s := strings.TrimSpace(out.String()); s != "" {
			fields = append(fields, logx.String("output", s))
		}
		if out.dropped > 0 {
			fields = append(fields, logx.Int("output_dropped_bytes", out.dropped))
		}

		if err != nil {
			var xerr *exec.ExitError
			if errors.As(err, &xerr) {
				fields = append(fields, logx.Int("exit_code", xerr.ExitCode()))
			}
			log.Warn("command failed", fields...)
			return fmt.Errorf("%s: %w", argv[0], err)
		}
		log.Debug("command completed", fields...)
		return nil
	}
}

// commandEnv extends the process environment with the job's overrides,
// sorted for deterministic invocations. nil means inherit unchanged.
func commandEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// boundedBuffer keeps the first limit bytes and counts the rest.
type boundedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := b.limit - b.buf.Len(); room > 0 {
		if n <= room {
			b.buf.Write(p)
		} else {
			b.buf.Write(p[:room])
			b.dropped += n - room
		}
	} else {
		b.dropped += n
	}
	return n, nil
}

func (b *boundedBuffer) String() string { return b.buf.String() }
