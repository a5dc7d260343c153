package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	rtsup "cronner/internal/runtime/supervisor"
	logx "cronner/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	q chan queuedTask

	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	inFlight int32
	dropped  uint64

	queueFullWarn rate.Sometimes
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:           cfg.withDefaults(),
		log:           log,
		queueFullWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Supervisor returns the engine's internal supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

// Apply swaps the config; a running pool restarts when the worker count or
// queue size changed.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	if !running {
		return
	}
	if prev.Workers != cfg.Workers || prev.QueueSize != cfg.QueueSize {
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent. Workers run under an internal supervisor and are
// restarted if they panic.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	cfg := s.cfg

	if s.stopCh != nil {
		// If stopping, wait for it to finish before restarting.
		done := s.stopDone
		s.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
		} else {
			return
		}
		s.mu.Lock()
		// Re-check after wait.
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	s.q = make(chan queuedTask, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	stopCh := s.stopCh
	queue := s.q
	workers := cfg.Workers
	atomic.StoreInt32(&s.inFlight, 0)

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "engine"))),
		// Worker failures must not hard-kill the app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		idx := i
		name := fmt.Sprintf("worker.%d", idx)
		sup.GoRestart(name, func(c context.Context) error {
			s.worker(c, stopCh, queue, idx)
			// Clean exits happen only on shutdown.
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		})
	}

	s.log.Info("engine started", logx.Int("workers", workers), logx.Int("queue", cap(queue)))
}

// Stop drains the pool: workers finish their in-flight task, tasks still
// queued never start and get their Done with ErrStopped, and the call
// returns when everything exited or ctx expired.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	// If already stopping, wait.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup := s.sup
	queue := s.q
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
	}

	go func() {
		// Wait unbounded in background; caller can still time out.
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		// Workers are gone and Enqueue refuses once stopDone is set, so
		// whatever sits in the queue now is final. Collect the callbacks
		// under the lock, deliver after, so callers can take their own
		// locks inside Done.
		var abandoned []func(error)
	drain:
		for {
			select {
			case qt := <-queue:
				if qt.task.Done != nil {
					abandoned = append(abandoned, qt.task.Done)
				}
			default:
				break drain
			}
		}
		s.q = nil
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		atomic.StoreInt32(&s.inFlight, 0)
		s.mu.Unlock()
		for _, fn := range abandoned {
			fn(ErrStopped)
		}
		if n := len(abandoned); n > 0 {
			s.log.Debug("queued tasks abandoned at stop", logx.Int("count", n))
		}
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("engine stopped")
	case <-ctx.Done():
		s.log.Warn("engine stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue hands a task to the pool without blocking. A full queue refuses
// the task with ErrQueueFull; the caller decides what a refusal means.
// The send happens under the service lock so that a task accepted here is
// guaranteed to either run or be handed ErrStopped by Stop's drain.
func (s *Service) Enqueue(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task Run is nil")
	}
	if strings.TrimSpace(t.Job) == "" {
		return fmt.Errorf("task Job is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.q == nil || s.stopCh == nil {
		return ErrStopped
	}
	if s.stopDone != nil {
		return ErrStopping
	}

	select {
	case s.q <- queuedTask{task: t, enqueuedAt: time.Now()}:
		return nil
	default:
		atomic.AddUint64(&s.dropped, 1)
		s.queueFullWarn.Do(func() {
			s.log.Warn("task refused: queue full",
				logx.String("job", t.Job),
				logx.String("id", t.ID),
				logx.Int("queue_len", len(s.q)),
				logx.Int("queue_cap", cap(s.q)),
				logx.Uint64("dropped", atomic.LoadUint64(&s.dropped)),
			)
		})
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	snap := Snapshot{
		Running:  running,
		Workers:  cfg.Workers,
		InFlight: int(atomic.LoadInt32(&s.inFlight)),
		Dropped:  atomic.LoadUint64(&s.dropped),
	}
	if q != nil {
		snap.QueueLen = len(q)
		snap.QueueCap = cap(q)
	}
	return snap
}
