package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	logx "cronner/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask, idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt, ok := <-queue:
			if !ok {
				// A closed queue means the pool was torn down.
				return
			}
			atomic.AddInt32(&s.inFlight, 1)
			s.execOne(ctx, qt)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	queueDelay := time.Duration(0)
	if !qt.enqueuedAt.IsZero() {
		queueDelay = start.Sub(qt.enqueuedAt)
		if queueDelay < 0 {
			queueDelay = 0
		}
	}

	s.log.Debug("task started",
		logx.String("job", qt.task.Job), logx.String("id", qt.task.ID), logx.Duration("queue_delay", queueDelay))

	var err error
	// Guard against task panics: convert to error so one bad job can't
	// crash the process or permanently kill a worker.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task panicked",
					logx.String("job", qt.task.Job), logx.String("id", qt.task.ID),
					logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		err = qt.task.Run(ctx)
	}()

	dur := time.Since(start)
	if err != nil {
		s.log.Debug("task failed",
			logx.String("job", qt.task.Job), logx.String("id", qt.task.ID), logx.Duration("dur", dur), logx.Err(err))
	} else if dur >= 750*time.Millisecond {
		s.log.Info("task completed",
			logx.String("job", qt.task.Job), logx.String("id", qt.task.ID), logx.Duration("dur", dur))
	} else {
		s.log.Debug("task completed",
			logx.String("job", qt.task.Job), logx.String("id", qt.task.ID), logx.Duration("dur", dur))
	}

	if qt.task.Done != nil {
		qt.task.Done(err)
	}
}
