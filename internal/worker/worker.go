package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"arkiv/internal/config"
	"arkiv/internal/locks"
	"arkiv/internal/logging"
	"arkiv/internal/pipeline"
	"arkiv/internal/tasks"
)

// Pool runs a fixed number of workers against one stage queue. Workers are
// stateless; all coordination happens through the task store and the lock
// service, so pools in separate processes behave identically.
type Pool struct {
	queue    tasks.Queue
	workers  int
	tasks    *tasks.Store
	locks    *locks.Service
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	pollInterval time.Duration
	retryDelay   time.Duration
	taskLease    time.Duration
	objectLease  time.Duration
}

// NewPool constructs a worker pool for a queue.
func NewPool(
	queue tasks.Queue,
	workers int,
	taskStore *tasks.Store,
	lockService *locks.Service,
	pl *pipeline.Pipeline,
	cfg *config.Config,
	logger *slog.Logger,
) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		queue:        queue,
		workers:      workers,
		tasks:        taskStore,
		locks:        lockService,
		pipeline:     pl,
		logger:       logging.WithComponent(logger, "worker").With(logging.Queue(string(queue))),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		taskLease:    time.Duration(cfg.Workflow.TaskLease) * time.Second,
		objectLease:  time.Duration(cfg.Workflow.ObjectLockLease) * time.Second,
	}
}

// Run starts the pool's workers and blocks until the context is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	holder := locks.NewHolder()
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := p.tasks.Claim(ctx, p.queue, holder, p.taskLease)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("claim task", logging.Error(err))
			p.sleep(ctx, p.retryDelay)
			continue
		}
		if task == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}
		p.process(ctx, task, holder)
	}
}

// process runs one claimed task under the object's lock. The per-object
// lock rejects duplicate dispatch across queues; the conditional status
// transition inside the stage rejects duplicates that slip past the lock
// after a lease expiry.
func (p *Pool) process(ctx context.Context, task *tasks.Task, holder string) {
	logger := p.logger.With(logging.TaskID(task.ID), logging.ObjectID(task.ObjectID))

	lockName := locks.ObjectLockName(task.ObjectID)
	if err := p.locks.Acquire(ctx, lockName, holder, p.objectLease); err != nil {
		if errors.Is(err, locks.ErrBusy) {
			logger.Debug("object lock busy, releasing task")
			if err := p.tasks.Release(ctx, task.ID, p.retryDelay); err != nil {
				logger.Error("release task", logging.Error(err))
			}
			return
		}
		logger.Error("acquire object lock", logging.Error(err))
		if err := p.tasks.Release(ctx, task.ID, p.retryDelay); err != nil {
			logger.Error("release task", logging.Error(err))
		}
		return
	}
	defer func() {
		if err := p.locks.Release(context.WithoutCancel(ctx), lockName, holder); err != nil {
			logger.Error("release object lock", logging.Error(err))
		}
	}()

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	renewDone := make(chan struct{})
	go p.renewLeases(stageCtx, cancel, renewDone, task.ID, lockName, holder)

	outcome, stageErr := p.pipeline.Apply(stageCtx, task)
	cancel()
	<-renewDone

	// Bookkeeping after the stage must not be lost to shutdown.
	finishCtx := context.WithoutCancel(ctx)
	if stageErr != nil {
		p.finishFailed(finishCtx, task, stageErr, logger)
		return
	}

	if err := p.tasks.Complete(finishCtx, task.ID); err != nil {
		logger.Error("complete task", logging.Error(err))
		return
	}
	if outcome.Next != nil {
		if _, err := p.tasks.Enqueue(finishCtx, *outcome.Next); err != nil && !errors.Is(err, tasks.ErrActiveExists) {
			logger.Error("enqueue chained task", logging.Error(err), logging.Queue(string(outcome.Next.Queue)))
		}
	}
}

func (p *Pool) finishFailed(ctx context.Context, task *tasks.Task, stageErr error, logger *slog.Logger) {
	switch p.pipeline.HandleFailure(ctx, task, stageErr) {
	case pipeline.DispositionDrop:
		logger.Warn("task dropped on conflict", logging.Error(stageErr))
		if err := p.tasks.Complete(ctx, task.ID); err != nil {
			logger.Error("complete conflicting task", logging.Error(err))
		}
	case pipeline.DispositionRelease:
		logger.Debug("task released", logging.Error(stageErr))
		if err := p.tasks.Release(ctx, task.ID, p.retryDelay); err != nil {
			logger.Error("release task", logging.Error(err))
		}
	case pipeline.DispositionDead, pipeline.DispositionFreeze:
		logger.Error("task dead-lettered", logging.Error(stageErr))
		if err := p.tasks.Dead(ctx, task.ID, stageErr.Error()); err != nil {
			logger.Error("dead-letter task", logging.Error(err))
		}
	default:
		retried, err := p.tasks.Retry(ctx, task, stageErr.Error())
		if err != nil {
			logger.Error("retry task", logging.Error(err))
			return
		}
		if retried {
			logger.Warn("task scheduled for retry",
				logging.Error(stageErr),
				logging.Int("attempt", task.Attempts),
			)
		} else {
			logger.Error("task exhausted attempts", logging.Error(stageErr))
		}
	}
}

// renewLeases keeps the task lease and object lock alive during long stage
// work. Losing either means another worker may own the object now, so the
// stage context is cancelled immediately.
func (p *Pool) renewLeases(ctx context.Context, cancel context.CancelFunc, done chan<- struct{}, taskID int64, lockName, holder string) {
	defer close(done)

	interval := p.taskLease / 3
	if objectInterval := p.objectLease / 3; objectInterval < interval {
		interval = objectInterval
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.tasks.RenewLease(ctx, taskID, holder, p.taskLease); err != nil {
				if !errors.Is(err, context.Canceled) {
					p.logger.Error("task lease lost", logging.TaskID(taskID), logging.Error(err))
					cancel()
				}
				return
			}
			if err := p.locks.Renew(ctx, lockName, holder, p.objectLease); err != nil {
				if !errors.Is(err, context.Canceled) {
					p.logger.Error("object lock lost", logging.TaskID(taskID), logging.Error(err))
					cancel()
				}
				return
			}
		}
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
