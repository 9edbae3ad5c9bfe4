package enqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"arkiv/internal/config"
	"arkiv/internal/locks"
	"arkiv/internal/logging"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
)

// renewEvery bounds how many tasks are queued between lease renewals, so a
// large batch cannot outlive the workflow lock.
const renewEvery = 100

// Engine decides which objects are due for (re)preservation and queues
// their download tasks. Every run holds the workflow lock so concurrent
// enqueue attempts, from administrators or the deferred loop, cannot race
// each other or a freeze in progress.
type Engine struct {
	store  *store.Store
	tasks  *tasks.Store
	locks  *locks.Service
	logger *slog.Logger

	windows  store.Windows
	batch    int
	interval time.Duration
	lease    time.Duration
}

// New constructs an enqueue engine.
func New(st *store.Store, taskStore *tasks.Store, lockService *locks.Service, cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:  st,
		tasks:  taskStore,
		locks:  lockService,
		logger: logging.WithComponent(logger, "enqueue"),
		windows: store.Windows{
			PreservationDelay: cfg.PreservationDelay(),
			UpdateDelay:       cfg.UpdateDelay(),
		},
		batch:    cfg.Workflow.EnqueueBatch,
		interval: time.Duration(cfg.Workflow.EnqueueInterval) * time.Second,
		lease:    time.Duration(cfg.Workflow.SyncLockLease) * time.Second,
	}
}

// Run selects up to limit eligible objects and queues a download task for
// each, returning the number queued. A limit of zero means no cap.
func (e *Engine) Run(ctx context.Context, limit int) (int, error) {
	return e.run(ctx, limit, nil)
}

// RunIDs queues download tasks for the given objects only. The eligibility
// predicate still applies: frozen objects, objects with active tasks, and
// objects inside their delay window are skipped, not forced.
func (e *Engine) RunIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, errors.New("no object ids given")
	}
	return e.run(ctx, 0, ids)
}

func (e *Engine) run(ctx context.Context, limit int, ids []string) (int, error) {
	holder := locks.NewHolder()
	if err := e.locks.Acquire(ctx, locks.NameWorkflow, holder, e.lease); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	defer func() {
		if err := e.locks.Release(context.WithoutCancel(ctx), locks.NameWorkflow, holder); err != nil {
			e.logger.Error("release workflow lock", logging.Error(err))
		}
	}()

	eligible, err := e.store.SelectEligible(ctx, time.Now(), e.windows, limit, ids...)
	if err != nil {
		return 0, err
	}
	// The scan may have consumed a fair share of the lease; a lost lock
	// means another enqueue or a freeze may already be running.
	if err := e.locks.Renew(ctx, locks.NameWorkflow, holder, e.lease); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	queued := 0
	for i, object := range eligible {
		if i > 0 && i%renewEvery == 0 {
			if err := e.locks.Renew(ctx, locks.NameWorkflow, holder, e.lease); err != nil {
				return queued, fmt.Errorf("enqueue: %w", err)
			}
		}
		_, err := e.tasks.Enqueue(ctx, tasks.Spec{Queue: tasks.QueueDownloadObject, ObjectID: object.ID})
		if errors.Is(err, tasks.ErrActiveExists) {
			continue
		}
		if err != nil {
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		e.logger.Info("objects queued for preservation", logging.Int("count", queued))
	}
	return queued, nil
}

// RunDeferred loops until the context is cancelled, queuing eligible
// objects incrementally whenever deferred enqueue is enabled. The toggle
// lives in the store so CLI and daemon agree on it across processes.
func (e *Engine) RunDeferred(ctx context.Context) {
	interval := e.interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		enabled, err := e.store.GetSetting(ctx, store.SettingDeferredEnqueue, "disabled")
		if err != nil {
			e.logger.Error("read deferred enqueue setting", logging.Error(err))
			continue
		}
		if enabled != "enabled" {
			continue
		}

		if _, err := e.Run(ctx, e.batch); err != nil {
			if errors.Is(err, locks.ErrBusy) {
				e.logger.Debug("workflow lock busy, deferring")
				continue
			}
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("deferred enqueue run", logging.Error(err))
			continue
		}
		if err := e.store.SubmitHeartbeat(ctx, store.HeartbeatDeferredEnqueue); err != nil {
			e.logger.Error("submit heartbeat", logging.Error(err))
		}
	}
}
