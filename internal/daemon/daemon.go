package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"arkiv/internal/config"
	"arkiv/internal/enqueue"
	"arkiv/internal/locks"
	"arkiv/internal/logging"
	"arkiv/internal/museum"
	"arkiv/internal/pipeline"
	"arkiv/internal/poller"
	"arkiv/internal/sip"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
	"arkiv/internal/worker"
)

// Daemon wires the stage worker pools, the deferred enqueue loop, and the
// confirmation poller together and enforces single-instance execution per
// data directory. Sync runs stay in the CLI; their group lock keeps them
// safe to run next to a live daemon.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	tasks  *tasks.Store
	locks  *locks.Service

	pipeline *pipeline.Pipeline
	pools    []*worker.Pool
	enqueue  *enqueue.Engine
	poller   *poller.Poller

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with all stage dependencies resolved from config.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	catalog, err := museum.NewHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog client: %w", err)
	}
	packager, err := sip.NewCommandPackager(cfg)
	if err != nil {
		return nil, fmt.Errorf("packager: %w", err)
	}
	preservation, err := sip.NewHTTPPreservation(cfg)
	if err != nil {
		return nil, fmt.Errorf("preservation client: %w", err)
	}

	taskStore := tasks.New(st.DB(), cfg.Workflow.MaxAttempts)
	lockService := locks.NewService(st.DB())
	pl := pipeline.New(st, taskStore, catalog, packager, preservation, cfg, logger)

	pools := []*worker.Pool{
		worker.NewPool(tasks.QueueDownloadObject, cfg.Workflow.DownloadWorkers, taskStore, lockService, pl, cfg, logger),
		worker.NewPool(tasks.QueueCreateSIP, cfg.Workflow.PackageWorkers, taskStore, lockService, pl, cfg, logger),
		worker.NewPool(tasks.QueueSubmitSIP, cfg.Workflow.SubmitWorkers, taskStore, lockService, pl, cfg, logger),
		worker.NewPool(tasks.QueueConfirmSIP, cfg.Workflow.ConfirmWorkers, taskStore, lockService, pl, cfg, logger),
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "arkivd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    st,
		tasks:    taskStore,
		locks:    lockService,
		pipeline: pl,
		pools:    pools,
		enqueue:  enqueue.New(st, taskStore, lockService, cfg, logger),
		poller:   poller.New(st, taskStore, preservation, cfg, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, repairs objects stranded mid-stage by a
// previous crash, and launches the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another arkiv daemon holds %s", d.lockPath)
	}

	reset, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset stuck objects: %w", err)
	}
	if reset > 0 {
		d.logger.Warn("objects rolled back after unclean shutdown", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for _, pool := range d.pools {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			pool.Run(runCtx)
		}()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.enqueue.RunDeferred(runCtx)
	}()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.poller.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels the background loops, waits for in-flight stage work to
// finish its bookkeeping, and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release instance lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether the background loops are active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
