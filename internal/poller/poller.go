package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"arkiv/internal/config"
	"arkiv/internal/logging"
	"arkiv/internal/sip"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
)

// Poller asks the preservation service for verdicts on submitted packages
// and queues a confirm task once one arrives. Objects whose ingest is still
// pending stay untouched; the confirm stage applies the verdict so that the
// same per-object sequencing rules cover it.
type Poller struct {
	store        *store.Store
	tasks        *tasks.Store
	preservation sip.Preservation
	logger       *slog.Logger

	interval     time.Duration
	stalledAfter time.Duration
	now          func() time.Time
}

// New constructs a confirmation poller.
func New(st *store.Store, taskStore *tasks.Store, preservation sip.Preservation, cfg *config.Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		store:        st,
		tasks:        taskStore,
		preservation: preservation,
		logger:       logging.WithComponent(logger, "poller"),
		interval:     time.Duration(cfg.Preservation.PollInterval) * time.Second,
		stalledAfter: time.Duration(cfg.Preservation.StalledAfter) * time.Second,
		now:          time.Now,
	}
}

// Run polls on the configured interval until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	interval := p.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("poll submitted packages", logging.Error(err))
		}
	}
}

// RunOnce checks every object waiting on a verdict and returns how many
// confirm tasks it queued. Objects still in the submitted status are
// included so a crash between upload and cleanup cannot strand a package.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	objects, err := p.store.ObjectsByStatus(ctx, store.StatusSubmitted, store.StatusAwaitingConfirmation)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, object := range objects {
		if ctx.Err() != nil {
			return queued, ctx.Err()
		}
		confirmed, err := p.pollObject(ctx, object)
		if err != nil {
			p.logger.Error("poll object", logging.ObjectID(object.ID), logging.Error(err))
			continue
		}
		if confirmed {
			queued++
		}
	}

	if err := p.store.SubmitHeartbeat(ctx, store.HeartbeatPoller); err != nil {
		return queued, err
	}
	return queued, nil
}

func (p *Poller) pollObject(ctx context.Context, object *store.Object) (bool, error) {
	if object.SubmissionID == "" {
		p.logger.Warn("object awaits confirmation without a submission id", logging.ObjectID(object.ID))
		return false, nil
	}

	result, err := p.preservation.Poll(ctx, object.SubmissionID)
	if err != nil {
		return false, err
	}

	switch result.State {
	case sip.PollPending:
		if p.stalledAfter > 0 && p.now().Sub(object.UpdatedAt) > p.stalledAfter {
			p.logger.Warn("ingest appears stalled",
				logging.ObjectID(object.ID),
				logging.String("submission_id", object.SubmissionID),
				logging.Duration("waiting", p.now().Sub(object.UpdatedAt)))
		}
		return false, nil
	case sip.PollAccepted, sip.PollRejected:
		payload := tasks.ConfirmPayload{Outcome: string(result.State), Report: result.Report}
		_, err := p.tasks.Enqueue(ctx, tasks.Spec{
			Queue:    tasks.QueueConfirmSIP,
			ObjectID: object.ID,
			Payload:  payload,
		})
		if errors.Is(err, tasks.ErrActiveExists) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		p.logger.Info("verdict received",
			logging.ObjectID(object.ID),
			logging.String("outcome", string(result.State)))
		return true, nil
	default:
		return false, errors.New("unknown poll state " + string(result.State))
	}
}
