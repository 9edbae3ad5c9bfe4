package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"arkiv/internal/config"
	"arkiv/internal/logging"
	"arkiv/internal/museum"
	"arkiv/internal/sip"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
)

// Outcome is the result of a successfully applied stage. Next, when set,
// is the chained task the worker enqueues after completing the current one.
type Outcome struct {
	Next *tasks.Spec
}

// Pipeline applies stage transitions for objects. Every surface that moves
// an object converges here, so precondition validation cannot diverge
// between workers and administrator commands.
type Pipeline struct {
	store        *store.Store
	tasks        *tasks.Store
	catalog      museum.Client
	packager     sip.Packager
	preservation sip.Preservation
	packageDir   string
	archiveDir   string
	logger       *slog.Logger
	now          func() time.Time
}

// New constructs a pipeline with its collaborators.
func New(
	st *store.Store,
	taskStore *tasks.Store,
	catalog museum.Client,
	packager sip.Packager,
	preservation sip.Preservation,
	cfg *config.Config,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		store:        st,
		tasks:        taskStore,
		catalog:      catalog,
		packager:     packager,
		preservation: preservation,
		packageDir:   cfg.Paths.PackageDir,
		archiveDir:   cfg.Paths.ArchiveDir,
		logger:       logging.WithComponent(logger, "pipeline"),
		now:          time.Now,
	}
}

// Apply runs the stage a task belongs to. The task's queue decides the
// handler; every handler re-validates the object's status with a
// conditional update before doing work, so duplicate deliveries surface as
// conflicts instead of corrupting state.
func (p *Pipeline) Apply(ctx context.Context, task *tasks.Task) (Outcome, error) {
	switch task.Queue {
	case tasks.QueueDownloadObject:
		return p.download(ctx, task)
	case tasks.QueueCreateSIP:
		return p.createSIP(ctx, task)
	case tasks.QueueSubmitSIP:
		return p.submitSIP(ctx, task)
	case tasks.QueueConfirmSIP:
		return p.confirmSIP(ctx, task)
	default:
		return Outcome{}, Wrap(ErrIntegrity, string(task.Queue), "apply", "unknown queue", nil)
	}
}

// download fetches an object's content from the catalog and opens a new
// submission package attempt. Three entry statuses: new for first-time
// preservation, preserved for update preservation of a changed object, and
// downloading for reenqueued objects.
func (p *Pipeline) download(ctx context.Context, task *tasks.Task) (Outcome, error) {
	objectID := task.ObjectID
	err := p.store.Transition(
		ctx,
		objectID,
		[]store.Status{store.StatusNew, store.StatusPreserved, store.StatusDownloading},
		store.StatusDownloading,
		store.Change{RequireUnfrozen: true},
	)
	if err != nil {
		return Outcome{}, err
	}

	object, err := p.store.GetObject(ctx, objectID)
	if err != nil {
		return Outcome{}, err
	}
	if object == nil {
		return Outcome{}, Wrap(ErrIntegrity, "download", "load object", "object row vanished", nil)
	}

	sipID := sip.NewSIPID(p.now())
	sourceDir := p.sourceDir(objectID, sipID)
	paths, err := p.catalog.DownloadObject(ctx, objectID, sourceDir)
	if err != nil {
		return Outcome{}, Wrap(ErrTransient, "download", "fetch content", "", err)
	}

	pkg, err := p.store.CreatePackage(ctx, &store.Package{
		ObjectID:               objectID,
		SIPID:                  sipID,
		SIPFilename:            sip.Filename(objectID, sipID),
		ObjectModifiedDate:     object.ModifiedDate,
		MetadataHash:           object.MetadataHash,
		AttachmentMetadataHash: object.AttachmentMetadataHash,
	})
	if err != nil {
		return Outcome{}, err
	}

	err = p.store.Transition(
		ctx,
		objectID,
		[]store.Status{store.StatusDownloading},
		store.StatusDownloaded,
		store.Change{ClearError: true},
	)
	if err != nil {
		return Outcome{}, err
	}

	p.logger.Info("object downloaded",
		logging.ObjectID(objectID),
		slog.String("sip_id", sipID),
		slog.Int("files", len(paths)),
	)
	return Outcome{Next: &tasks.Spec{
		Queue:    tasks.QueueCreateSIP,
		ObjectID: objectID,
		Payload:  tasks.SIPPayload{SIPID: sipID, PackageID: pkg.ID},
	}}, nil
}

// createSIP hands the downloaded content to the packaging tool.
func (p *Pipeline) createSIP(ctx context.Context, task *tasks.Task) (Outcome, error) {
	objectID := task.ObjectID
	var payload tasks.SIPPayload
	if err := task.DecodePayload(&payload); err != nil {
		return Outcome{}, Wrap(ErrIntegrity, "package", "decode payload", "", err)
	}

	err := p.store.Transition(
		ctx,
		objectID,
		[]store.Status{store.StatusDownloaded},
		store.StatusPackaging,
		store.Change{RequireUnfrozen: true},
	)
	if err != nil {
		return Outcome{}, err
	}

	pkg, err := p.store.GetPackage(ctx, payload.PackageID)
	if err != nil {
		return Outcome{}, err
	}
	if pkg == nil {
		return Outcome{}, Wrap(ErrIntegrity, "package", "load package", fmt.Sprintf("package %d missing", payload.PackageID), nil)
	}

	artifact, err := p.packager.Package(ctx, sip.Request{
		ObjectID:  objectID,
		SIPID:     payload.SIPID,
		SourceDir: p.sourceDir(objectID, payload.SIPID),
		OutputDir: p.stageDir(objectID, payload.SIPID),
	})
	if err != nil {
		return Outcome{}, Wrap(ErrTransient, "package", "run packager", "", err)
	}

	if err := p.store.MarkPackagePackaged(ctx, pkg.ID, artifact); err != nil {
		return Outcome{}, err
	}

	err = p.store.Transition(
		ctx,
		objectID,
		[]store.Status{store.StatusPackaging},
		store.StatusPackaged,
		store.Change{ClearError: true},
	)
	if err != nil {
		return Outcome{}, err
	}

	p.logger.Info("package created",
		logging.ObjectID(objectID),
		slog.String("sip_id", payload.SIPID),
		slog.String("artifact", artifact),
	)
	return Outcome{Next: &tasks.Spec{
		Queue:    tasks.QueueSubmitSIP,
		ObjectID: objectID,
		Payload:  payload,
	}}, nil
}

// submitSIP uploads the package and removes the local artifact. No next
// task is chained; confirmation is pulled in by the poller because the
// preservation service's ingest latency is unbounded.
func (p *Pipeline) submitSIP(ctx context.Context, task *tasks.Task) (Outcome, error) {
	objectID := task.ObjectID
	var payload tasks.SIPPayload
	if err := task.DecodePayload(&payload); err != nil {
		return Outcome{}, Wrap(ErrIntegrity, "submit", "decode payload", "", err)
	}

	err := p.store.Transition(
		ctx,
		objectID,
		[]store.Status{store.StatusPackaged},
		store.StatusSubmitting,
		store.Change{RequireUnfrozen: true},
	)
	if err != nil {
		return Outcome{}, err
	}

	pkg, err := p.store.GetPackage(ctx, payload.PackageID)
	if err != nil {
		return Outcome{}, err
	}
	if pkg == nil || pkg.Location == "" {
		return Outcome{}, Wrap(ErrIntegrity, "submit", "load package", fmt.Sprintf("package %d has no artifact", payload.PackageID), nil)
	}

	submissionID, err := p.preservation.Submit(ctx, pkg.Location)
	if err != nil {
		return Outcome{}, Wrap(ErrTransient, "submit", "upload package", "", err)
	}

	if err := p.store.MarkPackageUploaded(ctx, pkg.ID, submissionID); err != nil {
		return Outcome{}, err
	}
	err = p.store.Transition(
		ctx,
		objectID,
		[]store.Status{store.StatusSubmitting},
		store.StatusSubmitted,
		store.Change{SubmissionID: submissionID},
	)
	if err != nil {
		return Outcome{}, err
	}

	// The upload is durable; local content is no longer needed. A crash
	// between here and the final transition leaves the object in submitted,
	// which the poller treats the same as awaiting confirmation.
	if err := os.RemoveAll(p.objectDir(objectID)); err != nil {
		p.logger.Warn("remove local package content",
			logging.ObjectID(objectID),
			logging.Error(err),
		)
	}

	err = p.store.Transition(
		ctx,
		objectID,
		[]store.Status{store.StatusSubmitted},
		store.StatusAwaitingConfirmation,
		store.Change{ClearError: true},
	)
	if err != nil {
		return Outcome{}, err
	}

	p.logger.Info("package submitted",
		logging.ObjectID(objectID),
		slog.String("sip_id", payload.SIPID),
		slog.String("submission_id", submissionID),
	)
	return Outcome{}, nil
}

// confirmSIP applies a definitive preservation outcome delivered by the
// poller. Accepted objects become preserved; rejected ones halt until an
// administrator reenqueues them.
func (p *Pipeline) confirmSIP(ctx context.Context, task *tasks.Task) (Outcome, error) {
	objectID := task.ObjectID
	var payload tasks.ConfirmPayload
	if err := task.DecodePayload(&payload); err != nil {
		return Outcome{}, Wrap(ErrIntegrity, "confirm", "decode payload", "", err)
	}

	pkg, err := p.store.LatestPackage(ctx, objectID)
	if err != nil {
		return Outcome{}, err
	}
	if pkg == nil {
		return Outcome{}, Wrap(ErrIntegrity, "confirm", "load package", "object has no submission package", nil)
	}

	expect := []store.Status{store.StatusSubmitted, store.StatusAwaitingConfirmation}
	switch payload.Outcome {
	case tasks.OutcomeAccepted:
		if err := p.archiveReport(objectID, pkg.SIPID, payload.Report); err != nil {
			return Outcome{}, Wrap(ErrTransient, "confirm", "archive report", "", err)
		}
		preservedAt := p.now()
		err := p.store.Transition(ctx, objectID, expect, store.StatusPreserved, store.Change{
			ClearError:    true,
			LastPreserved: &preservedAt,
		})
		if err != nil {
			return Outcome{}, err
		}
		if err := p.store.ResolvePackage(ctx, pkg.ID, true, payload.Report); err != nil {
			return Outcome{}, err
		}
		p.logger.Info("object preserved", logging.ObjectID(objectID), slog.String("sip_id", pkg.SIPID))
		return Outcome{}, nil

	case tasks.OutcomeRejected:
		if err := p.archiveReport(objectID, pkg.SIPID, payload.Report); err != nil {
			return Outcome{}, Wrap(ErrTransient, "confirm", "archive report", "", err)
		}
		err := p.store.Transition(ctx, objectID, expect, store.StatusRejected, store.Change{})
		if err != nil {
			return Outcome{}, err
		}
		if err := p.store.ResolvePackage(ctx, pkg.ID, false, payload.Report); err != nil {
			return Outcome{}, err
		}
		p.logger.Warn("submission rejected", logging.ObjectID(objectID), slog.String("sip_id", pkg.SIPID))
		return Outcome{}, nil

	default:
		return Outcome{}, Wrap(ErrIntegrity, "confirm", "decode payload", fmt.Sprintf("unknown outcome %q", payload.Outcome), nil)
	}
}

// HandleFailure records a failed stage against the object and reports the
// disposition for the task. In-flight statuses roll back to their stable
// predecessor so the object never sticks in a processing state with no
// worker behind it.
func (p *Pipeline) HandleFailure(ctx context.Context, task *tasks.Task, stageErr error) Disposition {
	disposition := Classify(stageErr)
	objectID := task.ObjectID

	switch disposition {
	case DispositionDrop, DispositionRelease:
		return disposition
	}

	object, err := p.store.GetObject(ctx, objectID)
	if err != nil || object == nil {
		p.logger.Error("load object after stage failure", logging.ObjectID(objectID), logging.Error(err))
		return disposition
	}
	if object.IsProcessing() {
		if err := p.store.RollbackStage(ctx, objectID, object.Status, stageErr.Error()); err != nil {
			p.logger.Error("roll back failed stage", logging.ObjectID(objectID), logging.Error(err))
		}
	}

	if disposition == DispositionFreeze {
		reason := "preservation error: " + stageErr.Error()
		if _, err := p.store.FreezeObjects(ctx, []string{objectID}, reason, store.FreezeSourceAutomatic); err != nil {
			p.logger.Error("freeze object after preservation error", logging.ObjectID(objectID), logging.Error(err))
		}
		if object.LatestPackageID != 0 {
			if err := p.store.CancelPackage(ctx, object.LatestPackageID); err != nil {
				p.logger.Error("cancel package after preservation error", logging.ObjectID(objectID), logging.Error(err))
			}
		}
	}
	return disposition
}

func (p *Pipeline) objectDir(objectID string) string {
	return filepath.Join(p.packageDir, objectID)
}

func (p *Pipeline) stageDir(objectID, sipID string) string {
	return filepath.Join(p.packageDir, objectID, sipID)
}

func (p *Pipeline) sourceDir(objectID, sipID string) string {
	return filepath.Join(p.stageDir(objectID, sipID), "source")
}

func (p *Pipeline) archiveReport(objectID, sipID, report string) error {
	if report == "" {
		return nil
	}
	dir := filepath.Join(p.archiveDir, objectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, sipID+"-report.txt"), []byte(report), 0o644)
}
