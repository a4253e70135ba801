// Package worker implements the render pipeline execution loop.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/metrics"
	"github.com/JakeFAU/bluemap-render/internal/render"
)

var tracer = otel.Tracer("github.com/JakeFAU/bluemap-render/internal/worker")

// Config controls Worker behavior.
type Config struct {
	// UsersDir is the root of the per-account file trees.
	UsersDir string
	// MirrorPrefix is prepended to mirrored object names.
	MirrorPrefix string
	// Topic receives render-completed notifications. Empty disables publishing.
	Topic string
}

// Worker consumes queue items and executes the render pipeline.
type Worker struct {
	queue     render.Queue
	jobStore  render.JobStore
	files     render.BlobStore
	mirror    render.BlobStore
	publisher render.Publisher
	renderer  render.Renderer
	presets   render.PresetCatalog
	hasher    render.Hasher
	clock     render.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. mirror and publisher may be nil.
func New(
	queue render.Queue,
	jobStore render.JobStore,
	files render.BlobStore,
	mirror render.BlobStore,
	publisher render.Publisher,
	renderer render.Renderer,
	presets render.PresetCatalog,
	hasher render.Hasher,
	clock render.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		files:     files,
		mirror:    mirror,
		publisher: publisher,
		renderer:  renderer,
		presets:   presets,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, render.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item render.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	jobCtx := ctx
	if !item.Deadline.IsZero() {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithDeadline(ctx, item.Deadline)
		defer cancel()
	}
	jobCtx, span := tracer.Start(jobCtx, "render.job", trace.WithAttributes(
		attribute.String("job.id", item.JobID),
		attribute.Int64("account.id", item.Task.AccountID),
		attribute.String("render.preset", item.Task.Preset),
	))
	defer span.End()

	result := render.Result{JobID: item.JobID, NewPath: item.Task.To}
	if err := w.execute(jobCtx, item); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.NewPath = ""
		result.Err = err
	}
	w.reply(item, result)
}

func (w *Worker) execute(ctx context.Context, item render.QueueItem) error {
	logger := w.logger.With(
		zap.String("job_id", item.JobID),
		zap.Int64("account_id", item.Task.AccountID),
	)

	if err := w.jobStore.UpdateJob(ctx, item.JobID, render.JobUpdate{Status: render.JobStatusRunning}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
	}

	if ctx.Err() != nil {
		return w.finishTimedOut(item, logger)
	}

	preset, err := w.presets.Load(item.Task.Preset)
	if err != nil {
		logger.Warn("preset lookup failed", zap.String("preset", item.Task.Preset), zap.Error(err))
		return w.finishFailed(item, render.NewFailure(render.KindPresetNotFound), logger)
	}

	artifact, err := w.renderer.Render(ctx, w.sourcePath(item.Task), preset)
	if err != nil {
		if ctx.Err() != nil {
			return w.finishTimedOut(item, logger)
		}
		logger.Error("render failed", zap.Error(err))
		return w.finishFailed(item, render.External(err.Error()), logger)
	}
	metrics.ObserveRender(preset.Format, len(artifact.Data), artifact.Duration)

	update, err := w.persist(ctx, item, artifact, logger)
	if err != nil {
		logger.Error("persist artifact failed", zap.Error(err))
		return w.finishFailed(item, render.External(err.Error()), logger)
	}

	update.Status = render.JobStatusSucceeded
	if err := w.jobStore.UpdateJob(context.WithoutCancel(ctx), item.JobID, update); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(render.JobStatusSucceeded))
	w.publishResult(context.WithoutCancel(ctx), item, update, logger)
	logger.Info("render succeeded",
		zap.String("to", item.Task.To),
		zap.String("blob_uri", update.BlobURI),
		zap.Duration("duration", artifact.Duration),
	)
	return nil
}

func (w *Worker) persist(
	ctx context.Context,
	item render.QueueItem,
	artifact render.Artifact,
	logger *zap.Logger,
) (render.JobUpdate, error) {
	hash, err := w.hasher.Hash(artifact.Data)
	if err != nil {
		return render.JobUpdate{}, fmt.Errorf("hash artifact: %w", err)
	}

	uri, err := w.files.PutObject(ctx, w.targetPath(item.Task), artifact.ContentType, bytes.NewReader(artifact.Data))
	if err != nil {
		return render.JobUpdate{}, fmt.Errorf("write artifact: %w", err)
	}

	update := render.JobUpdate{BlobURI: uri, Hash: hash}
	if w.mirror != nil {
		mirrorURI, mErr := w.mirror.PutObject(ctx, w.mirrorPath(item.Task), artifact.ContentType, bytes.NewReader(artifact.Data))
		if mErr != nil {
			logger.Warn("mirror artifact failed", zap.Error(mErr))
		} else {
			update.MirrorURI = mirrorURI
		}
	}
	return update, nil
}

func (w *Worker) finishFailed(item render.QueueItem, failure *render.Failure, logger *zap.Logger) error {
	w.finish(item, render.JobUpdate{Status: render.JobStatusFailed, ErrorText: failure.Error()}, logger)
	return failure
}

func (w *Worker) finishTimedOut(item render.QueueItem, logger *zap.Logger) error {
	failure := render.NewFailure(render.KindTimedOut)
	logger.Warn("render timed out")
	w.finish(item, render.JobUpdate{Status: render.JobStatusTimedOut, ErrorText: failure.Error()}, logger)
	return failure
}

// finish records a terminal failure on a fresh context; the job's own may be done.
func (w *Worker) finish(item render.QueueItem, update render.JobUpdate, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.jobStore.UpdateJob(ctx, item.JobID, update); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(update.Status))
	w.publishResult(ctx, item, update, logger)
}

func (w *Worker) publishResult(ctx context.Context, item render.QueueItem, update render.JobUpdate, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":     item.JobID,
		"account_id": item.Task.AccountID,
		"from":       item.Task.From,
		"to":         item.Task.To,
		"preset":     item.Task.Preset,
		"blob_uri":   update.BlobURI,
		"mirror_uri": update.MirrorURI,
		"hash":       update.Hash,
		"status":     string(update.Status),
		"timestamp":  w.clock.Now().Format(time.RFC3339),
	}
	msgID, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish render result failed", zap.Error(err))
		return
	}
	logger.Debug("render result published", zap.String("message_id", msgID))
}

// reply never blocks; a submitter that gave up has nobody listening.
func (w *Worker) reply(item render.QueueItem, result render.Result) {
	if item.Reply == nil {
		return
	}
	select {
	case item.Reply <- result:
	default:
		w.logger.Debug("render result dropped", zap.String("job_id", item.JobID))
	}
}

func (w *Worker) accountDir(accountID int64) string {
	return filepath.Join(w.cfg.UsersDir, strconv.FormatInt(accountID, 10))
}

func (w *Worker) sourcePath(task render.Task) string {
	return filepath.Join(w.accountDir(task.AccountID), filepath.FromSlash(task.From))
}

func (w *Worker) targetPath(task render.Task) string {
	return path.Join(strconv.FormatInt(task.AccountID, 10), task.To)
}

func (w *Worker) mirrorPath(task render.Task) string {
	prefix := strings.Trim(w.cfg.MirrorPrefix, "/")
	return path.Join(prefix, strconv.FormatInt(task.AccountID, 10), task.To)
}
