package job

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"safi/core/audio"
	"safi/core/events"
	"safi/core/separation"
	"safi/logger"
	"safi/model"
	"safi/repository"
)

// FailureMessage is the only error text stored on a failed track.
const FailureMessage = "Processing failed. Please try again"

// ErrUnsupportedMedia is returned for files whose extension is not accepted.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// StemArchiver copies a remote stem somewhere durable and returns the URL to store.
// RemoveTrack drops the archived stems of a track that vanished mid-job.
type StemArchiver interface {
	ArchiveStem(ctx context.Context, trackID int64, stem, sourceURL string) (string, error)
	RemoveTrack(ctx context.Context, trackID int64) error
}

// Outcome describes how a job ended.
type Outcome struct {
	TrackID int64
	Status  model.TrackStatus // completed, failed, or processing when the final update did not land
	Track   *model.Track      // row after the final update, nil if it could not be written
	Err     error             // separation failure or storage error; nil on success
}

// Handle lets callers wait for a submitted job.
type Handle struct {
	done    chan struct{}
	outcome Outcome
}

// Done is closed when the job has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job has finished and returns its outcome.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.outcome
}

// Orchestrator runs the normalize → separate → persist pipeline for uploads.
type Orchestrator struct {
	tracks     repository.TrackRepository
	normalizer audio.Normalizer
	separator  separation.Separator
	archiver   StemArchiver     // optional
	publisher  events.Publisher // optional

	wg sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithArchiver stores stems through a.
func WithArchiver(a StemArchiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithPublisher announces terminal updates on p.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(tracks repository.TrackRepository, normalizer audio.Normalizer, separator separation.Separator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tracks:     tracks,
		normalizer: normalizer,
		separator:  separator,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit runs the job detached from the caller and returns a handle to it.
func (o *Orchestrator) Submit(trackID int64, filePath string) *Handle {
	h := &Handle{done: make(chan struct{})}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job panicked", logger.TrackID(trackID), logger.Any("panic", r))
				h.outcome = Outcome{TrackID: trackID, Status: model.TrackStatusProcessing, Err: fmt.Errorf("job panicked: %v", r)}
			}
		}()
		h.outcome = o.Process(context.Background(), trackID, filePath)
	}()
	return h
}

// Wait blocks until every submitted job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Process runs one job synchronously.
func (o *Orchestrator) Process(ctx context.Context, trackID int64, filePath string) Outcome {
	start := time.Now()
	ext := audio.NormalizeExtension(filepath.Ext(filePath))
	kind := audio.ClassifyExtension(ext)

	logger.Info("开始处理曲目",
		logger.TrackID(trackID),
		logger.String("path", filePath),
		logger.String("kind", kind.String()))

	if kind == audio.MediaUnsupported {
		return o.fail(ctx, trackID, fmt.Errorf("%w: .%s", ErrUnsupportedMedia, ext))
	}

	processPath := filePath
	if audio.NeedsNormalization(ext) {
		processPath = o.normalizer.Normalize(ctx, filePath, ext)
	}

	result, err := o.separator.Separate(ctx, processPath)
	if err != nil {
		return o.fail(ctx, trackID, err)
	}

	vocals := o.archive(ctx, trackID, "vocals", result.VocalsURL)
	var instrumental *string
	if result.InstrumentalURL != nil {
		archived := o.archive(ctx, trackID, "instrumental", *result.InstrumentalURL)
		instrumental = &archived
	}

	status := model.TrackStatusCompleted
	update := model.TrackUpdate{
		Status:          &status,
		VocalsURL:       &vocals,
		InstrumentalURL: instrumental,
	}
	if result.PredictionID != "" {
		update.ReplicateID = &result.PredictionID
	}

	outcome := o.finish(ctx, trackID, update, processPath)
	if outcome.Err == nil {
		logger.Info("曲目处理完成",
			logger.TrackID(trackID),
			logger.Bool("hasInstrumental", instrumental != nil),
			logger.Duration("elapsed", time.Since(start)))
	}
	return outcome
}

// fail records the generic failure message; cause is only logged.
func (o *Orchestrator) fail(ctx context.Context, trackID int64, cause error) Outcome {
	logger.Error("曲目处理失败", logger.TrackID(trackID), logger.ErrorField(cause))

	status := model.TrackStatusFailed
	msg := FailureMessage
	outcome := o.finish(ctx, trackID, model.TrackUpdate{Status: &status, Error: &msg}, "")
	if outcome.Err == nil {
		outcome.Err = cause
	}
	return outcome
}

func (o *Orchestrator) finish(ctx context.Context, trackID int64, update model.TrackUpdate, processPath string) Outcome {
	track, err := o.tracks.Update(ctx, trackID, update)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTrackNotFound):
			logger.Warn("track deleted while processing", logger.TrackID(trackID))
			removeQuietly(processPath)
			// DELETE 已经清理过归档，这里补删任务期间写入的分轨
			if o.archiver != nil {
				if rmErr := o.archiver.RemoveTrack(ctx, trackID); rmErr != nil {
					logger.Warn("failed to remove archived stems of deleted track",
						logger.TrackID(trackID), logger.ErrorField(rmErr))
				}
			}
		case errors.Is(err, repository.ErrTrackFinalized):
			logger.Warn("track already finalized", logger.TrackID(trackID))
		default:
			logger.Error("failed to persist job result, track stays processing",
				logger.TrackID(trackID), logger.ErrorField(err))
		}
		return Outcome{TrackID: trackID, Status: model.TrackStatusProcessing, Err: err}
	}

	if o.publisher != nil {
		o.publisher.Publish(model.TrackEvent{Type: model.TrackUpdated, Track: track})
	}
	return Outcome{TrackID: trackID, Status: track.Status, Track: track}
}

// archive falls back to the remote URL when archiving fails.
func (o *Orchestrator) archive(ctx context.Context, trackID int64, stem, sourceURL string) string {
	if o.archiver == nil {
		return sourceURL
	}
	archived, err := o.archiver.ArchiveStem(ctx, trackID, stem, sourceURL)
	if err != nil {
		logger.Warn("stem archive failed, keeping remote url",
			logger.TrackID(trackID),
			logger.String("stem", stem),
			logger.ErrorField(err))
		return sourceURL
	}
	return archived
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to remove job file", logger.String("path", path), logger.ErrorField(err))
	}
}
