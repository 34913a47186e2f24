// Package processing fans a newly ingested video out into its processing
// tasks, executes them on the dispatcher, and rolls their outcomes up into
// the video status. Readiness is gated on the required task types only;
// content analysis runs when an analysis provider is configured but never
// blocks a video from becoming ready.
package processing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"clippress/internal/ai"
	"clippress/internal/blob"
	"clippress/internal/config"
	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/media"
	"clippress/internal/services"
	"clippress/internal/store"
)

// Notifier receives lifecycle events for completed or failed videos.
type Notifier interface {
	VideoReady(ctx context.Context, video *store.Video)
	VideoFailed(ctx context.Context, video *store.Video, reason string)
}

// Orchestrator owns the processing task lifecycle for videos.
type Orchestrator struct {
	cfg         *config.Config
	store       *store.Store
	blobs       *blob.Store
	dispatcher  dispatch.Dispatcher
	transcriber ai.Transcriber
	analyzer    ai.Analyzer
	notifier    Notifier
	logger      *slog.Logger

	extractThumbnail thumbnailFunc
	extractAudio     audioFunc
	compress         compressFunc
}

type thumbnailFunc func(ctx context.Context, ffmpegBinary, source string, durationSeconds float64, dest string) error
type audioFunc func(ctx context.Context, ffmpegBinary, source, dest string) error
type compressFunc func(ctx context.Context, ffmpegBinary, source, dest string) error

// NewOrchestrator builds the processing orchestrator. The transcriber,
// analyzer, and notifier may be nil.
func NewOrchestrator(cfg *config.Config, st *store.Store, blobs *blob.Store, dispatcher dispatch.Dispatcher, transcriber ai.Transcriber, analyzer ai.Analyzer, notifier Notifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:              cfg,
		store:            st,
		blobs:            blobs,
		dispatcher:       dispatcher,
		transcriber:      transcriber,
		analyzer:         analyzer,
		notifier:         notifier,
		logger:           logger,
		extractThumbnail: media.ExtractThumbnail,
		extractAudio:     media.ExtractAudio,
		compress:         media.Compress,
	}
}

// taskTypes returns the batch composition for a new processing run.
func (o *Orchestrator) taskTypes() []store.TaskType {
	types := store.RequiredTaskTypes()
	if o.analyzer != nil {
		types = append(types, store.TaskContentAnalysis)
	}
	return types
}

// StartProcessing creates the task batch for a video and submits every task.
// Batch creation is all-or-nothing; a video never ends up with a partial set.
func (o *Orchestrator) StartProcessing(ctx context.Context, video *store.Video) error {
	return o.startBatch(ctx, video, o.taskTypes())
}

func (o *Orchestrator) startBatch(ctx context.Context, video *store.Video, types []store.TaskType) error {
	tasks, err := o.store.CreateTaskBatch(ctx, video.ID, types)
	if err != nil {
		// Without task rows the video would sit in processing forever, with
		// nothing for Retry to find. Move it to failed so the run can be
		// retried or cancelled.
		if _, failErr := o.store.TransitionVideo(ctx, video.ID,
			[]store.VideoStatus{store.VideoUploading, store.VideoProcessing}, store.VideoFailed); failErr != nil {
			o.logger.Error("video fail transition after batch error",
				logging.String(logging.FieldVideoID, video.ID),
				logging.Error(failErr),
			)
		}
		return services.Wrap(services.ErrTransient, "processing", "start", "create task batch", err)
	}
	hasTranscription := false
	for _, task := range tasks {
		if task.Type == store.TaskTranscription {
			hasTranscription = true
		}
	}
	for _, task := range tasks {
		// Analysis reads the stored transcription, so when both are in the
		// batch its submission waits for the transcription task to complete.
		if task.Type == store.TaskContentAnalysis && hasTranscription {
			continue
		}
		handle, err := o.dispatcher.Submit(ctx, jobNameFor(task.Type), map[string]string{"task_id": task.ID})
		if err != nil {
			_, _ = o.store.FailTask(ctx, task.ID, "could not submit task job")
			o.logger.Error("task submission failed",
				logging.String(logging.FieldVideoID, video.ID),
				logging.String(logging.FieldTaskType, string(task.Type)),
				logging.Error(err),
			)
			o.rollup(ctx, video.ID)
			continue
		}
		if err := o.store.SetTaskHandle(ctx, task.ID, handle); err != nil {
			return err
		}
	}
	o.logger.Info("processing started",
		logging.String(logging.FieldVideoID, video.ID),
		logging.Int("tasks", len(tasks)),
	)
	return nil
}

// Retry clears the failed tasks of a video and schedules a fresh batch for
// exactly those task types.
func (o *Orchestrator) Retry(ctx context.Context, videoID, ownerID string) error {
	video, err := o.store.VideoForOwner(ctx, videoID, ownerID)
	if err != nil {
		return err
	}
	if video == nil {
		return services.Wrap(services.ErrNotFound, "processing", "retry",
			fmt.Sprintf("video %s not found", videoID), nil)
	}

	types, err := o.store.ClearFailedTasks(ctx, video.ID)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		return services.Wrap(services.ErrValidation, "processing", "retry", "video has no failed tasks", nil)
	}
	if _, err := o.store.TransitionVideo(ctx, video.ID, []store.VideoStatus{store.VideoFailed}, store.VideoProcessing); err != nil {
		return err
	}
	return o.startBatch(ctx, video, types)
}

// Cancel revokes every outstanding task job, marks the tasks cancelled, and
// fails the video. Revocation is advisory for tasks already running.
func (o *Orchestrator) Cancel(ctx context.Context, videoID, ownerID string) error {
	video, err := o.store.VideoForOwner(ctx, videoID, ownerID)
	if err != nil {
		return err
	}
	if video == nil {
		return services.Wrap(services.ErrNotFound, "processing", "cancel",
			fmt.Sprintf("video %s not found", videoID), nil)
	}
	if video.Status.IsTerminal() {
		return services.Wrap(services.ErrValidation, "processing", "cancel",
			fmt.Sprintf("video is already %s", video.Status), nil)
	}

	tasks, err := o.store.TasksForVideo(ctx, video.ID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}
		if task.JobHandle != "" {
			if err := o.dispatcher.Revoke(task.JobHandle, true); err != nil {
				o.logger.Warn("job revoke failed",
					logging.String(logging.FieldTaskType, string(task.Type)),
					logging.String(logging.FieldJobHandle, task.JobHandle),
					logging.Error(err),
				)
			}
		}
		if _, err := o.store.CancelTask(ctx, task.ID); err != nil {
			return err
		}
	}

	applied, err := o.store.TransitionVideo(ctx, video.ID,
		[]store.VideoStatus{store.VideoUploading, store.VideoProcessing}, store.VideoFailed)
	if err != nil {
		return err
	}
	if applied && o.notifier != nil {
		o.notifier.VideoFailed(ctx, video, "cancelled")
	}
	o.logger.Info("processing cancelled", logging.String(logging.FieldVideoID, video.ID))
	return nil
}

// StatusReport summarizes a video's processing run.
type StatusReport struct {
	Video    *store.Video
	Tasks    []*store.ProcessingTask
	Progress float64
	Counts   map[store.TaskStatus]int
}

// Status reports per-task detail and overall progress for a video.
func (o *Orchestrator) Status(ctx context.Context, videoID, ownerID string) (*StatusReport, error) {
	video, err := o.store.VideoForOwner(ctx, videoID, ownerID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, services.Wrap(services.ErrNotFound, "processing", "status",
			fmt.Sprintf("video %s not found", videoID), nil)
	}
	tasks, err := o.store.TasksForVideo(ctx, video.ID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Video:  video,
		Tasks:  tasks,
		Counts: make(map[store.TaskStatus]int, len(tasks)),
	}
	completed := 0
	for _, task := range tasks {
		report.Counts[task.Status]++
		if task.Status == store.TaskCompleted {
			completed++
		}
	}
	if len(tasks) > 0 {
		report.Progress = 100 * float64(completed) / float64(len(tasks))
	}
	return report, nil
}

// rollup recomputes the video status from its task set. All required types
// completed moves the video to ready; any required type failed moves it to
// failed. Optional task outcomes never change the video status.
func (o *Orchestrator) rollup(ctx context.Context, videoID string) {
	tasks, err := o.store.TasksForVideo(ctx, videoID)
	if err != nil {
		o.logger.Error("rollup task load failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
		return
	}

	completedRequired := make(map[store.TaskType]bool)
	var failedRequired bool
	var failureReasons []string
	for _, task := range tasks {
		if !task.Type.Required() {
			continue
		}
		switch task.Status {
		case store.TaskCompleted:
			completedRequired[task.Type] = true
		case store.TaskFailed, store.TaskCancelled:
			failedRequired = true
			if task.ErrorMessage != "" {
				failureReasons = append(failureReasons, fmt.Sprintf("%s: %s", task.Type, task.ErrorMessage))
			}
		}
	}

	if failedRequired {
		applied, err := o.store.TransitionVideo(ctx, videoID,
			[]store.VideoStatus{store.VideoUploading, store.VideoProcessing}, store.VideoFailed)
		if err != nil {
			o.logger.Error("rollup transition failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
			return
		}
		if applied {
			o.logger.Info("video failed", logging.String(logging.FieldVideoID, videoID))
			if o.notifier != nil {
				if video, err := o.store.VideoByID(ctx, videoID); err == nil && video != nil {
					o.notifier.VideoFailed(ctx, video, strings.Join(failureReasons, "; "))
				}
			}
		}
		return
	}

	for _, required := range store.RequiredTaskTypes() {
		if !completedRequired[required] {
			return
		}
	}

	applied, err := o.store.TransitionVideo(ctx, videoID,
		[]store.VideoStatus{store.VideoProcessing}, store.VideoReady)
	if err != nil {
		o.logger.Error("rollup transition failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
		return
	}
	if applied {
		o.logger.Info("video ready", logging.String(logging.FieldVideoID, videoID))
		if o.notifier != nil {
			if video, err := o.store.VideoByID(ctx, videoID); err == nil && video != nil {
				o.notifier.VideoReady(ctx, video)
			}
		}
	}
}
