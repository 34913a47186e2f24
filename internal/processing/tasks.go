package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/services"
	"clippress/internal/store"
)

// Dispatch job names, one per task type.
const (
	JobThumbnail       = "task_thumbnail"
	JobTranscription   = "task_transcription"
	JobCompression     = "task_compression"
	JobContentAnalysis = "task_content_analysis"
)

func jobNameFor(taskType store.TaskType) string {
	switch taskType {
	case store.TaskThumbnail:
		return JobThumbnail
	case store.TaskTranscription:
		return JobTranscription
	case store.TaskCompression:
		return JobCompression
	case store.TaskContentAnalysis:
		return JobContentAnalysis
	default:
		return string(taskType)
	}
}

// RegisterJobs wires the task handlers into the registry.
func (o *Orchestrator) RegisterJobs(registry *dispatch.Registry) {
	registry.Register(JobThumbnail, o.taskHandler(o.runThumbnail))
	registry.Register(JobTranscription, o.taskHandler(o.runTranscription))
	registry.Register(JobCompression, o.taskHandler(o.runCompression))
	registry.Register(JobContentAnalysis, o.taskHandler(o.runContentAnalysis))
}

type taskRunner func(ctx context.Context, video *store.Video, task *store.ProcessingTask) (string, error)

// taskHandler wraps a runner with the shared task lifecycle: the conditional
// start (losing the race means another worker owns the task, or it was
// cancelled), outcome persistence, and the status rollup.
func (o *Orchestrator) taskHandler(run taskRunner) dispatch.Handler {
	return func(ctx context.Context, args map[string]string) error {
		task, err := o.store.TaskByID(ctx, args["task_id"])
		if err != nil {
			return err
		}
		if task == nil {
			return services.Wrap(services.ErrNotFound, "processing", "task",
				fmt.Sprintf("task %s not found", args["task_id"]), nil)
		}
		video, err := o.store.VideoByID(ctx, task.VideoID)
		if err != nil {
			return err
		}
		if video == nil {
			return services.Wrap(services.ErrNotFound, "processing", "task",
				fmt.Sprintf("video %s not found", task.VideoID), nil)
		}

		applied, err := o.store.StartTask(ctx, task.ID)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		ctx = services.WithVideoID(ctx, video.ID)
		resultJSON, runErr := run(ctx, video, task)
		if runErr != nil {
			if errors.Is(runErr, context.Canceled) {
				_, _ = o.store.CancelTask(ctx, task.ID)
				o.rollup(ctx, video.ID)
				return nil
			}
			if _, err := o.store.FailTask(ctx, task.ID, runErr.Error()); err != nil {
				return err
			}
			o.logger.Warn("task failed",
				logging.String(logging.FieldVideoID, video.ID),
				logging.String(logging.FieldTaskType, string(task.Type)),
				logging.Error(runErr),
			)
			o.rollup(ctx, video.ID)
			return runErr
		}

		if _, err := o.store.CompleteTask(ctx, task.ID, resultJSON); err != nil {
			return err
		}
		o.logger.Info("task completed",
			logging.String(logging.FieldVideoID, video.ID),
			logging.String(logging.FieldTaskType, string(task.Type)),
		)
		if task.Type == store.TaskTranscription {
			o.submitPendingAnalysis(ctx, video.ID)
		}
		o.rollup(ctx, video.ID)
		return nil
	}
}

// submitPendingAnalysis submits the video's content analysis task once the
// transcription it depends on exists.
func (o *Orchestrator) submitPendingAnalysis(ctx context.Context, videoID string) {
	tasks, err := o.store.TasksForVideo(ctx, videoID)
	if err != nil {
		o.logger.Error("analysis submission task load failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
		return
	}
	for _, task := range tasks {
		if task.Type != store.TaskContentAnalysis || task.Status != store.TaskPending || task.JobHandle != "" {
			continue
		}
		handle, err := o.dispatcher.Submit(ctx, JobContentAnalysis, map[string]string{"task_id": task.ID})
		if err != nil {
			_, _ = o.store.FailTask(ctx, task.ID, "could not submit task job")
			o.logger.Error("analysis submission failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
			continue
		}
		if err := o.store.SetTaskHandle(ctx, task.ID, handle); err != nil {
			o.logger.Error("analysis handle persist failed", logging.String(logging.FieldVideoID, videoID), logging.Error(err))
		}
	}
}

// runThumbnail captures a frame near the start of the video and records its
// blob handle on the video.
func (o *Orchestrator) runThumbnail(ctx context.Context, video *store.Video, _ *store.ProcessingTask) (string, error) {
	source, err := o.blobs.Path(video.BlobHandle)
	if err != nil {
		return "", fmt.Errorf("resolve video content: %w", err)
	}
	dest, cleanup, err := o.blobs.ScopedTemp(".jpg")
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := o.extractThumbnail(ctx, o.cfg.FFmpegBinary(), source, video.DurationSecs, dest); err != nil {
		return "", err
	}
	handle, size, err := o.blobs.PutFile(dest)
	if err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	if err := o.store.SetVideoThumbnail(ctx, video.ID, handle); err != nil {
		return "", err
	}
	return encodeResult(map[string]any{"thumbnail_handle": handle, "size_bytes": size})
}

// runTranscription extracts a mono 16kHz audio track and sends it to the
// configured transcription provider.
func (o *Orchestrator) runTranscription(ctx context.Context, video *store.Video, _ *store.ProcessingTask) (string, error) {
	if o.transcriber == nil {
		return "", services.Wrap(services.ErrConfiguration, "processing", "transcription",
			"no transcription provider configured", nil)
	}
	source, err := o.blobs.Path(video.BlobHandle)
	if err != nil {
		return "", fmt.Errorf("resolve video content: %w", err)
	}
	audioPath, cleanup, err := o.blobs.ScopedTemp(".wav")
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := o.extractAudio(ctx, o.cfg.FFmpegBinary(), source, audioPath); err != nil {
		return "", err
	}
	transcription, err := o.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return "", err
	}
	if err := o.store.SetVideoTranscription(ctx, video.ID, transcription); err != nil {
		return "", err
	}
	return encodeResult(map[string]any{
		"provider":   o.transcriber.Name(),
		"characters": len(transcription),
	})
}

// runCompression re-encodes the video to the capped resolution and replaces
// the stored binary with the compressed output.
func (o *Orchestrator) runCompression(ctx context.Context, video *store.Video, _ *store.ProcessingTask) (string, error) {
	source, err := o.blobs.Path(video.BlobHandle)
	if err != nil {
		return "", fmt.Errorf("resolve video content: %w", err)
	}
	dest, cleanup, err := o.blobs.ScopedTemp(".mp4")
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := o.compress(ctx, o.cfg.FFmpegBinary(), source, dest); err != nil {
		return "", err
	}
	handle, size, err := o.blobs.PutFile(dest)
	if err != nil {
		return "", fmt.Errorf("store compressed content: %w", err)
	}
	if err := o.store.ReplaceVideoBinary(ctx, video.ID, handle, size); err != nil {
		return "", err
	}
	return encodeResult(map[string]any{
		"handle":         handle,
		"size_bytes":     size,
		"original_bytes": video.SizeBytes,
	})
}

// runContentAnalysis analyzes the stored transcription. The transcription
// task must have completed first; an empty transcription fails the task, and
// since content analysis is optional that failure never blocks readiness.
func (o *Orchestrator) runContentAnalysis(ctx context.Context, video *store.Video, _ *store.ProcessingTask) (string, error) {
	if o.analyzer == nil {
		return "", services.Wrap(services.ErrConfiguration, "processing", "content analysis",
			"no analysis provider configured", nil)
	}
	current, err := o.store.VideoByID(ctx, video.ID)
	if err != nil {
		return "", err
	}
	if current == nil || current.Transcription == "" {
		return "", services.Wrap(services.ErrTransient, "processing", "content analysis",
			"transcription not yet available", nil)
	}

	analysis, err := o.analyzer.Analyze(ctx, current.Transcription)
	if err != nil {
		return "", err
	}
	if len(analysis.Tags) > 0 {
		if err := o.store.SetVideoTags(ctx, video.ID, analysis.Tags); err != nil {
			return "", err
		}
	}
	return encodeResult(analysis)
}

func encodeResult(payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode task result: %w", err)
	}
	return string(encoded), nil
}
