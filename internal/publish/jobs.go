package publish

import (
	"context"
	"fmt"
	"time"

	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/services"
	"clippress/internal/store"
)

// JobPublishUpload is the dispatch job name for executing one publish.
const JobPublishUpload = "publish_upload"

// RegisterJobs wires the publish job handler into the registry.
func (s *Service) RegisterJobs(registry *dispatch.Registry) {
	registry.Register(JobPublishUpload, s.handlePublish)
}

// handlePublish executes one upload. A cancelled upload loses the
// conditional start and the platform is never contacted.
func (s *Service) handlePublish(ctx context.Context, args map[string]string) error {
	upload, err := s.store.UploadByID(ctx, args["upload_id"])
	if err != nil {
		return err
	}
	if upload == nil {
		return services.Wrap(services.ErrNotFound, "publish", "job",
			fmt.Sprintf("upload %s not found", args["upload_id"]), nil)
	}

	if upload.ScheduleAt != nil && upload.ScheduleAt.After(s.now()) {
		applied, err := s.store.MarkUploadScheduled(ctx, upload.ID)
		if err != nil {
			return err
		}
		if applied {
			s.logger.Info("upload parked until schedule",
				logging.String(logging.FieldUploadID, upload.ID),
				logging.String("schedule_at", upload.ScheduleAt.UTC().Format(time.RFC3339)),
			)
		}
		return nil
	}

	applied, err := s.store.StartUploadJob(ctx, upload.ID)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	ctx = services.WithUploadID(ctx, upload.ID)
	if err := s.executePublish(ctx, upload); err != nil {
		if _, failErr := s.store.FailUpload(ctx, upload.ID, err.Error()); failErr != nil {
			return failErr
		}
		s.logger.Warn("publish failed",
			logging.String(logging.FieldUploadID, upload.ID),
			logging.String(logging.FieldPlatform, upload.Platform),
			logging.Error(err),
		)
		if s.notifier != nil {
			s.notifier.UploadFailed(ctx, upload, err.Error())
		}
		return err
	}
	return nil
}

func (s *Service) executePublish(ctx context.Context, upload *store.SocialMediaUpload) error {
	platform, err := s.store.PlatformByName(ctx, upload.Platform)
	if err != nil {
		return err
	}
	if platform == nil {
		return fmt.Errorf("platform %q no longer configured", upload.Platform)
	}
	video, err := s.store.VideoByID(ctx, upload.VideoID)
	if err != nil {
		return err
	}
	if video == nil {
		return fmt.Errorf("video %s no longer exists", upload.VideoID)
	}

	path, err := s.blobs.Path(video.BlobHandle)
	if err != nil {
		return fmt.Errorf("resolve video content: %w", err)
	}
	content, err := s.blobs.Open(video.BlobHandle)
	if err != nil {
		return fmt.Errorf("open video content: %w", err)
	}
	defer content.Close()

	result, err := s.client.Publish(ctx, platform, upload, path, content)
	if err != nil {
		return err
	}

	applied, err := s.store.MarkUploadPublished(ctx, upload.ID, result.ExternalID, result.ExternalURL)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Warn("publish finished but upload left uploading state",
			logging.String(logging.FieldUploadID, upload.ID))
		return nil
	}
	s.logger.Info("upload published",
		logging.String(logging.FieldUploadID, upload.ID),
		logging.String(logging.FieldPlatform, upload.Platform),
		logging.String("external_id", result.ExternalID),
	)
	if s.notifier != nil {
		if published, err := s.store.UploadByID(ctx, upload.ID); err == nil && published != nil {
			s.notifier.UploadPublished(ctx, published)
		}
	}
	return nil
}

// Retry moves a failed upload back to pending and resubmits its job.
func (s *Service) Retry(ctx context.Context, uploadID, ownerID string) (*store.SocialMediaUpload, error) {
	upload, err := s.store.UploadForOwner(ctx, uploadID, ownerID)
	if err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, services.Wrap(services.ErrNotFound, "publish", "retry",
			fmt.Sprintf("upload %s not found", uploadID), nil)
	}

	applied, err := s.store.ResetUploadForRetry(ctx, upload.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, services.Wrap(services.ErrValidation, "publish", "retry",
			fmt.Sprintf("upload is %s, only failed uploads can be retried", upload.Status), nil)
	}
	if err := s.submit(ctx, upload); err != nil {
		return nil, err
	}
	return s.store.UploadByID(ctx, upload.ID)
}

// Cancel fails a not-yet-published upload with the user-cancel sentinel. The
// conditional write guarantees a cancelled upload never reaches the platform.
func (s *Service) Cancel(ctx context.Context, uploadID, ownerID string) error {
	upload, err := s.store.UploadForOwner(ctx, uploadID, ownerID)
	if err != nil {
		return err
	}
	if upload == nil {
		return services.Wrap(services.ErrNotFound, "publish", "cancel",
			fmt.Sprintf("upload %s not found", uploadID), nil)
	}

	applied, err := s.store.CancelUpload(ctx, upload.ID)
	if err != nil {
		return err
	}
	if !applied {
		return services.Wrap(services.ErrValidation, "publish", "cancel",
			fmt.Sprintf("upload is %s and can no longer be cancelled", upload.Status), nil)
	}
	s.logger.Info("upload cancelled", logging.String(logging.FieldUploadID, upload.ID))
	return nil
}

// RefreshAnalytics pulls current engagement counters for a published upload.
func (s *Service) RefreshAnalytics(ctx context.Context, uploadID, ownerID string) (*store.PlatformAnalytics, error) {
	upload, err := s.store.UploadForOwner(ctx, uploadID, ownerID)
	if err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, services.Wrap(services.ErrNotFound, "publish", "analytics",
			fmt.Sprintf("upload %s not found", uploadID), nil)
	}
	if upload.Status != store.UploadPublished {
		return nil, services.Wrap(services.ErrValidation, "publish", "analytics",
			fmt.Sprintf("upload is %s, analytics require a published upload", upload.Status), nil)
	}

	platform, err := s.store.PlatformByName(ctx, upload.Platform)
	if err != nil {
		return nil, err
	}
	if platform == nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "analytics",
			fmt.Sprintf("platform %q no longer configured", upload.Platform), nil)
	}

	counters, err := s.client.FetchAnalytics(ctx, platform, upload.ExternalID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publish", "analytics", "fetch analytics", err)
	}

	analytics := &store.PlatformAnalytics{
		UploadID: upload.ID,
		Views:    counters.Views,
		Likes:    counters.Likes,
		Comments: counters.Comments,
		Shares:   counters.Shares,
	}
	if err := s.store.UpsertAnalytics(ctx, analytics); err != nil {
		return nil, err
	}
	return s.store.AnalyticsForUpload(ctx, upload.ID)
}

// SweepScheduled requeues scheduled uploads whose time has arrived and
// resubmits their publish jobs. It is invoked periodically by the daemon.
func (s *Service) SweepScheduled(ctx context.Context) error {
	due, err := s.store.DueScheduledUploads(ctx, s.now())
	if err != nil {
		return err
	}
	for _, upload := range due {
		applied, err := s.store.RequeueScheduledUpload(ctx, upload.ID)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}
		if err := s.submit(ctx, upload); err != nil {
			s.logger.Error("scheduled upload resubmission failed",
				logging.String(logging.FieldUploadID, upload.ID),
				logging.Error(err),
			)
			continue
		}
		s.logger.Info("scheduled upload released",
			logging.String(logging.FieldUploadID, upload.ID),
			logging.String(logging.FieldPlatform, upload.Platform),
		)
	}
	return nil
}
