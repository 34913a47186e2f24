// Package publish validates and executes social media publishes of ready
// videos, with retry, cancellation, scheduling, and analytics refresh.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clippress/internal/blob"
	"clippress/internal/config"
	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/media"
	"clippress/internal/services"
	"clippress/internal/store"
)

// Notifier receives terminal publish outcomes.
type Notifier interface {
	UploadPublished(ctx context.Context, upload *store.SocialMediaUpload)
	UploadFailed(ctx context.Context, upload *store.SocialMediaUpload, reason string)
}

// Service owns the social media upload lifecycle.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	blobs      *blob.Store
	dispatcher dispatch.Dispatcher
	client     PlatformClient
	notifier   Notifier
	logger     *slog.Logger

	probe func(ctx context.Context, binary, path string) (media.Info, error)
	now   func() time.Time
}

// NewService builds the publishing service. The notifier may be nil.
func NewService(cfg *config.Config, st *store.Store, blobs *blob.Store, dispatcher dispatch.Dispatcher, client PlatformClient, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		blobs:      blobs,
		dispatcher: dispatcher,
		client:     client,
		notifier:   notifier,
		logger:     logger,
		probe:      media.Probe,
		now:        time.Now,
	}
}

// Request describes one requested publish.
type Request struct {
	OwnerID    string
	VideoID    string
	Platform   string
	Caption    string
	Hashtags   string
	ScheduleAt *time.Time
}

// Create validates the request against the video and the platform limits,
// persists the upload, and submits the publish job. A request that fails any
// check is rejected whole; nothing is persisted.
func (s *Service) Create(ctx context.Context, req Request) (*store.SocialMediaUpload, error) {
	video, platform, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	upload := &store.SocialMediaUpload{
		OwnerID:    req.OwnerID,
		VideoID:    video.ID,
		Platform:   platform.Name,
		Caption:    strings.TrimSpace(req.Caption),
		Hashtags:   strings.TrimSpace(req.Hashtags),
		ScheduleAt: req.ScheduleAt,
		Status:     store.UploadPending,
	}
	if err := s.store.CreateUpload(ctx, upload); err != nil {
		// The validate pre-check and the insert can race with a concurrent
		// create for the same pair; the unique index settles the loser here.
		if errors.Is(err, store.ErrDuplicateActiveUpload) {
			return nil, services.Wrap(services.ErrValidation, "publish", "create",
				fmt.Sprintf("video already has an active upload to %s", platform.Name), err)
		}
		return nil, services.Wrap(services.ErrTransient, "publish", "create", "persist upload", err)
	}

	if err := s.submit(ctx, upload); err != nil {
		return nil, err
	}
	s.logger.Info("upload created",
		logging.String(logging.FieldUploadID, upload.ID),
		logging.String(logging.FieldVideoID, video.ID),
		logging.String(logging.FieldPlatform, platform.Name),
	)
	return upload, nil
}

// BulkResult is the per-platform outcome of a bulk publish.
type BulkResult struct {
	Platform string
	Upload   *store.SocialMediaUpload
	Err      error
}

// CreateBulk publishes one video to several platforms. Each platform is
// validated and persisted independently; one platform failing does not stop
// the others.
func (s *Service) CreateBulk(ctx context.Context, ownerID, videoID string, platforms []string, caption, hashtags string, scheduleAt *time.Time) []BulkResult {
	results := make([]BulkResult, 0, len(platforms))
	for _, platform := range platforms {
		upload, err := s.Create(ctx, Request{
			OwnerID:    ownerID,
			VideoID:    videoID,
			Platform:   platform,
			Caption:    caption,
			Hashtags:   hashtags,
			ScheduleAt: scheduleAt,
		})
		results = append(results, BulkResult{Platform: platform, Upload: upload, Err: err})
	}
	return results
}

func (s *Service) validate(ctx context.Context, req Request) (*store.Video, *store.Platform, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create", "owner is required", nil)
	}

	video, err := s.store.VideoForOwner(ctx, req.VideoID, req.OwnerID)
	if err != nil {
		return nil, nil, err
	}
	if video == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "publish", "create",
			fmt.Sprintf("video %s not found", req.VideoID), nil)
	}
	if video.Status != store.VideoReady {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			fmt.Sprintf("video is %s, only ready videos can be published", video.Status), nil)
	}

	platformName := strings.ToLower(strings.TrimSpace(req.Platform))
	platform, err := s.store.PlatformByName(ctx, platformName)
	if err != nil {
		return nil, nil, err
	}
	if platform == nil {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			fmt.Sprintf("unknown platform %q", req.Platform), nil)
	}
	if !platform.Active {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			fmt.Sprintf("platform %q is not active", platform.Name), nil)
	}

	if platform.MaxVideoBytes > 0 && video.SizeBytes > platform.MaxVideoBytes {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			fmt.Sprintf("video of %d bytes exceeds %s limit of %d", video.SizeBytes, platform.Name, platform.MaxVideoBytes), nil)
	}
	if platform.MaxDurationSecs > 0 && video.DurationSecs > float64(platform.MaxDurationSecs) {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			fmt.Sprintf("video of %.0fs exceeds %s limit of %ds", video.DurationSecs, platform.Name, platform.MaxDurationSecs), nil)
	}

	format, err := s.videoFormat(ctx, video)
	if err != nil {
		return nil, nil, err
	}
	if !platform.SupportsFormat(format) {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			fmt.Sprintf("format %q is not supported by %s", format, platform.Name), nil)
	}

	if req.ScheduleAt != nil && req.ScheduleAt.Before(s.now()) {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			"schedule time is in the past", nil)
	}

	active, err := s.store.ActiveUploadForVideoPlatform(ctx, video.ID, platform.Name)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "publish", "create",
			fmt.Sprintf("video already has a %s upload to %s", active.Status, platform.Name), nil)
	}
	return video, platform, nil
}

func (s *Service) videoFormat(ctx context.Context, video *store.Video) (string, error) {
	path, err := s.blobs.Path(video.BlobHandle)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "create", "resolve video content", err)
	}
	info, err := s.probe(ctx, s.cfg.FFprobeBinary(), path)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "create", "probe video content", err)
	}
	// ffprobe reports container aliases together ("mov,mp4,m4a,...").
	for _, name := range strings.Split(info.FormatName, ",") {
		if name = strings.TrimSpace(name); name == "mp4" {
			return "mp4", nil
		}
	}
	parts := strings.Split(info.FormatName, ",")
	return strings.TrimSpace(parts[0]), nil
}

func (s *Service) submit(ctx context.Context, upload *store.SocialMediaUpload) error {
	handle, err := s.dispatcher.Submit(ctx, JobPublishUpload, map[string]string{"upload_id": upload.ID})
	if err != nil {
		_, _ = s.store.FailUpload(ctx, upload.ID, "could not submit publish job")
		return services.Wrap(services.ErrTransient, "publish", "submit", "submit publish job", err)
	}
	s.logger.Debug("publish job submitted",
		logging.String(logging.FieldUploadID, upload.ID),
		logging.String(logging.FieldJobHandle, handle),
	)
	return nil
}
