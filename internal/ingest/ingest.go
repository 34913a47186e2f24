// Package ingest accepts new videos into the pipeline, either from a direct
// upload or from a YouTube source URL. Validation happens before anything is
// persisted; a rejected request leaves no record behind.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"clippress/internal/blob"
	"clippress/internal/config"
	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/media"
	"clippress/internal/services"
	"clippress/internal/store"
)

// Processor starts the processing task fan-out for a newly ingested video.
type Processor interface {
	StartProcessing(ctx context.Context, video *store.Video) error
}

// Service coordinates video ingestion.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	blobs      *blob.Store
	dispatcher dispatch.Dispatcher
	processor  Processor
	logger     *slog.Logger

	download downloadFunc
	probe    probeFunc
}

// probeFunc inspects a stored media file.
type probeFunc func(ctx context.Context, binary, path string) (media.Info, error)

// NewService builds the ingestion service.
func NewService(cfg *config.Config, st *store.Store, blobs *blob.Store, dispatcher dispatch.Dispatcher, processor Processor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		blobs:      blobs,
		dispatcher: dispatcher,
		processor:  processor,
		logger:     logger,
		download:   downloadYouTube,
		probe:      media.Probe,
	}
}

// UploadRequest describes a direct video upload.
type UploadRequest struct {
	OwnerID     string
	Title       string
	Description string
	Filename    string
	SizeBytes   int64
	Content     io.Reader
}

// IngestUpload validates and stores a direct upload, creates the video record
// in processing state, and starts the task fan-out.
func (s *Service) IngestUpload(ctx context.Context, req UploadRequest) (*store.Video, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, err
	}

	handle, size, err := s.blobs.Put(req.Content)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "upload", "store upload content", err)
	}
	if size == 0 {
		_ = s.blobs.Remove(handle)
		return nil, services.Wrap(services.ErrValidation, "ingest", "upload", "upload is empty", nil)
	}
	if size > s.cfg.Ingestion.MaxUploadBytes {
		_ = s.blobs.Remove(handle)
		return nil, services.Wrap(services.ErrValidation, "ingest", "upload",
			fmt.Sprintf("upload of %d bytes exceeds limit of %d", size, s.cfg.Ingestion.MaxUploadBytes), nil)
	}

	path, err := s.blobs.Path(handle)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "upload", "resolve stored content", err)
	}
	info, err := s.probe(ctx, s.cfg.FFprobeBinary(), path)
	if err != nil {
		_ = s.blobs.Remove(handle)
		return nil, services.Wrap(services.ErrValidation, "ingest", "upload", "uploaded file is not a readable video", err)
	}

	video := &store.Video{
		OwnerID:      req.OwnerID,
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		BlobHandle:   handle,
		DurationSecs: info.DurationSeconds,
		SizeBytes:    size,
		Status:       store.VideoProcessing,
	}
	if video.Title == "" {
		video.Title = strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))
	}
	if err := s.store.CreateVideo(ctx, video); err != nil {
		_ = s.blobs.Remove(handle)
		return nil, services.Wrap(services.ErrTransient, "ingest", "upload", "persist video", err)
	}

	s.logger.Info("video ingested",
		logging.String(logging.FieldVideoID, video.ID),
		logging.Int64("size_bytes", size),
		logging.Float64("duration_seconds", info.DurationSeconds),
	)

	if err := s.processor.StartProcessing(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

func (s *Service) validateUpload(req UploadRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" {
		return services.Wrap(services.ErrValidation, "ingest", "upload", "owner is required", nil)
	}
	if req.Content == nil {
		return services.Wrap(services.ErrValidation, "ingest", "upload", "upload content is required", nil)
	}
	if req.SizeBytes > s.cfg.Ingestion.MaxUploadBytes {
		return services.Wrap(services.ErrValidation, "ingest", "upload",
			fmt.Sprintf("upload of %d bytes exceeds limit of %d", req.SizeBytes, s.cfg.Ingestion.MaxUploadBytes), nil)
	}
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	if format == "" {
		return services.Wrap(services.ErrValidation, "ingest", "upload", "filename has no extension", nil)
	}
	for _, allowed := range s.cfg.Ingestion.AllowedFormats {
		if format == allowed {
			return nil
		}
	}
	return services.Wrap(services.ErrValidation, "ingest", "upload",
		fmt.Sprintf("format %q is not allowed (allowed: %s)", format, strings.Join(s.cfg.Ingestion.AllowedFormats, ", ")), nil)
}
