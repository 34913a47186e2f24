package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const uploadColumns = "id, owner_id, video_id, platform, caption, hashtags, schedule_at, status, external_id, external_url, error_message, created_at, published_at, updated_at"

// ErrDuplicateActiveUpload reports an insert that would give a video a second
// live upload on the same platform. The partial unique index on
// (video_id, platform) enforces this even when two creates race.
var ErrDuplicateActiveUpload = errors.New("video already has an active upload for platform")

// CreateUpload inserts a new social media upload record.
func (s *Store) CreateUpload(ctx context.Context, upload *SocialMediaUpload) error {
	if upload == nil {
		return errors.New("upload is nil")
	}
	if upload.ID == "" {
		upload.ID = uuid.NewString()
	}
	if upload.Status == "" {
		upload.Status = UploadPending
	}
	now := time.Now().UTC()
	upload.CreatedAt = now
	upload.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO social_media_uploads (`+uploadColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.ID,
		upload.OwnerID,
		upload.VideoID,
		upload.Platform,
		nullableString(upload.Caption),
		nullableString(upload.Hashtags),
		nullableTime(upload.ScheduleAt),
		upload.Status,
		nullableString(upload.ExternalID),
		nullableString(upload.ExternalURL),
		nullableString(upload.ErrorMessage),
		formatTime(upload.CreatedAt),
		nullableTime(upload.PublishedAt),
		formatTime(upload.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") &&
			strings.Contains(err.Error(), "social_media_uploads.video_id") {
			return ErrDuplicateActiveUpload
		}
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// UploadByID fetches an upload by identifier. Returns nil when missing.
func (s *Store) UploadByID(ctx context.Context, id string) (*SocialMediaUpload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM social_media_uploads WHERE id = ?`, id)
	upload, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return upload, nil
}

// UploadForOwner fetches an upload scoped to its owner.
func (s *Store) UploadForOwner(ctx context.Context, id, ownerID string) (*SocialMediaUpload, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+uploadColumns+` FROM social_media_uploads WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	upload, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload for owner: %w", err)
	}
	return upload, nil
}

// ListUploadsByOwner returns an owner's uploads newest first.
func (s *Store) ListUploadsByOwner(ctx context.Context, ownerID string) ([]*SocialMediaUpload, error) {
	return s.listUploads(ctx, `owner_id = ?`, ownerID)
}

// ListUploadsForVideo returns every upload referencing a video.
func (s *Store) ListUploadsForVideo(ctx context.Context, videoID string) ([]*SocialMediaUpload, error) {
	return s.listUploads(ctx, `video_id = ?`, videoID)
}

func (s *Store) listUploads(ctx context.Context, where string, arg any) ([]*SocialMediaUpload, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+uploadColumns+` FROM social_media_uploads WHERE `+where+` ORDER BY created_at DESC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*SocialMediaUpload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

// ActiveUploadForVideoPlatform returns the upload blocking a new publish to
// the (video, platform) pair, or nil when the pair is free.
func (s *Store) ActiveUploadForVideoPlatform(ctx context.Context, videoID, platform string) (*SocialMediaUpload, error) {
	statuses := ActiveUploadStatuses()
	args := []any{videoID, platform}
	for _, status := range statuses {
		args = append(args, status)
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+uploadColumns+` FROM social_media_uploads
         WHERE video_id = ? AND platform = ? AND status IN (`+makePlaceholders(len(statuses))+`)
         ORDER BY created_at DESC LIMIT 1`,
		args...,
	)
	upload, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active upload: %w", err)
	}
	return upload, nil
}

// StartUploadJob moves a pending upload to uploading.
func (s *Store) StartUploadJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE social_media_uploads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		UploadUploading, formatTime(time.Now().UTC()), id, UploadPending,
	)
	if err != nil {
		return false, fmt.Errorf("start upload: %w", err)
	}
	return rowsApplied(res)
}

// MarkUploadPublished records the platform identifiers and publish timestamp.
func (s *Store) MarkUploadPublished(ctx context.Context, id, externalID, externalURL string) (bool, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE social_media_uploads
         SET status = ?, external_id = ?, external_url = ?, error_message = NULL, published_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		UploadPublished, externalID, nullableString(externalURL), now, now, id, UploadUploading,
	)
	if err != nil {
		return false, fmt.Errorf("mark published: %w", err)
	}
	return rowsApplied(res)
}

// MarkUploadScheduled parks an upload whose schedule time has not arrived.
func (s *Store) MarkUploadScheduled(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE social_media_uploads SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		UploadScheduled, formatTime(time.Now().UTC()), id, UploadPending, UploadUploading,
	)
	if err != nil {
		return false, fmt.Errorf("mark scheduled: %w", err)
	}
	return rowsApplied(res)
}

// FailUpload marks a pending or uploading record failed with the captured error.
func (s *Store) FailUpload(ctx context.Context, id, message string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE social_media_uploads SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		UploadFailed, message, formatTime(time.Now().UTC()), id, UploadPending, UploadUploading,
	)
	if err != nil {
		return false, fmt.Errorf("fail upload: %w", err)
	}
	return rowsApplied(res)
}

// CancelUpload fails a not-yet-published upload with the user-cancel
// sentinel. Published uploads cannot be cancelled.
func (s *Store) CancelUpload(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE social_media_uploads SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?)`,
		UploadFailed, CancelledByUserMessage, formatTime(time.Now().UTC()),
		id, UploadPending, UploadUploading, UploadScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("cancel upload: %w", err)
	}
	return rowsApplied(res)
}

// ResetUploadForRetry moves a failed upload back to pending and clears its error.
func (s *Store) ResetUploadForRetry(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE social_media_uploads SET status = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		UploadPending, formatTime(time.Now().UTC()), id, UploadFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reset upload: %w", err)
	}
	return rowsApplied(res)
}

// DueScheduledUploads returns scheduled uploads whose schedule time has passed.
func (s *Store) DueScheduledUploads(ctx context.Context, now time.Time) ([]*SocialMediaUpload, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+uploadColumns+` FROM social_media_uploads
         WHERE status = ? AND schedule_at IS NOT NULL AND schedule_at <= ?
         ORDER BY schedule_at`,
		UploadScheduled, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("list due uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*SocialMediaUpload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

// RequeueScheduledUpload moves a due scheduled upload back to pending.
func (s *Store) RequeueScheduledUpload(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE social_media_uploads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		UploadPending, formatTime(time.Now().UTC()), id, UploadScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("requeue scheduled upload: %w", err)
	}
	return rowsApplied(res)
}

func scanUpload(scanner interface{ Scan(dest ...any) error }) (*SocialMediaUpload, error) {
	var (
		id           string
		ownerID      string
		videoID      string
		platform     string
		caption      sql.NullString
		hashtags     sql.NullString
		scheduleRaw  sql.NullString
		statusStr    string
		externalID   sql.NullString
		externalURL  sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		publishedRaw sql.NullString
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&videoID,
		&platform,
		&caption,
		&hashtags,
		&scheduleRaw,
		&statusStr,
		&externalID,
		&externalURL,
		&errorMessage,
		&createdRaw,
		&publishedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	upload := &SocialMediaUpload{
		ID:           id,
		OwnerID:      ownerID,
		VideoID:      videoID,
		Platform:     platform,
		Caption:      caption.String,
		Hashtags:     hashtags.String,
		ScheduleAt:   parseTimePtr(scheduleRaw.String),
		Status:       UploadStatus(statusStr),
		ExternalID:   externalID.String,
		ExternalURL:  externalURL.String,
		ErrorMessage: errorMessage.String,
		PublishedAt:  parseTimePtr(publishedRaw.String),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		upload.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		upload.UpdatedAt = updated
	}
	return upload, nil
}
