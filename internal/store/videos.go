package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const videoColumns = "id, owner_id, title, description, blob_handle, thumbnail, duration_secs, size_bytes, status, transcription, tags_json, public, created_at, updated_at"

// CreateVideo inserts a new video record, assigning an identifier when absent.
func (s *Store) CreateVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is nil")
	}
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	if video.Status == "" {
		video.Status = VideoUploading
	}
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO videos (`+videoColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		video.ID,
		video.OwnerID,
		video.Title,
		nullableString(video.Description),
		nullableString(video.BlobHandle),
		nullableString(video.Thumbnail),
		video.DurationSecs,
		video.SizeBytes,
		video.Status,
		nullableString(video.Transcription),
		marshalStrings(video.Tags),
		boolToInt(video.Public),
		formatTime(video.CreatedAt),
		formatTime(video.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// VideoByID fetches a video by identifier. Returns nil when missing.
func (s *Store) VideoByID(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return video, nil
}

// VideoForOwner fetches a video scoped to its owner. Returns nil when missing
// or owned by someone else.
func (s *Store) VideoForOwner(ctx context.Context, id, ownerID string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ? AND owner_id = ?`, id, ownerID)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video for owner: %w", err)
	}
	return video, nil
}

// ListVideosByOwner returns an owner's videos, optionally filtered by status.
func (s *Store) ListVideosByOwner(ctx context.Context, ownerID string, statuses ...VideoStatus) ([]*Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE owner_id = ?`
	args := []any{ownerID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// UpdateVideo persists mutable video fields.
func (s *Store) UpdateVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is nil")
	}
	video.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE videos
         SET title = ?, description = ?, blob_handle = ?, thumbnail = ?,
             duration_secs = ?, size_bytes = ?, status = ?, transcription = ?,
             tags_json = ?, public = ?, updated_at = ?
         WHERE id = ?`,
		video.Title,
		nullableString(video.Description),
		nullableString(video.BlobHandle),
		nullableString(video.Thumbnail),
		video.DurationSecs,
		video.SizeBytes,
		video.Status,
		nullableString(video.Transcription),
		marshalStrings(video.Tags),
		boolToInt(video.Public),
		formatTime(video.UpdatedAt),
		video.ID,
	)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return nil
}

// TransitionVideo applies a conditional status transition. It reports whether
// the write applied, which is false when the current status is outside from.
func (s *Store) TransitionVideo(ctx context.Context, id string, from []VideoStatus, to VideoStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition requires at least one source status")
	}
	args := []any{to, formatTime(time.Now().UTC()), id}
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE videos SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition video rows: %w", err)
	}
	return affected > 0, nil
}

// SetVideoThumbnail records the generated thumbnail handle.
func (s *Store) SetVideoThumbnail(ctx context.Context, id, handle string) error {
	return s.setVideoField(ctx, id, "thumbnail", handle)
}

// SetVideoTranscription records the transcription text produced by a task.
func (s *Store) SetVideoTranscription(ctx context.Context, id, transcription string) error {
	return s.setVideoField(ctx, id, "transcription", transcription)
}

// SetVideoTags replaces the tag set produced by content analysis.
func (s *Store) SetVideoTags(ctx context.Context, id string, tags []string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE videos SET tags_json = ?, updated_at = ? WHERE id = ?`,
		marshalStrings(tags),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set video tags: %w", err)
	}
	return nil
}

// ReplaceVideoBinary swaps the stored binary after compression.
func (s *Store) ReplaceVideoBinary(ctx context.Context, id, handle string, sizeBytes int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE videos SET blob_handle = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		handle,
		sizeBytes,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("replace video binary: %w", err)
	}
	return nil
}

func (s *Store) setVideoField(ctx context.Context, id, column, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE videos SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		nullableString(value),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set video %s: %w", column, err)
	}
	return nil
}

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		id            string
		ownerID       string
		title         string
		description   sql.NullString
		blobHandle    sql.NullString
		thumbnail     sql.NullString
		durationSecs  float64
		sizeBytes     int64
		statusStr     string
		transcription sql.NullString
		tagsJSON      sql.NullString
		public        sql.NullInt64
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&title,
		&description,
		&blobHandle,
		&thumbnail,
		&durationSecs,
		&sizeBytes,
		&statusStr,
		&transcription,
		&tagsJSON,
		&public,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	video := &Video{
		ID:            id,
		OwnerID:       ownerID,
		Title:         title,
		Description:   description.String,
		BlobHandle:    blobHandle.String,
		Thumbnail:     thumbnail.String,
		DurationSecs:  durationSecs,
		SizeBytes:     sizeBytes,
		Status:        VideoStatus(statusStr),
		Transcription: transcription.String,
		Tags:          unmarshalStrings(tagsJSON.String),
		Public:        public.Valid && public.Int64 != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		video.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		video.UpdatedAt = updated
	}
	return video, nil
}
