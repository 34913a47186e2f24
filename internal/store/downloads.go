package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const downloadColumns = "id, owner_id, source_url, video_id, status, error_message, created_at, updated_at"

// CreateDownload inserts a pending YouTube download record.
func (s *Store) CreateDownload(ctx context.Context, download *YouTubeDownload) error {
	if download == nil {
		return errors.New("download is nil")
	}
	if download.ID == "" {
		download.ID = uuid.NewString()
	}
	if download.Status == "" {
		download.Status = DownloadPending
	}
	now := time.Now().UTC()
	download.CreatedAt = now
	download.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO youtube_downloads (`+downloadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		download.ID,
		download.OwnerID,
		download.SourceURL,
		nullableString(download.VideoID),
		download.Status,
		nullableString(download.ErrorMessage),
		formatTime(download.CreatedAt),
		formatTime(download.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert download: %w", err)
	}
	return nil
}

// DownloadByID fetches a download by identifier. Returns nil when missing.
func (s *Store) DownloadByID(ctx context.Context, id string) (*YouTubeDownload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+downloadColumns+` FROM youtube_downloads WHERE id = ?`, id)
	download, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get download: %w", err)
	}
	return download, nil
}

// ListDownloadsByOwner returns an owner's downloads newest first.
func (s *Store) ListDownloadsByOwner(ctx context.Context, ownerID string) ([]*YouTubeDownload, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+downloadColumns+` FROM youtube_downloads WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []*YouTubeDownload
	for rows.Next() {
		download, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, download)
	}
	return downloads, rows.Err()
}

// StartDownload moves a pending download to processing.
func (s *Store) StartDownload(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE youtube_downloads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		DownloadProcessing, formatTime(time.Now().UTC()), id, DownloadPending,
	)
	if err != nil {
		return false, fmt.Errorf("start download: %w", err)
	}
	return rowsApplied(res)
}

// CompleteDownload links the created video and marks the download completed.
func (s *Store) CompleteDownload(ctx context.Context, id, videoID string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE youtube_downloads SET status = ?, video_id = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		DownloadCompleted, videoID, formatTime(time.Now().UTC()), id, DownloadProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("complete download: %w", err)
	}
	return rowsApplied(res)
}

// FailDownload marks a non-terminal download failed with the captured error.
func (s *Store) FailDownload(ctx context.Context, id, message string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE youtube_downloads SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		DownloadFailed, message, formatTime(time.Now().UTC()), id, DownloadPending, DownloadProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("fail download: %w", err)
	}
	return rowsApplied(res)
}

func scanDownload(scanner interface{ Scan(dest ...any) error }) (*YouTubeDownload, error) {
	var (
		id           string
		ownerID      string
		sourceURL    string
		videoID      sql.NullString
		statusStr    string
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&sourceURL,
		&videoID,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	download := &YouTubeDownload{
		ID:           id,
		OwnerID:      ownerID,
		SourceURL:    sourceURL,
		VideoID:      videoID.String,
		Status:       DownloadStatus(statusStr),
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		download.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		download.UpdatedAt = updated
	}
	return download, nil
}
