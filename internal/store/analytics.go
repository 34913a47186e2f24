package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const analyticsColumns = "upload_id, views, likes, comments, shares, engagement_rate, refreshed_at"

// UpsertAnalytics inserts or refreshes the analytics snapshot for an upload.
func (s *Store) UpsertAnalytics(ctx context.Context, analytics *PlatformAnalytics) error {
	if analytics == nil {
		return errors.New("analytics is nil")
	}
	if analytics.UploadID == "" {
		return errors.New("analytics upload id is required")
	}
	analytics.ComputeEngagementRate()
	analytics.RefreshedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO platform_analytics (`+analyticsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(upload_id) DO UPDATE SET
             views = excluded.views,
             likes = excluded.likes,
             comments = excluded.comments,
             shares = excluded.shares,
             engagement_rate = excluded.engagement_rate,
             refreshed_at = excluded.refreshed_at`,
		analytics.UploadID,
		analytics.Views,
		analytics.Likes,
		analytics.Comments,
		analytics.Shares,
		analytics.EngagementRate,
		formatTime(analytics.RefreshedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}
	return nil
}

// AnalyticsForUpload fetches the analytics snapshot. Returns nil when absent.
func (s *Store) AnalyticsForUpload(ctx context.Context, uploadID string) (*PlatformAnalytics, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+analyticsColumns+` FROM platform_analytics WHERE upload_id = ?`,
		uploadID,
	)

	var (
		id          string
		views       int64
		likes       int64
		comments    int64
		shares      int64
		engagement  float64
		refreshedAt string
	)
	err := row.Scan(&id, &views, &likes, &comments, &shares, &engagement, &refreshedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analytics: %w", err)
	}

	analytics := &PlatformAnalytics{
		UploadID:       id,
		Views:          views,
		Likes:          likes,
		Comments:       comments,
		Shares:         shares,
		EngagementRate: engagement,
	}
	if refreshed, err := parseTimeString(refreshedAt); err == nil {
		analytics.RefreshedAt = refreshed
	}
	return analytics, nil
}
