package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const platformColumns = "name, endpoint, access_token, active, max_video_bytes, max_duration_secs, supported_formats_json, updated_at"

// UpsertPlatform inserts or replaces a platform definition by name.
func (s *Store) UpsertPlatform(ctx context.Context, platform *Platform) error {
	if platform == nil {
		return errors.New("platform is nil")
	}
	platform.Name = strings.ToLower(strings.TrimSpace(platform.Name))
	if platform.Name == "" {
		return errors.New("platform name is required")
	}
	platform.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO platforms (`+platformColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
             endpoint = excluded.endpoint,
             access_token = excluded.access_token,
             active = excluded.active,
             max_video_bytes = excluded.max_video_bytes,
             max_duration_secs = excluded.max_duration_secs,
             supported_formats_json = excluded.supported_formats_json,
             updated_at = excluded.updated_at`,
		platform.Name,
		platform.Endpoint,
		nullableString(platform.AccessToken),
		boolToInt(platform.Active),
		platform.MaxVideoBytes,
		platform.MaxDurationSecs,
		marshalStrings(platform.SupportedFormats),
		formatTime(platform.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert platform: %w", err)
	}
	return nil
}

// PlatformByName fetches a platform definition. Returns nil when missing.
func (s *Store) PlatformByName(ctx context.Context, name string) (*Platform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	row := s.db.QueryRowContext(ctx, `SELECT `+platformColumns+` FROM platforms WHERE name = ?`, name)
	platform, err := scanPlatform(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get platform: %w", err)
	}
	return platform, nil
}

// ListPlatforms returns configured platforms, optionally only active ones.
func (s *Store) ListPlatforms(ctx context.Context, activeOnly bool) ([]*Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platforms`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	defer rows.Close()

	var platforms []*Platform
	for rows.Next() {
		platform, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, platform)
	}
	return platforms, rows.Err()
}

func scanPlatform(scanner interface{ Scan(dest ...any) error }) (*Platform, error) {
	var (
		name        string
		endpoint    string
		accessToken sql.NullString
		active      sql.NullInt64
		maxBytes    int64
		maxDuration int
		formatsJSON sql.NullString
		updatedRaw  string
	)

	if err := scanner.Scan(
		&name,
		&endpoint,
		&accessToken,
		&active,
		&maxBytes,
		&maxDuration,
		&formatsJSON,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	platform := &Platform{
		Name:             name,
		Endpoint:         endpoint,
		AccessToken:      accessToken.String,
		Active:           active.Valid && active.Int64 != 0,
		MaxVideoBytes:    maxBytes,
		MaxDurationSecs:  maxDuration,
		SupportedFormats: unmarshalStrings(formatsJSON.String),
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		platform.UpdatedAt = updated
	}
	return platform, nil
}
