package testsupport

import (
	"context"
	"testing"

	"clippress/internal/config"
	"clippress/internal/store"
)

// MustOpenStore opens a record store against the test config and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedVideo creates a video record with sensible defaults for tests.
func SeedVideo(t testing.TB, st *store.Store, mutate func(*store.Video)) *store.Video {
	t.Helper()

	video := &store.Video{
		OwnerID:      "owner-1",
		Title:        "Test Video",
		BlobHandle:   "blob-1",
		DurationSecs: 42,
		SizeBytes:    1 << 20,
		Status:       store.VideoProcessing,
		Public:       true,
	}
	if mutate != nil {
		mutate(video)
	}
	if err := st.CreateVideo(context.Background(), video); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	return video
}
