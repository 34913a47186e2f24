package blob_test

import (
	"io"
	"os"
	"strings"
	"testing"

	"clippress/internal/blob"
)

func TestPutAndOpenRoundTrip(t *testing.T) {
	store, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	handle, size, err := store.Put(strings.NewReader("frame data"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if size != int64(len("frame data")) {
		t.Fatalf("unexpected size %d", size)
	}

	reader, err := store.Open(handle)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "frame data" {
		t.Fatalf("unexpected content %q", data)
	}

	// Identical content maps to the same handle.
	again, _, err := store.Put(strings.NewReader("frame data"))
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if again != handle {
		t.Fatalf("expected identical handle, got %s and %s", handle, again)
	}
}

func TestOpenUnknownHandle(t *testing.T) {
	store, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, err := store.Open("deadbeefdeadbeef"); err == nil {
		t.Fatal("expected error for unknown handle")
	}
}

func TestScopedTempCleanup(t *testing.T) {
	store, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	path, cleanup, err := store.ScopedTemp(".wav")
	if err != nil {
		t.Fatalf("ScopedTemp failed: %v", err)
	}
	if !strings.HasSuffix(path, ".wav") {
		t.Fatalf("expected suffix on %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected temp file to exist: %v", err)
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, got %v", err)
	}
	// Cleanup is safe to run twice.
	cleanup()
}
