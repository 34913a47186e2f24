package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clippress/internal/config"
	"clippress/internal/logging"
	"clippress/internal/store"
)

type capturedRequest struct {
	body     string
	title    string
	tags     string
	priority string
}

func newCaptureServer(t *testing.T) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var requests []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		requests = append(requests, capturedRequest{
			body:     string(body),
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func testConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.VideoReady = true
	cfg.Notifications.VideoFailed = true
	cfg.Notifications.PublishDone = true
	cfg.Notifications.PublishFailed = true
	return &cfg
}

func TestNewNotifierReturnsNoopWithoutTopic(t *testing.T) {
	notifier := NewNotifier(testConfig("   "), logging.NewNop())
	if _, ok := notifier.(noopNotifier); !ok {
		t.Fatalf("expected noop notifier, got %T", notifier)
	}
	// Must be safe to call without a server anywhere.
	notifier.VideoReady(context.Background(), &store.Video{Title: "clip"})
	notifier.UploadFailed(context.Background(), &store.SocialMediaUpload{Platform: "pixelfeed"}, "boom")
}

func TestVideoReadySendsNotification(t *testing.T) {
	server, requests := newCaptureServer(t)
	notifier := NewNotifier(testConfig(server.URL), logging.NewNop())

	notifier.VideoReady(context.Background(), &store.Video{Title: "Morning Routine"})

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if got.title != "Clippress - Video Ready" {
		t.Errorf("unexpected title %q", got.title)
	}
	if !strings.Contains(got.body, "Morning Routine") {
		t.Errorf("body %q missing video title", got.body)
	}
	if got.tags != "clippress,video,ready" {
		t.Errorf("unexpected tags %q", got.tags)
	}
	if got.priority != "" {
		t.Errorf("ready notification should not set priority, got %q", got.priority)
	}
}

func TestVideoFailedIncludesReasonAndPriority(t *testing.T) {
	server, requests := newCaptureServer(t)
	notifier := NewNotifier(testConfig(server.URL), logging.NewNop())

	notifier.VideoFailed(context.Background(), &store.Video{Title: "Morning Routine"}, "compression failed")

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if got.priority != "high" {
		t.Errorf("expected high priority, got %q", got.priority)
	}
	if !strings.Contains(got.body, "compression failed") {
		t.Errorf("body %q missing failure reason", got.body)
	}
}

func TestUploadPublishedIncludesURL(t *testing.T) {
	server, requests := newCaptureServer(t)
	notifier := NewNotifier(testConfig(server.URL), logging.NewNop())

	notifier.UploadPublished(context.Background(), &store.SocialMediaUpload{
		Platform:    "pixelfeed",
		ExternalURL: "https://pixelfeed.example/v/abc123",
	})

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if !strings.Contains(got.body, "pixelfeed") {
		t.Errorf("body %q missing platform", got.body)
	}
	if !strings.Contains(got.body, "https://pixelfeed.example/v/abc123") {
		t.Errorf("body %q missing external URL", got.body)
	}
}

func TestDisabledEventsAreSuppressed(t *testing.T) {
	server, requests := newCaptureServer(t)
	cfg := testConfig(server.URL)
	cfg.Notifications.VideoReady = false
	cfg.Notifications.PublishFailed = false
	notifier := NewNotifier(cfg, logging.NewNop())

	notifier.VideoReady(context.Background(), &store.Video{Title: "clip"})
	notifier.UploadFailed(context.Background(), &store.SocialMediaUpload{Platform: "pixelfeed"}, "boom")

	if len(*requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(*requests))
	}

	notifier.VideoFailed(context.Background(), &store.Video{Title: "clip"}, "boom")
	if len(*requests) != 1 {
		t.Fatalf("expected enabled event to send, got %d requests", len(*requests))
	}
}

func TestServerErrorDoesNotPanic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	notifier := NewNotifier(testConfig(server.URL), logging.NewNop())
	notifier.VideoReady(context.Background(), &store.Video{Title: "clip"})
}
