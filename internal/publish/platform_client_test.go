package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clippress/internal/store"
)

func TestHTTPPlatformClientPublish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer platform-token" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if caption := r.FormValue("caption"); caption != "launch day" {
			t.Errorf("unexpected caption %q", caption)
		}
		if hashtags := r.FormValue("hashtags"); hashtags != "#go" {
			t.Errorf("unexpected hashtags %q", hashtags)
		}
		fmt.Fprint(w, `{"id": "ext-1", "url": "https://platform.example/ext-1"}`)
	}))
	defer server.Close()

	client := NewHTTPPlatformClient(5 * time.Second)
	platform := &store.Platform{Name: "pixelfeed", Endpoint: server.URL, AccessToken: "platform-token"}
	upload := &store.SocialMediaUpload{Caption: "launch day", Hashtags: "#go"}

	result, err := client.Publish(context.Background(), platform, upload, "video.mp4", strings.NewReader("binary"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.ExternalID != "ext-1" {
		t.Fatalf("unexpected external id %q", result.ExternalID)
	}
	if result.ExternalURL != "https://platform.example/ext-1" {
		t.Fatalf("unexpected external url %q", result.ExternalURL)
	}
}

func TestHTTPPlatformClientPublishErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPPlatformClient(5 * time.Second)
	platform := &store.Platform{Name: "pixelfeed", Endpoint: server.URL, AccessToken: "t"}

	_, err := client.Publish(context.Background(), platform, &store.SocialMediaUpload{}, "video.mp4", strings.NewReader("binary"))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected http 429 error, got %v", err)
	}
}

func TestHTTPPlatformClientFetchAnalytics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/ext-9/analytics" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"views": 500, "likes": 20, "comments": 5, "shares": 5}`)
	}))
	defer server.Close()

	client := NewHTTPPlatformClient(5 * time.Second)
	platform := &store.Platform{Name: "pixelfeed", Endpoint: server.URL, AccessToken: "t"}

	result, err := client.FetchAnalytics(context.Background(), platform, "ext-9")
	if err != nil {
		t.Fatalf("FetchAnalytics: %v", err)
	}
	if result.Views != 500 || result.Likes != 20 {
		t.Fatalf("unexpected counters %+v", result)
	}
}
