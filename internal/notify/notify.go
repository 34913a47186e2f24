// Package notify delivers pipeline lifecycle events via ntfy. When no topic
// is configured a no-op notifier is returned, so callers never need to guard
// their notification calls.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clippress/internal/config"
	"clippress/internal/logging"
	"clippress/internal/store"
)

const userAgent = "Clippress/0.1.0"

// Notifier publishes pipeline milestones. Delivery failures are logged, never
// surfaced; a broken notification channel must not fail the pipeline.
type Notifier interface {
	VideoReady(ctx context.Context, video *store.Video)
	VideoFailed(ctx context.Context, video *store.Video, reason string)
	UploadPublished(ctx context.Context, upload *store.SocialMediaUpload)
	UploadFailed(ctx context.Context, upload *store.SocialMediaUpload, reason string)
}

// NewNotifier builds an ntfy-backed notifier, or a no-op when no topic is set.
func NewNotifier(cfg *config.Config, logger *slog.Logger) Notifier {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyNotifier{
		endpoint: topic,
		settings: cfg.Notifications,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type noopNotifier struct{}

func (noopNotifier) VideoReady(context.Context, *store.Video)                       {}
func (noopNotifier) VideoFailed(context.Context, *store.Video, string)              {}
func (noopNotifier) UploadPublished(context.Context, *store.SocialMediaUpload)      {}
func (noopNotifier) UploadFailed(context.Context, *store.SocialMediaUpload, string) {}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyNotifier struct {
	endpoint string
	settings config.Notifications
	client   *http.Client
	logger   *slog.Logger
}

func (n *ntfyNotifier) VideoReady(ctx context.Context, video *store.Video) {
	if !n.settings.VideoReady {
		return
	}
	n.send(ctx, payload{
		title:   "Clippress - Video Ready",
		message: fmt.Sprintf("Processing complete: %s", strings.TrimSpace(video.Title)),
		tags:    []string{"clippress", "video", "ready"},
	})
}

func (n *ntfyNotifier) VideoFailed(ctx context.Context, video *store.Video, reason string) {
	if !n.settings.VideoFailed {
		return
	}
	message := fmt.Sprintf("Processing failed: %s", strings.TrimSpace(video.Title))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	n.send(ctx, payload{
		title:    "Clippress - Video Failed",
		message:  message,
		tags:     []string{"clippress", "video", "failed"},
		priority: "high",
	})
}

func (n *ntfyNotifier) UploadPublished(ctx context.Context, upload *store.SocialMediaUpload) {
	if !n.settings.PublishDone {
		return
	}
	message := fmt.Sprintf("Published to %s", upload.Platform)
	if upload.ExternalURL != "" {
		message = fmt.Sprintf("%s\n%s", message, upload.ExternalURL)
	}
	n.send(ctx, payload{
		title:   "Clippress - Published",
		message: message,
		tags:    []string{"clippress", "publish", "done"},
	})
}

func (n *ntfyNotifier) UploadFailed(ctx context.Context, upload *store.SocialMediaUpload, reason string) {
	if !n.settings.PublishFailed {
		return
	}
	message := fmt.Sprintf("Publish to %s failed", upload.Platform)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}
	n.send(ctx, payload{
		title:    "Clippress - Publish Failed",
		message:  message,
		tags:     []string{"clippress", "publish", "failed"},
		priority: "high",
	})
}

func (n *ntfyNotifier) send(ctx context.Context, data payload) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		n.logger.Warn("ntfy request build failed", logging.Error(err))
		return
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("ntfy delivery failed", logging.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		n.logger.Warn("ntfy rejected notification",
			logging.Int("status", resp.StatusCode),
			logging.String("body", strings.TrimSpace(string(body))),
		)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
}
