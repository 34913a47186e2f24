package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"clippress/internal/store"
)

// PublishResult is the platform's acknowledgement of a published video.
type PublishResult struct {
	ExternalID  string
	ExternalURL string
}

// AnalyticsResult carries the raw engagement counters from a platform.
type AnalyticsResult struct {
	Views    int64
	Likes    int64
	Comments int64
	Shares   int64
}

// PlatformClient talks to one social platform's publishing API.
type PlatformClient interface {
	Publish(ctx context.Context, platform *store.Platform, upload *store.SocialMediaUpload, videoPath string, video io.Reader) (PublishResult, error)
	FetchAnalytics(ctx context.Context, platform *store.Platform, externalID string) (AnalyticsResult, error)
}

// HTTPPlatformClient publishes via a multipart POST to the platform endpoint
// with bearer-token auth. Analytics are fetched from the same endpoint.
type HTTPPlatformClient struct {
	httpClient *http.Client
}

// NewHTTPPlatformClient builds the default platform client.
func NewHTTPPlatformClient(timeout time.Duration) *HTTPPlatformClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPPlatformClient{httpClient: &http.Client{Timeout: timeout}}
}

type publishResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Publish uploads the video binary with its caption and hashtags.
func (c *HTTPPlatformClient) Publish(ctx context.Context, platform *store.Platform, upload *store.SocialMediaUpload, videoPath string, video io.Reader) (PublishResult, error) {
	var empty PublishResult

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", videoPath)
	if err != nil {
		return empty, fmt.Errorf("publish %s: build form: %w", platform.Name, err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return empty, fmt.Errorf("publish %s: copy video: %w", platform.Name, err)
	}
	if err := writer.WriteField("caption", upload.Caption); err != nil {
		return empty, fmt.Errorf("publish %s: build form: %w", platform.Name, err)
	}
	if err := writer.WriteField("hashtags", upload.Hashtags); err != nil {
		return empty, fmt.Errorf("publish %s: build form: %w", platform.Name, err)
	}
	if err := writer.Close(); err != nil {
		return empty, fmt.Errorf("publish %s: build form: %w", platform.Name, err)
	}

	endpoint := strings.TrimRight(platform.Endpoint, "/") + "/videos"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return empty, fmt.Errorf("publish %s: new request: %w", platform.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+platform.AccessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("publish %s: http error: %w", platform.Name, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("publish %s: read body: %w", platform.Name, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, fmt.Errorf("publish %s: http %d: %s", platform.Name, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed publishResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return empty, fmt.Errorf("publish %s: decode response: %w", platform.Name, err)
	}
	if parsed.Error != "" {
		return empty, fmt.Errorf("publish %s: api error: %s", platform.Name, parsed.Error)
	}
	if parsed.ID == "" {
		return empty, fmt.Errorf("publish %s: response missing post id", platform.Name)
	}
	return PublishResult{ExternalID: parsed.ID, ExternalURL: parsed.URL}, nil
}

type analyticsResponse struct {
	Views    int64  `json:"views"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
	Shares   int64  `json:"shares"`
	Error    string `json:"error"`
}

// FetchAnalytics retrieves current engagement counters for a published post.
func (c *HTTPPlatformClient) FetchAnalytics(ctx context.Context, platform *store.Platform, externalID string) (AnalyticsResult, error) {
	var empty AnalyticsResult

	endpoint := fmt.Sprintf("%s/videos/%s/analytics", strings.TrimRight(platform.Endpoint, "/"), externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return empty, fmt.Errorf("analytics %s: new request: %w", platform.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+platform.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("analytics %s: http error: %w", platform.Name, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("analytics %s: read body: %w", platform.Name, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, fmt.Errorf("analytics %s: http %d: %s", platform.Name, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed analyticsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return empty, fmt.Errorf("analytics %s: decode response: %w", platform.Name, err)
	}
	if parsed.Error != "" {
		return empty, fmt.Errorf("analytics %s: api error: %s", platform.Name, parsed.Error)
	}
	return AnalyticsResult{
		Views:    parsed.Views,
		Likes:    parsed.Likes,
		Comments: parsed.Comments,
		Shares:   parsed.Shares,
	}, nil
}
