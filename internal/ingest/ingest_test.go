package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kkdai/youtube/v2"

	"clippress/internal/blob"
	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/media"
	"clippress/internal/services"
	"clippress/internal/store"
	"clippress/internal/testsupport"
)

type recordingProcessor struct {
	started []string
}

func (p *recordingProcessor) StartProcessing(_ context.Context, video *store.Video) error {
	p.started = append(p.started, video.ID)
	return nil
}

type recordingDispatcher struct {
	jobs []string
	args []map[string]string
}

func (d *recordingDispatcher) Submit(_ context.Context, jobName string, args map[string]string) (dispatch.Handle, error) {
	d.jobs = append(d.jobs, jobName)
	d.args = append(d.args, args)
	return "handle-" + jobName, nil
}

func (d *recordingDispatcher) Revoke(dispatch.Handle, bool) error { return nil }
func (d *recordingDispatcher) Close() error                       { return nil }

func newTestService(t *testing.T) (*Service, *store.Store, *blob.Store, *recordingProcessor, *recordingDispatcher) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs, err := blob.NewStore(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blob.NewStore: %v", err)
	}
	processor := &recordingProcessor{}
	dispatcher := &recordingDispatcher{}
	svc := NewService(cfg, st, blobs, dispatcher, processor, logging.NewNop())
	svc.probe = func(context.Context, string, string) (media.Info, error) {
		return media.Info{DurationSeconds: 12.5, Width: 1280, Height: 720, HasAudio: true, FormatName: "mp4"}, nil
	}
	return svc, st, blobs, processor, dispatcher
}

func TestIngestUploadCreatesProcessingVideo(t *testing.T) {
	svc, st, _, processor, _ := newTestService(t)

	video, err := svc.IngestUpload(context.Background(), UploadRequest{
		OwnerID:  "owner-1",
		Title:    "My Clip",
		Filename: "clip.mp4",
		Content:  strings.NewReader("fake mp4 payload"),
	})
	if err != nil {
		t.Fatalf("IngestUpload: %v", err)
	}
	if video.Status != store.VideoProcessing {
		t.Fatalf("expected processing status, got %q", video.Status)
	}
	if video.DurationSecs != 12.5 {
		t.Fatalf("expected probed duration, got %f", video.DurationSecs)
	}

	stored, err := st.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if stored == nil || stored.BlobHandle == "" {
		t.Fatal("expected persisted video with blob handle")
	}
	if len(processor.started) != 1 || processor.started[0] != video.ID {
		t.Fatalf("expected processing fan-out for %s, got %v", video.ID, processor.started)
	}
}

func TestIngestUploadRejectsDisallowedFormat(t *testing.T) {
	svc, st, _, processor, _ := newTestService(t)

	_, err := svc.IngestUpload(context.Background(), UploadRequest{
		OwnerID:  "owner-1",
		Filename: "document.pdf",
		Content:  strings.NewReader("not a video"),
	})
	if !services.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	videos, err := st.ListVideosByOwner(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("ListVideosByOwner: %v", err)
	}
	if len(videos) != 0 {
		t.Fatalf("rejected upload persisted %d videos", len(videos))
	}
	if len(processor.started) != 0 {
		t.Fatal("rejected upload started processing")
	}
}

func TestIngestUploadRejectsOversize(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	svc.cfg.Ingestion.MaxUploadBytes = 4

	_, err := svc.IngestUpload(context.Background(), UploadRequest{
		OwnerID:  "owner-1",
		Filename: "clip.mp4",
		Content:  strings.NewReader("more than four bytes"),
	})
	if !services.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestUploadRejectsUnreadableMedia(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	svc.probe = func(context.Context, string, string) (media.Info, error) {
		return media.Info{}, os.ErrInvalid
	}

	_, err := svc.IngestUpload(context.Background(), UploadRequest{
		OwnerID:  "owner-1",
		Filename: "broken.mp4",
		Content:  strings.NewReader("garbage bytes"),
	})
	if !services.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestYouTubeQueuesDownload(t *testing.T) {
	svc, st, _, _, dispatcher := newTestService(t)

	download, err := svc.IngestYouTube(context.Background(), "owner-1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("IngestYouTube: %v", err)
	}
	if download.Status != store.DownloadPending {
		t.Fatalf("expected pending download, got %q", download.Status)
	}
	if len(dispatcher.jobs) != 1 || dispatcher.jobs[0] != JobYouTubeDownload {
		t.Fatalf("expected %s job, got %v", JobYouTubeDownload, dispatcher.jobs)
	}
	if dispatcher.args[0]["download_id"] != download.ID {
		t.Fatalf("job args missing download id: %v", dispatcher.args[0])
	}

	stored, err := st.DownloadByID(context.Background(), download.ID)
	if err != nil {
		t.Fatalf("DownloadByID: %v", err)
	}
	if stored == nil {
		t.Fatal("expected persisted download record")
	}
}

func TestIngestYouTubeRejectsInvalidURL(t *testing.T) {
	svc, st, _, _, dispatcher := newTestService(t)

	_, err := svc.IngestYouTube(context.Background(), "owner-1", "https://example.com/not-youtube")
	if !services.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(dispatcher.jobs) != 0 {
		t.Fatal("invalid URL submitted a job")
	}
	downloads, err := st.ListDownloadsByOwner(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("ListDownloadsByOwner: %v", err)
	}
	if len(downloads) != 0 {
		t.Fatalf("invalid URL persisted %d downloads", len(downloads))
	}
}

func TestDownloadJobCompletesAndStartsProcessing(t *testing.T) {
	svc, st, _, processor, _ := newTestService(t)
	svc.download = func(_ context.Context, _, _ string, _ int, destDir string) (string, string, error) {
		path := filepath.Join(destDir, "muxed.mp4")
		if err := os.WriteFile(path, []byte("downloaded content"), 0o644); err != nil {
			return "", "", err
		}
		return path, "Fetched Title", nil
	}

	download := &store.YouTubeDownload{OwnerID: "owner-1", SourceURL: "https://youtu.be/dQw4w9WgXcQ", Status: store.DownloadPending}
	if err := st.CreateDownload(context.Background(), download); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	if err := svc.handleYouTubeDownload(context.Background(), map[string]string{"download_id": download.ID}); err != nil {
		t.Fatalf("handleYouTubeDownload: %v", err)
	}

	stored, err := st.DownloadByID(context.Background(), download.ID)
	if err != nil {
		t.Fatalf("DownloadByID: %v", err)
	}
	if stored.Status != store.DownloadCompleted {
		t.Fatalf("expected completed download, got %q", stored.Status)
	}
	if stored.VideoID == "" {
		t.Fatal("completed download missing linked video")
	}

	video, err := st.VideoByID(context.Background(), stored.VideoID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if video == nil || video.Title != "Fetched Title" {
		t.Fatalf("expected linked video with fetched title, got %+v", video)
	}
	if len(processor.started) != 1 {
		t.Fatalf("expected processing fan-out, got %v", processor.started)
	}
}

func TestDownloadJobFailureMarksDownloadFailed(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	svc.download = func(context.Context, string, string, int, string) (string, string, error) {
		return "", "", os.ErrDeadlineExceeded
	}

	download := &store.YouTubeDownload{OwnerID: "owner-1", SourceURL: "https://youtu.be/dQw4w9WgXcQ", Status: store.DownloadPending}
	if err := st.CreateDownload(context.Background(), download); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	if err := svc.handleYouTubeDownload(context.Background(), map[string]string{"download_id": download.ID}); err == nil {
		t.Fatal("expected handler error")
	}

	stored, err := st.DownloadByID(context.Background(), download.ID)
	if err != nil {
		t.Fatalf("DownloadByID: %v", err)
	}
	if stored.Status != store.DownloadFailed {
		t.Fatalf("expected failed download, got %q", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatal("failed download missing error message")
	}
}

func TestBestVideoFormatRespectsHeightCap(t *testing.T) {
	list := youtube.FormatList{
		{MimeType: `video/mp4; codecs="avc1"`, QualityLabel: "1080p"},
		{MimeType: `video/mp4; codecs="avc1"`, QualityLabel: "720p"},
		{MimeType: `video/mp4; codecs="avc1"`, QualityLabel: "360p"},
		{MimeType: `audio/mp4; codecs="mp4a"`, QualityLabel: ""},
	}

	best := bestVideoFormat(list, 720)
	if best == nil {
		t.Fatal("expected a format under the cap")
	}
	if best.QualityLabel != "720p" {
		t.Fatalf("expected 720p, got %q", best.QualityLabel)
	}
}
