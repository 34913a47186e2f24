package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kkdai/youtube/v2"

	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/media"
	"clippress/internal/services"
	"clippress/internal/store"
)

// JobYouTubeDownload is the dispatch job name for YouTube ingestion.
const JobYouTubeDownload = "youtube_download"

// downloadFunc fetches a YouTube source into destDir and returns the path of
// the muxed MP4 plus the source title.
type downloadFunc func(ctx context.Context, ffmpegBinary, sourceURL string, maxHeight int, destDir string) (string, string, error)

// IngestYouTube validates the source URL, records a pending download, and
// submits the download job.
func (s *Service) IngestYouTube(ctx context.Context, ownerID, sourceURL string) (*store.YouTubeDownload, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "youtube", "owner is required", nil)
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if _, err := youtube.ExtractVideoID(sourceURL); err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "youtube",
			fmt.Sprintf("not a valid YouTube URL: %q", sourceURL), err)
	}

	download := &store.YouTubeDownload{
		OwnerID:   ownerID,
		SourceURL: sourceURL,
		Status:    store.DownloadPending,
	}
	if err := s.store.CreateDownload(ctx, download); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube", "persist download", err)
	}

	handle, err := s.dispatcher.Submit(ctx, JobYouTubeDownload, map[string]string{"download_id": download.ID})
	if err != nil {
		_, _ = s.store.FailDownload(ctx, download.ID, "could not submit download job")
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube", "submit download job", err)
	}
	s.logger.Info("youtube download queued",
		logging.String("download_id", download.ID),
		logging.String(logging.FieldJobHandle, handle),
	)
	return download, nil
}

// RegisterJobs wires the ingestion job handlers into the registry.
func (s *Service) RegisterJobs(registry *dispatch.Registry) {
	registry.Register(JobYouTubeDownload, s.handleYouTubeDownload)
}

func (s *Service) handleYouTubeDownload(ctx context.Context, args map[string]string) error {
	downloadID := args["download_id"]
	download, err := s.store.DownloadByID(ctx, downloadID)
	if err != nil {
		return err
	}
	if download == nil {
		return services.Wrap(services.ErrNotFound, "ingest", "youtube download",
			fmt.Sprintf("download %s not found", downloadID), nil)
	}

	applied, err := s.store.StartDownload(ctx, download.ID)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	video, err := s.completeDownload(ctx, download)
	if err != nil {
		_, _ = s.store.FailDownload(ctx, download.ID, err.Error())
		return err
	}

	s.logger.Info("youtube download complete",
		logging.String("download_id", download.ID),
		logging.String(logging.FieldVideoID, video.ID),
	)
	return nil
}

func (s *Service) completeDownload(ctx context.Context, download *store.YouTubeDownload) (*store.Video, error) {
	tempDir, err := os.MkdirTemp("", "clippress-ytdl-")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube download", "create temp dir", err)
	}
	defer os.RemoveAll(tempDir)

	muxedPath, title, err := s.download(ctx, s.cfg.FFmpegBinary(), download.SourceURL, s.cfg.Ingestion.MaxYouTubeHeight, tempDir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube download", "fetch source", err)
	}

	handle, size, err := s.blobs.PutFile(muxedPath)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube download", "store downloaded content", err)
	}
	path, err := s.blobs.Path(handle)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube download", "resolve stored content", err)
	}
	info, err := s.probe(ctx, s.cfg.FFprobeBinary(), path)
	if err != nil {
		_ = s.blobs.Remove(handle)
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube download", "probe downloaded content", err)
	}

	video := &store.Video{
		OwnerID:      download.OwnerID,
		Title:        title,
		BlobHandle:   handle,
		DurationSecs: info.DurationSeconds,
		SizeBytes:    size,
		Status:       store.VideoProcessing,
	}
	if err := s.store.CreateVideo(ctx, video); err != nil {
		_ = s.blobs.Remove(handle)
		return nil, services.Wrap(services.ErrTransient, "ingest", "youtube download", "persist video", err)
	}
	if _, err := s.store.CompleteDownload(ctx, download.ID, video.ID); err != nil {
		return nil, err
	}
	if err := s.processor.StartProcessing(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

// downloadYouTube fetches the best capped video stream and the best audio
// stream in parallel, then muxes them into a single MP4.
func downloadYouTube(ctx context.Context, ffmpegBinary, sourceURL string, maxHeight int, destDir string) (string, string, error) {
	client := youtube.Client{}
	source, err := client.GetVideoContext(ctx, sourceURL)
	if err != nil {
		return "", "", fmt.Errorf("resolve video: %w", err)
	}

	videoFormat := bestVideoFormat(source.Formats, maxHeight)
	audioFormat := bestAudioFormat(source.Formats)
	if videoFormat == nil || audioFormat == nil {
		return "", "", fmt.Errorf("no usable stream formats for %q", sourceURL)
	}

	videoTemp := filepath.Join(destDir, "video.mp4")
	audioTemp := filepath.Join(destDir, "audio.m4a")

	var wg sync.WaitGroup
	wg.Add(2)
	var videoErr, audioErr error
	go func() {
		defer wg.Done()
		videoErr = downloadStream(ctx, client, source, videoFormat, videoTemp)
	}()
	go func() {
		defer wg.Done()
		audioErr = downloadStream(ctx, client, source, audioFormat, audioTemp)
	}()
	wg.Wait()
	if videoErr != nil {
		return "", "", fmt.Errorf("download video stream: %w", videoErr)
	}
	if audioErr != nil {
		return "", "", fmt.Errorf("download audio stream: %w", audioErr)
	}

	muxedPath := filepath.Join(destDir, "muxed.mp4")
	if err := media.MuxStreams(ctx, ffmpegBinary, videoTemp, audioTemp, muxedPath); err != nil {
		return "", "", err
	}
	if info, err := os.Stat(muxedPath); err != nil || info.Size() == 0 {
		return "", "", fmt.Errorf("muxed output is empty")
	}
	return muxedPath, source.Title, nil
}

func downloadStream(ctx context.Context, client youtube.Client, source *youtube.Video, format *youtube.Format, path string) error {
	stream, _, err := client.GetStreamContext(ctx, source, format)
	if err != nil {
		return err
	}
	defer stream.Close()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, stream); err != nil {
		return err
	}
	return file.Sync()
}

func bestVideoFormat(formats youtube.FormatList, maxHeight int) *youtube.Format {
	var best *youtube.Format
	bestHeight := -1
	for i := range formats {
		format := &formats[i]
		if !strings.Contains(format.MimeType, "video") {
			continue
		}
		height := qualityHeight(format.QualityLabel)
		if height == 0 || height > maxHeight {
			continue
		}
		if height > bestHeight {
			best = format
			bestHeight = height
		}
	}
	return best
}

func bestAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		format := &formats[i]
		if !strings.Contains(format.MimeType, "audio") {
			continue
		}
		if best == nil || (strings.Contains(format.MimeType, "mp4") && !strings.Contains(best.MimeType, "mp4")) {
			best = format
		}
	}
	return best
}

func qualityHeight(label string) int {
	digits := strings.Builder{}
	for _, r := range label {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	height, _ := strconv.Atoi(digits.String())
	return height
}
