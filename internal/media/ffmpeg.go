package media

import (
	"context"
	"fmt"
	"strings"
)

// CompressionHeightCap bounds the vertical resolution of compressed output.
const CompressionHeightCap = 720

// ExtractAudio extracts the audio stream from a source file. The output is a
// mono 16kHz WAV file suitable for speech transcription.
func ExtractAudio(ctx context.Context, ffmpegBinary, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := commandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ThumbnailOffset returns the capture point for a thumbnail: ten percent into
// the video, never later than one second in.
func ThumbnailOffset(durationSeconds float64) float64 {
	offset := durationSeconds * 0.1
	if offset > 1.0 {
		offset = 1.0
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// ExtractThumbnail captures a single frame as a JPEG scaled to 320px wide.
func ExtractThumbnail(ctx context.Context, ffmpegBinary, source string, durationSeconds float64, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", ThumbnailOffset(durationSeconds)),
		"-i", source,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		dest,
	}
	cmd := commandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Compress re-encodes a video to h264/aac, capping vertical resolution at
// CompressionHeightCap while preserving aspect ratio.
func Compress(ctx context.Context, ffmpegBinary, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", CompressionHeightCap),
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		dest,
	}
	cmd := commandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg compress: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// MuxStreams combines separately downloaded video and audio streams into a
// single MP4 container without re-encoding.
func MuxStreams(ctx context.Context, ffmpegBinary, videoPath, audioPath, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		"-movflags", "+faststart",
		dest,
	}
	cmd := commandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg mux: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
