package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

func setHelperCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("MEDIA_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}

func TestProbeParsesStreams(t *testing.T) {
	setHelperCommand(t, "probe", nil)

	info, err := Probe(context.Background(), "ffprobe", "/media/clip.mp4")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.DurationSeconds != 42.5 {
		t.Fatalf("expected duration 42.5, got %f", info.DurationSeconds)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Fatalf("expected 1920x1080, got %dx%d", info.Width, info.Height)
	}
	if !info.HasAudio {
		t.Fatal("expected audio stream to be detected")
	}
	if info.VideoCodec != "h264" {
		t.Fatalf("expected codec h264, got %q", info.VideoCodec)
	}
	if info.SizeBytes != 1048576 {
		t.Fatalf("expected size 1048576, got %d", info.SizeBytes)
	}
}

func TestProbeRejectsAudioOnlyContainer(t *testing.T) {
	setHelperCommand(t, "probe-noaudio", nil)

	if _, err := Probe(context.Background(), "ffprobe", "/media/song.mp3"); err == nil {
		t.Fatal("expected error for container without video stream")
	}
}

func TestProbeRequiresPath(t *testing.T) {
	if _, err := Probe(context.Background(), "ffprobe", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestProbeSurfacesCommandFailure(t *testing.T) {
	setHelperCommand(t, "failure", nil)

	if _, err := Probe(context.Background(), "ffprobe", "/media/missing.mp4"); err == nil {
		t.Fatal("expected error when ffprobe exits nonzero")
	}
}

func TestThumbnailOffset(t *testing.T) {
	cases := []struct {
		duration float64
		want     float64
	}{
		{duration: 5, want: 0.5},
		{duration: 30, want: 1.0},
		{duration: 0, want: 0},
		{duration: -3, want: 0},
	}
	for _, tc := range cases {
		if got := ThumbnailOffset(tc.duration); got != tc.want {
			t.Fatalf("ThumbnailOffset(%f) = %f, want %f", tc.duration, got, tc.want)
		}
	}
}

func TestExtractAudioArgs(t *testing.T) {
	var captured []string
	setHelperCommand(t, "success", &captured)

	if err := ExtractAudio(context.Background(), "ffmpeg", "/in.mp4", "/out.wav"); err != nil {
		t.Fatalf("ExtractAudio returned error: %v", err)
	}

	for _, pair := range [][2]string{{"-ac", "1"}, {"-ar", "16000"}, {"-c:a", "pcm_s16le"}} {
		idx := findArg(captured, pair[0])
		if idx == -1 || idx+1 >= len(captured) || captured[idx+1] != pair[1] {
			t.Fatalf("expected %s %s in args %v", pair[0], pair[1], captured)
		}
	}
	if findArg(captured, "-vn") == -1 {
		t.Fatalf("expected -vn in args %v", captured)
	}
}

func TestExtractThumbnailArgs(t *testing.T) {
	var captured []string
	setHelperCommand(t, "success", &captured)

	if err := ExtractThumbnail(context.Background(), "ffmpeg", "/in.mp4", 30, "/thumb.jpg"); err != nil {
		t.Fatalf("ExtractThumbnail returned error: %v", err)
	}

	idx := findArg(captured, "-ss")
	if idx == -1 || idx+1 >= len(captured) {
		t.Fatalf("expected -ss flag in args %v", captured)
	}
	if captured[idx+1] != "1.000" {
		t.Fatalf("expected capped offset 1.000, got %q", captured[idx+1])
	}
	if findArg(captured, "-vframes") == -1 {
		t.Fatalf("expected -vframes in args %v", captured)
	}
}

func TestCompressArgs(t *testing.T) {
	var captured []string
	setHelperCommand(t, "success", &captured)

	if err := Compress(context.Background(), "ffmpeg", "/in.mp4", "/out.mp4"); err != nil {
		t.Fatalf("Compress returned error: %v", err)
	}

	idx := findArg(captured, "-c:v")
	if idx == -1 || captured[idx+1] != "libx264" {
		t.Fatalf("expected -c:v libx264 in args %v", captured)
	}
	idx = findArg(captured, "-vf")
	if idx == -1 || captured[idx+1] != "scale=-2:'min(720,ih)'" {
		t.Fatalf("expected 720p scale cap in args %v", captured)
	}
	if findArg(captured, "+faststart") == -1 {
		t.Fatalf("expected faststart in args %v", captured)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("MEDIA_HELPER_MODE") {
	case "probe":
		fmt.Println(`{
			"streams": [
				{"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080},
				{"index": 1, "codec_name": "aac", "codec_type": "audio"}
			],
			"format": {"duration": "42.5", "size": "1048576", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
		}`)
		os.Exit(0)
	case "probe-noaudio":
		fmt.Println(`{"streams": [{"index": 0, "codec_name": "mp3", "codec_type": "audio"}], "format": {"duration": "180"}}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "No such file or directory")
		os.Exit(1)
	case "success":
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
