package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"clippress/internal/config"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.BlobDir = filepath.Join(base, "blobs")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Platforms = []config.Platform{{
		Name:             "pixelfeed",
		Endpoint:         "https://pixelfeed.invalid/api",
		AccessToken:      "token",
		MaxVideoBytes:    1 << 30,
		MaxDurationSecs:  600,
		SupportedFormats: []string{"mp4"},
		Active:           true,
	}}

	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	configPath := writeTestConfig(t)

	output, err := runCommand(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(output, "Configuration valid") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	if _, err := runCommand(t, "config", "init", "--path", target); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init with --overwrite: %v", err)
	}
}

func TestPlatformListShowsSeededPlatforms(t *testing.T) {
	configPath := writeTestConfig(t)

	output, err := runCommand(t, "--config", configPath, "platform", "list")
	if err != nil {
		t.Fatalf("platform list: %v", err)
	}
	if !strings.Contains(output, "pixelfeed") {
		t.Errorf("expected seeded platform in output: %s", output)
	}
}

func TestOwnerScopedCommandsRequireOwner(t *testing.T) {
	configPath := writeTestConfig(t)

	for _, args := range [][]string{
		{"video", "list"},
		{"ingest", "youtube", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"publish", "list"},
	} {
		_, err := runCommand(t, append([]string{"--config", configPath}, args...)...)
		if err == nil || !strings.Contains(err.Error(), "owner") {
			t.Errorf("%v: expected owner error, got %v", args, err)
		}
	}
}

func TestVideoListEmpty(t *testing.T) {
	configPath := writeTestConfig(t)

	output, err := runCommand(t, "--config", configPath, "--owner", "user-1", "video", "list")
	if err != nil {
		t.Fatalf("video list: %v", err)
	}
	if !strings.Contains(output, "No videos") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestIngestFileRejectsMissingFile(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCommand(t, "--config", configPath, "--owner", "user-1",
		"ingest", "file", filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestPublishCreateUnknownVideo(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCommand(t, "--config", configPath, "--owner", "user-1",
		"publish", "create", "no-such-video", "--platform", "pixelfeed")
	if err == nil {
		t.Fatal("expected error for unknown video")
	}
}
