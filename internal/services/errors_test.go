package services_test

import (
	"errors"
	"strings"
	"testing"

	"clippress/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "compression", "mux", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"compression", "mux", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "publish", "call", "platform unreachable", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestClassificationHelpers(t *testing.T) {
	validation := services.Wrap(services.ErrValidation, "ingest", "upload", "too large", nil)
	if !services.IsValidation(validation) {
		t.Fatalf("expected validation classification for %v", validation)
	}
	if services.IsConfiguration(validation) {
		t.Fatalf("did not expect configuration classification for %v", validation)
	}

	config := services.Wrap(services.ErrConfiguration, "ai", "select", "unknown provider", nil)
	if !services.IsConfiguration(config) {
		t.Fatalf("expected configuration classification for %v", config)
	}
}
