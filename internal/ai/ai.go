// Package ai provides speech transcription and content analysis through
// external model providers. Providers are selected by name from configuration;
// openai, groq, and gemini are supported.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clippress/internal/config"
	"clippress/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Analysis is the structured result of analyzing a transcription.
type Analysis struct {
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Topics    []string `json:"topics"`
	Sentiment string   `json:"sentiment"`
}

// Transcriber converts an extracted audio file into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Analyzer derives a summary, tags, topics, and sentiment from a transcription.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, transcription string) (Analysis, error)
}

// NewTranscriber builds the transcription provider named in configuration.
// Returns nil without error when no provider is configured.
func NewTranscriber(cfg *config.Config, opts ...Option) (Transcriber, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Providers.Transcription))
	if name == "" {
		return nil, nil
	}
	switch name {
	case config.ProviderOpenAI:
		return newOpenAIClient(cfg, opts...), nil
	case config.ProviderGroq:
		return newGroqClient(cfg, opts...), nil
	case config.ProviderGemini:
		return newGeminiClient(cfg, opts...), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "ai", "new transcriber",
			fmt.Sprintf("unknown transcription provider %q", name), nil)
	}
}

// NewAnalyzer builds the analysis provider named in configuration. Returns
// nil without error when no provider is configured.
func NewAnalyzer(cfg *config.Config, opts ...Option) (Analyzer, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Providers.Analysis))
	if name == "" {
		return nil, nil
	}
	switch name {
	case config.ProviderOpenAI:
		return newOpenAIClient(cfg, opts...), nil
	case config.ProviderGroq:
		return newGroqClient(cfg, opts...), nil
	case config.ProviderGemini:
		return newGeminiClient(cfg, opts...), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "ai", "new analyzer",
			fmt.Sprintf("unknown analysis provider %q", name), nil)
	}
}
