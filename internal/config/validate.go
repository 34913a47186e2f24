package config

import (
	"errors"
	"fmt"
	"strings"
)

// Known AI provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

var knownProviders = map[string]struct{}{
	ProviderOpenAI: {},
	ProviderGroq:   {},
	ProviderGemini: {},
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		problems = append(problems, "paths.blob_dir is required")
	}

	if c.Providers.Transcription != "" {
		if _, ok := knownProviders[c.Providers.Transcription]; !ok {
			problems = append(problems, fmt.Sprintf("providers.transcription: unknown provider %q", c.Providers.Transcription))
		}
	}
	if c.Providers.Analysis != "" {
		if _, ok := knownProviders[c.Providers.Analysis]; !ok {
			problems = append(problems, fmt.Sprintf("providers.analysis: unknown provider %q", c.Providers.Analysis))
		}
	}

	switch c.Dispatcher.Mode {
	case "local":
	case "amqp":
		if strings.TrimSpace(c.Dispatcher.AMQPURL) == "" {
			problems = append(problems, "dispatcher.amqp_url is required when dispatcher.mode is amqp")
		}
	default:
		problems = append(problems, fmt.Sprintf("dispatcher.mode: unsupported value %q", c.Dispatcher.Mode))
	}

	seen := make(map[string]struct{}, len(c.Platforms))
	for _, platform := range c.Platforms {
		if platform.Name == "" {
			problems = append(problems, "platforms: name is required")
			continue
		}
		if _, dup := seen[platform.Name]; dup {
			problems = append(problems, fmt.Sprintf("platforms: duplicate name %q", platform.Name))
		}
		seen[platform.Name] = struct{}{}
		if platform.MaxVideoBytes <= 0 {
			problems = append(problems, fmt.Sprintf("platforms.%s: max_video_bytes must be positive", platform.Name))
		}
	}

	if len(problems) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
