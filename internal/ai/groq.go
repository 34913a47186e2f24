package ai

import (
	"strings"

	"clippress/internal/config"
)

const (
	groqDefaultBaseURL       = "https://api.groq.com/openai/v1"
	groqWhisperModel         = "whisper-large-v3"
	groqDefaultAnalysisModel = "llama-3.3-70b-versatile"
)

// newGroqClient builds a client for Groq's OpenAI-compatible API surface.
func newGroqClient(cfg *config.Config, opts ...Option) *openAIClient {
	provider := cfg.Providers.Groq
	client := &openAIClient{
		clientCore:         newClientCore(cfg.Providers.TimeoutSecs, opts...),
		name:               config.ProviderGroq,
		apiKey:             strings.TrimSpace(provider.APIKey),
		baseURL:            strings.TrimSpace(provider.BaseURL),
		transcriptionModel: groqWhisperModel,
		analysisModel:      strings.TrimSpace(provider.Model),
	}
	if client.baseURL == "" {
		client.baseURL = groqDefaultBaseURL
	}
	if client.analysisModel == "" {
		client.analysisModel = groqDefaultAnalysisModel
	}
	return client
}
