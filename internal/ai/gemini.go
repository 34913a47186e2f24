package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"clippress/internal/config"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-2.0-flash"
)

// geminiClient speaks the Gemini generateContent API. Audio is delivered
// inline as base64, which keeps transcription to a single request.
type geminiClient struct {
	clientCore
	apiKey  string
	baseURL string
	model   string
}

func newGeminiClient(cfg *config.Config, opts ...Option) *geminiClient {
	provider := cfg.Providers.Gemini
	client := &geminiClient{
		clientCore: newClientCore(cfg.Providers.TimeoutSecs, opts...),
		apiKey:     strings.TrimSpace(provider.APIKey),
		baseURL:    strings.TrimSpace(provider.BaseURL),
		model:      strings.TrimSpace(provider.Model),
	}
	if client.baseURL == "" {
		client.baseURL = geminiDefaultBaseURL
	}
	if client.model == "" {
		client.model = geminiDefaultModel
	}
	return client
}

func (c *geminiClient) Name() string { return config.ProviderGemini }

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe sends the audio inline and asks for a verbatim transcription.
func (c *geminiClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("gemini transcribe: api key required")
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("gemini transcribe: read audio: %w", err)
	}

	request := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: "Transcribe this audio verbatim. Respond with the transcription text only."},
				{InlineData: &geminiInlineData{
					MimeType: "audio/wav",
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{Temperature: 0},
	}

	text, err := c.generate(ctx, "gemini transcribe", request)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("gemini transcribe: empty transcription")
	}
	return text, nil
}

// Analyze asks for the structured analysis of a transcription as JSON.
func (c *geminiClient) Analyze(ctx context.Context, transcription string) (Analysis, error) {
	var empty Analysis
	if c.apiKey == "" {
		return empty, errors.New("gemini analyze: api key required")
	}
	transcription = strings.TrimSpace(transcription)
	if transcription == "" {
		return empty, errors.New("gemini analyze: transcription required")
	}

	request := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: analysisSystemPrompt},
				{Text: transcription},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0,
			ResponseMimeType: "application/json",
		},
	}

	content, err := c.generate(ctx, "gemini analyze", request)
	if err != nil {
		return empty, err
	}
	var analysis Analysis
	if err := DecodeModelJSON(content, &analysis); err != nil {
		return empty, fmt.Errorf("gemini analyze: parse analysis payload: %w", err)
	}
	normalizeAnalysis(&analysis)
	return analysis, nil
}

func (c *geminiClient) generate(ctx context.Context, op string, request geminiRequest) (string, error) {
	var content string
	err := c.doWithRetry(ctx, op, func() error {
		encoded, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http error: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("api error: %s", strings.TrimSpace(parsed.Error.Message))
		}
		for _, candidate := range parsed.Candidates {
			for _, part := range candidate.Content.Parts {
				if text := strings.TrimSpace(part.Text); text != "" {
					content = text
					return nil
				}
			}
		}
		return errors.New("empty candidates")
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return content, nil
}
