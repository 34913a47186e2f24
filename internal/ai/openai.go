package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"clippress/internal/config"
)

const (
	openAIDefaultBaseURL       = "https://api.openai.com/v1"
	openAIWhisperModel         = "whisper-1"
	openAIDefaultAnalysisModel = "gpt-4o-mini"
)

// openAIClient speaks the OpenAI v1 API. It also serves any provider exposing
// a compatible surface when constructed with a different base URL.
type openAIClient struct {
	clientCore
	name               string
	apiKey             string
	baseURL            string
	transcriptionModel string
	analysisModel      string
}

func newOpenAIClient(cfg *config.Config, opts ...Option) *openAIClient {
	provider := cfg.Providers.OpenAI
	client := &openAIClient{
		clientCore:         newClientCore(cfg.Providers.TimeoutSecs, opts...),
		name:               config.ProviderOpenAI,
		apiKey:             strings.TrimSpace(provider.APIKey),
		baseURL:            strings.TrimSpace(provider.BaseURL),
		transcriptionModel: openAIWhisperModel,
		analysisModel:      strings.TrimSpace(provider.Model),
	}
	if client.baseURL == "" {
		client.baseURL = openAIDefaultBaseURL
	}
	if client.analysisModel == "" {
		client.analysisModel = openAIDefaultAnalysisModel
	}
	return client
}

func (c *openAIClient) Name() string { return c.name }

// Transcribe uploads the audio file to the transcriptions endpoint and
// returns the recognized text.
func (c *openAIClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%s transcribe: api key required", c.name)
	}

	var text string
	err := c.doWithRetry(ctx, c.name+" transcribe", func() error {
		audio, err := os.Open(audioPath)
		if err != nil {
			return fmt.Errorf("open audio: %w", err)
		}
		defer audio.Close()

		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
		if err != nil {
			return fmt.Errorf("build form: %w", err)
		}
		if _, err := io.Copy(part, audio); err != nil {
			return fmt.Errorf("copy audio: %w", err)
		}
		if err := writer.WriteField("model", c.transcriptionModel); err != nil {
			return fmt.Errorf("build form: %w", err)
		}
		if err := writer.WriteField("response_format", "json"); err != nil {
			return fmt.Errorf("build form: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("build form: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		payload, err := c.execute(req)
		if err != nil {
			return err
		}
		var parsed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		text = strings.TrimSpace(parsed.Text)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s transcribe: %w", c.name, err)
	}
	if text == "" {
		return "", fmt.Errorf("%s transcribe: empty transcription", c.name)
	}
	return text, nil
}

// Analyze asks the chat completions endpoint for the structured analysis of a
// transcription.
func (c *openAIClient) Analyze(ctx context.Context, transcription string) (Analysis, error) {
	var empty Analysis
	if c.apiKey == "" {
		return empty, fmt.Errorf("%s analyze: api key required", c.name)
	}
	transcription = strings.TrimSpace(transcription)
	if transcription == "" {
		return empty, fmt.Errorf("%s analyze: transcription required", c.name)
	}

	request := chatCompletionRequest{
		Model: c.analysisModel,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: transcription},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var analysis Analysis
	err := c.doWithRetry(ctx, c.name+" analyze", func() error {
		encoded, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		payload, err := c.execute(req)
		if err != nil {
			return err
		}
		var completion chatCompletionResponse
		if err := json.Unmarshal(payload, &completion); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		content := completion.firstContent()
		if content == "" {
			return errors.New("empty completion content")
		}
		if err := DecodeModelJSON(content, &analysis); err != nil {
			return fmt.Errorf("parse analysis payload: %w", err)
		}
		return nil
	})
	if err != nil {
		return empty, fmt.Errorf("%s analyze: %w", c.name, err)
	}
	normalizeAnalysis(&analysis)
	return analysis, nil
}

func (c *openAIClient) execute(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r chatCompletionResponse) firstContent() string {
	for _, choice := range r.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content
		}
	}
	return ""
}
