package ai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clippress/internal/ai"
	"clippress/internal/config"
	"clippress/internal/services"
)

func providerConfig(transcription, analysis string) *config.Config {
	cfg := config.Default()
	cfg.Providers.Transcription = transcription
	cfg.Providers.Analysis = analysis
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Providers.Groq.APIKey = "gsk-test"
	cfg.Providers.Gemini.APIKey = "AIza-test"
	return &cfg
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFF fake wav"), 0o644); err != nil {
		t.Fatalf("write audio fixture: %v", err)
	}
	return path
}

func TestNewTranscriberUnknownProvider(t *testing.T) {
	cfg := providerConfig("whisper-cpp", "")
	if _, err := ai.NewTranscriber(cfg); !services.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewAnalyzerUnconfiguredReturnsNil(t *testing.T) {
	cfg := providerConfig("", "")
	analyzer, err := ai.NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	if analyzer != nil {
		t.Fatal("expected nil analyzer when no provider configured")
	}
}

func TestOpenAITranscribe(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		fmt.Fprint(w, `{"text": " Hello from the video. "}`)
	}))
	defer server.Close()

	cfg := providerConfig("openai", "")
	cfg.Providers.OpenAI.BaseURL = server.URL

	transcriber, err := ai.NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("NewTranscriber: %v", err)
	}
	text, err := transcriber.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello from the video." {
		t.Fatalf("unexpected transcription %q", text)
	}
	if gotModel != "whisper-1" {
		t.Fatalf("expected model whisper-1, got %q", gotModel)
	}
}

func TestOpenAIAnalyzeToleratesCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		content := "```json\n{\"summary\": \"A cooking demo.\", \"tags\": [\"Cooking\", \"cooking\", \" Pasta \"], \"topics\": [\"Food\"], \"sentiment\": \"Positive\"}\n```"
		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	defer server.Close()

	cfg := providerConfig("", "openai")
	cfg.Providers.OpenAI.BaseURL = server.URL

	analyzer, err := ai.NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	analysis, err := analyzer.Analyze(context.Background(), "today we cook pasta")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Summary != "A cooking demo." {
		t.Fatalf("unexpected summary %q", analysis.Summary)
	}
	if len(analysis.Tags) != 2 || analysis.Tags[0] != "cooking" || analysis.Tags[1] != "pasta" {
		t.Fatalf("expected deduplicated lowercase tags, got %v", analysis.Tags)
	}
	if analysis.Sentiment != "positive" {
		t.Fatalf("expected lowercase sentiment, got %q", analysis.Sentiment)
	}
}

func TestGroqTranscribeUsesWhisperLargeV3(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		fmt.Fprint(w, `{"text": "groq transcript"}`)
	}))
	defer server.Close()

	cfg := providerConfig("groq", "")
	cfg.Providers.Groq.BaseURL = server.URL

	transcriber, err := ai.NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("NewTranscriber: %v", err)
	}
	if _, err := transcriber.Transcribe(context.Background(), writeAudio(t)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotModel != "whisper-large-v3" {
		t.Fatalf("expected model whisper-large-v3, got %q", gotModel)
	}
}

func TestGeminiAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if key := r.Header.Get("x-goog-api-key"); key != "AIza-test" {
			t.Errorf("unexpected api key header %q", key)
		}
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": [{"text": "{\"summary\": \"Travel vlog.\", \"tags\": [\"travel\"], \"topics\": [\"tourism\"], \"sentiment\": \"neutral\"}"}]}}]}`)
	}))
	defer server.Close()

	cfg := providerConfig("", "gemini")
	cfg.Providers.Gemini.BaseURL = server.URL

	analyzer, err := ai.NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	analysis, err := analyzer.Analyze(context.Background(), "we visit three cities")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Summary != "Travel vlog." {
		t.Fatalf("unexpected summary %q", analysis.Summary)
	}
	if analysis.Sentiment != "neutral" {
		t.Fatalf("unexpected sentiment %q", analysis.Sentiment)
	}
}

func TestTranscribeRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"text": "second attempt"}`)
	}))
	defer server.Close()

	cfg := providerConfig("openai", "")
	cfg.Providers.OpenAI.BaseURL = server.URL

	transcriber, err := ai.NewTranscriber(cfg, ai.WithSleeper(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("NewTranscriber: %v", err)
	}
	text, err := transcriber.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "second attempt" {
		t.Fatalf("unexpected transcription %q", text)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestTranscribeDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := providerConfig("openai", "")
	cfg.Providers.OpenAI.BaseURL = server.URL

	transcriber, err := ai.NewTranscriber(cfg, ai.WithSleeper(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("NewTranscriber: %v", err)
	}
	if _, err := transcriber.Transcribe(context.Background(), writeAudio(t)); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestDecodeModelJSONExtractsEmbeddedObject(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := ai.DecodeModelJSON("Here is the result: {\"ok\": true} hope that helps", &parsed); err != nil {
		t.Fatalf("DecodeModelJSON: %v", err)
	}
	if !parsed.OK {
		t.Fatal("expected ok=true after extraction")
	}
}
