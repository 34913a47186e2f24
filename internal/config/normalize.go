package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeIngestion()
	c.normalizeProviders()
	c.normalizePlatforms()
	c.normalizeDispatcher()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("blob_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.WorkerCount <= 0 {
		c.Workflow.WorkerCount = defaultWorkerCount
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.ScheduleSweepSeconds <= 0 {
		c.Workflow.ScheduleSweepSeconds = defaultScheduleSweepSeconds
	}
}

func (c *Config) normalizeIngestion() {
	if c.Ingestion.MaxUploadBytes <= 0 {
		c.Ingestion.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Ingestion.MaxYouTubeHeight <= 0 {
		c.Ingestion.MaxYouTubeHeight = defaultMaxYouTubeHeight
	}
	if len(c.Ingestion.AllowedFormats) == 0 {
		c.Ingestion.AllowedFormats = defaultAllowedFormats()
	}
	for i, format := range c.Ingestion.AllowedFormats {
		c.Ingestion.AllowedFormats[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	}
}

func (c *Config) normalizeProviders() {
	c.Providers.Transcription = strings.ToLower(strings.TrimSpace(c.Providers.Transcription))
	c.Providers.Analysis = strings.ToLower(strings.TrimSpace(c.Providers.Analysis))
	if c.Providers.TimeoutSecs <= 0 {
		c.Providers.TimeoutSecs = defaultProviderTimeoutSecs
	}
	if strings.TrimSpace(c.Providers.OpenAI.BaseURL) == "" {
		c.Providers.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(c.Providers.Groq.BaseURL) == "" {
		c.Providers.Groq.BaseURL = defaultGroqBaseURL
	}
	if strings.TrimSpace(c.Providers.Gemini.BaseURL) == "" {
		c.Providers.Gemini.BaseURL = defaultGeminiBaseURL
	}
}

func (c *Config) normalizePlatforms() {
	for i := range c.Platforms {
		c.Platforms[i].Name = strings.ToLower(strings.TrimSpace(c.Platforms[i].Name))
		for j, format := range c.Platforms[i].SupportedFormats {
			c.Platforms[i].SupportedFormats[j] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
		}
	}
}

func (c *Config) normalizeDispatcher() {
	c.Dispatcher.Mode = strings.ToLower(strings.TrimSpace(c.Dispatcher.Mode))
	if c.Dispatcher.Mode == "" {
		c.Dispatcher.Mode = defaultDispatcherMode
	}
	if strings.TrimSpace(c.Dispatcher.AMQPQueue) == "" {
		c.Dispatcher.AMQPQueue = defaultAMQPQueue
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
