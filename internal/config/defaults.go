package config

const (
	defaultDataDir              = "~/.local/share/clippress"
	defaultBlobDir              = "~/.local/share/clippress/blobs"
	defaultLogDir               = "~/.local/share/clippress/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultWorkerCount          = 4
	defaultQueuePollInterval    = 2
	defaultErrorRetryInterval   = 5
	defaultScheduleSweepSeconds = 30
	defaultMaxUploadBytes       = int64(500) << 20
	defaultMaxYouTubeHeight     = 720
	defaultProviderTimeoutSecs  = 120
	defaultOpenAIBaseURL        = "https://api.openai.com/v1"
	defaultOpenAIWhisperModel   = "whisper-1"
	defaultGroqBaseURL          = "https://api.groq.com/openai/v1"
	defaultGroqWhisperModel     = "whisper-large-v3"
	defaultGeminiBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel          = "gemini-pro"
	defaultDispatcherMode       = "local"
	defaultAMQPQueue            = "clippress.jobs"
	defaultNotifyRequestTimeout = 10
)

func defaultAllowedFormats() []string {
	return []string{"mp4", "mov", "webm", "mkv", "avi"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			BlobDir: defaultBlobDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Workflow: Workflow{
			WorkerCount:          defaultWorkerCount,
			QueuePollInterval:    defaultQueuePollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			ScheduleSweepSeconds: defaultScheduleSweepSeconds,
		},
		Ingestion: Ingestion{
			MaxUploadBytes:   defaultMaxUploadBytes,
			AllowedFormats:   defaultAllowedFormats(),
			MaxYouTubeHeight: defaultMaxYouTubeHeight,
		},
		Providers: Providers{
			Transcription: "openai",
			Analysis:      "openai",
			OpenAI: Provider{
				BaseURL: defaultOpenAIBaseURL,
				Model:   defaultOpenAIWhisperModel,
			},
			Groq: Provider{
				BaseURL: defaultGroqBaseURL,
				Model:   defaultGroqWhisperModel,
			},
			Gemini: Provider{
				BaseURL: defaultGeminiBaseURL,
				Model:   defaultGeminiModel,
			},
			TimeoutSecs: defaultProviderTimeoutSecs,
		},
		Dispatcher: Dispatcher{
			Mode:      defaultDispatcherMode,
			AMQPQueue: defaultAMQPQueue,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			VideoReady:     true,
			VideoFailed:    true,
			PublishDone:    true,
			PublishFailed:  true,
		},
	}
}
