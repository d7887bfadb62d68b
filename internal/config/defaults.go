package config

const (
	defaultDataDir             = "~/.local/share/reelsmith/data"
	defaultWorkDir             = "~/.local/share/reelsmith/work"
	defaultMediaDir            = "~/.local/share/reelsmith/media"
	defaultLogDir              = "~/.local/share/reelsmith/logs"
	defaultAPIBind             = "127.0.0.1:7612"
	defaultMediaBaseURL        = "http://127.0.0.1:7612/media"
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1"
	defaultLLMModel            = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds   = 120
	defaultTTSConcurrency      = 3
	defaultTTSTimeoutSeconds   = 120
	defaultTTSTargetLevelDB    = -16.0
	defaultImageConcurrency    = 10
	defaultImageTimeoutSeconds = 120
	defaultResearchConcurrency = 5
	defaultRetryMaxAttempts    = 3
	defaultRetryBaseDelayMS    = 500
	defaultItemTimeoutSeconds  = 120
	defaultHeartbeatSeconds    = 15
	defaultSpeakingCharsPerSec = 4.0
	defaultClipBufferSeconds   = 0.5
	defaultMaxDimensions       = 5
	defaultMaxSegments         = 50
	defaultComposeFPS          = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			WorkDir:      defaultWorkDir,
			MediaDir:     defaultMediaDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
			MediaBaseURL: defaultMediaBaseURL,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTS: TTS{
			DefaultVoice:   "zh-CN-XiaoxiaoNeural",
			Concurrency:    defaultTTSConcurrency,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
			TargetLevelDB:  defaultTTSTargetLevelDB,
		},
		Images: Images{
			DefaultModel:   "flux-schnell",
			Concurrency:    defaultImageConcurrency,
			TimeoutSeconds: defaultImageTimeoutSeconds,
		},
		Pipeline: Pipeline{
			ResearchConcurrency:   defaultResearchConcurrency,
			RetryMaxAttempts:      defaultRetryMaxAttempts,
			RetryBaseDelayMS:      defaultRetryBaseDelayMS,
			ItemTimeoutSeconds:    defaultItemTimeoutSeconds,
			HeartbeatSeconds:      defaultHeartbeatSeconds,
			SpeakingCharsPerSec:   defaultSpeakingCharsPerSec,
			ClipBufferSeconds:     defaultClipBufferSeconds,
			MaxDimensionsDefault:  defaultMaxDimensions,
			MaxSegmentsPerProject: defaultMaxSegments,
		},
		Compose: Compose{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			FPS:           defaultComposeFPS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Errors:         true,
			Completion:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
