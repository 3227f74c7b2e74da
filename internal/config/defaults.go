package config

const (
	defaultConfigPath = "~/.config/vitae/config.toml"
	defaultDataDir    = "~/.local/share/vitae"
	defaultLogDir     = "~/.local/share/vitae/logs"

	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"

	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"

	defaultStoreDriver        = StoreDriverSQLite
	defaultStoreMaxConns      = 8
	defaultStoreMinConns      = 1
	defaultLLMProvider        = ProviderOpenRouter
	defaultOpenRouterBaseURL  = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenAIBaseURL      = "https://api.openai.com/v1/chat/completions"
	defaultOpenRouterModel    = "google/gemini-3-flash-preview"
	defaultOpenAIModel        = "gpt-4o-mini"
	defaultGeminiModel        = "gemini-2.5-flash"
	defaultLLMReferer         = "https://github.com/vitae-dev/vitae"
	defaultLLMTitle           = "vitae extraction"
	defaultLLMTemperature     = 0.1
	defaultLLMMaxOutputTokens = 4096
	defaultLLMTimeoutSeconds  = 60
	defaultLLMRetryAttempts   = 3
	defaultLLMRetryBaseMS     = 1000
	defaultMaxPages           = 10
	defaultMaxDocumentBytes   = 2 << 20
	defaultJobWorkers         = 2
	defaultJobMaxAttempts     = 3
	defaultJobRetryBaseDelay  = 5
	defaultJobPollIntervalMS  = 1000
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Driver:   defaultStoreDriver,
			MaxConns: defaultStoreMaxConns,
			MinConns: defaultStoreMinConns,
		},
		LLM: LLM{
			Provider:         defaultLLMProvider,
			Referer:          defaultLLMReferer,
			Title:            defaultLLMTitle,
			Temperature:      defaultLLMTemperature,
			MaxOutputTokens:  defaultLLMMaxOutputTokens,
			TimeoutSeconds:   defaultLLMTimeoutSeconds,
			RetryAttempts:    defaultLLMRetryAttempts,
			RetryBaseDelayMS: defaultLLMRetryBaseMS,
		},
		Extraction: Extraction{
			MaxPages:         defaultMaxPages,
			MaxDocumentBytes: defaultMaxDocumentBytes,
		},
		Jobs: Jobs{
			Workers:               defaultJobWorkers,
			MaxAttempts:           defaultJobMaxAttempts,
			RetryBaseDelaySeconds: defaultJobRetryBaseDelay,
			PollIntervalMS:        defaultJobPollIntervalMS,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
