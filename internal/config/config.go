// Package config provides the configuration schema, loader, and provider
// registry for the Griot server.
package config

// LogLevel controls log verbosity for the Griot server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Provider selects the model backend family.
type Provider string

const (
	// ProviderGemini uses Gemini models for the live session and sub-agents.
	ProviderGemini Provider = "gemini"

	// ProviderOpenAI uses OpenAI models for the sub-agents. The duplex live
	// session still runs on Gemini, the only supported live backend.
	ProviderOpenAI Provider = "openai"
)

// IsValid reports whether p is a recognised provider.
func (p Provider) IsValid() bool {
	return p == ProviderGemini || p == ProviderOpenAI
}

// Config is the root configuration structure for Griot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	Stream  StreamConfig  `yaml:"stream"`
	Agents  AgentsConfig  `yaml:"agents"`
	Store   StoreConfig   `yaml:"store"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ModelConfig names the model backends and their credentials.
type ModelConfig struct {
	// Provider selects the backend family for the sub-agents.
	Provider Provider `yaml:"provider"`

	// ProjectID and Region select the Vertex AI project. Ignored when APIKey
	// is set.
	ProjectID string `yaml:"project_id"`
	Region    string `yaml:"region"`

	// APIKey authenticates against the Gemini or OpenAI API directly.
	APIKey string `yaml:"api_key"`

	// LiveModel is the duplex conversation model.
	LiveModel string `yaml:"live_model"`

	// TextModel runs the story, riddle, and cultural agents.
	TextModel string `yaml:"text_model"`

	// ImageModel renders scene illustrations.
	ImageModel string `yaml:"image_model"`

	// Voice selects the live model's response voice.
	Voice string `yaml:"voice"`

	// PoolSize is the number of warmed text clients.
	PoolSize int `yaml:"pool_size"`
}

// SessionConfig bounds session lifetime and concurrency.
type SessionConfig struct {
	// TTLHours is how long a finished session's memory stays resumable.
	TTLHours int `yaml:"ttl_hours"`

	// MaxTurns caps how many turns a single session may accumulate.
	MaxTurns int `yaml:"max_turns"`

	// MaxConcurrent caps simultaneous WebSocket sessions.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// AudioConfig describes the PCM formats on the wire.
type AudioConfig struct {
	// SampleRateIn is the client microphone sample rate in Hz.
	SampleRateIn int `yaml:"sample_rate_in"`

	// SampleRateOut is the model's response audio sample rate in Hz.
	SampleRateOut int `yaml:"sample_rate_out"`

	// ChunkMS is the expected client chunk duration in milliseconds.
	ChunkMS int `yaml:"chunk_ms"`
}

// StreamConfig tunes the per-connection output queue.
type StreamConfig struct {
	// HighWatermark is the outbound queue capacity.
	HighWatermark int `yaml:"high_watermark"`

	// LowWatermark is the queue depth at which backpressure releases.
	LowWatermark int `yaml:"low_watermark"`
}

// AgentsConfig tunes sub-agent dispatch and cultural validation.
type AgentsConfig struct {
	// TimeoutSeconds bounds a unary sub-agent dispatch.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// CulturalConfidenceThreshold is the confidence below which the
	// validator consults the model.
	CulturalConfidenceThreshold float64 `yaml:"cultural_confidence_threshold"`

	// CulturalRejectThreshold is the confidence below which story text is
	// hedged before delivery.
	CulturalRejectThreshold float64 `yaml:"cultural_reject_threshold"`
}

// StoreConfig selects the persistence backends.
type StoreConfig struct {
	// PostgresDSN is the session store connection string. Empty selects the
	// in-memory store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// MediaBucket is the bucket name for generated illustrations.
	MediaBucket string `yaml:"media_bucket"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Model: ModelConfig{
			Provider:   ProviderGemini,
			LiveModel:  "gemini-2.0-flash-live",
			TextModel:  "gemini-2.0-flash",
			ImageModel: "imagen-3.0-generate-002",
			PoolSize:   3,
		},
		Session: SessionConfig{
			TTLHours:      24,
			MaxTurns:      100,
			MaxConcurrent: 200,
		},
		Audio: AudioConfig{
			SampleRateIn:  16000,
			SampleRateOut: 24000,
			ChunkMS:       100,
		},
		Stream: StreamConfig{
			HighWatermark: 50,
			LowWatermark:  10,
		},
		Agents: AgentsConfig{
			TimeoutSeconds:              5,
			CulturalConfidenceThreshold: 0.7,
			CulturalRejectThreshold:     0.4,
		},
		Store: StoreConfig{
			MediaBucket: "griot-media",
		},
	}
}
