// Package config loads the service configuration from YAML.
//
// Values absent from the file keep their defaults. Environment variables
// referenced as ${NAME} are expanded before parsing, so credentials can stay
// out of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/poiesic/opsmind/agent"
	"github.com/poiesic/opsmind/ai"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendBadger   = "badger"
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the complete service configuration.
type Config struct {
	AI        AIConfig        `yaml:"ai"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Queue     QueueConfig     `yaml:"queue"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Agent     AgentConfig     `yaml:"agent"`
	Server    ServerConfig    `yaml:"server"`
	Watcher   WatcherConfig   `yaml:"watcher"`
}

// AIConfig selects and configures the model provider.
type AIConfig struct {
	Provider            string  `yaml:"provider"`
	EmbeddingHost       string  `yaml:"embedding_host"`
	GenerationHost      string  `yaml:"generation_host"`
	APIKey              string  `yaml:"api_key"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions"`
	GenerationModel     string  `yaml:"generation_model"`
	GenerationClient    string  `yaml:"generation_client"`
	Temperature         float64 `yaml:"temperature"`
}

// StorageConfig selects the chunk store. Jobs always live in Badger at Path.
type StorageConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	ChromemDir string `yaml:"chromem_dir"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
	DSN        string `yaml:"dsn"`
	Driver     string `yaml:"driver"`
	Debug      bool   `yaml:"debug"`
}

// IngestionConfig tunes document splitting and embedding pace.
type IngestionConfig struct {
	ChunkSize     int           `yaml:"chunk_size"`
	ChunkOverlap  int           `yaml:"chunk_overlap"`
	EmbedInterval time.Duration `yaml:"embed_interval"`
}

// QueueConfig tunes job retries.
type QueueConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RetrievalConfig tunes vector search.
type RetrievalConfig struct {
	TopK       int `yaml:"top_k"`
	Candidates int `yaml:"candidates"`
}

// AgentConfig tunes answering. LeaveBalances replaces the built-in sample
// directory when set.
type AgentConfig struct {
	HistoryTurns  int                           `yaml:"history_turns"`
	LeaveBalances map[string]agent.LeaveBalance `yaml:"leave_balances"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	UploadDir      string        `yaml:"upload_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryAfter     time.Duration `yaml:"retry_after"`
	SegmentSize    int           `yaml:"segment_size"`
	AllowedOrigin  string        `yaml:"allowed_origin"`
}

// WatcherConfig configures the inbox watcher.
type WatcherConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	Settle  time.Duration `yaml:"settle"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		AI: AIConfig{
			Provider:         ProviderOpenAI,
			EmbeddingHost:    aiDefaults.EmbeddingHost,
			GenerationHost:   aiDefaults.GenerationHost,
			APIKey:           aiDefaults.APIKey,
			EmbeddingModel:   aiDefaults.EmbeddingModel,
			GenerationModel:  aiDefaults.GenerationModel,
			GenerationClient: aiDefaults.GenerationClient,
			Temperature:      aiDefaults.Temperature,
		},
		Storage: StorageConfig{
			Backend:    BackendBadger,
			Path:       "data/opsmind",
			ChromemDir: "data/chromem",
			Collection: "chunks",
			Driver:     "pg",
		},
		Ingestion: IngestionConfig{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			EmbedInterval: time.Second,
		},
		Queue: QueueConfig{
			MaxAttempts:  3,
			BaseDelay:    time.Second,
			Multiplier:   2,
			PollInterval: 5 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:       3,
			Candidates: 100,
		},
		Agent: AgentConfig{
			HistoryTurns: 5,
		},
		Server: ServerConfig{
			Addr:           ":5000",
			UploadDir:      "uploads",
			MaxUploadBytes: 50 << 20,
			RequestTimeout: 2 * time.Minute,
			RetryAfter:     60 * time.Second,
			SegmentSize:    24,
			AllowedOrigin:  "*",
		},
		Watcher: WatcherConfig{
			Dir:    "inbox",
			Settle: 500 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML data into cfg after expanding environment variables.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig converts the AI section to the provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithEmbeddingDimensions(c.AI.EmbeddingDimensions),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithGenerationClient(c.AI.GenerationClient),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch c.AI.Provider {
	case ProviderMock:
	case ProviderOpenAI:
		if err := c.AIConfig().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	default:
		return invalid("ai.provider must be %q or %q, got %q", ProviderOpenAI, ProviderMock, c.AI.Provider)
	}

	switch c.Storage.Backend {
	case BackendBadger, BackendChromem:
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return invalid("storage.dsn is required for the postgres backend")
		}
	default:
		return invalid("storage.backend must be badger, chromem or postgres, got %q", c.Storage.Backend)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return invalid("storage.path is required unless storage.in_memory is set")
	}

	if c.Ingestion.ChunkSize < 1 || c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return invalid("ingestion chunk_overlap must be in [0, chunk_size), got size %d overlap %d",
			c.Ingestion.ChunkSize, c.Ingestion.ChunkOverlap)
	}
	if c.Ingestion.EmbedInterval < 0 {
		return invalid("ingestion.embed_interval must not be negative")
	}

	if c.Queue.MaxAttempts < 1 {
		return invalid("queue.max_attempts must be at least 1")
	}
	if c.Queue.BaseDelay < 0 || c.Queue.Multiplier < 1 {
		return invalid("queue.base_delay must not be negative and queue.multiplier must be at least 1")
	}
	if c.Queue.PollInterval <= 0 {
		return invalid("queue.poll_interval must be positive")
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.Candidates < c.Retrieval.TopK {
		return invalid("retrieval.top_k must be positive and not exceed retrieval.candidates")
	}
	if c.Agent.HistoryTurns < 0 {
		return invalid("agent.history_turns must not be negative")
	}

	if c.Server.Addr == "" || c.Server.UploadDir == "" {
		return invalid("server.addr and server.upload_dir are required")
	}
	if c.Server.MaxUploadBytes < 1 || c.Server.SegmentSize < 1 {
		return invalid("server.max_upload_bytes and server.segment_size must be positive")
	}
	if c.Server.RequestTimeout < 0 || c.Server.RetryAfter < time.Second {
		return invalid("server.request_timeout must not be negative and server.retry_after must be at least 1s")
	}

	if c.Watcher.Enabled && (c.Watcher.Dir == "" || c.Watcher.Settle <= 0) {
		return invalid("watcher.dir and a positive watcher.settle are required when the watcher is enabled")
	}
	return nil
}
