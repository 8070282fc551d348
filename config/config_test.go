package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/opsmind/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 200, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 100, cfg.Retrieval.Candidates)
	assert.Equal(t, 60*time.Second, cfg.Server.RetryAfter)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("OPSMIND_TEST_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "opsmind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ai:
  api_key: ${OPSMIND_TEST_KEY}
  embedding_model: text-embedding-3-small
  generation_client: openai-sdk
storage:
  backend: chromem
queue:
  base_delay: 250ms
  poll_interval: 2s
server:
  addr: ":8080"
  request_timeout: 30s
agent:
  leave_balances:
    alice:
      sick_leave: 4
      vacation_leave: 9
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
	assert.Equal(t, "qwen2.5:3b", cfg.AI.GenerationModel)
	assert.Equal(t, BackendChromem, cfg.Storage.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.BaseDelay)
	assert.Equal(t, 2*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, agent.LeaveBalance{SickLeave: 4, VacationLeave: 9}, cfg.Agent.LeaveBalances["alice"])

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "sk-test", aiCfg.APIKey)
	assert.Equal(t, "openai-sdk", aiCfg.GenerationClient)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadYAML(t *testing.T) {
	err := Parse([]byte("queue: [unterminated"), Default())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.AI.Provider = "gemini" }},
		{"missing api key", func(c *Config) { c.AI.APIKey = "" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }},
		{"overlap too large", func(c *Config) { c.Ingestion.ChunkOverlap = 1000 }},
		{"zero attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"shrinking backoff", func(c *Config) { c.Queue.Multiplier = 0.5 }},
		{"k above candidates", func(c *Config) { c.Retrieval.TopK = 200 }},
		{"short retry after", func(c *Config) { c.Server.RetryAfter = 0 }},
		{"watcher without dir", func(c *Config) {
			c.Watcher.Enabled = true
			c.Watcher.Dir = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateMockProviderSkipsCredentials(t *testing.T) {
	cfg := Default()
	cfg.AI.Provider = ProviderMock
	cfg.AI.APIKey = ""
	assert.NoError(t, cfg.Validate())
}
