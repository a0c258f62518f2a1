package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SEARCH_SERVICE_NAME", "SEARCH_ENDPOINT", "SEARCH_INDEX_NAME", "SEARCH_API_KEY",
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_KEY", "DEPLOYMENT_NAME", "OPENAI_API_VERSION",
		"DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, BackendAzure, cfg.Search.Backend)
	assert.Equal(t, 5, cfg.Summarizer.MaxRetries)
	assert.Equal(t, time.Second, cfg.Summarizer.InitialDelay)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 64000, cfg.RAG.MaxTokens)
	assert.Equal(t, 1000, cfg.RAG.BatchSize)
	assert.Equal(t, "uploads", cfg.UploadsDir)
}

func TestLoadConfigFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: info
search:
  backend: chromem
  index_name: from-file
summarizer:
  initial_delay: 250ms
rag:
  max_tokens: 100
`), 0o644))

	t.Setenv("SEARCH_INDEX_NAME", "from-env")
	t.Setenv("SEARCH_SERVICE_NAME", "acme")
	t.Setenv("DEPLOYMENT_NAME", "gpt-4o")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendChromem, cfg.Search.Backend)
	assert.Equal(t, "from-env", cfg.Search.IndexName)
	assert.Equal(t, "https://acme.search.windows.net", cfg.Search.Endpoint)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 250*time.Millisecond, cfg.Summarizer.InitialDelay)
	assert.Equal(t, 100, cfg.RAG.MaxTokens)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Search: SearchConfig{Backend: BackendAzure, Endpoint: "https://x.search.windows.net", APIKey: "k"},
			LLM:    LLMConfig{Provider: ProviderAzure, Key: "k", Model: "gpt"},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "azure without key", mutate: func(c *Config) { c.Search.APIKey = "" }, wantErr: "api_key"},
		{name: "postgres without url", mutate: func(c *Config) { c.Search.Backend = BackendPostgres }, wantErr: "database: url"},
		{name: "unknown backend", mutate: func(c *Config) { c.Search.Backend = "solr" }, wantErr: "unknown backend"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "bard" }, wantErr: "unknown provider"},
		{name: "missing deployment", mutate: func(c *Config) { c.LLM.Model = "" }, wantErr: "deployment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
