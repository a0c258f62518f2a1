package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pdf-rag/internal/parser"
)

const (
	BackendAzure    = "azure"
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"

	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	LogLevel   string               `yaml:"log_level"`
	UploadsDir string               `yaml:"uploads_dir"`
	Search     SearchConfig         `yaml:"search"`
	LLM        LLMConfig            `yaml:"llm"`
	EmbedLLM   LLMConfig            `yaml:"embed_llm"`
	Summarizer SummarizerConfig     `yaml:"summarizer"`
	RAG        RAGConfig            `yaml:"rag"`
	Database   DatabaseConfig       `yaml:"database"`
	Server     ServerConfig         `yaml:"server"`
	Layout     parser.LayoutOptions `yaml:"layout"`
}

type SearchConfig struct {
	Backend     string `yaml:"backend"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	IndexName   string `yaml:"index_name"`
	APIKey      string `yaml:"api_key"`
	APIVersion  string `yaml:"api_version"`
	// chromem
	DBPath        string `yaml:"db_path"`
	InMemory      bool   `yaml:"in_memory"`
	EncryptionKey string `yaml:"encryption_key"`
}

type LLMConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Key        string `yaml:"key"`
	Model      string `yaml:"model"`
	APIVersion string `yaml:"api_version"`
}

type SummarizerConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type RAGConfig struct {
	TopK      int `yaml:"top_k"`
	MaxTokens int `yaml:"max_tokens"`
	BatchSize int `yaml:"batch_size"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	// Driver selects the database/sql driver: "pgdriver" or "postgres" (lib/pq).
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
}

// LoadConfig reads .env (if present), the YAML file at path (if present),
// applies environment overrides and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Search.ServiceName, "SEARCH_SERVICE_NAME")
	setFromEnv(&cfg.Search.Endpoint, "SEARCH_ENDPOINT")
	setFromEnv(&cfg.Search.IndexName, "SEARCH_INDEX_NAME")
	setFromEnv(&cfg.Search.APIKey, "SEARCH_API_KEY")
	setFromEnv(&cfg.LLM.BaseURL, "AZURE_OPENAI_ENDPOINT")
	setFromEnv(&cfg.LLM.Key, "AZURE_OPENAI_KEY")
	setFromEnv(&cfg.LLM.Model, "DEPLOYMENT_NAME")
	setFromEnv(&cfg.LLM.APIVersion, "OPENAI_API_VERSION")
	setFromEnv(&cfg.Database.URL, "DATABASE_URL")
}

func setFromEnv(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "uploads"
	}
	if cfg.Search.Backend == "" {
		cfg.Search.Backend = BackendAzure
	}
	if cfg.Search.Endpoint == "" && cfg.Search.ServiceName != "" {
		cfg.Search.Endpoint = fmt.Sprintf("https://%s.search.windows.net", cfg.Search.ServiceName)
	}
	cfg.Search.Endpoint = strings.TrimRight(cfg.Search.Endpoint, "/")
	if cfg.Search.IndexName == "" {
		cfg.Search.IndexName = "pdf-content"
	}
	if cfg.Search.APIVersion == "" {
		cfg.Search.APIVersion = "2023-11-01"
	}
	if cfg.Search.DBPath == "" {
		cfg.Search.DBPath = "./chromemdb"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderAzure
	}
	if cfg.LLM.APIVersion == "" {
		cfg.LLM.APIVersion = "2024-02-01"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOllama
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == ProviderOllama {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" && cfg.EmbedLLM.Provider == ProviderOllama {
		cfg.EmbedLLM.Model = "nomic-embed-text"
	}
	if cfg.Summarizer.MaxRetries == 0 {
		cfg.Summarizer.MaxRetries = 5
	}
	if cfg.Summarizer.InitialDelay == 0 {
		cfg.Summarizer.InitialDelay = time.Second
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.RAG.MaxTokens == 0 {
		cfg.RAG.MaxTokens = 64000
	}
	if cfg.RAG.BatchSize == 0 {
		cfg.RAG.BatchSize = 1000
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 64 << 20
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error
	switch c.Search.Backend {
	case BackendAzure:
		if c.Search.Endpoint == "" {
			errs = append(errs, errors.New("search: endpoint or service_name is required for the azure backend"))
		}
		if c.Search.APIKey == "" {
			errs = append(errs, errors.New("search: api_key is required for the azure backend"))
		}
	case BackendChromem:
		if c.Search.InMemory && c.Search.EncryptionKey != "" && len(c.Search.EncryptionKey) != 32 {
			errs = append(errs, errors.New("search: encryption_key must be 32 bytes"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database: url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("search: unknown backend %q", c.Search.Backend))
	}

	switch c.LLM.Provider {
	case ProviderAzure, ProviderOpenAI:
		if c.LLM.Key == "" {
			errs = append(errs, errors.New("llm: key is required"))
		}
		if c.LLM.Model == "" {
			errs = append(errs, errors.New("llm: model (deployment) is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm: unknown provider %q", c.LLM.Provider))
	}
	return errors.Join(errs...)
}
