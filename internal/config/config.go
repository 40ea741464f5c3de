// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rag-chat/internal/domain"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // websocket origins, "*" allows any; empty keeps the same-host check
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres|sqlite
	URL    string `yaml:"url"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"` // empty disables cache and rate limiting
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	RateLimit int           `yaml:"rate_limit"` // stream requests per client per window
	RateEvery time.Duration `yaml:"rate_window"`
}

type AIConfig struct {
	Provider        string            `yaml:"provider"` // openai|gemini|noop, default backend
	OpenAIKey       string            `yaml:"openai_key"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	GeminiKey       string            `yaml:"gemini_key"`
	EmbeddingModel  string            `yaml:"embedding_model"`
	ChatModel       string            `yaml:"chat_model"`
	MaxOutputTokens int               `yaml:"max_output_tokens"`
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent AI calls
	ModelProviders  map[string]string `yaml:"model_providers"`  // explicit model -> provider routing
}

type VectorStoreConfig struct {
	Backend    string `yaml:"backend"` // qdrant|chromem
	Collection string `yaml:"collection"`

	QdrantHost   string `yaml:"qdrant_host"`
	QdrantPort   int    `yaml:"qdrant_port"`
	QdrantAPIKey string `yaml:"qdrant_api_key"`
	QdrantTLS    bool   `yaml:"qdrant_tls"`

	ChromemPath string `yaml:"chromem_path"` // empty keeps the index in memory
}

type RAGConfig struct {
	TopK              int           `yaml:"top_k"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	TokenPacing       time.Duration `yaml:"token_pacing"`
	RetrievalTimeout  time.Duration `yaml:"retrieval_timeout"`
	StreamTimeout     time.Duration `yaml:"stream_timeout"`
	TextField         string        `yaml:"text_field"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // empty disables bearer auth
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	AI          AIConfig          `yaml:"ai"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	RAG         RAGConfig         `yaml:"rag"`
	Worker      WorkerConfig      `yaml:"worker"`
	Auth        AuthConfig        `yaml:"auth"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, applies .env and environment
// overrides, fills defaults and validates the result. A missing file is
// allowed; everything can come from the environment.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := preset()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// preset seeds defaults for fields where zero is a meaningful value, so
// only an explicit 0 in the file or environment disables them.
func preset() Config {
	return Config{RAG: RAGConfig{
		TokenPacing:      50 * time.Millisecond,
		RetrievalTimeout: 30 * time.Second,
		StreamTimeout:    2 * time.Minute,
	}}
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("OPENAI_API_KEY", &cfg.AI.OpenAIKey)
	str("GEMINI_API_KEY", &cfg.AI.GeminiKey)
	str("EMBEDDING_MODEL", &cfg.AI.EmbeddingModel)
	str("CHAT_MODEL", &cfg.AI.ChatModel)
	str("QDRANT_API_KEY", &cfg.VectorStore.QdrantAPIKey)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)

	if v, ok := os.LookupEnv("MAX_OUTPUT_TOKENS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: MAX_OUTPUT_TOKENS: %v", domain.ErrConfiguration, err)
		}
		cfg.AI.MaxOutputTokens = n
	}
	if v, ok := os.LookupEnv("RAG_TOP_K"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: RAG_TOP_K: %v", domain.ErrConfiguration, err)
		}
		cfg.RAG.TopK = n
	}
	if v, ok := os.LookupEnv("RAG_HEARTBEAT_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: RAG_HEARTBEAT_INTERVAL: %v", domain.ErrConfiguration, err)
		}
		cfg.RAG.HeartbeatInterval = d
	}
	if v, ok := os.LookupEnv("RAG_TOKEN_PACING"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: RAG_TOKEN_PACING: %v", domain.ErrConfiguration, err)
		}
		cfg.RAG.TokenPacing = d
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Redis.RateLimit <= 0 {
		cfg.Redis.RateLimit = 30
	}
	if cfg.Redis.RateEvery <= 0 {
		cfg.Redis.RateEvery = time.Minute
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 100
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "qdrant"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "documents"
	}
	if cfg.VectorStore.QdrantHost == "" {
		cfg.VectorStore.QdrantHost = "localhost"
	}
	if cfg.VectorStore.QdrantPort <= 0 {
		cfg.VectorStore.QdrantPort = 6334
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = 3
	}
	if cfg.RAG.HeartbeatInterval <= 0 {
		cfg.RAG.HeartbeatInterval = 500 * time.Millisecond
	}
	// zero pacing is a valid choice, only negatives are reset
	if cfg.RAG.TokenPacing < 0 {
		cfg.RAG.TokenPacing = 0
	}
	if cfg.RAG.TextField == "" {
		cfg.RAG.TextField = "original_text"
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}
}

// Validate reports missing required settings. Errors wrap domain.ErrConfiguration.
func (c *Config) Validate() error {
	var missing []string
	if c.AI.EmbeddingModel == "" {
		missing = append(missing, "ai.embedding_model (EMBEDDING_MODEL)")
	}
	if c.AI.ChatModel == "" {
		missing = append(missing, "ai.chat_model (CHAT_MODEL)")
	}
	if c.Database.URL == "" {
		missing = append(missing, "database.url (DATABASE_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unknown database.driver %q", domain.ErrConfiguration, c.Database.Driver)
	}
	switch c.VectorStore.Backend {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("%w: unknown vector_store.backend %q", domain.ErrConfiguration, c.VectorStore.Backend)
	}
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return fmt.Errorf("%w: ai.openai_key (OPENAI_API_KEY) is required for provider openai", domain.ErrConfiguration)
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return fmt.Errorf("%w: ai.gemini_key (GEMINI_API_KEY) is required for provider gemini", domain.ErrConfiguration)
		}
	case "noop":
	default:
		return fmt.Errorf("%w: unknown ai.provider %q", domain.ErrConfiguration, c.AI.Provider)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
