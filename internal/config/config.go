// Package config handles loading and validating service configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override, e.g.
// CHEMTUTOR_SERVER_PORT -> server.port.
const EnvPrefix = "CHEMTUTOR_"

// Store backends for quiz sessions.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the top-level configuration for the chemtutor service.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Routing   RoutingConfig             `koanf:"routing"`
	Quiz      QuizConfig                `koanf:"quiz"`
	RAG       RAGConfig                 `koanf:"rag"`
	Log       LogConfig                 `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	CORSOrigins  []string      `koanf:"cors_origins"`
}

// ProviderConfig holds the settings for a single LLM provider. A provider
// without the credential (or, for ollama, the base URL) it needs is started
// disabled rather than failing the process.
type ProviderConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// RoutingConfig lists provider names in the order they are tried.
type RoutingConfig struct {
	Chat     []string `koanf:"chat"`
	Analysis []string `koanf:"analysis"`
}

// QuizConfig selects and tunes the session store.
type QuizConfig struct {
	Store           string        `koanf:"store"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// RAGConfig points at the knowledge collection. An empty MongoURI disables
// retrieval and chat prompts carry the "not loaded" notice instead.
type RAGConfig struct {
	MongoURI   string `koanf:"mongo_uri"`
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`
	K          int    `koanf:"k"`
}

// LogConfig controls the zap logger built in main.
type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Default values for anything left unset.
const (
	DefaultPort            = 8000
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute
	DefaultProviderTimeout = 15 * time.Second
	DefaultSessionTTL      = 2 * time.Hour
	DefaultJanitorInterval = time.Minute
	DefaultRAGK            = 2
)

var (
	defaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	defaultChatRoute   = []string{"ollama", "google"}
	defaultAnalysis    = []string{"google", "ollama"}
)

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config. A missing file
// is not an error: the service then runs on defaults plus environment.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	// The "." delimiter tells koanf how nested keys are separated
	// internally (e.g., "server.port").
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Key names themselves contain
	// underscores (read_timeout, api_key), so only the section separators
	// become dots:
	//   CHEMTUTOR_SERVER_READ_TIMEOUT      -> server.read_timeout
	//   CHEMTUTOR_PROVIDERS_GOOGLE_API_KEY -> providers.google.api_key
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders; koanf leaves them as literal text.
	for name, p := range cfg.Providers {
		p.APIKey = expand(p.APIKey)
		p.BaseURL = expand(p.BaseURL)
		cfg.Providers[name] = p // write back into the map
	}
	cfg.RAG.MongoURI = expand(cfg.RAG.MongoURI)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CHEMTUTOR_SECTION_KEY onto section.key. The providers map
// has one more level: CHEMTUTOR_PROVIDERS_NAME_KEY -> providers.name.key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	if section == "providers" {
		if name, key, ok := strings.Cut(rest, "_"); ok {
			return section + "." + name + "." + key
		}
	}
	return section + "." + rest
}

func expand(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1]) // strip ${ and }
	}
	return v
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = append([]string(nil), defaultCORSOrigins...)
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, p := range c.Providers {
		if p.Timeout == 0 {
			p.Timeout = DefaultProviderTimeout
		}
		c.Providers[name] = p
	}

	if len(c.Routing.Chat) == 0 {
		c.Routing.Chat = append([]string(nil), defaultChatRoute...)
	}
	if len(c.Routing.Analysis) == 0 {
		c.Routing.Analysis = append([]string(nil), defaultAnalysis...)
	}

	if c.Quiz.Store == "" {
		c.Quiz.Store = StoreMemory
	}
	if c.Quiz.SessionTTL == 0 {
		c.Quiz.SessionTTL = DefaultSessionTTL
	}
	if c.Quiz.JanitorInterval == 0 {
		c.Quiz.JanitorInterval = DefaultJanitorInterval
	}

	if c.RAG.Database == "" {
		c.RAG.Database = "chemtutor"
	}
	if c.RAG.Collection == "" {
		c.RAG.Collection = "knowledge"
	}
	if c.RAG.K == 0 {
		c.RAG.K = DefaultRAGK
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects settings the service cannot start with. Missing
// credentials are not errors; those providers run disabled.
func (c *Config) Validate() error {
	switch c.Quiz.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Quiz.RedisAddr == "" {
			return errors.New("config: quiz.redis_addr is required when quiz.store is redis")
		}
	default:
		return fmt.Errorf("config: unknown quiz.store %q", c.Quiz.Store)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}
