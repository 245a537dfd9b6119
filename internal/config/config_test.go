package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	// t.TempDir() gives us a directory that's auto-deleted after the test.
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s
  cors_origins:
    - https://lab.example.com

providers:
  google:
    api_key: ${TEST_API_KEY}
    base_url: https://example.com/v1
    model: gemini-2.0-flash
    timeout: 20s
  ollama:
    base_url: http://localhost:11434
    model: llama3.2

routing:
  chat: [ollama, google]
  analysis: [google]

quiz:
  store: redis
  session_ttl: 30m
  redis_addr: localhost:6379

rag:
  mongo_uri: mongodb://localhost:27017
  k: 3

log:
  level: debug
  development: true
`)

	// t.Setenv auto-restores the original value when the test finishes.
	t.Setenv("TEST_API_KEY", "my-secret-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"https://lab.example.com"}, cfg.Server.CORSOrigins)

	google, ok := cfg.Providers["google"]
	require.True(t, ok, "google provider should exist")
	assert.Equal(t, "my-secret-key", google.APIKey)
	assert.Equal(t, "https://example.com/v1", google.BaseURL)
	assert.Equal(t, "gemini-2.0-flash", google.Model)
	assert.Equal(t, 20*time.Second, google.Timeout)
	assert.Equal(t, DefaultProviderTimeout, cfg.Providers["ollama"].Timeout)

	assert.Equal(t, []string{"ollama", "google"}, cfg.Routing.Chat)
	assert.Equal(t, []string{"google"}, cfg.Routing.Analysis)

	assert.Equal(t, StoreRedis, cfg.Quiz.Store)
	assert.Equal(t, 30*time.Minute, cfg.Quiz.SessionTTL)
	assert.Equal(t, DefaultJanitorInterval, cfg.Quiz.JanitorInterval)

	assert.Equal(t, "mongodb://localhost:27017", cfg.RAG.MongoURI)
	assert.Equal(t, "chemtutor", cfg.RAG.Database)
	assert.Equal(t, 3, cfg.RAG.K)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.Server.CORSOrigins)
	assert.Equal(t, []string{"ollama", "google"}, cfg.Routing.Chat)
	assert.Equal(t, StoreMemory, cfg.Quiz.Store)
	assert.Equal(t, DefaultSessionTTL, cfg.Quiz.SessionTTL)
	assert.Empty(t, cfg.RAG.MongoURI)
	assert.NotNil(t, cfg.Providers)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  read_timeout: 30s
providers:
  google:
    model: gemini-2.0-flash
`)

	t.Setenv("CHEMTUTOR_SERVER_PORT", "3000")
	t.Setenv("CHEMTUTOR_SERVER_READ_TIMEOUT", "5s")
	t.Setenv("CHEMTUTOR_PROVIDERS_GOOGLE_API_KEY", "from-env")
	t.Setenv("CHEMTUTOR_QUIZ_SESSION_TTL", "45m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "from-env", cfg.Providers["google"].APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.Providers["google"].Model)
	assert.Equal(t, 45*time.Minute, cfg.Quiz.SessionTTL)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CHEMTUTOR_SERVER_PORT":               "server.port",
		"CHEMTUTOR_SERVER_CORS_ORIGINS":       "server.cors_origins",
		"CHEMTUTOR_PROVIDERS_OLLAMA_BASE_URL": "providers.ollama.base_url",
		"CHEMTUTOR_RAG_MONGO_URI":             "rag.mongo_uri",
		"CHEMTUTOR_DEBUG":                     "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "quiz:\n  store: redis\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "redis_addr")

	path = writeConfig(t, "quiz:\n  store: sqlite\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "unknown quiz.store")
}
