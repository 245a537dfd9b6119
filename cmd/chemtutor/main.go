// Package main is the entry point for the chemtutor service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/howard-nolan/chemtutor/internal/analysis"
	"github.com/howard-nolan/chemtutor/internal/config"
	"github.com/howard-nolan/chemtutor/internal/metrics"
	"github.com/howard-nolan/chemtutor/internal/provider"
	"github.com/howard-nolan/chemtutor/internal/quiz"
	"github.com/howard-nolan/chemtutor/internal/rag"
	"github.com/howard-nolan/chemtutor/internal/server"
	"github.com/howard-nolan/chemtutor/internal/stream"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("chemtutor stopped", zap.Error(err))
	}
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	registry := buildProviders(cfg, logger)

	chatProviders := route(registry, cfg.Routing.Chat)
	analysisChain := provider.NewChain(route(registry, cfg.Routing.Analysis), logger, m)

	store, janitor, closeStore, err := buildStore(ctx, cfg.Quiz, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := server.Deps{
		Chat:      &stream.Pipeline{Providers: chatProviders, Logger: logger, Metrics: m},
		Analyzer:  analysis.NewAnalyzer(analysisChain, logger, m),
		Quiz:      quiz.NewEngine(analysisChain, store, quiz.WithLogger(logger), quiz.WithMetrics(m)),
		Providers: healthOrder(registry, cfg.Routing),
		ModelName: primaryModel(cfg),
		Metrics:   m,
		Logger:    logger,
	}

	if cfg.RAG.MongoURI != "" {
		retriever, err := rag.NewMongoRetriever(ctx, cfg.RAG.MongoURI, cfg.RAG.Database, cfg.RAG.Collection)
		if err != nil {
			// Chat still works without retrieval; prompts say so.
			logger.Warn("knowledge base unavailable", zap.Error(err))
		} else {
			defer retriever.Close(context.Background())
			deps.Retriever = retriever
			logger.Info("knowledge base connected", zap.String("collection", cfg.RAG.Collection))
		}
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.New(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("chemtutor listening",
			zap.Int("port", cfg.Server.Port),
			zap.Strings("chat_route", cfg.Routing.Chat),
			zap.Strings("analysis_route", cfg.Routing.Analysis),
			zap.String("quiz_store", cfg.Quiz.Store),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if janitor != nil {
		g.Go(func() error { return janitor(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildProviders constructs every configured provider. A provider without
// the credential (or base URL) it needs is registered as Disabled so the
// process still starts and /health reports it.
func buildProviders(cfg *config.Config, logger *zap.Logger) map[string]provider.Provider {
	registry := make(map[string]provider.Provider)

	for _, name := range append(append([]string(nil), cfg.Routing.Chat...), cfg.Routing.Analysis...) {
		if _, ok := registry[name]; ok {
			continue
		}
		pc := cfg.Providers[name]
		p, err := newProvider(name, pc)
		if err != nil {
			logger.Warn("provider disabled", zap.String("provider", name), zap.Error(err))
			p = provider.NewDisabled(name)
		}
		registry[name] = p
	}
	return registry
}

// Defaults for provider settings left out of the config.
var (
	defaultBaseURLs = map[string]string{
		"google": "https://generativelanguage.googleapis.com/v1beta",
	}
	defaultModels = map[string]string{
		"google":    "gemini-2.0-flash",
		"ollama":    "llama3.2",
		"anthropic": "claude-3-5-haiku-latest",
	}
)

func newProvider(name string, pc config.ProviderConfig) (provider.Provider, error) {
	if pc.BaseURL == "" {
		pc.BaseURL = defaultBaseURLs[name]
	}
	if pc.Model == "" {
		pc.Model = defaultModels[name]
	}

	// ResponseHeaderTimeout bounds the wait for the first byte without
	// cutting off a long-running stream.
	client := &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: pc.Timeout,
		IdleConnTimeout:       90 * time.Second,
	}}

	switch name {
	case "google":
		if pc.APIKey == "" {
			return nil, errors.New("no api_key")
		}
		return provider.NewGoogleProvider(pc.APIKey, pc.BaseURL, pc.Model, pc.Timeout, client), nil
	case "anthropic":
		if pc.APIKey == "" {
			return nil, errors.New("no api_key")
		}
		return provider.NewAnthropicProvider(pc.APIKey, pc.BaseURL, pc.Model, pc.Timeout, client), nil
	case "ollama":
		if pc.BaseURL == "" {
			return nil, errors.New("no base_url")
		}
		return provider.NewOllamaProvider(pc.BaseURL, pc.Model, pc.Timeout, client), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func route(registry map[string]provider.Provider, names []string) []provider.Provider {
	out := make([]provider.Provider, 0, len(names))
	for _, name := range names {
		out = append(out, registry[name])
	}
	return out
}

// healthOrder lists each provider once, primary chat provider first.
func healthOrder(registry map[string]provider.Provider, r config.RoutingConfig) []provider.Provider {
	seen := make(map[string]bool)
	var out []provider.Provider
	for _, name := range append(append([]string(nil), r.Chat...), r.Analysis...) {
		if !seen[name] {
			seen[name] = true
			out = append(out, registry[name])
		}
	}
	return out
}

func primaryModel(cfg *config.Config) string {
	if len(cfg.Routing.Chat) == 0 {
		return ""
	}
	name := cfg.Routing.Chat[0]
	if m := cfg.Providers[name].Model; m != "" {
		return m
	}
	return defaultModels[name]
}

// buildStore returns the session store, an optional background janitor and
// a close function.
func buildStore(ctx context.Context, qc config.QuizConfig, logger *zap.Logger) (quiz.Store, func(context.Context) error, func(), error) {
	switch qc.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: qc.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		store := quiz.NewRedisStore(client, qc.SessionTTL)
		if err := store.Ping(pingCtx); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("connecting to redis at %s: %w", qc.RedisAddr, err)
		}
		logger.Info("quiz sessions in redis", zap.String("addr", qc.RedisAddr))
		// Redis expires keys itself.
		return store, nil, func() { client.Close() }, nil

	default:
		store := quiz.NewMemoryStore(qc.SessionTTL)
		janitor := func(ctx context.Context) error {
			return store.Janitor(ctx, qc.JanitorInterval, func(n int) {
				logger.Info("expired quiz sessions removed", zap.Int("count", n))
			})
		}
		return store, janitor, func() {}, nil
	}
}
