// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/support-agent/internal/agent"
	"github.com/capitalize-ai/support-agent/internal/cache"
	"github.com/capitalize-ai/support-agent/internal/config"
	"github.com/capitalize-ai/support-agent/internal/handler"
	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/memstore"
	natsclient "github.com/capitalize-ai/support-agent/internal/nats"
	"github.com/capitalize-ai/support-agent/internal/retrieval"
	"github.com/capitalize-ai/support-agent/internal/service"
	"github.com/capitalize-ai/support-agent/internal/store"
	"github.com/capitalize-ai/support-agent/pkg/logger"
	"github.com/capitalize-ai/support-agent/pkg/tracing"
)

func main() {
	cfg := config.Load()

	var (
		log *logger.Logger
		err error
	)
	if os.Getenv("ENV") == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// backend is the set of stores the engine runs on.
type backend struct {
	checkpoints agent.CheckpointStore
	history     agent.HistoryStore
	tickets     agent.TicketRegistry
	cache       agent.CacheGateway
	retriever   agent.RetrievalGateway
	notifier    service.Notifier
	checks      map[string]handler.Pinger
	closers     []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting API server", zap.String("store_backend", cfg.StoreBackend))

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-agent", cfg.TracingEndpoint, cfg.TracingSampleRatio)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	generator, err := newLLM(cfg)
	if err != nil {
		return err
	}

	var embedder llm.Embedder = memstore.HashEmbedder{}
	if cfg.OpenAIAPIKey != "" {
		embedder, err = llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingAPIBase)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set, using hashed bag-of-words embeddings")
	}

	var be *backend
	switch cfg.StoreBackend {
	case config.BackendMemory:
		be = memoryBackend(cfg, embedder)
	case config.BackendPostgres:
		be, err = postgresBackend(ctx, cfg, embedder, log)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	defer be.close()

	engine := agent.New(agent.Deps{
		Checkpoints: be.checkpoints,
		History:     be.history,
		Tickets:     be.tickets,
		Cache:       be.cache,
		Retriever:   be.retriever,
		Generator:   generator,
		Logger:      log,
	}, agent.Config{
		GenerationModel:       cfg.GenerationModel,
		UtilityModel:          cfg.UtilityModel,
		CacheTTL:              cfg.CacheTTL,
		TopK:                  cfg.RetrievalTopK,
		MaxChatHistory:        cfg.MaxChatHistory,
		GenerationMaxAttempts: cfg.GenerationMaxAttempts,
		RunLease:              cfg.RunLease,
	})

	chatSvc := service.NewChatService(engine, be.history, log)
	resolutionSvc := service.NewResolutionService(engine, be.tickets, be.notifier, log)

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handler.RouterConfig{
			Chat:              chatSvc,
			Resolution:        resolutionSvc,
			Checks:            be.checks,
			Logger:            log,
			JWTSecret:         cfg.JWTSecret,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
			AllowedOrigins:    cfg.CORSAllowedOrigins,
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		// Runs are detached from requests; let them checkpoint.
		if err := chatSvc.Wait(shutdownCtx); err != nil {
			log.Warn("in-flight runs did not finish", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

func newLLM(cfg *config.Config) (llm.Client, error) {
	client, err := llm.New(llm.Options{
		Provider:     llm.Provider(cfg.DefaultLLM),
		OpenAIKey:    cfg.OpenAIAPIKey,
		AnthropicKey: cfg.AnthropicAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

func memoryBackend(cfg *config.Config, embedder llm.Embedder) *backend {
	return &backend{
		checkpoints: memstore.NewCheckpoints(),
		history:     memstore.NewHistory(),
		tickets:     memstore.NewTickets(),
		cache:       memstore.NewCache(embedder, cfg.CacheSimilarityThreshold),
		retriever:   memstore.NewRetriever(embedder),
		checks:      map[string]handler.Pinger{},
	}
}

func postgresBackend(ctx context.Context, cfg *config.Config, embedder llm.Embedder, log *logger.Logger) (*backend, error) {
	be := &backend{}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	be.closers = append(be.closers, db.Close)

	nc, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		be.close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	be.closers = append(be.closers, nc.Close)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		be.close()
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	be.closers = append(be.closers, func() { _ = rdb.Close() })

	be.checkpoints = store.NewCheckpointStore(db.Gorm)
	be.tickets = store.NewTicketRegistry(db.Gorm)
	be.history = natsclient.NewHistoryStore(nc, log)
	be.notifier = natsclient.NewNotifier(nc)
	be.cache = cache.NewSemantic(rdb, embedder, cache.Config{Threshold: cfg.CacheSimilarityThreshold}, log)
	be.retriever = retrieval.NewPGVector(db.SQL, embedder, "")
	be.checks = map[string]handler.Pinger{
		"postgres": db,
		"nats":     nc,
		"redis":    pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}

	return be, nil
}
