package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/internal/app"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/config"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/ingest"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/server"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/session"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/util"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/ai"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/queue"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/storage"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, "analyst")
	if err := util.SetTrustedProxies(cfg.TrustedProxyCIDRs); err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	usageStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("failed to init usage store: %v", err)
	}

	var gemini *ai.GeminiClient
	if cfg.GenerationProvider == "gemini" || cfg.IngestMode == "vision" {
		gemini, err = ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			log.Fatalf("failed to init gemini client: %v", err)
		}
	}
	generator, err := buildGenerator(cfg, gemini)
	if err != nil {
		log.Fatalf("failed to init generator: %v", err)
	}
	engine, err := ai.NewAnswerEngine(ai.AnswerEngineConfig{
		Generator:    generator,
		SystemPrompt: cfg.SystemPrompt,
		Backoff:      cfg.Backoff(),
		Observer: func(attempt int, wait time.Duration) {
			logger.Info("provider rate limited, backing off", "attempt", attempt, "wait", wait)
		},
	})
	if err != nil {
		log.Fatalf("failed to init answer engine: %v", err)
	}

	tokens, err := session.NewTokenStore(cfg.SessionSecret, sessionTTL)
	if err != nil {
		log.Fatalf("failed to init session tokens: %v", err)
	}
	sessions := session.NewManager(tokens)

	spool, err := storage.NewSpool(cfg.SpoolDir)
	if err != nil {
		log.Fatalf("failed to init upload spool: %v", err)
	}
	var archive storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		archive, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init document archive: %v", err)
		}
	}

	var uploader ingest.FileUploader
	if gemini != nil {
		uploader = gemini
	}
	worker := ingest.NewWorker(ingest.WorkerConfig{
		Sessions: sessions,
		Spool:    spool,
		Archive:  archive,
		Parser:   ingest.NewParser(cfg.MaxDocumentChars),
		Uploader: uploader,
		Logger:   logger,
	})

	ctx := context.Background()
	dispatcher, err := buildDispatcher(ctx, cfg, worker)
	if err != nil {
		log.Fatalf("failed to init ingest dispatcher: %v", err)
	}
	sessions.StartJanitor(ctx, 10*time.Minute)

	appCore, err := app.New(app.Config{
		Store:             usageStore,
		Sessions:          sessions,
		Engine:            engine,
		Dispatcher:        dispatcher,
		Spool:             spool,
		FreeLimit:         cfg.FreeLimit,
		IngestMode:        domain.IngestMode(cfg.IngestMode),
		AllowedExtensions: cfg.AllowedExtensions,
		Logger:            logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:               appCore,
		Sessions:          sessions,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		LoginRateLimit:    cfg.LoginRateLimit,
		QuestionRateLimit: cfg.QuestionRateLimit,
		MaxUploadBytes:    cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("analyst server listening", "addr", addr, "storeDriver", cfg.StoreDriver, "ingestMode", cfg.IngestMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildStore(cfg config.FileConfig) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return store.NewGormStore(cfg.DatabaseURL)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewFileStore(cfg.UsageFilePath)
	}
}

func buildGenerator(cfg config.FileConfig, gemini *ai.GeminiClient) (ai.TextGenerator, error) {
	switch cfg.GenerationProvider {
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), cfg.GenerationModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	default:
		return ai.NewGeminiGenerator(gemini, cfg.GenerationModel), nil
	}
}

func buildDispatcher(ctx context.Context, cfg config.FileConfig, worker *ingest.Worker) (ingest.Dispatcher, error) {
	if cfg.RedisAddr == "" {
		return ingest.NewInlineDispatcher(worker), nil
	}
	jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	jobQueue.Start(ctx, cfg.QueueConcurrency, worker.Handle)
	return ingest.NewQueueDispatcher(jobQueue), nil
}
