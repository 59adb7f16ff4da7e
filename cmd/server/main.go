package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avvvet/council-intake/internal/catalog"
	"github.com/avvvet/council-intake/internal/config"
	"github.com/avvvet/council-intake/internal/dialogue"
	"github.com/avvvet/council-intake/internal/handlers"
	"github.com/avvvet/council-intake/internal/llm"
	"github.com/avvvet/council-intake/internal/memory"
	"github.com/avvvet/council-intake/internal/notify"
	"github.com/avvvet/council-intake/internal/records"
	"github.com/avvvet/council-intake/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("❌ Failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("❌ Council intake service failed", "error", err)
		os.Exit(1)
	}
	logger.Info("👋 Council intake service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("🚀 Starting council intake service",
		"service", cfg.ServiceName,
		"nats_url", cfg.NatsURL,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel)

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load service catalog: %w", err)
	}
	logger.Info("📋 Service catalog loaded", "services", cat.Len(), "file", cfg.CatalogFile)

	logger.Info("🔌 Connecting to Redis...", "url", cfg.RedisURL)
	store, err := memory.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return err
	}
	defer store.Close()
	sink := records.NewRedisSink(store.Client())
	logger.Info("✅ Redis connected", "session_ttl", cfg.SessionTTL)

	conn, err := transport.Connect(cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	notifier := notify.NewNATSNotifier(conn, cfg.NatsNotifySubject)

	model, err := llm.NewModel(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM: %w", err)
	}
	assistant := llm.NewAssistant(model, logger)
	logger.Info("🤖 LLM initialized", "provider", cfg.LLMProvider)

	handoff := dialogue.NewHandoff(sink, notifier, logger)
	orchestrator := dialogue.NewOrchestrator(cat, assistant, handoff, dialogue.Config{
		CallTimeout:      cfg.CollaboratorTimeout,
		MaxFieldAttempts: cfg.MaxFieldAttempts,
	}, logger)
	turnHandler := handlers.NewTurnHandler(store, orchestrator, logger)

	natsTransport := transport.NewNATSTransport(conn, cfg, turnHandler, logger)
	if err := natsTransport.Start(); err != nil {
		return err
	}

	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	httpTransport := transport.NewHTTPTransport(turnHandler, store, cat, cfg.TurnTimeout, logger,
		transport.HealthCheck{Name: "redis", Check: store.Ping},
		transport.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if status := conn.Status(); status != nats.CONNECTED {
				return fmt.Errorf("connection %s", status)
			}
			return nil
		}},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpTransport.Run(gctx, cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("🔄 Shutting down gracefully...")
		return natsTransport.Close()
	})

	logger.Info("✅ Council intake service is running",
		"turn_subject", cfg.NatsTurnSubject,
		"queue_group", cfg.NatsQueueGroup,
		"http_addr", cfg.HTTPAddr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
