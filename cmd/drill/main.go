package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/drill/internal/anthropic"
	"github.com/MikeSquared-Agency/drill/internal/api"
	"github.com/MikeSquared-Agency/drill/internal/config"
	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/hermes"
	"github.com/MikeSquared-Agency/drill/internal/processor"
	"github.com/MikeSquared-Agency/drill/internal/provision"
	"github.com/MikeSquared-Agency/drill/internal/session"
	"github.com/MikeSquared-Agency/drill/internal/slack"
	"github.com/MikeSquared-Agency/drill/internal/store"
	"github.com/MikeSquared-Agency/drill/internal/store/rabbitmq"
	"github.com/MikeSquared-Agency/drill/internal/store/redisstore"
	"github.com/MikeSquared-Agency/drill/internal/store/sqlitestore"
	"github.com/MikeSquared-Agency/drill/internal/transliterate"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("drill starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session store: Postgres when configured, embedded sqlite otherwise
	var sessions session.Store
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		sessions = db
		slog.Info("database connected")
	} else {
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			slog.Error("failed to open sqlite store", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		sessions = db
		slog.Warn("DATABASE_URL not set, using embedded sqlite store", "path", cfg.SQLitePath)
	}

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Warn("ANTHROPIC_API_KEY not set, evaluations will fail and transliteration is a passthrough")
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicURL)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	pipeline := evaluation.New(llm, evaluation.Config{
		Bilingual: cfg.Bilingual,
		Model:     cfg.AnthropicModel,
	}, slog.Default())

	// Room provisioning
	prov := provision.New(provision.Config{
		APIKey:     cfg.LiveKitAPIKey,
		APISecret:  cfg.LiveKitAPISecret,
		URL:        cfg.LiveKitURL,
		RoomPrefix: cfg.RoomPrefix,
		TTL:        cfg.TokenTTL,
	}, slog.Default())
	if !prov.Configured() {
		slog.Warn("room transport not configured, sessions cannot start")
	}

	engine := session.NewEngine(sessions, prov, pipeline, session.Config{
		ConnectTimeout: cfg.ConnectTimeout,
	}, slog.Default())
	defer engine.Shutdown()

	// NATS/Hermes (optional, drives sessions from transport events)
	var publisher processor.Publisher
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		c, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		hermesClient = c
		publisher = c
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, transport events arrive over HTTP only")
	}

	// Slack poster (optional, supervisors get session outcomes)
	var poster processor.OutcomePoster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	proc := processor.New(engine, publisher, poster, slog.Default())
	engine.SetNotifier(proc)
	if hermesClient != nil {
		if err := proc.Subscribe(hermesClient); err != nil {
			slog.Error("failed to subscribe to transport events", "error", err)
			os.Exit(1)
		}
	}

	// Transliteration: redis cache when configured, in-process otherwise
	var cache transliterate.Cache
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, using in-process transliteration cache", "error", err)
		} else {
			defer rs.Close()
			cache = rs
			slog.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}
	var romanModel transliterate.Completer
	if cfg.AnthropicAPIKey != "" {
		c := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicURL)
		c.SetTemperature(0.1)
		romanModel = c
	}
	romanizer := transliterate.New(romanModel, cache, slog.Default())

	// Async evaluation retries (optional)
	var retryQueue api.RetryQueue
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		retryQueue = pub

		consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, engine, slog.Default())
		if err != nil {
			slog.Error("failed to start retry consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("retry consumer stopped", "error", err)
			}
		}()
		slog.Info("rabbitmq connected", "queue", cfg.RabbitQueue, "concurrency", cfg.WorkerConcurrency)
	}

	// HTTP API
	deps := api.Deps{
		Engine:     engine,
		Provision:  prov,
		Romanizer:  romanizer,
		RetryQueue: retryQueue,
		Logger:     slog.Default(),
	}
	if hermesClient != nil {
		deps.Bus = hermesClient
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, deps)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if hermesClient != nil {
		if err := hermesClient.Publish("swarm.agent.drill.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("drill ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	cancel()
	slog.Info("drill stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
