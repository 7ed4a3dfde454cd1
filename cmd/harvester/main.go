// Package main wires together the harvester service binary.
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

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/feedforge/harvester/internal/analyze"
	"github.com/feedforge/harvester/internal/api"
	"github.com/feedforge/harvester/internal/clock/system"
	"github.com/feedforge/harvester/internal/config"
	browserEngine "github.com/feedforge/harvester/internal/engine/chromedp"
	"github.com/feedforge/harvester/internal/engine/scripted"
	"github.com/feedforge/harvester/internal/generate"
	"github.com/feedforge/harvester/internal/harvest"
	"github.com/feedforge/harvester/internal/id/uuid"
	"github.com/feedforge/harvester/internal/logging"
	"github.com/feedforge/harvester/internal/metrics"
	"github.com/feedforge/harvester/internal/otp"
	memoryPublisher "github.com/feedforge/harvester/internal/publisher/memory"
	pubsubPublisher "github.com/feedforge/harvester/internal/publisher/pubsub"
	"github.com/feedforge/harvester/internal/scrape"
	"github.com/feedforge/harvester/internal/sessions"
	"github.com/feedforge/harvester/internal/status"
	"github.com/feedforge/harvester/internal/storage/gcs"
	"github.com/feedforge/harvester/internal/storage/local"
	memoryStorage "github.com/feedforge/harvester/internal/storage/memory"
	"github.com/feedforge/harvester/internal/storage/postgres"
)

// registryStore is what both storage backends provide.
type registryStore interface {
	harvest.SessionStore
	harvest.HistoryStore
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	var store registryStore
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.NewStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeSec) * time.Second,
		}, clock)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
		logger.Info("using postgres registry")
	} else {
		store = memoryStorage.NewStore(clock)
		logger.Info("using in-memory registry")
	}

	var blobs harvest.BlobStore
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer func() {
			_ = client.Close()
		}()
		blobs, err = gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
	case "local":
		localStore, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
		blobs = localStore
	default:
		blobs = memoryStorage.NewBlobStore()
	}

	var publisher harvest.Publisher
	if cfg.PubSub.ProjectID != "" {
		client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		pub, err := pubsubPublisher.New(client)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() {
			_ = pub.Close()
		}()
		publisher = pub
	} else {
		publisher = memoryPublisher.New()
	}

	var engine harvest.Engine
	if cfg.Engine.Mode == "browser" {
		browser, err := browserEngine.New(browserEngine.Config{
			LoginURL:          cfg.Engine.LoginURL,
			FeedURL:           cfg.Engine.FeedURL,
			Username:          cfg.Engine.Username,
			Password:          cfg.Engine.Password,
			UserAgent:         cfg.Engine.UserAgent,
			NavigationTimeout: time.Duration(cfg.Engine.NavTimeoutSeconds) * time.Second,
			ScrollRounds:      cfg.Engine.ScrollRounds,
			MaxPosts:          cfg.Engine.MaxPosts,
		}, logger.Named("engine"))
		if err != nil {
			logger.Fatal("browser engine init failed", zap.Error(err))
		}
		defer browser.Close()
		engine = browser
	} else {
		engine = scripted.NewDemo()
		logger.Info("running with the demo engine")
	}

	tracker := status.NewTracker(cfg.Status.LogCapacity)
	otpHandler := otp.NewHandler(clock)
	controller := scrape.NewController(
		engine, store, tracker, otpHandler, publisher, clock,
		scrape.Config{
			PublishTopic:  cfg.PubSub.TopicName,
			CommitTimeout: cfg.CommitTimeout(),
			BaseContext:   ctx,
		},
		logger.Named("scrape"),
	)

	var generator harvest.Generator
	if cfg.Generator.APIKey != "" {
		gemini, err := generate.NewGemini(generate.GeminiConfig{
			APIKey:  cfg.Generator.APIKey,
			Model:   cfg.Generator.Model,
			BaseURL: cfg.Generator.BaseURL,
		})
		if err != nil {
			logger.Fatal("gemini init failed", zap.Error(err))
		}
		generator = gemini
	} else {
		generator = generate.NewStatic()
		logger.Info("running with the offline generator")
	}

	catalog := sessions.NewCatalog(store)
	genService := generate.NewService(
		catalog, store, blobs, generator, idGen, clock, logger.Named("generate"),
	)

	var prober *analyze.Prober
	if cfg.Analyze.BaseURL != "" {
		prober, err = analyze.NewProber(analyze.Config{
			BaseURL:   cfg.Analyze.BaseURL,
			UserAgent: cfg.Analyze.UserAgent,
			Timeout:   time.Duration(cfg.Analyze.TimeoutSeconds) * time.Second,
		}, clock, logger.Named("analyze"))
		if err != nil {
			logger.Fatal("prober init failed", zap.Error(err))
		}
	}

	apiServer := api.NewServer(
		controller, catalog, store, store, genService, prober, cfg, logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
