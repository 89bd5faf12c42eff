package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bancho-server/internal/auth"
	"github.com/bancho-server/internal/bancho"
	"github.com/bancho-server/internal/beatmap"
	"github.com/bancho-server/internal/cache"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/events"
	"github.com/bancho-server/internal/handler"
	"github.com/bancho-server/internal/kafka"
	"github.com/bancho-server/internal/memstore"
	"github.com/bancho-server/internal/postgres"
	"github.com/bancho-server/internal/redis"
	"github.com/bancho-server/internal/replay"
	"github.com/bancho-server/internal/scoring"
	"github.com/bancho-server/internal/service"
	"github.com/bancho-server/internal/session"
	"github.com/bancho-server/internal/websocket"
	"github.com/bancho-server/internal/worker"
	"github.com/spf13/pflag"
)

// store is everything the server needs from the persistence backend
type store interface {
	auth.UserStore
	service.EntryStore
	service.ScoreStore
	service.BoardStore
	CreateUser(ctx context.Context, user *domain.User) error
	ListEntries(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// positionIndex is the PP ordering used for ranks and rebuilt by the sync worker
type positionIndex interface {
	service.PositionIndex
	worker.IndexRebuilder
}

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "Path to configuration file")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	users := pflag.StringSlice("user", nil, "Create a user on startup if missing (name:password, repeatable)")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	var (
		db    store
		ready func(ctx context.Context) error
	)
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage, nothing survives a restart")
		db = memstore.New()
	case "postgres":
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		if err := repo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		db, ready = repo, repo.Ping
	default:
		logger.Error("unknown storage driver", "driver", cfg.Storage.Driver)
		os.Exit(1)
	}

	if err := seedUsers(ctx, db, *users, logger); err != nil {
		logger.Error("failed to create users", "error", err)
		os.Exit(1)
	}

	// Position index and TTL cache
	var (
		index positionIndex = memstore.NewIndex()
		ttl   cache.Cache
		mem   *cache.Memory
	)
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		index = redis.NewPositionIndex(client, logger)
		if cfg.Cache.Driver == "redis" {
			ttl = redis.NewCache(client, "bancho:")
		}
	}
	if ttl == nil {
		mem = cache.NewMemory()
		ttl = mem
	}

	// Replays
	var replays interface {
		service.ReplayWriter
		handler.ReplayReader
	}
	switch cfg.Replays.Driver {
	case "s3":
		s3, err := replay.NewS3Store(cfg.Replays.Region, cfg.Replays.Bucket, cfg.Replays.Prefix)
		if err != nil {
			logger.Error("failed to create S3 replay store", "error", err)
			os.Exit(1)
		}
		replays = s3
	default:
		fs, err := replay.NewFSStore(cfg.Replays.Dir)
		if err != nil {
			logger.Error("failed to create replay directory", "error", err)
			os.Exit(1)
		}
		replays = fs
	}

	hub := websocket.NewHub(logger)
	go hub.Run()

	sessions := session.NewRegistry(logger)
	bus := events.NewBus(logger)
	authSvc := auth.NewService(db)
	ranking := service.NewRankingService(db, db, index, logger)
	mirror := beatmap.NewMirror(cfg.Beatmaps.MirrorURL, cfg.Beatmaps.Timeout, ttl, cfg.Beatmaps.CacheTTL, logger)

	bancho.NewHandlers(sessions, authSvc, ranking, bus, hub, &cfg.Bancho, logger).Register(bus)

	// Score feed: the local hub always, Kafka when enabled
	feeds := service.Feeds{hub}
	var (
		producer *kafka.Producer
		consumer *kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka score feed", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		producer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without Kafka", "error", err)
		} else {
			feeds = append(feeds, producer)
		}
		consumer, err = kafka.NewConsumer(&cfg.Kafka, cfg.Bancho.NodeID, hub, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := consumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			consumer = nil
		}
	}

	submissions := service.NewSubmissionService(service.SubmissionDeps{
		Decoder:  scoring.PlainDecoder{},
		Auth:     authSvc,
		Sessions: sessions,
		Ranking:  ranking,
		Scores:   db,
		Beatmaps: mirror,
		Scorer:   scoring.StarScorer{},
		Replays:  replays,
		Events:   bus,
		Feed:     feeds,
	}, &cfg.Bancho, logger)

	// Background workers
	syncWorker := worker.NewSyncWorker(db, index, &cfg.Sync, logger)
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	} else if err := syncWorker.RunOnce(ctx); err != nil {
		logger.Warn("failed to rebuild position index", "error", err)
	}

	var sweeper worker.Sweeper
	if mem != nil {
		sweeper = mem
	}
	reaper := worker.NewReaper(sessions, sweeper, cfg.Bancho.IdleTimeout, cfg.Bancho.ReapInterval, logger)
	reaper.Start(ctx)

	httpHandler := handler.NewHandler(handler.Deps{
		Sessions:    sessions,
		Events:      bus,
		Submissions: submissions,
		Scoreboard:  service.NewScoreboardService(authSvc, mirror, db, ttl, &cfg.Ranking, logger),
		Ranking:     ranking,
		Auth:        authSvc,
		Scores:      db,
		Replays:     replays,
		Hub:         hub,
		Ready:       ready,
	}, cfg, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "node_id", cfg.Bancho.NodeID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	reaper.Stop()
	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}

	hub.Stop()

	logger.Info("server stopped", "bus", bus.Stats())
}

// seedUsers creates the name:password accounts that do not exist yet
func seedUsers(ctx context.Context, db store, accounts []string, logger *slog.Logger) error {
	for _, account := range accounts {
		name, password, ok := strings.Cut(account, ":")
		if !ok || name == "" || password == "" {
			return fmt.Errorf("invalid user %q, want name:password", account)
		}
		if _, err := db.GetUserBySafeName(ctx, auth.SafeName(name)); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("looking up %q: %w", name, err)
		}

		hash, err := auth.HashPassword(auth.MD5Hex(password))
		if err != nil {
			return fmt.Errorf("hashing password of %q: %w", name, err)
		}
		user := &domain.User{Username: name, PasswordHash: hash}
		if err := db.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("creating %q: %w", name, err)
		}
		logger.Info("user created", "user_id", user.ID, "username", name)
	}
	return nil
}
