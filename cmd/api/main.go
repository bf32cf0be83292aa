package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/api"
	"github.com/roomly/backend/internal/auth"
	"github.com/roomly/backend/internal/config"
	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/fcm"
	"github.com/roomly/backend/internal/i18n"
	"github.com/roomly/backend/internal/metrics"
	"github.com/roomly/backend/internal/presence"
	"github.com/roomly/backend/internal/relay"
	"github.com/roomly/backend/internal/repository"
	"github.com/roomly/backend/pkg/logger"
)

const version = "1.0.0"

// relayStore is everything the domain services need from the record store
type relayStore interface {
	domain.ConnectionStore
	domain.NotificationStore
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{Env: cfg.Server.Env, Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Roomly relay",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Database.Driver),
		zap.String("broker", cfg.Relay.Broker),
	)

	ctx := context.Background()
	checks := map[string]api.Check{}

	// Record store
	var store relayStore
	switch cfg.Database.Driver {
	case "postgres":
		db, err := initDatabase(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		pg := repository.NewPostgresRepository(db)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("Failed to apply schema", zap.Error(err))
		}
		checks["database"] = pg.Ping
		store = pg
		log.Info("Connected to database")
	case "memory":
		mem := repository.NewMemoryRepository()
		if cfg.Database.SeedFile != "" {
			if err := mem.LoadSeedFile(cfg.Database.SeedFile); err != nil {
				log.Fatal("Failed to load seed file", zap.Error(err))
			}
		}
		store = mem
		log.Warn("Using in-memory store, data is lost on restart")
	}

	// Redis is shared by the broker and presence when either asks for it
	var rdb *redis.Client
	if cfg.Relay.Broker == "redis" || cfg.Relay.Presence == "redis" {
		rdb, err = initRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("Connected to redis")
	}

	var broker relay.Broker
	switch cfg.Relay.Broker {
	case "redis":
		broker = relay.NewRedisBroker(rdb, cfg.Relay.RedisChannel, log)
	case "nats":
		nc, err := relay.DialNATS(cfg.NATS.URL, "roomly-relay")
		if err != nil {
			log.Fatal("Failed to connect to nats", zap.Error(err))
		}
		checks["nats"] = func(context.Context) error {
			if nc.Status() != nats.CONNECTED {
				return fmt.Errorf("nats %s", nc.Status())
			}
			return nil
		}
		broker = relay.NewNATSBroker(nc, cfg.NATS.Subject, log)
	default:
		broker = relay.NewLocalBroker()
	}

	var tracker presence.Tracker = presence.NewLocal()
	if cfg.Relay.Presence == "redis" {
		tracker = presence.NewRedis(rdb, cfg.Relay.PresenceTTL)
	}

	// Firebase backs both offline push and ID token verification
	var app *firebase.App
	if cfg.FCM.Enabled || cfg.Auth.Provider == "firebase" {
		app, err = fcm.NewApp(ctx, log, cfg.FCM.CredentialsFile)
		if err != nil && cfg.Auth.Provider == "firebase" {
			log.Fatal("Failed to initialize Firebase", zap.Error(err))
		}
	}

	var pushSender domain.PushSender
	if cfg.FCM.Enabled && app != nil {
		client, err := fcm.NewClient(ctx, app, log)
		if err != nil {
			log.Warn("Failed to initialize Firebase client - push notifications will be disabled", zap.Error(err))
		} else {
			pushSender = client
			log.Info("Firebase client initialized")
		}
	}

	verifier, err := initVerifier(ctx, cfg.Auth, app)
	if err != nil {
		log.Fatal("Failed to initialize token verifier", zap.Error(err))
	}
	if !cfg.Auth.Required {
		log.Warn("AUTH_REQUIRED is off - anonymous sockets may register as any user")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Relay and services
	catalog := i18n.New(cfg.Relay.Locale)
	hub := relay.NewHub(broker, tracker, m, log, relay.Options{
		SendBuffer:      cfg.Relay.SendBuffer,
		EventsPerSecond: cfg.Relay.EventsPerSecond,
		EventBurst:      cfg.Relay.EventBurst,
	})
	opts := domain.Options{
		Timeout:        cfg.Relay.StoreTimeout,
		RejectionLimit: cfg.Relay.RejectionLimit,
		Catalog:        catalog,
	}
	notificationService := domain.NewNotificationService(store, hub, hub, pushSender, log, opts)
	connectionService := domain.NewConnectionService(store, notificationService, hub, log, opts)
	chatService := domain.NewChatService(store, hub, log, opts)
	dispatcher := relay.NewDispatcher(hub, connectionService, chatService, catalog, log)

	hubCtx, hubCancel := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(hubCtx); err != nil {
			if hubCtx.Err() == nil {
				log.Fatal("Relay hub failed", zap.Error(err))
			}
			log.Error("Relay broker close error", zap.Error(err))
		}
	}()

	if pushSender != nil {
		notificationService.StartTokenSweeper(hubCtx, 24*time.Hour, cfg.FCM.TokenMaxAge)
	}

	router := api.NewRouter(
		api.NewConnectionHandler(connectionService, catalog, log),
		api.NewChatHandler(chatService, catalog, log),
		api.NewNotificationHandler(notificationService, catalog, log),
		api.NewSocketHandler(dispatcher, verifier, cfg.Auth.Required, cfg.Server.AllowedOrigins, log),
		api.NewHealthHandler(version, checks),
		verifier,
		m,
		cfg.Server.AllowedOrigins,
		log,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	// hijacked websocket connections are not covered by Shutdown
	hubCancel()
	<-hubDone
	notificationService.Wait()

	log.Info("Server stopped")
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func initRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func initVerifier(ctx context.Context, cfg config.AuthConfig, app *firebase.App) (auth.Verifier, error) {
	switch cfg.Provider {
	case "firebase":
		return auth.NewFirebaseVerifier(ctx, app)
	case "google":
		v := auth.NewGoogleVerifier(cfg.GoogleClientIDs)
		if !v.IsConfigured() {
			return nil, fmt.Errorf("GOOGLE_CLIENT_ID must be set for the google provider")
		}
		return v, nil
	default:
		return auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessExpiry), nil
	}
}
