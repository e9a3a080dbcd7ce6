package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskcal/internal/api"
	"taskcal/internal/config"
	"taskcal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ping, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	broker := api.NewBroker()
	publishers := storage.Publishers{}
	var deduper api.Deduper
	var rc *redis.Client
	if cfg.Redis.ConnectionString != "" {
		rc = redis.NewClient(storage.ParseRedisOptions(cfg.Redis.ConnectionString))
		defer rc.Close()
		store = storage.NewCache(store, rc, cfg.Redis.CacheTTL.Std())
		deduper = api.NewRedisDeduper(rc, cfg.Redis.DedupeTTL.Std())
		// Every instance relays the shared channel to its own SSE clients.
		publishers = append(publishers, storage.NewRedisPublisher(rc, cfg.Redis.EventsChannel))
		go storage.SubscribeEvents(ctx, logger, rc, cfg.Redis.EventsChannel, broker.Notify)

		storePing := ping
		ping = func(ctx context.Context) error {
			if err := rc.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return storePing(ctx)
		}
	} else {
		log.Warn("no redis configured; caching and idempotency disabled, events stay in-process")
		publishers = append(publishers, broker)
	}
	if cfg.Storage.EventsQueue != "" {
		qp, err := storage.NewQueuePublisher(cfg.Storage.ConnectionString, cfg.Storage.EventsQueue)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		publishers = append(publishers, qp)
	}

	dispatcher := api.NewDispatcher(publishers, logger, api.DispatcherConfig{
		Workers:        cfg.Events.Workers,
		Buffer:         cfg.Events.Buffer,
		Timeout:        cfg.Events.Timeout.Std(),
		HandoffTimeout: cfg.Events.HandoffTimeout.Std(),
	})
	defer dispatcher.Close()

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(middleware.Decompress())
	e.Use(echoprometheus.NewMiddleware("taskcal"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, &api.Server{
		Store:   store,
		Auth:    auth,
		Deduper: deduper,
		Events:  dispatcher,
		Broker:  broker,
		Logger:  logger,
		Ping:    ping,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown")
		}
	}()

	log.Infof("taskcal api listening on %s, backend: %s", cfg.ListenAddr, cfg.Storage.Backend)
	if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Storage) (storage.Store, func(context.Context) error, func(), error) {
	noop := func() {}
	healthy := func(context.Context) error { return nil }
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory storage; tasks are lost on restart")
		return storage.NewMemoryStore(), healthy, noop, nil
	case config.BackendSQLite:
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, noop, err
		}
		return s, s.Ping, func() { _ = s.Close() }, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, noop, err
		}
		s := storage.NewPostgresStore(pool)
		if err := s.EnsureTable(ctx); err != nil {
			pool.Close()
			return nil, nil, noop, err
		}
		return s, pool.Ping, pool.Close, nil
	case config.BackendTables:
		s, err := storage.NewTableStore(cfg.ConnectionString, cfg.TasksTable)
		if err != nil {
			return nil, nil, noop, err
		}
		return s, healthy, noop, nil
	}
	return nil, nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newAuth(cfg config.Auth) (*api.Auth, error) {
	if strings.EqualFold(cfg.LocalMode, "hs256") {
		log.Warn("local HS256 auth enabled; do not use in production")
		auth := api.NewLocalAuth([]byte(cfg.LocalSecret))
		auth.Audience = cfg.Audience
		return auth, nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Audience, "https://"+cfg.Domain+"/", cfg.JWKSCacheTTL.Std()), nil
}
