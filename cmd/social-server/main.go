package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"

	"uk.co.dudmesh.hive/internal/boot"
	"uk.co.dudmesh.hive/internal/handlers"
	"uk.co.dudmesh.hive/internal/service/actor"
	"uk.co.dudmesh.hive/internal/service/delivery"
	"uk.co.dudmesh.hive/internal/service/federation"
	"uk.co.dudmesh.hive/internal/service/user"
	"uk.co.dudmesh.hive/internal/store"
	"uk.co.dudmesh.hive/pkg/activitypub"
	"uk.co.dudmesh.hive/pkg/transport"
	"uk.co.dudmesh.hive/pkg/webfinger"
)

const (
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

type config struct {
	boot.Config
	db              *store.Store
	closers         []io.Closer
	userService     handlers.UserService
	actorBuilder    handlers.ActorBuilder
	resolver        handlers.Resolver
	deliveryService handlers.Delivery
}

func (c *config) Close() {
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			log.Errorf("closing: %+v", err)
		}
	}
}

// newActorFetcher puts the configured cache in front of the fetcher.
func newActorFetcher(ctx context.Context, bootConfig *boot.Config, client *transport.Client) (activitypub.ActorFetcher, io.Closer, error) {
	fetcher := activitypub.NewFetcher(client)

	switch bootConfig.Cache.Driver {
	case CacheSQLite:
		cache, err := store.NewActorCache(store.ActorCacheDSN, bootConfig.Cache.TTL)
		if err != nil {
			return nil, nil, err
		}
		go cache.Run(ctx, bootConfig.Cache.TTL)
		return activitypub.NewCachingFetcher(fetcher, cache), cache, nil

	case CacheRedis:
		cache, err := store.NewRedisActorCache(bootConfig.Cache.RedisURL, bootConfig.Cache.TTL)
		if err != nil {
			return nil, nil, err
		}
		return activitypub.NewCachingFetcher(fetcher, cache), cache, nil

	case CacheNone:
		return fetcher, nil, nil
	}

	return nil, nil, errors.New("unknown actor cache: " + bootConfig.Cache.Driver)
}

func newConfig(ctx context.Context, bootConfig *boot.Config) *config {
	db, err := store.Open(bootConfig)
	if err != nil {
		log.Fatalf("opening store: %+v", err)
	}

	client := transport.New(bootConfig.Federation.Timeout, bootConfig.Federation.UserAgent)

	fetcher, cache, err := newActorFetcher(ctx, bootConfig, client)
	if err != nil {
		log.Fatalf("creating actor cache: %+v", err)
	}

	closers := []io.Closer{db}
	if cache != nil {
		closers = append(closers, cache)
	}

	builder := actor.NewBuilder(db)

	return &config{
		Config:          *bootConfig,
		db:              db,
		closers:         closers,
		userService:     user.New(bootConfig, db),
		actorBuilder:    builder,
		resolver:        federation.New(bootConfig, db, builder, webfinger.NewResolver(client), fetcher),
		deliveryService: delivery.New(db, client),
	}
}

func main() {
	bootConfig, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := newConfig(ctx, bootConfig)
	defer config.Close()

	if config.IsDevelopment() {
		log.SetLevel(log.DEBUG)
	}

	server := echo.New()
	server.Use(middleware.BodyLimit("10M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("hive"))
	server.Use(middleware.Recover())

	server.Logger.SetLevel(log.INFO)

	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization}
	server.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     config.AllowedOrigins(),
		AllowHeaders:     headers,
		AllowCredentials: true,
	}))

	server.GET("/.well-known/webfinger", handlers.WebFinger(config, config.userService))
	server.GET("/users/:name", handlers.Actor(config.userService, config.actorBuilder))
	server.GET("/users/:name/followers", handlers.Followers(config.userService, config.db))
	server.POST("/users/:name/inbox", handlers.Inbox(config.userService, config.resolver, config.db, config.deliveryService))
	server.GET("/api/v1/resolve", handlers.Resolve(config.resolver))
	server.POST("/local/user", handlers.CreateUser(config.userService))
	server.POST("/local/user/:name/keys", handlers.RotateKeys(config.userService))
	server.GET("/healthz", handlers.Health(config.db))

	go func() {
		metrics := echo.New()
		metrics.HideBanner = true
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(":" + config.Server.MetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(":" + config.Server.Port); err != nil && err != http.ErrServerClosed {
			server.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Logger.Fatal(err)
	}
}
