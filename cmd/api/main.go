package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"assetrelay/internal/asset"
	"assetrelay/internal/config"
	"assetrelay/internal/httpx"
	"assetrelay/internal/platform/roblox"
	"assetrelay/internal/store"

	"github.com/go-redis/redis/v7"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.SharedSecret == "" {
		log.Println("FIDGET_DOT is not set; every /assets request will be rejected")
	}

	bundleStore, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("cache store: %v", err)
	}
	defer closeStore()

	client := roblox.NewClient(roblox.Options{
		CatalogURL:   cfg.CatalogBaseURL,
		InventoryURL: cfg.InventoryBaseURL,
		UserAgent:    cfg.UpstreamUserAgent,
		Timeout:      cfg.UpstreamTimeout,
		RPS:          cfg.UpstreamRPS,
	})

	assetService := asset.NewService(bundleStore, client, asset.Config{
		FreshFor:          cfg.CacheTTL,
		MaxPages:          cfg.MaxInventoryPages,
		FilterPassCreator: cfg.FilterPassCreator,
	})
	assetHandler := asset.NewHTTPHandler(assetService)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newRouter(cfg, assetHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s (cache backend: %s)", httpServer.Addr, cfg.CacheBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func newRouter(cfg config.Config, assetHandler *asset.HTTPHandler) http.Handler {
	router := http.NewServeMux()

	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		httpx.Text(w, http.StatusOK, "pong")
	})
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.Text(w, http.StatusOK, "ok")
	})
	router.HandleFunc("/readyz", assetHandler.Ready)

	// Requests without the secret are refused before they spend a token.
	rateLimiter := httpx.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)
	router.Handle("/assets", httpx.Chain(
		http.HandlerFunc(assetHandler.Get),
		httpx.MethodsMiddleware(http.MethodGet),
		httpx.SharedSecretMiddleware(cfg.SharedSecret),
		rateLimiter.Middleware,
	))

	return httpx.Chain(router,
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware,
		httpx.RecoveryMiddleware,
		httpx.SecurityHeadersMiddleware(cfg.EnableHSTS),
	)
}

func openStore(cfg config.Config) (asset.Store, func(), error) {
	noop := func() {}

	switch cfg.CacheBackend {
	case config.BackendMemory:
		return store.NewBundleMemory(), noop, nil

	case config.BackendRedis:
		conn := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := conn.Ping().Err(); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		log.Println("redis connection OK")
		return store.NewBundleRedis(conn), func() { _ = conn.Close() }, nil

	case config.BackendPostgres:
		pool, err := openDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		return store.NewBundlePG(pool), pool.Close, nil

	default:
		s, err := store.NewBundleFile(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	}
}

func openDB(dsn string) (*pgxpool.Pool, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot ping database (%s): %w", redactDSN(dsn), err)
	}
	log.Println("database connection OK")
	return pool, nil
}

func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
