package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/config"
	"github.com/forecastlab/settle-engine/internal/api"
	"github.com/forecastlab/settle-engine/internal/events"
	"github.com/forecastlab/settle-engine/internal/market"
	"github.com/forecastlab/settle-engine/internal/oracle"
	"github.com/forecastlab/settle-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "engine.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	// --- Store ---
	var st store.Store
	var cleanup []func()

	if cfg.Storage.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Storage.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Storage.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Storage.RedisURL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL())
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL())
		}
	} else {
		slog.Warn("database_url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Oracles ---
	price := oracle.NewPriceAdapter(nil)

	var sampler oracle.Sampler
	if cfg.Oracle.RPCURL != "" {
		rpc, err := oracle.NewRPCSampler(cfg.Oracle.RPCURL)
		if err != nil {
			slog.Error("rpc sampler setup failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, rpc.Close)
		sampler = rpc
		slog.Info("chain sampler connected", "rpc", cfg.Oracle.RPCURL)
	} else {
		slog.Warn("rpc_url not set, using static chain sampler")
		sampler = &oracle.StaticSampler{GasPrice: 30, BaseFee: 25}
	}
	chain := oracle.NewChainAdapter(sampler, nil)

	// --- Engine ---
	engCfg := market.DefaultConfig()
	engCfg.SeedCollateral = decimal.NewFromInt(cfg.Engine.SeedCollateral)
	engCfg.FeeBps = cfg.Engine.FeeBps
	engCfg.MinDuration = cfg.MinDuration()
	engCfg.MinBlockWindow = cfg.Engine.MinBlockWindow
	engCfg.StalenessWindow = cfg.StalenessWindow()
	engCfg.VoidGracePeriod = cfg.VoidGracePeriod()

	log := events.NewLog(nil)
	policy := market.NewKindPolicy(cfg.Engine.AuthorizedResolvers)
	eng := market.NewEngine(st, price, chain, log, policy, engCfg, nil)

	// --- HTTP surface ---
	hub := api.NewWSHub()
	go hub.Run(log)
	svc := api.NewService(eng, hub)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      svc.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("settle-engine listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down settle-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("settle-engine stopped")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
