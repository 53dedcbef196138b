package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/forecastlab/settle-engine/config"
	"github.com/forecastlab/settle-engine/internal/keeper"
)

func main() {
	configPath := flag.String("config", "keeper.yaml", "path to the YAML config file")
	modes := flag.String("modes", "price,chain,social", "comma-separated keeper loops to run")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	client := keeper.NewEngineClient(cfg.Keeper.EngineURL, cfg.Keeper.ResolverKey)
	interval := cfg.KeeperInterval()

	var loops []*keeper.Loop
	for _, mode := range strings.Split(*modes, ",") {
		switch strings.TrimSpace(mode) {
		case "price":
			loops = append(loops, keeper.NewLoop(buildRelayer(cfg, client), interval))
		case "chain":
			loops = append(loops, keeper.NewLoop(keeper.NewChainKeeper(client), interval))
		case "social":
			loops = append(loops, keeper.NewLoop(buildSocialKeeper(cfg, client), interval))
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unknown keeper mode %q\n", mode)
			os.Exit(2)
		}
	}
	if len(loops) == 0 {
		fmt.Fprintln(os.Stderr, "no keeper loops selected")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("keeper starting",
		"engine", cfg.Keeper.EngineURL, "modes", *modes, "interval", interval)
	if err := keeper.NewRunner(loops...).Run(ctx); err != nil {
		slog.Error("keeper stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("keeper stopped")
}

func buildRelayer(cfg *config.Config, client *keeper.EngineClient) *keeper.PriceRelayer {
	var source keeper.PriceSource
	if cfg.Keeper.QuoteAPIBase != "" {
		source = keeper.NewHTTPSource(cfg.Keeper.QuoteAPIBase, cfg.Keeper.QuoteScale, cfg.Keeper.QuoteRPS)
	} else {
		slog.Warn("quote_api_base not set, price relayer serves no quotes")
		source = keeper.NewStaticSource(nil)
	}

	signKey := parseSigningKey(cfg.Keeper.SigningKeyHex)
	return keeper.NewPriceRelayer(client, source, cfg.Keeper.PriceFeeds, signKey, nil)
}

func buildSocialKeeper(cfg *config.Config, client *keeper.EngineClient) *keeper.SocialKeeper {
	content := keeper.NewContentClient(cfg.Keeper.ContentAPIBase, cfg.Keeper.ContentCredential)
	if cfg.Keeper.ContentCredential == "" {
		slog.Warn("content_credential not set, social keeper uses synthetic metrics")
	}
	// Cache per-post reads within half a keeper interval.
	cached := keeper.NewValueCache(content, cfg.KeeperInterval()/2, nil)
	return keeper.NewSocialKeeper(client, cached)
}

func parseSigningKey(hexKey string) *ecdsa.PrivateKey {
	if hexKey == "" {
		return nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid signing key: %v\n", err)
		os.Exit(2)
	}
	return key
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
