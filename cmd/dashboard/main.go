// dashboard runs the market list feed, on-demand symbol views and the HTTP
// API that serves their projections.
//
// Usage: go run ./cmd/dashboard --config configs/dashboard.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/market-stream/internal/api"
	"github.com/rickgao/market-stream/internal/auth"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/database"
	"github.com/rickgao/market-stream/internal/market"
	"github.com/rickgao/market-stream/internal/poller"
	"github.com/rickgao/market-stream/internal/router"
	"github.com/rickgao/market-stream/internal/server"
	"github.com/rickgao/market-stream/internal/version"
	"github.com/rickgao/market-stream/internal/writer"
)

const shutdownTimeout = 30 * time.Second

type stopper interface {
	Stop(ctx context.Context) error
}

type stopFunc func(ctx context.Context) error

func (f stopFunc) Stop(ctx context.Context) error { return f(ctx) }

func main() {
	configPath := flag.String("config", "configs/dashboard.example.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := config.LoadDotEnv(*envPath); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting dashboard",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"ws_url", cfg.API.WSURL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("dashboard failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	creds, err := auth.LoadCredentials(cfg.API.SessionCookieName, cfg.API.SessionCookie, cfg.API.SessionCookieFile)
	if err != nil {
		return fmt.Errorf("load session cookie: %w", err)
	}
	if creds == nil {
		logger.Warn("no session cookie configured, chat runs as guest and portfolio calls will fail")
	}

	apiClient := api.NewClient(
		cfg.API.RestURL,
		creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
	)

	managerCfg := connection.ConfigFrom(cfg.API, cfg.Stream, creds.Header())
	decoder := router.NewDecoder(logger)
	opts := []connection.Option{
		connection.WithResolver(apiClient),
		connection.WithDecoder(decoder),
	}

	// Stopped in reverse start order.
	var started []stopper
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(shutdownCtx); err != nil {
				logger.Warn("shutdown step failed", "error", err)
			}
		}
	}()

	probes := map[string]func() any{
		"decoder": func() any { return decoder.Stats() },
	}

	// Optional archive.
	pool, err := database.OpenArchive(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		started = append(started, stopFunc(func(context.Context) error {
			pool.Close()
			return nil
		}))

		archive := router.NewArchive(router.ArchiveConfig{
			QuoteBufferSize: cfg.Writers.BufferSize,
			ChatBufferSize:  cfg.Writers.BufferSize,
		}, logger)
		opts = append(opts, connection.WithRecorder(archive))

		wcfg := writer.ConfigFrom(cfg.Writers)
		quotes := writer.NewQuoteWriter(wcfg, archive.Buffers().Quotes, pool, logger)
		chats := writer.NewChatWriter(wcfg, archive.Buffers().Chat, pool, logger)
		if err := quotes.Start(ctx); err != nil {
			return fmt.Errorf("start quote writer: %w", err)
		}
		started = append(started, quotes)
		if err := chats.Start(ctx); err != nil {
			return fmt.Errorf("start chat writer: %w", err)
		}
		started = append(started, chats)

		probes["archive"] = func() any { return archive.Stats() }
		probes["quote_writer"] = func() any { return quotes.Stats() }
		probes["chat_writer"] = func() any { return chats.Stats() }
		logger.Info("archive enabled")
	}

	marketMgr := connection.NewMarketManager(managerCfg, logger, opts...)
	if err := marketMgr.Start(ctx); err != nil {
		return fmt.Errorf("start market feed: %w", err)
	}
	started = append(started, marketMgr)

	views := market.NewRegistry(market.Config{
		MaxViews:    cfg.Server.MaxViews,
		IdleTimeout: cfg.Server.IdleTimeout,
	}, market.ManagerFactory(managerCfg, logger, opts...), logger)
	if err := views.Start(ctx); err != nil {
		return fmt.Errorf("start symbol registry: %w", err)
	}
	started = append(started, views)

	if cfg.Stream.RefreshInterval > 0 {
		pcfg := poller.DefaultConfig()
		pcfg.Interval = cfg.Stream.RefreshInterval
		p := poller.New(pcfg, refreshTargets(marketMgr, views), logger)
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
		started = append(started, p)
		probes["poller"] = func() any { return p.Stats() }
	}

	srv := server.New(server.ConfigFrom(cfg.Server, cfg.Log.Level), server.Deps{
		Market: marketMgr,
		Views:  views,
		Broker: apiClient,
		Probes: probes,
	}, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	started = append(started, srv)

	logger.Info("dashboard running",
		"api_url", fmt.Sprintf("http://localhost:%d/api/market", cfg.Server.Port),
		"archive", pool != nil,
		"refresh_interval", cfg.Stream.RefreshInterval,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// refreshTargets polls the list feed and every open symbol view.
func refreshTargets(m *connection.MarketManager, views market.Registry) poller.TargetSource {
	return poller.TargetSourceFunc(func() []poller.Target {
		targets := []poller.Target{{Name: "market", Refresher: m}}
		for _, v := range views.Views() {
			targets = append(targets, poller.Target{Name: v.Symbol(), Refresher: v})
		}
		return targets
	})
}
