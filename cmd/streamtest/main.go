// streamtest follows one symbol (or the market list) and prints every
// projected update to the console.
//
// Usage:
//
//	go run ./cmd/streamtest --config configs/dashboard.example.yaml --symbol AAPL
//	go run ./cmd/streamtest --config configs/dashboard.example.yaml --list
package main

import (
	"context"
	"encoding/json"
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
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/view"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.example.yaml", "path to config file")
	symbol := flag.String("symbol", "AAPL", "symbol to follow")
	list := flag.Bool("list", false, "follow the market list instead of one symbol")
	say := flag.String("say", "", "chat message to send once the chat channel opens")
	verbose := flag.Bool("verbose", false, "print full view JSON")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	creds, err := auth.LoadCredentials(cfg.API.SessionCookieName, cfg.API.SessionCookie, cfg.API.SessionCookieFile)
	if err != nil {
		logger.Error("failed to load session cookie", "error", err)
		os.Exit(1)
	}
	apiClient := api.NewClient(cfg.API.RestURL, creds, api.WithLogger(logger))
	managerCfg := connection.ConfigFrom(cfg.API, cfg.Stream, creds.Header())

	if *list {
		m := connection.NewMarketManager(managerCfg, logger)
		if err := m.Start(ctx); err != nil {
			logger.Error("failed to start market feed", "error", err)
			os.Exit(1)
		}
		followMarket(ctx, m, *verbose)
		stop(m, logger)
		return
	}

	m := connection.NewSymbolManager(managerCfg, *symbol, logger, connection.WithResolver(apiClient))
	if err := m.Start(ctx); err != nil {
		logger.Error("failed to start symbol view", "error", err)
		os.Exit(1)
	}
	followSymbol(ctx, m, *say, *verbose, logger)
	stop(m, logger)
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stop(s stopper, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := s.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

func followMarket(ctx context.Context, m *connection.MarketManager, verbose bool) {
	poll(ctx, func() time.Time { return m.State().UpdatedAt }, func() {
		mv := view.Market(m.State(), "", "")
		if verbose {
			printJSON("MARKET", mv)
			return
		}
		fmt.Printf("[MARKET] status=%q stocks=%d cryptos=%d\n", mv.Status.Label, len(mv.Stocks), len(mv.Cryptos))
		for _, c := range append(mv.Stocks, mv.Cryptos...) {
			fmt.Printf("  %-8s %12s  %s\n", c.Symbol, c.PriceLabel, c.ChangeLabel)
		}
	})
}

func followSymbol(ctx context.Context, m *connection.SymbolManager, say string, verbose bool, logger *slog.Logger) {
	seen := 0
	poll(ctx, func() time.Time { return m.State().UpdatedAt }, func() {
		st := m.State()
		dv := view.Detail(st, time.Local)
		if verbose {
			printJSON("DETAIL", dv)
		} else {
			price := "-"
			if dv.Quote != nil {
				price = dv.Quote.PriceLabel + " " + dv.Quote.ChangeLabel
			}
			fmt.Printf("[DETAIL] %s status=%q chat=%q points=%d price=%s\n",
				dv.Symbol, dv.Status.Label, dv.ChatStatus.Label, len(dv.Chart), price)
			for _, line := range dv.Transcript[min(seen, len(dv.Transcript)):] {
				fmt.Printf("  %s %s: %s\n", line.Time, line.Author, line.Body)
			}
			seen = len(dv.Transcript)
		}

		if say != "" && st.ChatPhase == model.PhaseChatOpen {
			if err := m.SendChat(ctx, say); err != nil {
				logger.Warn("send failed", "error", err)
			}
			say = ""
		}
	})
}

// poll calls render whenever stamp moves.
func poll(ctx context.Context, stamp func() time.Time, render func()) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t := stamp(); !t.Equal(last) {
				last = t
				render()
			}
		}
	}
}

func printJSON(tag string, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("[%s] %s\n", tag, data)
}
