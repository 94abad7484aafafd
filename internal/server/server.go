// Package server exposes the projected views over HTTP with gin.
//
// Routes:
//
//	GET    /health
//	GET    /api/market?search=&kind=
//	POST   /api/market/refresh
//	GET    /api/symbols/:symbol
//	GET    /api/symbols/:symbol/chat
//	POST   /api/symbols/:symbol/chat
//	DELETE /api/symbols/:symbol
//	GET    /api/portfolio
//	POST   /api/investment/start
//	GET    /api/investment/balance
//	POST   /api/investment/buy
//	POST   /api/investment/sell
//	GET    /api/investment/holdings/:symbol
//	POST   /api/chatbot
//	GET    /debug/stats
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/api"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/market"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/view"
)

// MarketSource is the list-mode manager. *connection.MarketManager
// implements it.
type MarketSource interface {
	State() model.MarketState
	Refresh(ctx context.Context) error
	Stats() connection.ManagerStats
}

// Broker is the collaborator backend. *api.Client implements it.
type Broker interface {
	Portfolio(ctx context.Context) (*api.Portfolio, error)
	StartInvestment(ctx context.Context) (*api.StartResponse, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	CheckedBuy(ctx context.Context, o api.Order) (*api.OrderResponse, error)
	Sell(ctx context.Context, o api.Order) (*api.OrderResponse, error)
	Holding(ctx context.Context, symbol string) (decimal.Decimal, error)
	Ask(ctx context.Context, messages []api.ChatMessage) (string, error)
}

// Config holds HTTP server settings.
type Config struct {
	Port         int
	AllowOrigins []string       // Origin prefixes allowed by CORS
	Location     *time.Location // Chat time labels; UTC when nil
	Debug        bool           // gin debug mode
	ShutdownWait time.Duration
}

// ConfigFrom maps the file configuration.
func ConfigFrom(c config.ServerConfig, logLevel string) Config {
	return Config{
		Port:         c.Port,
		AllowOrigins: c.AllowOrigins,
		Location:     time.Local,
		Debug:        strings.EqualFold(logLevel, "debug"),
		ShutdownWait: 5 * time.Second,
	}
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	Market MarketSource
	Views  market.Registry
	Broker Broker // Optional; portfolio, investment and chatbot answer 503 without it

	// Probes add named sections to /debug/stats.
	Probes map[string]func() any

	Format *view.Formatter // Optional; English labels by default
}

// Server serves the dashboard API.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
	http   *http.Server
}

// New builds the server and its routes.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Format == nil {
		deps.Format = view.NewFormatter(view.DefaultLanguage)
	}
	if cfg.ShutdownWait <= 0 {
		cfg.ShutdownWait = 5 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLog(), s.cors())
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured port in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "err", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the listener down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownWait)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, prefix := range s.cfg.AllowOrigins {
			if origin != "" && strings.HasPrefix(origin, prefix) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
				break
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
