package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/api"
	"github.com/rickgao/market-stream/internal/chat"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/market"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/version"
	"github.com/rickgao/market-stream/internal/view"
)

var errNoBroker = errors.New("backend not configured")

const refreshTimeout = 5 * time.Second

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/debug/stats", s.handleStats)

	g := s.engine.Group("/api")
	g.GET("/market", s.handleMarket)
	g.POST("/market/refresh", s.handleMarketRefresh)

	g.GET("/symbols/:symbol", s.handleSymbol)
	g.DELETE("/symbols/:symbol", s.handleSymbolClose)
	g.GET("/symbols/:symbol/chat", s.handleChat)
	g.POST("/symbols/:symbol/chat", s.handleChatSend)

	g.GET("/portfolio", s.handlePortfolio)
	g.POST("/investment/start", s.handleInvestmentStart)
	g.GET("/investment/balance", s.handleBalance)
	g.POST("/investment/buy", s.handleOrder(api.Buy))
	g.POST("/investment/sell", s.handleOrder(api.Sell))
	g.GET("/investment/holdings/:symbol", s.handleHolding)
	g.POST("/chatbot", s.handleChatbot)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Get(),
	})
}

func (s *Server) handleMarket(c *gin.Context) {
	if s.deps.Market == nil {
		s.fail(c, http.StatusServiceUnavailable, errors.New("market feed not running"))
		return
	}

	var kind model.Kind
	switch strings.ToLower(c.Query("kind")) {
	case "":
	case string(model.KindStock), "stocks":
		kind = model.KindStock
	case string(model.KindCrypto), "cryptos":
		kind = model.KindCrypto
	default:
		s.fail(c, http.StatusBadRequest, errors.New("kind must be stock or crypto"))
		return
	}

	c.JSON(http.StatusOK, s.deps.Format.Market(s.deps.Market.State(), c.Query("search"), kind))
}

func (s *Server) handleMarketRefresh(c *gin.Context) {
	if s.deps.Market == nil {
		s.fail(c, http.StatusServiceUnavailable, errors.New("market feed not running"))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), refreshTimeout)
	defer cancel()

	if err := s.deps.Market.Refresh(ctx); err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": view.ChipFor(s.deps.Market.State().Phase)})
}

func (s *Server) handleSymbol(c *gin.Context) {
	v, ok := s.open(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.deps.Format.Detail(v.State(), s.cfg.Location))
}

func (s *Server) handleSymbolClose(c *gin.Context) {
	if err := s.deps.Views.Close(c.Request.Context(), c.Param("symbol")); err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleChat(c *gin.Context) {
	v, ok := s.open(c)
	if !ok {
		return
	}
	st := v.State()
	c.JSON(http.StatusOK, gin.H{
		"symbol":     st.Symbol,
		"status":     view.ChipFor(st.ChatPhase),
		"transcript": view.Transcript(st.Transcript, s.cfg.Location),
	})
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleChatSend(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	v, ok := s.open(c)
	if !ok {
		return
	}

	if err := v.SendChat(c.Request.Context(), req.Message); err != nil {
		// The failure notice is already in the transcript; return it.
		st := v.State()
		c.JSON(statusOf(err), gin.H{
			"error":      err.Error(),
			"transcript": view.Transcript(st.Transcript, s.cfg.Location),
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	if s.deps.Broker == nil {
		s.fail(c, http.StatusServiceUnavailable, errNoBroker)
		return
	}
	p, err := s.deps.Broker.Portfolio(c.Request.Context())
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleInvestmentStart(c *gin.Context) {
	if s.deps.Broker == nil {
		s.fail(c, http.StatusServiceUnavailable, errNoBroker)
		return
	}
	resp, err := s.deps.Broker.StartInvestment(c.Request.Context())
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBalance(c *gin.Context) {
	if s.deps.Broker == nil {
		s.fail(c, http.StatusServiceUnavailable, errNoBroker)
		return
	}
	bal, err := s.deps.Broker.Balance(c.Request.Context())
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

type orderRequest struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// handleOrder places a buy or sell. Buys are refused before reaching the
// backend when the balance does not cover them.
func (s *Server) handleOrder(side api.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Broker == nil {
			s.fail(c, http.StatusServiceUnavailable, errNoBroker)
			return
		}
		var req orderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, http.StatusBadRequest, err)
			return
		}
		o := api.Order{
			Symbol:   strings.ToUpper(strings.TrimSpace(req.Symbol)),
			Price:    req.Price,
			Quantity: req.Quantity,
		}

		var (
			resp *api.OrderResponse
			err  error
		)
		if side == api.Buy {
			resp, err = s.deps.Broker.CheckedBuy(c.Request.Context(), o)
		} else {
			resp, err = s.deps.Broker.Sell(c.Request.Context(), o)
		}
		if err != nil {
			s.fail(c, statusOf(err), err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleHolding(c *gin.Context) {
	if s.deps.Broker == nil {
		s.fail(c, http.StatusServiceUnavailable, errNoBroker)
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	qty, err := s.deps.Broker.Holding(c.Request.Context(), symbol)
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "quantity": qty})
}

type chatbotRequest struct {
	Messages []api.ChatMessage `json:"messages" binding:"required"`
}

func (s *Server) handleChatbot(c *gin.Context) {
	if s.deps.Broker == nil {
		s.fail(c, http.StatusServiceUnavailable, errNoBroker)
		return
	}
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	reply, err := s.deps.Broker.Ask(c.Request.Context(), req.Messages)
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (s *Server) handleStats(c *gin.Context) {
	out := gin.H{}
	if s.deps.Market != nil {
		out["market"] = s.deps.Market.Stats()
	}
	if s.deps.Views != nil {
		views := make(map[string]connection.ManagerStats)
		for _, v := range s.deps.Views.Views() {
			views[v.Symbol()] = v.Stats()
		}
		out["registry"] = s.deps.Views.Stats()
		out["views"] = views
	}
	for name, probe := range s.deps.Probes {
		out[name] = probe()
	}
	c.JSON(http.StatusOK, out)
}

// open returns the view for the :symbol param, writing the error response
// itself when it cannot.
func (s *Server) open(c *gin.Context) (market.View, bool) {
	if s.deps.Views == nil {
		s.fail(c, http.StatusServiceUnavailable, market.ErrNotStarted)
		return nil, false
	}
	v, err := s.deps.Views.Open(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.fail(c, statusOf(err), err)
		return nil, false
	}
	return v, true
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, market.ErrNoSymbol),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, api.ErrEmptyConversation),
		errors.Is(err, api.ErrNoSymbol),
		errors.Is(err, api.ErrInvalidQuantity),
		errors.Is(err, api.ErrInvalidPrice):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, market.ErrUnknown),
		errors.Is(err, connection.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, connection.ErrNotConnected),
		errors.Is(err, connection.ErrStopped),
		errors.Is(err, market.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		if apiErr.IsUnauthorized() {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
