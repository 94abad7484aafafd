package connection

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rickgao/market-stream/internal/model"
)

// Endpoints locates the backend channels relative to BaseURL.
type Endpoints struct {
	BaseURL   string // e.g. ws://localhost:8000
	Aggregate string // Aggregate market feed path
	Stock     string // Stock detail path, symbol passed as ?symbol=
	Crypto    string // Crypto detail path, symbol passed as ?symbol=
	Chat      string // Chat path prefix, symbol appended as a path segment
}

// DefaultEndpoints returns the backend's standard paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		BaseURL:   "ws://localhost:8000",
		Aggregate: "/ws/main",
		Stock:     "/ws/stocks",
		Crypto:    "/ws/crypto",
		Chat:      "/ws/chat",
	}
}

// AggregateURL returns the aggregate feed URL.
func (e Endpoints) AggregateURL() (string, error) {
	u, err := e.resolve(e.Aggregate, "")
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// DetailURL returns the per-symbol feed URL for kind.
func (e Endpoints) DetailURL(kind model.Kind, symbol string) (string, error) {
	path := e.Crypto
	if kind.IsStock() {
		path = e.Stock
	}
	u, err := e.resolve(path, "")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ChatURL returns the chat URL for symbol carrying the viewer identity.
func (e Endpoints) ChatURL(symbol string, id model.Identity) (string, error) {
	u, err := e.resolve(e.Chat, symbol)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("nickname", id.Nickname)
	q.Set("user_id", id.UserID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resolve joins the base URL, path and an optional escaped trailing segment.
func (e Endpoints) resolve(path, segment string) (*url.URL, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	joined := strings.TrimRight(u.Path, "/") + "/" + strings.Trim(path, "/")
	raw := joined
	if segment != "" {
		joined += "/" + segment
		raw += "/" + url.PathEscape(segment)
	}
	u.Path = joined
	u.RawPath = raw
	u.RawQuery = ""
	return u, nil
}
