// Package auth provides the session cookie credentials shared by the REST
// client and the WebSocket handshakes.
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// DefaultCookieName is the cookie the collaborator backend issues on login.
const DefaultCookieName = "session"

// Credentials holds a session cookie. A nil *Credentials means anonymous.
type Credentials struct {
	CookieName string // Defaults to DefaultCookieName
	Value      string
}

// LoadCredentials builds credentials from an inline value or, when value is
// empty, from the first line of path. It returns nil, nil when neither is set.
func LoadCredentials(name, value, path string) (*Credentials, error) {
	if value == "" && path != "" {
		v, err := LoadCookieFile(path)
		if err != nil {
			return nil, fmt.Errorf("load cookie file: %w", err)
		}
		value = v
	}
	if value == "" {
		return nil, nil
	}
	if name == "" {
		name = DefaultCookieName
	}
	return &Credentials{CookieName: name, Value: value}, nil
}

// LoadCookieFile reads a cookie value from path. Surrounding whitespace and
// any lines after the first are ignored.
func LoadCookieFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("cookie file %s is empty", path)
	}
	return line, nil
}

// Cookie returns the credentials as an http.Cookie.
func (c *Credentials) Cookie() *http.Cookie {
	return &http.Cookie{Name: c.name(), Value: c.Value}
}

// Apply attaches the cookie to req. Nil credentials leave req untouched.
func (c *Credentials) Apply(req *http.Request) {
	if c == nil || c.Value == "" {
		return
	}
	req.AddCookie(c.Cookie())
}

// Header returns handshake headers carrying the cookie, for WebSocket dials.
// Nil credentials yield nil.
func (c *Credentials) Header() http.Header {
	if c == nil || c.Value == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Cookie", c.Cookie().String())
	return h
}

func (c *Credentials) name() string {
	if c.CookieName == "" {
		return DefaultCookieName
	}
	return c.CookieName
}
