// Package identity resolves the viewer identity used by the chat channel.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/rickgao/market-stream/internal/model"
)

// Resolver fetches the authenticated viewer profile.
type Resolver interface {
	ResolveIdentity(ctx context.Context) (model.Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (model.Identity, error)

// ResolveIdentity calls f.
func (f ResolverFunc) ResolveIdentity(ctx context.Context) (model.Identity, error) {
	return f(ctx)
}

// Resolve returns the authenticated identity, or a generated guest when r is
// nil, fails, or returns an identity without a user id. It never fails.
func Resolve(ctx context.Context, r Resolver, logger *slog.Logger) model.Identity {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		return Guest()
	}

	id, err := r.ResolveIdentity(ctx)
	if err != nil {
		logger.Debug("profile unavailable, using guest identity", "error", err)
		return Guest()
	}
	if id.UserID == "" {
		logger.Debug("profile has no user id, using guest identity")
		return Guest()
	}
	if id.Nickname == "" {
		id.Nickname = id.UserID
	}
	return id
}

// Guest synthesizes a guest identity.
func Guest() model.Identity {
	return model.Identity{
		UserID:   "guest_" + uuid.NewString(),
		Nickname: fmt.Sprintf("Guest%d", rand.IntN(1000)),
		Guest:    true,
	}
}
