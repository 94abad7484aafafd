package api

import (
	"context"
	"errors"

	"github.com/rickgao/market-stream/internal/model"
)

// ErrNoViewerID is returned when a profile carries neither user_id nor id.
var ErrNoViewerID = errors.New("profile has no user id")

// Profile fetches the signed-in viewer.
func (c *Client) Profile(ctx context.Context) (*ProfileResponse, error) {
	var resp ProfileResponse
	if err := c.get(ctx, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveIdentity implements identity.Resolver. A profile without a
// nickname uses the user id as its display name.
func (c *Client) ResolveIdentity(ctx context.Context) (model.Identity, error) {
	p, err := c.Profile(ctx)
	if err != nil {
		return model.Identity{}, err
	}

	id := p.ViewerID()
	if id == "" {
		return model.Identity{}, ErrNoViewerID
	}
	nick := p.Nickname
	if nick == "" {
		nick = id
	}
	return model.Identity{UserID: id, Nickname: nick}, nil
}
