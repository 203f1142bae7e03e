package sync

import (
	"context"
	"sync"

	"github.com/restobook/sumup-sync/internal/domain/credential"
)

// tokenCell is the single authoritative holder of a merchant's access token
// during one sync run. Concurrent batch tasks read through Get; Refresh
// serializes refresh attempts so a burst of 401s from one batch triggers only
// one exchange.
type tokenCell struct {
	tokens TokenProvider
	cred   *credential.Credential

	mu    sync.Mutex
	token string
}

func newTokenCell(initial string, cred *credential.Credential, tokens TokenProvider) *tokenCell {
	return &tokenCell{
		tokens: tokens,
		cred:   cred,
		token:  initial,
	}
}

// Get returns the current access token
func (c *tokenCell) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Refresh exchanges the token once. The stale argument is the token the
// caller saw fail; when another task already refreshed past it, the current
// token is returned without a second exchange.
func (c *tokenCell) Refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != stale {
		return c.token, nil
	}

	fresh, err := c.tokens.ForceRefresh(ctx, c.cred)
	if err != nil {
		return "", err
	}

	c.token = fresh
	return fresh, nil
}
