// Package auth fetches OAuth2 client-credentials tokens that brokers accept
// as connection passwords.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kilianp07/taskalloc/core/logger"
)

// ClientCred caches the current token and renews it when it expires. It is
// safe for concurrent use.
type ClientCred struct {
	conf clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{conf: conf.toOauth2Config()}
}

// Token returns the cached access token, fetching a new one when the cache is
// empty or expired.
func (c *ClientCred) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.Valid() {
		return c.token.AccessToken, nil
	}
	return c.fetch(ctx)
}

// ForceRefresh discards the cached token and fetches a new one.
func (c *ClientCred) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetch(ctx)
}

func (c *ClientCred) fetch(ctx context.Context) (string, error) {
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return tok.AccessToken, nil
}

// Credentials returns a provider yielding username and the current token as
// password, for clients that ask for credentials on every (re)connect. A
// failed fetch yields an empty password so the broker rejects the attempt
// and the client retries later.
func (c *ClientCred) Credentials(username string, log logger.Logger) func() (string, string) {
	log = logger.OrNop(log)
	return func() (string, string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		tok, err := c.Token(ctx)
		if err != nil {
			log.Errorf("oauth token: %v", err)
			return username, ""
		}
		return username, tok
	}
}
