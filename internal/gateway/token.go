package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/racepay/internal/clock"
)

// TokenRefreshBuffer is how long before expiry a cached token stops being served.
const TokenRefreshBuffer = 60 * time.Second

type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// TokenStore is an optional second-level cache shared between replicas.
type TokenStore interface {
	Load(ctx context.Context, key string) (Token, bool)
	Store(ctx context.Context, key string, token Token)
}

// TokenCache keeps gateway access tokens per credential set.
type TokenCache struct {
	mu     sync.Mutex
	clock  clock.Clock
	tokens map[string]Token
	shared TokenStore
}

func NewTokenCache(clk clock.Clock, shared TokenStore) *TokenCache {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenCache{
		clock:  clk,
		tokens: make(map[string]Token),
		shared: shared,
	}
}

// Get returns a token with more than TokenRefreshBuffer of validity left.
func (c *TokenCache) Get(ctx context.Context, key string) (string, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	tok, ok := c.tokens[key]
	c.mu.Unlock()
	if ok && c.fresh(tok, now) {
		return tok.AccessToken, true
	}

	if c.shared == nil {
		return "", false
	}
	tok, ok = c.shared.Load(ctx, key)
	if !ok || !c.fresh(tok, now) {
		return "", false
	}
	c.mu.Lock()
	c.tokens[key] = tok
	c.mu.Unlock()
	return tok.AccessToken, true
}

func (c *TokenCache) Set(ctx context.Context, key string, tok Token) {
	c.mu.Lock()
	c.tokens[key] = tok
	c.mu.Unlock()
	if c.shared != nil {
		c.shared.Store(ctx, key, tok)
	}
}

// Invalidate drops the local copy, e.g. after the gateway rejects it.
func (c *TokenCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
}

func (c *TokenCache) fresh(tok Token, now time.Time) bool {
	return tok.AccessToken != "" && tok.ExpiresAt.Sub(now) > TokenRefreshBuffer
}

type redisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore shares gateway tokens through redis. Errors degrade to cache misses.
func NewRedisTokenStore(client *redis.Client) TokenStore {
	if client == nil {
		return nil
	}
	return &redisTokenStore{client: client, prefix: "racepay:gateway:token:"}
}

func (s *redisTokenStore) Load(ctx context.Context, key string) (Token, bool) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		return Token{}, false
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, false
	}
	return tok, true
}

func (s *redisTokenStore) Store(ctx context.Context, key string, tok Token) {
	ttl := time.Until(tok.ExpiresAt) - TokenRefreshBuffer
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, s.prefix+key, raw, ttl).Err()
}
