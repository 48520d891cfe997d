// Package session provisions the opaque per-browser checkout token and
// its anti-forgery nonce. The token keys impression dedup and the cart;
// it is not an authentication mechanism.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type contextKey string

const sessionContextKey contextKey = "checkout_session"

// Session is the identity attached to a checkout request.
type Session struct {
	ID    string
	Nonce string
	New   bool
}

// NewID returns a fresh opaque session token.
func NewID() string {
	return uuid.NewString()
}

// WithSession attaches the session to the request context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext returns the session attached by the middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}

// Nonces issues and verifies per-session anti-forgery tokens.
type Nonces interface {
	// Issue returns the nonce for the session, creating one when absent.
	Issue(ctx context.Context, sessionID string) (string, error)
	// Check reports whether the nonce matches the session's issued one.
	Check(ctx context.Context, sessionID, nonce string) (bool, error)
}

// RedisNonces stores nonces in Redis with the session TTL.
type RedisNonces struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisNonces(client *redis.Client, ttl time.Duration) *RedisNonces {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisNonces{client: client, ttl: ttl}
}

func nonceKey(sessionID string) string {
	return "nonce:" + sessionID
}

func (n *RedisNonces) Issue(ctx context.Context, sessionID string) (string, error) {
	nonce := uuid.NewString()
	ok, err := n.client.SetNX(ctx, nonceKey(sessionID), nonce, n.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to issue nonce: %w", err)
	}
	if ok {
		return nonce, nil
	}
	existing, err := n.client.Get(ctx, nonceKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get; extremely short race, retry once.
		if err := n.client.Set(ctx, nonceKey(sessionID), nonce, n.ttl).Err(); err != nil {
			return "", fmt.Errorf("failed to issue nonce: %w", err)
		}
		return nonce, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	return existing, nil
}

func (n *RedisNonces) Check(ctx context.Context, sessionID, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	existing, err := n.client.Get(ctx, nonceKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read nonce: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(existing), []byte(nonce)) == 1, nil
}

// InMemoryNonces backs tests and Redis-less deployments.
type InMemoryNonces struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]nonceEntry
}

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
}

func NewInMemoryNonces(ttl time.Duration) *InMemoryNonces {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InMemoryNonces{ttl: ttl, entries: make(map[string]nonceEntry)}
}

func (n *InMemoryNonces) Issue(ctx context.Context, sessionID string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	if e, ok := n.entries[sessionID]; ok && e.expiresAt.After(now) {
		return e.nonce, nil
	}
	nonce := uuid.NewString()
	n.entries[sessionID] = nonceEntry{nonce: nonce, expiresAt: now.Add(n.ttl)}
	return nonce, nil
}

func (n *InMemoryNonces) Check(ctx context.Context, sessionID, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[sessionID]
	if !ok || e.expiresAt.Before(time.Now()) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(e.nonce), []byte(nonce)) == 1, nil
}
