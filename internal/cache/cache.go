// Package cache holds short-lived shared state: revoked session ids and the
// rendered public feed.
package cache

import (
	"context"
	"time"

	"example.com/ribbit/internal/logger"
	"example.com/ribbit/internal/models"
)

var logg = logger.New()

const (
	publicFeedKey    = "ribbits:public"
	revokedKeyPrefix = "session:revoked:"
)

type Cache interface {
	GetPublicFeed(ctx context.Context) ([]models.Ribbit, bool, error)
	SetPublicFeed(ctx context.Context, ribbits []models.Ribbit, ttl time.Duration) error
	InvalidatePublicFeed(ctx context.Context) error
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// New returns a Redis-backed cache when url is set and an in-process one otherwise.
func New(url string) (Cache, error) {
	if url == "" {
		logg.Info("cache", "REDIS_URL not set, using in-process cache")
		return NewMemory(), nil
	}
	return NewRedis(url)
}
