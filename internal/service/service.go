// Package service holds the application's use cases: authentication, the
// timeline and public feed, the user directory, following and posting.
// The current user is always passed in explicitly.
package service

import (
	"errors"
	"time"

	"example.com/ribbit/internal/auth"
	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/cache"
	"example.com/ribbit/internal/logger"
	"example.com/ribbit/internal/store"
)

var logg = logger.New()

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// PublicFeedSize is the number of ribbits shown on the public feed.
const PublicFeedSize = 10

type Service struct {
	store   store.StoreInterface
	jwt     *auth.JWTManager
	cache   cache.Cache
	events  appkafka.KafkaWriter
	feedTTL time.Duration
}

// New wires a Service. A nil events writer disables publishing.
func New(st store.StoreInterface, jwt *auth.JWTManager, c cache.Cache, events appkafka.KafkaWriter, feedTTL time.Duration) *Service {
	if events == nil {
		events = appkafka.NopWriter{}
	}
	return &Service{
		store:   st,
		jwt:     jwt,
		cache:   c,
		events:  events,
		feedTTL: feedTTL,
	}
}

// SessionTTL is the lifetime of issued session tokens.
func (s *Service) SessionTTL() time.Duration {
	return s.jwt.TTL()
}

// publish sends events without failing the caller; the write already happened.
func (s *Service) publish(module string, events ...appkafka.Event) {
	if err := appkafka.Publish(s.events, events...); err != nil {
		logg.Error(module, "Failed to publish event", err)
	}
}
