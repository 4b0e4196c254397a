package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/models"
	"example.com/ribbit/internal/store"
	"github.com/google/uuid"
)

// Follow makes actor follow the user with id targetID. A malformed or unknown
// id yields ErrUserNotFound. Following twice is harmless.
func (s *Service) Follow(ctx context.Context, actor *models.User, targetID string) error {
	id, err := uuid.Parse(targetID)
	if err != nil {
		return ErrUserNotFound
	}
	target, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("load follow target: %w", err)
	}

	follower, err := s.GetOrCreateProfile(ctx, actor.ID)
	if err != nil {
		return err
	}
	followed, err := s.GetOrCreateProfile(ctx, target.ID)
	if err != nil {
		return err
	}

	if err := s.store.AddFollow(ctx, follower, followed); err != nil {
		return fmt.Errorf("add follow: %w", err)
	}

	s.publish("service/follow", appkafka.NewFollowCreated(models.Follow{
		FollowerProfileID: follower.ID,
		FollowedProfileID: followed.ID,
		CreatedAt:         time.Now().UTC(),
	}))
	return nil
}
