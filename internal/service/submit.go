package service

import (
	"context"
	"fmt"

	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/forms"
	"example.com/ribbit/internal/models"
)

// Submit stores a new ribbit by user. Content is kept verbatim; invalid content
// is reported as a *forms.ValidationError.
func (s *Service) Submit(ctx context.Context, user *models.User, content string) (*models.Ribbit, error) {
	if verr := forms.ValidateContent(content); verr != nil {
		return nil, verr
	}

	r := &models.Ribbit{Content: content, UserID: user.ID}
	if err := s.store.CreateRibbit(ctx, r); err != nil {
		return nil, fmt.Errorf("create ribbit: %w", err)
	}
	r.User = *user

	// Rebuild instead of dropping the cached feed: a reader that loaded the
	// list before this commit may still write it back after an invalidation.
	if _, err := s.RefreshPublicFeed(ctx); err != nil {
		logg.Error("service/submit", "Failed to refresh public feed cache", err)
		if err := s.cache.InvalidatePublicFeed(ctx); err != nil {
			logg.Error("service/submit", "Failed to invalidate public feed cache", err)
		}
	}
	s.publish("service/submit", appkafka.NewRibbitCreated(*r))

	logg.Info("service/submit", "Ribbit created by user_id="+user.ID.String())
	return r, nil
}
