package service

import (
	"context"
	"errors"
	"fmt"

	"example.com/ribbit/internal/models"
	"example.com/ribbit/internal/store"
	"github.com/google/uuid"
)

// DirectoryEntry is one row of the user directory.
type DirectoryEntry struct {
	User        models.User
	RibbitCount int64
	Latest      *models.Ribbit
}

// ProfileView is everything shown on a user's page.
type ProfileView struct {
	User           models.User
	Profile        models.UserProfile
	Ribbits        []models.Ribbit
	IsSelf         bool
	ViewerFollows  bool
	FollowerCount  int64
	FollowingCount int64
}

func (s *Service) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	p, err := s.store.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// HomeTimeline returns the user's own ribbits and those of everyone they follow, newest first.
func (s *Service) HomeTimeline(ctx context.Context, user *models.User) ([]models.Ribbit, error) {
	profile, err := s.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	authors, err := s.store.ListFollowedUserIDs(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("list followed users: %w", err)
	}
	authors = append(authors, user.ID)

	ribbits, err := s.store.ListRibbitsByAuthors(ctx, authors, 0)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return ribbits, nil
}

// PublicFeed returns the most recent ribbits system-wide, served from the
// cache when possible. Cache failures fall back to the store.
func (s *Service) PublicFeed(ctx context.Context) ([]models.Ribbit, error) {
	ribbits, ok, err := s.cache.GetPublicFeed(ctx)
	if err != nil {
		logg.Error("service/feed", "Public feed cache read failed", err)
	}
	if ok {
		return ribbits, nil
	}
	return s.RefreshPublicFeed(ctx)
}

// RefreshPublicFeed reloads the public feed from the store and caches it.
func (s *Service) RefreshPublicFeed(ctx context.Context) ([]models.Ribbit, error) {
	ribbits, err := s.store.ListLatestRibbits(ctx, PublicFeedSize)
	if err != nil {
		return nil, fmt.Errorf("list public feed: %w", err)
	}
	if err := s.cache.SetPublicFeed(ctx, ribbits, s.feedTTL); err != nil {
		logg.Error("service/feed", "Public feed cache write failed", err)
	}
	return ribbits, nil
}

// LatestRibbit returns the user's newest ribbit, or nil when they have none.
func (s *Service) LatestRibbit(ctx context.Context, userID uuid.UUID) (*models.Ribbit, error) {
	r, err := s.store.LatestRibbitByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest ribbit: %w", err)
	}
	return r, nil
}

// UserDirectory lists every user by username with their ribbit count and newest ribbit.
func (s *Service) UserDirectory(ctx context.Context) ([]DirectoryEntry, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	entries := make([]DirectoryEntry, 0, len(users))
	for _, u := range users {
		count, err := s.store.CountRibbitsByUser(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("count ribbits: %w", err)
		}
		latest, err := s.LatestRibbit(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirectoryEntry{User: u, RibbitCount: count, Latest: latest})
	}
	return entries, nil
}

// Profile builds the page of username as seen by viewer.
func (s *Service) Profile(ctx context.Context, viewer *models.User, username string) (*ProfileView, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	profile, err := s.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	ribbits, err := s.store.ListRibbitsByAuthors(ctx, []uuid.UUID{user.ID}, 0)
	if err != nil {
		return nil, fmt.Errorf("list ribbits: %w", err)
	}
	followers, err := s.store.CountFollowers(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("count followers: %w", err)
	}
	following, err := s.store.CountFollowing(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("count following: %w", err)
	}

	view := &ProfileView{
		User:           *user,
		Profile:        *profile,
		Ribbits:        ribbits,
		IsSelf:         viewer != nil && viewer.ID == user.ID,
		FollowerCount:  followers,
		FollowingCount: following,
	}

	if viewer != nil {
		viewerProfile, err := s.GetOrCreateProfile(ctx, viewer.ID)
		if err != nil {
			return nil, err
		}
		view.ViewerFollows, err = s.store.IsFollowing(ctx, viewerProfile.ID, profile.ID)
		if err != nil {
			return nil, fmt.Errorf("check follow: %w", err)
		}
	}
	return view, nil
}
