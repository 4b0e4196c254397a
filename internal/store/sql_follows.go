package store

import (
	"context"
	"time"

	"example.com/ribbit/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// --- Follow operations ---

func (s *SQLStore) AddFollow(ctx context.Context, follower, followed *models.UserProfile) error {
	edge := models.Follow{
		FollowerProfileID: follower.ID,
		FollowedProfileID: followed.ID,
		CreatedAt:         time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error
	if err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}

	logg.Info("store", "Follow relationship created (profile IDs anonymized)")
	return nil
}

func (s *SQLStore) IsFollowing(ctx context.Context, followerProfileID, followedProfileID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_profile_id = ? AND followed_profile_id = ?", followerProfileID, followedProfileID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) ListFollowedUserIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Joins("JOIN user_profiles ON user_profiles.id = follows.followed_profile_id").
		Where("follows.follower_profile_id = ?", profileID).
		Pluck("user_profiles.user_id", &ids).Error
	if err != nil {
		logg.Error("store", "Failed to list followed users", err)
		return nil, err
	}
	return ids, nil
}

func (s *SQLStore) CountFollowers(ctx context.Context, profileID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("followed_profile_id = ?", profileID).
		Count(&count).Error
	return count, err
}

func (s *SQLStore) CountFollowing(ctx context.Context, profileID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_profile_id = ?", profileID).
		Count(&count).Error
	return count, err
}
