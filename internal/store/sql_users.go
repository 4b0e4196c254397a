package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/ribbit/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- User operations ---

// CreateUser inserts the user and its profile in one transaction.
func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) (*models.UserProfile, error) {
	now := time.Now().UTC()
	user.ID = newID()
	user.CreatedAt = now
	profile := &models.UserProfile{ID: newID(), UserID: user.ID, CreatedAt: now}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return err
		}
		return tx.Create(profile).Error
	})
	if err != nil {
		if !errors.Is(err, ErrUsernameTaken) {
			logg.Error("store", "Failed to create user", err)
		}
		return nil, err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return profile, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, err
	}
	return users, nil
}

// --- Profile operations ---

// GetOrCreateProfile returns the user's profile, creating it on first use.
// Concurrent callers converge on the same row through the unique user_id index.
func (s *SQLStore) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	db := s.db.WithContext(ctx)

	var p models.UserProfile
	err := db.Where("user_id = ?", userID).Take(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := models.UserProfile{ID: newID(), UserID: userID, CreatedAt: time.Now().UTC()}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	if err := db.Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
