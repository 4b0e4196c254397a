package store

import (
	"context"
	"time"

	"example.com/ribbit/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Ribbit operations ---

// newest orders ribbits newest first with id as the tie breaker.
func newest(db *gorm.DB) *gorm.DB {
	return db.Order("ribbits.created_at DESC").Order("ribbits.id DESC")
}

func (s *SQLStore) CreateRibbit(ctx context.Context, r *models.Ribbit) error {
	r.ID = newID()
	r.CreatedAt = time.Now().UTC()

	// Omit the association so gorm does not try to upsert the author.
	if err := s.db.WithContext(ctx).Omit("User").Create(r).Error; err != nil {
		logg.Error("store", "Failed to add ribbit", err)
		return err
	}

	logg.Info("store", "Ribbit added (content anonymized)")
	return nil
}

func (s *SQLStore) ListRibbitsByAuthors(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.Ribbit, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Preload("User").Where("ribbits.user_id IN ?", userIDs).Scopes(newest)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var ribbits []models.Ribbit
	if err := q.Find(&ribbits).Error; err != nil {
		logg.Error("store", "Failed to list ribbits by authors", err)
		return nil, err
	}
	return ribbits, nil
}

func (s *SQLStore) ListLatestRibbits(ctx context.Context, limit int) ([]models.Ribbit, error) {
	var ribbits []models.Ribbit
	err := s.db.WithContext(ctx).Preload("User").Scopes(newest).Limit(limit).Find(&ribbits).Error
	if err != nil {
		logg.Error("store", "Failed to list latest ribbits", err)
		return nil, err
	}
	return ribbits, nil
}

func (s *SQLStore) LatestRibbitByUser(ctx context.Context, userID uuid.UUID) (*models.Ribbit, error) {
	var r models.Ribbit
	err := s.db.WithContext(ctx).Preload("User").
		Where("ribbits.user_id = ?", userID).
		Scopes(newest).
		Take(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *SQLStore) CountRibbitsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Ribbit{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
