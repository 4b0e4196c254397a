package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	config "example.com/ribbit/internal/init"
	"example.com/ribbit/internal/logger"
	"example.com/ribbit/internal/models"
	"github.com/google/uuid"
)

var logg = logger.New()

var (
	ErrNotFound      = errors.New("record not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// StoreInterface is implemented by the relational (gorm) and Cassandra stores.
// Lists of ribbits are ordered newest first (created_at DESC, id DESC) and carry
// their author in Ribbit.User.
type StoreInterface interface {
	// CreateUser inserts user and its profile. ID and CreatedAt are assigned here.
	CreateUser(ctx context.Context, user *models.User) (*models.UserProfile, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// ListUsers returns every user ordered by username.
	ListUsers(ctx context.Context) ([]models.User, error)

	GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
	// AddFollow records that follower follows followed. Adding an existing edge is a no-op.
	AddFollow(ctx context.Context, follower, followed *models.UserProfile) error
	IsFollowing(ctx context.Context, followerProfileID, followedProfileID uuid.UUID) (bool, error)
	// ListFollowedUserIDs returns the user ids behind the profiles followed by profileID.
	ListFollowedUserIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error)
	CountFollowers(ctx context.Context, profileID uuid.UUID) (int64, error)
	CountFollowing(ctx context.Context, profileID uuid.UUID) (int64, error)

	// CreateRibbit inserts r. ID and CreatedAt are assigned here.
	CreateRibbit(ctx context.Context, r *models.Ribbit) error
	// ListRibbitsByAuthors returns ribbits by any of userIDs. limit <= 0 means no limit.
	ListRibbitsByAuthors(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.Ribbit, error)
	ListLatestRibbits(ctx context.Context, limit int) ([]models.Ribbit, error)
	LatestRibbitByUser(ctx context.Context, userID uuid.UUID) (*models.Ribbit, error)
	CountRibbitsByUser(ctx context.Context, userID uuid.UUID) (int64, error)

	Ping(ctx context.Context) error
	Close()
}

// New opens the backend selected by STORE_DRIVER and brings its schema up to date.
func New(cfg *config.Config) (StoreInterface, error) {
	switch cfg.StoreDriver {
	case "postgres", "mysql", "sqlite":
		return NewSQL(cfg)
	case "cassandra":
		return NewCassandra(cfg)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.StoreDriver)
	}
}

// newID returns a time-ordered id so that id order follows creation order.
func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// sortNewestFirst orders ribbits by created_at then id, both descending.
func sortNewestFirst(ribbits []models.Ribbit) {
	sort.SliceStable(ribbits, func(i, j int) bool {
		a, b := ribbits[i], ribbits[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) > 0
	})
}
