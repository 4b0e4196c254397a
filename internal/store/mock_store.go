package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/ribbit/internal/models"
	"github.com/google/uuid"
)

// MockStore is an in-memory StoreInterface for tests.
type MockStore struct {
	mu         sync.Mutex
	Users      map[uuid.UUID]models.User
	Profiles   map[uuid.UUID]models.UserProfile // keyed by user id
	Follows    map[uuid.UUID]map[uuid.UUID]bool // follower profile -> followed profiles
	Ribbits    []models.Ribbit
	ShouldFail bool // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:    make(map[uuid.UUID]models.User),
		Profiles: make(map[uuid.UUID]models.UserProfile),
		Follows:  make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

var errMock = errors.New("mock: store failure")

func (m *MockStore) Ping(ctx context.Context) error {
	if m.ShouldFail {
		return errMock
	}
	return nil
}

func (m *MockStore) Close() {}

func (m *MockStore) CreateUser(ctx context.Context, user *models.User) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	for _, u := range m.Users {
		if u.Username == user.Username {
			return nil, ErrUsernameTaken
		}
	}

	user.ID = newID()
	user.CreatedAt = time.Now().UTC()
	m.Users[user.ID] = *user

	p := models.UserProfile{ID: newID(), UserID: user.ID, CreatedAt: user.CreatedAt}
	m.Profiles[user.ID] = p
	return &p, nil
}

func (m *MockStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	u, ok := m.Users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	for _, u := range m.Users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	res := make([]models.User, 0, len(m.Users))
	for _, u := range m.Users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

func (m *MockStore) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	p, ok := m.Profiles[userID]
	if !ok {
		p = models.UserProfile{ID: newID(), UserID: userID, CreatedAt: time.Now().UTC()}
		m.Profiles[userID] = p
	}
	return &p, nil
}

func (m *MockStore) AddFollow(ctx context.Context, follower, followed *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMock
	}
	if m.Follows[follower.ID] == nil {
		m.Follows[follower.ID] = make(map[uuid.UUID]bool)
	}
	m.Follows[follower.ID][followed.ID] = true
	return nil
}

func (m *MockStore) IsFollowing(ctx context.Context, followerProfileID, followedProfileID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return false, errMock
	}
	return m.Follows[followerProfileID][followedProfileID], nil
}

func (m *MockStore) ListFollowedUserIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	var res []uuid.UUID
	for _, p := range m.Profiles {
		if m.Follows[profileID][p.ID] {
			res = append(res, p.UserID)
		}
	}
	return res, nil
}

func (m *MockStore) CountFollowers(ctx context.Context, profileID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMock
	}
	var n int64
	for _, followed := range m.Follows {
		if followed[profileID] {
			n++
		}
	}
	return n, nil
}

func (m *MockStore) CountFollowing(ctx context.Context, profileID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMock
	}
	return int64(len(m.Follows[profileID])), nil
}

func (m *MockStore) CreateRibbit(ctx context.Context, r *models.Ribbit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMock
	}
	r.ID = newID()
	r.CreatedAt = time.Now().UTC()
	stored := *r
	stored.User = models.User{}
	m.Ribbits = append(m.Ribbits, stored)
	return nil
}

// selectRibbits copies matching ribbits newest first with authors attached.
// The caller holds m.mu.
func (m *MockStore) selectRibbits(match func(models.Ribbit) bool, limit int) []models.Ribbit {
	var res []models.Ribbit
	for _, r := range m.Ribbits {
		if match(r) {
			r.User = m.Users[r.UserID]
			res = append(res, r)
		}
	}
	sortNewestFirst(res)
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (m *MockStore) ListRibbitsByAuthors(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.Ribbit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	authors := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		authors[id] = true
	}
	return m.selectRibbits(func(r models.Ribbit) bool { return authors[r.UserID] }, limit), nil
}

func (m *MockStore) ListLatestRibbits(ctx context.Context, limit int) ([]models.Ribbit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	return m.selectRibbits(func(models.Ribbit) bool { return true }, limit), nil
}

func (m *MockStore) LatestRibbitByUser(ctx context.Context, userID uuid.UUID) (*models.Ribbit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMock
	}
	res := m.selectRibbits(func(r models.Ribbit) bool { return r.UserID == userID }, 1)
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return &res[0], nil
}

func (m *MockStore) CountRibbitsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMock
	}
	var n int64
	for _, r := range m.Ribbits {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store failed")

func (m *MockStoreFail) Ping(ctx context.Context) error { return errMockFail }

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(ctx context.Context, user *models.User) (*models.UserProfile, error) {
	return nil, errors.New("mock store create user failed")
}

func (m *MockStoreFail) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, errors.New("mock store get user failed")
}

func (m *MockStoreFail) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return nil, errors.New("mock store get user by username failed")
}

func (m *MockStoreFail) ListUsers(ctx context.Context) ([]models.User, error) {
	return nil, errors.New("mock store list users failed")
}

func (m *MockStoreFail) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	return nil, errors.New("mock store get profile failed")
}

func (m *MockStoreFail) AddFollow(ctx context.Context, follower, followed *models.UserProfile) error {
	return errors.New("mock store create follow failed")
}

func (m *MockStoreFail) IsFollowing(ctx context.Context, followerProfileID, followedProfileID uuid.UUID) (bool, error) {
	return false, errMockFail
}

func (m *MockStoreFail) ListFollowedUserIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error) {
	return nil, errors.New("mock store list followed failed")
}

func (m *MockStoreFail) CountFollowers(ctx context.Context, profileID uuid.UUID) (int64, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) CountFollowing(ctx context.Context, profileID uuid.UUID) (int64, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) CreateRibbit(ctx context.Context, r *models.Ribbit) error {
	return errors.New("mock store add ribbit failed")
}

func (m *MockStoreFail) ListRibbitsByAuthors(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.Ribbit, error) {
	return nil, errors.New("mock store list ribbits failed")
}

func (m *MockStoreFail) ListLatestRibbits(ctx context.Context, limit int) ([]models.Ribbit, error) {
	return nil, errors.New("mock store list latest ribbits failed")
}

func (m *MockStoreFail) LatestRibbitByUser(ctx context.Context, userID uuid.UUID) (*models.Ribbit, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) CountRibbitsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, errMockFail
}
