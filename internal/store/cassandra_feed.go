package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"example.com/ribbit/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// --- User operations ---

// CreateUser claims the username with a lightweight transaction, then writes
// the user row and its profile.
func (s *CassandraStore) CreateUser(ctx context.Context, user *models.User) (*models.UserProfile, error) {
	user.ID = newID()
	user.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO users_by_username (username, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		user.Username, gocql.UUID(user.ID),
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return nil, err
	}
	if !applied {
		return nil, ErrUsernameTaken
	}

	err = s.Session.Query(`
		INSERT INTO users (user_id, username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		gocql.UUID(user.ID), user.Username, user.Email, user.PasswordHash, user.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		return nil, err
	}

	profile, err := s.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return profile, nil
}

func (s *CassandraStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var (
		uid gocql.UUID
		u   models.User
	)
	err := s.Session.Query(`
		SELECT user_id, username, email, password_hash, created_at
		FROM users WHERE user_id = ?`,
		gocql.UUID(id),
	).WithContext(ctx).Scan(&uid, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, cassandraNotFound(err)
	}
	u.ID = uuid.UUID(uid)
	return &u, nil
}

func (s *CassandraStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var id gocql.UUID
	err := s.Session.Query(
		`SELECT user_id FROM users_by_username WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if err != gocql.ErrNotFound {
			logg.Error("store", "Failed to query user by username", err)
		}
		return nil, cassandraNotFound(err)
	}
	return s.GetUserByID(ctx, uuid.UUID(id))
}

func (s *CassandraStore) ListUsers(ctx context.Context) ([]models.User, error) {
	iter := s.Session.Query(
		`SELECT user_id, username, email, password_hash, created_at FROM users`,
	).WithContext(ctx).Iter()

	var (
		res []models.User
		uid gocql.UUID
		u   models.User
	)
	for iter.Scan(&uid, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt) {
		u.ID = uuid.UUID(uid)
		res = append(res, u)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, err
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

// --- Profile operations ---

func (s *CassandraStore) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	p, err := s.getProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	result := make(map[string]interface{})
	_, err = s.Session.Query(`
		INSERT INTO profiles_by_user (user_id, profile_id, created_at)
		VALUES (?, ?, ?) IF NOT EXISTS`,
		gocql.UUID(userID), gocql.UUID(newID()), time.Now().UTC(),
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create profile", err)
		return nil, err
	}

	// Whether or not our insert won, the stored row is the profile.
	return s.getProfile(ctx, userID)
}

func (s *CassandraStore) getProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	var (
		pid     gocql.UUID
		created time.Time
	)
	err := s.Session.Query(
		`SELECT profile_id, created_at FROM profiles_by_user WHERE user_id = ?`,
		gocql.UUID(userID),
	).WithContext(ctx).SerialConsistency(gocql.LocalSerial).Scan(&pid, &created)
	if err != nil {
		return nil, cassandraNotFound(err)
	}
	return &models.UserProfile{ID: uuid.UUID(pid), UserID: userID, CreatedAt: created}, nil
}

// --- Follow operations ---

func (s *CassandraStore) AddFollow(ctx context.Context, follower, followed *models.UserProfile) error {
	now := time.Now().UTC()
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO follows (follower_profile_id, followed_profile_id, followed_user_id, created_at)
		VALUES (?, ?, ?, ?)`,
		gocql.UUID(follower.ID), gocql.UUID(followed.ID), gocql.UUID(followed.UserID), now)
	batch.Query(`
		INSERT INTO followers_by_followed (followed_profile_id, follower_profile_id, created_at)
		VALUES (?, ?, ?)`,
		gocql.UUID(followed.ID), gocql.UUID(follower.ID), now)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}

	logg.Info("store", "Follow relationship created (profile IDs anonymized)")
	return nil
}

func (s *CassandraStore) IsFollowing(ctx context.Context, followerProfileID, followedProfileID uuid.UUID) (bool, error) {
	var id gocql.UUID
	err := s.Session.Query(`
		SELECT followed_profile_id FROM follows
		WHERE follower_profile_id = ? AND followed_profile_id = ?`,
		gocql.UUID(followerProfileID), gocql.UUID(followedProfileID),
	).WithContext(ctx).Scan(&id)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *CassandraStore) ListFollowedUserIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error) {
	iter := s.Session.Query(
		`SELECT followed_user_id FROM follows WHERE follower_profile_id = ?`,
		gocql.UUID(profileID),
	).WithContext(ctx).Iter()

	var (
		id  gocql.UUID
		res []uuid.UUID
	)
	for iter.Scan(&id) {
		res = append(res, uuid.UUID(id))
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followed users", err)
		return nil, err
	}
	return res, nil
}

func (s *CassandraStore) CountFollowers(ctx context.Context, profileID uuid.UUID) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM followers_by_followed WHERE followed_profile_id = ?`, profileID)
}

func (s *CassandraStore) CountFollowing(ctx context.Context, profileID uuid.UUID) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows WHERE follower_profile_id = ?`, profileID)
}

func (s *CassandraStore) count(ctx context.Context, stmt string, key uuid.UUID) (int64, error) {
	var n int64
	if err := s.Session.Query(stmt, gocql.UUID(key)).WithContext(ctx).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// --- Ribbit operations ---

// CreateRibbit writes the ribbit to its author's partition and to the public stream.
func (s *CassandraStore) CreateRibbit(ctx context.Context, r *models.Ribbit) error {
	r.ID = newID()
	// Cassandra timestamps have millisecond precision.
	r.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO ribbits_by_user (user_id, created_at, ribbit_id, content)
		VALUES (?, ?, ?, ?)`,
		gocql.UUID(r.UserID), r.CreatedAt, gocql.UUID(r.ID), r.Content)
	batch.Query(`
		INSERT INTO public_ribbits (bucket, created_at, ribbit_id, user_id, content)
		VALUES (?, ?, ?, ?, ?)`,
		publicBucket, r.CreatedAt, gocql.UUID(r.ID), gocql.UUID(r.UserID), r.Content)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add ribbit", err)
		return err
	}

	logg.Info("store", "Ribbit added (content anonymized)")
	return nil
}

// ListRibbitsByAuthors reads each author's partition and merges them.
func (s *CassandraStore) ListRibbitsByAuthors(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.Ribbit, error) {
	var res []models.Ribbit
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true

		part, err := s.ribbitsOf(ctx, uid, limit)
		if err != nil {
			logg.Error("store", "Failed to retrieve ribbits by author", err)
			return nil, err
		}
		res = append(res, part...)
	}

	sortNewestFirst(res)
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	if err := s.attachAuthors(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *CassandraStore) ribbitsOf(ctx context.Context, userID uuid.UUID, limit int) ([]models.Ribbit, error) {
	stmt := `SELECT ribbit_id, content, created_at FROM ribbits_by_user WHERE user_id = ?`
	args := []interface{}{gocql.UUID(userID)}
	if limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := s.Session.Query(stmt, args...).WithContext(ctx).Iter()
	var (
		res     []models.Ribbit
		rid     gocql.UUID
		content string
		created time.Time
	)
	for iter.Scan(&rid, &content, &created) {
		res = append(res, models.Ribbit{
			ID:        uuid.UUID(rid),
			Content:   content,
			UserID:    userID,
			CreatedAt: created,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *CassandraStore) ListLatestRibbits(ctx context.Context, limit int) ([]models.Ribbit, error) {
	iter := s.Session.Query(`
		SELECT ribbit_id, user_id, content, created_at
		FROM public_ribbits WHERE bucket = ? LIMIT ?`,
		publicBucket, limit,
	).WithContext(ctx).Iter()

	var (
		res      []models.Ribbit
		rid, uid gocql.UUID
		content  string
		created  time.Time
	)
	for iter.Scan(&rid, &uid, &content, &created) {
		res = append(res, models.Ribbit{
			ID:        uuid.UUID(rid),
			Content:   content,
			UserID:    uuid.UUID(uid),
			CreatedAt: created,
		})
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to retrieve public ribbits", err)
		return nil, err
	}

	if err := s.attachAuthors(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *CassandraStore) LatestRibbitByUser(ctx context.Context, userID uuid.UUID) (*models.Ribbit, error) {
	res, err := s.ribbitsOf(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	if err := s.attachAuthors(ctx, res); err != nil {
		return nil, err
	}
	return &res[0], nil
}

func (s *CassandraStore) CountRibbitsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM ribbits_by_user WHERE user_id = ?`, userID)
}

// attachAuthors fills Ribbit.User, looking every author up once.
func (s *CassandraStore) attachAuthors(ctx context.Context, ribbits []models.Ribbit) error {
	authors := make(map[uuid.UUID]*models.User)
	for i := range ribbits {
		uid := ribbits[i].UserID
		u, ok := authors[uid]
		if !ok {
			var err error
			u, err = s.GetUserByID(ctx, uid)
			if err != nil {
				logg.Error("store", "Failed to load ribbit author", err)
				return err
			}
			authors[uid] = u
		}
		ribbits[i].User = *u
	}
	return nil
}
