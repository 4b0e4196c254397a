package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"example.com/ribbit/internal/auth"
	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/cache"
	"example.com/ribbit/internal/forms"
	"example.com/ribbit/internal/models"
	"example.com/ribbit/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *Service
	store  *store.SQLStore
	cache  *cache.Memory
	events *appkafka.MockKafka
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	st, err := store.NewSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	c := cache.NewMemory()
	events := &appkafka.MockKafka{}
	svc := New(st, auth.NewJWTManager("test-secret", time.Hour), c, events, time.Minute)
	return &fixture{svc: svc, store: st, cache: c, events: events}
}

func (f *fixture) signup(t *testing.T, username string) *models.User {
	t.Helper()
	u, sess, err := f.svc.Signup(context.Background(), forms.SignupForm{
		Username:  username,
		Email:     username + "@pond.org",
		Password1: "greenfrog",
		Password2: "greenfrog",
	})
	require.NoError(t, err)
	require.NotNil(t, sess)
	return u
}

func (f *fixture) submit(t *testing.T, u *models.User, content string) *models.Ribbit {
	t.Helper()
	r, err := f.svc.Submit(context.Background(), u, content)
	require.NoError(t, err)
	return r
}

func contents(rs []models.Ribbit) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Content
	}
	return out
}

func TestSignupCreatesUserProfileAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, sess, err := f.svc.Signup(ctx, forms.SignupForm{
		Username: "kermit", Email: "kermit@pond.org", Password1: "greenfrog", Password2: "greenfrog",
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.NotEqual(t, "greenfrog", u.PasswordHash)

	authed, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, authed.ID)

	p1, err := f.svc.GetOrCreateProfile(ctx, u.ID)
	require.NoError(t, err)
	p2, err := f.svc.GetOrCreateProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID, "exactly one profile per user")
}

func TestSignupRejectsDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "kermit")

	_, sess, err := f.svc.Signup(context.Background(), forms.SignupForm{
		Username: "kermit", Email: "other@pond.org", Password1: "x", Password2: "x",
	})
	assert.Nil(t, sess)

	var verr *forms.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{msgUsernameTaken}, verr.Field("username"))

	users, err := f.store.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestSignupRejectsPasswordMismatch(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Signup(context.Background(), forms.SignupForm{
		Username: "kermit", Email: "kermit@pond.org", Password1: "a", Password2: "b",
	})
	var verr *forms.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.NotEmpty(t, verr.Field("password2"))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "kermit")

	got, sess, err := f.svc.Login(ctx, forms.LoginForm{Username: "kermit", Password: "greenfrog"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, sess.Token)

	for _, bad := range []forms.LoginForm{
		{Username: "kermit", Password: "wrong"},
		{Username: "nobody", Password: "greenfrog"},
	} {
		_, _, err := f.svc.Login(ctx, bad)
		var verr *forms.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{msgBadCredentials}, verr.NonField())
	}
}

func TestLogoutRevokesOnlyThatSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "kermit")

	_, s1, err := f.svc.Login(ctx, forms.LoginForm{Username: "kermit", Password: "greenfrog"})
	require.NoError(t, err)
	_, s2, err := f.svc.Login(ctx, forms.LoginForm{Username: "kermit", Password: "greenfrog"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, s1.Token))

	_, err = f.svc.Authenticate(ctx, s1.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.svc.Authenticate(ctx, s2.Token)
	assert.NoError(t, err)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.NoError(t, f.svc.Logout(ctx, ""))
	assert.NoError(t, f.svc.Logout(ctx, "garbage"))
}

func TestAuthenticateRejectsUnknownUser(t *testing.T) {
	f := newFixture(t)
	sess, err := auth.NewJWTManager("test-secret", time.Hour).Generate(uuid.New())
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSubmitValidatesContent(t *testing.T) {
	f := newFixture(t)
	u := f.signup(t, "kermit")
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, u, "")
	var verr *forms.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = f.svc.Submit(ctx, u, strings.Repeat("x", 141))
	require.True(t, errors.As(err, &verr))

	content := "  " + strings.Repeat("x", 136) + "  "
	r := f.submit(t, u, content)
	assert.Equal(t, content, r.Content, "content is stored verbatim")
	assert.Equal(t, u.ID, r.UserID)
}

func TestSubmitPublishesAndRefreshesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "kermit")

	_, err := f.svc.PublicFeed(ctx)
	require.NoError(t, err)
	_, cached, _ := f.cache.GetPublicFeed(ctx)
	require.True(t, cached)

	r := f.submit(t, u, "hello")

	feed, cached, _ := f.cache.GetPublicFeed(ctx)
	require.True(t, cached, "submit must leave a fresh public feed cached")
	assert.Equal(t, []string{"hello"}, contents(feed))

	msgs := f.events.Written()
	require.Len(t, msgs, 1)
	e, err := appkafka.DecodeEvent(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, appkafka.RibbitCreated, e.Type)
	assert.Equal(t, r.ID, e.Ribbit.ID)
}

// A reader that loaded the feed before a submit committed may write that
// list back at any point; the cache must end up holding the new ribbit.
func TestSubmitReplacesStaleCachedFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "kermit")
	f.submit(t, u, "first")

	stale, err := f.store.ListLatestRibbits(ctx, PublicFeedSize)
	require.NoError(t, err)
	require.NoError(t, f.cache.InvalidatePublicFeed(ctx))

	r, err := f.svc.Submit(ctx, u, "second")
	require.NoError(t, err)
	// the racing reader writes its old list after the submit invalidated the cache
	require.NoError(t, f.cache.SetPublicFeed(ctx, stale, time.Minute))
	f.submit(t, u, "third")

	feed, cached, err := f.cache.GetPublicFeed(ctx)
	require.NoError(t, err)
	require.True(t, cached)
	assert.Equal(t, []string{"third", "second", "first"}, contents(feed))
	assert.Equal(t, r.ID, feed[1].ID)
}

func TestSubmitRefreshFailureFallsBackToInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "kermit")

	require.NoError(t, f.cache.SetPublicFeed(ctx, nil, time.Minute))
	f.svc.store = &listFailStore{StoreInterface: f.store}

	_, err := f.svc.Submit(ctx, u, "hello")
	require.NoError(t, err)

	_, cached, _ := f.cache.GetPublicFeed(ctx)
	assert.False(t, cached, "a failed rebuild must not leave the old feed cached")
}

// listFailStore fails only the public feed query.
type listFailStore struct {
	store.StoreInterface
}

func (s *listFailStore) ListLatestRibbits(ctx context.Context, limit int) ([]models.Ribbit, error) {
	return nil, errors.New("list failed")
}

func TestSubmitSurvivesEventFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.events = &appkafka.MockKafkaFail{}
	u := f.signup(t, "kermit")

	_, err := f.svc.Submit(context.Background(), u, "still saved")
	require.NoError(t, err)

	n, err := f.store.CountRibbitsByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPublicFeedLastTenNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "a")
	b := f.signup(t, "b")

	for i := 0; i < 12; i++ {
		author := a
		if i%2 == 1 {
			author = b
		}
		f.submit(t, author, fmt.Sprintf("r%02d", i))
	}

	feed, err := f.svc.PublicFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, PublicFeedSize)
	assert.Equal(t, "r11", feed[0].Content)
	assert.Equal(t, "r02", feed[9].Content)

	cachedFeed, err := f.svc.PublicFeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, contents(feed), contents(cachedFeed))
}

func TestFollowUnknownTarget(t *testing.T) {
	f := newFixture(t)
	u := f.signup(t, "kermit")
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Follow(ctx, u, "not-a-uuid"), ErrUserNotFound)
	assert.ErrorIs(t, f.svc.Follow(ctx, u, uuid.NewString()), ErrUserNotFound)
	assert.Empty(t, f.events.Written())
}

func TestLatestRibbitAndDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	piggy := f.signup(t, "piggy")
	kermit := f.signup(t, "kermit")

	latest, err := f.svc.LatestRibbit(ctx, kermit.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	f.submit(t, kermit, "one")
	f.submit(t, kermit, "two")

	latest, err = f.svc.LatestRibbit(ctx, kermit.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "two", latest.Content)

	dir, err := f.svc.UserDirectory(ctx)
	require.NoError(t, err)
	require.Len(t, dir, 2)
	assert.Equal(t, "kermit", dir[0].User.Username)
	assert.Equal(t, int64(2), dir[0].RibbitCount)
	assert.Equal(t, "two", dir[0].Latest.Content)
	assert.Equal(t, piggy.ID, dir[1].User.ID)
	assert.Nil(t, dir[1].Latest)
}

func TestProfileView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "a")
	b := f.signup(t, "b")
	f.submit(t, b, "b1")

	view, err := f.svc.Profile(ctx, a, "b")
	require.NoError(t, err)
	assert.False(t, view.IsSelf)
	assert.False(t, view.ViewerFollows)
	assert.Equal(t, []string{"b1"}, contents(view.Ribbits))

	require.NoError(t, f.svc.Follow(ctx, a, b.ID.String()))

	view, err = f.svc.Profile(ctx, a, "b")
	require.NoError(t, err)
	assert.True(t, view.ViewerFollows)
	assert.Equal(t, int64(1), view.FollowerCount)
	assert.Equal(t, int64(0), view.FollowingCount)

	own, err := f.svc.Profile(ctx, a, "a")
	require.NoError(t, err)
	assert.True(t, own.IsSelf)
	assert.Equal(t, int64(1), own.FollowingCount)

	_, err = f.svc.Profile(ctx, a, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// A posts "hello"; B posts "world"; A follows B (twice).
func TestTimelineScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "a")
	b := f.signup(t, "b")
	c := f.signup(t, "c")

	f.submit(t, a, "hello")
	tl, err := f.svc.HomeTimeline(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, contents(tl))

	f.submit(t, b, "world")
	f.submit(t, c, "unrelated")
	require.NoError(t, f.svc.Follow(ctx, a, b.ID.String()))

	tl, err = f.svc.HomeTimeline(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"world", "hello"}, contents(tl))

	require.NoError(t, f.svc.Follow(ctx, a, b.ID.String()))
	ap, err := f.svc.GetOrCreateProfile(ctx, a.ID)
	require.NoError(t, err)
	n, err := f.store.CountFollowing(ctx, ap.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "following twice leaves one edge")

	tlB, err := f.svc.HomeTimeline(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"world"}, contents(tlB), "follows are not symmetric")
}

func TestStoreFailuresPropagate(t *testing.T) {
	svc := New(&store.MockStoreFail{}, auth.NewJWTManager("s", time.Hour), cache.NewMemory(), nil, time.Minute)
	ctx := context.Background()
	u := &models.User{ID: uuid.New(), Username: "kermit"}

	_, err := svc.HomeTimeline(ctx, u)
	assert.Error(t, err)
	_, err = svc.PublicFeed(ctx)
	assert.Error(t, err)
	_, err = svc.UserDirectory(ctx)
	assert.Error(t, err)
	_, err = svc.Submit(ctx, u, "hi")
	assert.Error(t, err)

	var verr *forms.ValidationError
	assert.False(t, errors.As(err, &verr), "infrastructure errors are not validation errors")
}
