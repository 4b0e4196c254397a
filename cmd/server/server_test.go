package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"example.com/ribbit/internal/auth"
	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/cache"
	"example.com/ribbit/internal/service"
	"example.com/ribbit/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

//
// --- Helpers ---
//

type testEnv struct {
	ts     *httptest.Server
	store  *store.SQLStore
	events *appkafka.MockKafka
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	st, err := store.NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)

	c := cache.NewMemory()
	events := &appkafka.MockKafka{}
	svc := service.New(st, auth.NewJWTManager("test-secret", time.Hour), c, events, time.Minute)

	router, err := New(svc, st, c, Options{CookieName: "sess"}).Router()
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: st, events: events}
}

// newClient returns a browser-like client that keeps cookies and does not follow redirects.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postForm(t *testing.T, client *http.Client, u string, values url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := client.PostForm(u, values)
	if err != nil {
		t.Fatalf("POST %s failed: %v", u, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func get(t *testing.T, client *http.Client, u string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(u)
	if err != nil {
		t.Fatalf("GET %s failed: %v", u, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

// signup creates an account through the form and returns a client holding its session.
func signup(t *testing.T, env *testEnv, username string) *http.Client {
	t.Helper()
	client := newClient(t)
	resp, body := postForm(t, client, env.ts.URL+"/signup", url.Values{
		"username":  {username},
		"email":     {username + "@pond.org"},
		"password1": {"greenfrog"},
		"password2": {"greenfrog"},
	})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("signup failed with %d: %s", resp.StatusCode, body)
	}
	return client
}

func submit(t *testing.T, env *testEnv, client *http.Client, content string) {
	t.Helper()
	resp, body := postForm(t, client, env.ts.URL+"/submit", url.Values{"content": {content}, "next_url": {"/"}})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("submit failed with %d: %s", resp.StatusCode, body)
	}
}

//
// --- Tests ---
//

func TestIndexAnonymousShowsForms(t *testing.T) {
	env := setupTestServer(t)

	resp, body := get(t, newClient(t), env.ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `action="/signup"`) || !strings.Contains(body, `action="/login"`) {
		t.Fatalf("expected login and signup forms, got: %s", body)
	}
}

func TestSignupLogsIn(t *testing.T) {
	env := setupTestServer(t)
	client := signup(t, env, "kermit")

	resp, body := get(t, client, env.ts.URL+"/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Buddies' Ribbits") {
		t.Fatalf("expected timeline after signup, got %d: %s", resp.StatusCode, body)
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	env := setupTestServer(t)
	signup(t, env, "kermit")

	resp, body := postForm(t, newClient(t), env.ts.URL+"/signup", url.Values{
		"username":  {"kermit"},
		"email":     {"other@pond.org"},
		"password1": {"x"},
		"password2": {"x"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected form re-render, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "A user with that username already exists.") {
		t.Fatalf("expected duplicate username error, got: %s", body)
	}
}

func TestSignupInvalidForm(t *testing.T) {
	env := setupTestServer(t)

	resp, body := postForm(t, newClient(t), env.ts.URL+"/signup", url.Values{
		"username":  {"kermit"},
		"email":     {"not-an-email"},
		"password1": {"a"},
		"password2": {"b"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected form re-render, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Enter a valid email address.") {
		t.Fatalf("expected email error, got: %s", body)
	}
}

func TestLoginAndLogout(t *testing.T) {
	env := setupTestServer(t)
	signup(t, env, "kermit")

	client := newClient(t)
	resp, body := postForm(t, client, env.ts.URL+"/login", url.Values{"username": {"kermit"}, "password": {"wrong"}})
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Please enter a correct username and password.") {
		t.Fatalf("expected login error, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = postForm(t, client, env.ts.URL+"/login", url.Values{"username": {"kermit"}, "password": {"greenfrog"}})
	expectRedirect(t, resp, "/")

	resp, _ = get(t, client, env.ts.URL+"/ribbits")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected public feed for logged in user, got %d", resp.StatusCode)
	}

	resp, _ = get(t, client, env.ts.URL+"/logout")
	expectRedirect(t, resp, "/")

	resp, _ = get(t, client, env.ts.URL+"/ribbits")
	expectRedirect(t, resp, "/")
}

func TestProtectedPagesRedirectAnonymous(t *testing.T) {
	env := setupTestServer(t)
	client := newClient(t)

	for _, path := range []string{"/ribbits", "/users/", "/users/kermit"} {
		resp, _ := get(t, client, env.ts.URL+path)
		expectRedirect(t, resp, "/")
	}
	resp, _ := postForm(t, client, env.ts.URL+"/submit", url.Values{"content": {"hi"}})
	expectRedirect(t, resp, "/")
}

func TestGetOnPostOnlyRoutesRedirects(t *testing.T) {
	env := setupTestServer(t)
	client := newClient(t)

	for _, path := range []string{"/login", "/signup", "/submit", "/follow"} {
		resp, _ := get(t, client, env.ts.URL+path)
		expectRedirect(t, resp, "/")
	}
}

func TestSubmitRedirectsToNextURL(t *testing.T) {
	env := setupTestServer(t)
	client := signup(t, env, "kermit")

	resp, _ := postForm(t, client, env.ts.URL+"/submit", url.Values{"content": {"hello"}, "next_url": {"/ribbits"}})
	expectRedirect(t, resp, "/ribbits")

	resp, _ = postForm(t, client, env.ts.URL+"/submit", url.Values{"content": {"again"}, "next_url": {"//evil.example"}})
	expectRedirect(t, resp, "/")

	resp, _ = postForm(t, client, env.ts.URL+"/submit", url.Values{"content": {"no next"}})
	expectRedirect(t, resp, "/")

	if n := len(env.events.Written()); n != 3 {
		t.Fatalf("expected 3 ribbit events, got %d", n)
	}
}

func TestSubmitInvalidContentRerendersPublicFeed(t *testing.T) {
	env := setupTestServer(t)
	client := signup(t, env, "kermit")

	for _, content := range []string{"", strings.Repeat("x", 141)} {
		resp, body := postForm(t, client, env.ts.URL+"/submit", url.Values{"content": {content}})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected re-render, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, "Public Ribbits") || !strings.Contains(body, `class="error"`) {
			t.Fatalf("expected public feed with errors, got: %s", body)
		}
	}
}

// full flow: post -> follow -> timeline
func TestFollowAndTimelineFlow(t *testing.T) {
	env := setupTestServer(t)
	almaz := signup(t, env, "almaz")
	nur := signup(t, env, "nur")

	submit(t, env, almaz, "hello")
	submit(t, env, nur, "world")

	_, body := get(t, almaz, env.ts.URL+"/")
	if !strings.Contains(body, "hello") || strings.Contains(body, "world") {
		t.Fatalf("timeline before follow should only hold own ribbits: %s", body)
	}

	nurUser, err := env.store.GetUserByUsername(t.Context(), "nur")
	if err != nil {
		t.Fatalf("lookup nur: %v", err)
	}

	resp, _ := postForm(t, almaz, env.ts.URL+"/follow", url.Values{"follow": {nurUser.ID.String()}})
	expectRedirect(t, resp, "/users/")
	resp, _ = postForm(t, almaz, env.ts.URL+"/follow", url.Values{"follow": {nurUser.ID.String()}})
	expectRedirect(t, resp, "/users/")

	_, body = get(t, almaz, env.ts.URL+"/")
	if !strings.Contains(body, "hello") || !strings.Contains(body, "world") {
		t.Fatalf("timeline after follow should hold both ribbits: %s", body)
	}
	if strings.Index(body, "world") > strings.Index(body, "hello") {
		t.Fatalf("timeline must be newest first: %s", body)
	}

	_, body = get(t, almaz, env.ts.URL+"/users/nur")
	if !strings.Contains(body, "1 followers") || !strings.Contains(body, "Following") {
		t.Fatalf("profile should show one follower: %s", body)
	}
}

func TestFollowUnknownTargetRedirects(t *testing.T) {
	env := setupTestServer(t)
	client := signup(t, env, "kermit")

	for _, target := range []string{"not-a-uuid", uuid.NewString()} {
		resp, _ := postForm(t, client, env.ts.URL+"/follow", url.Values{"follow": {target}})
		expectRedirect(t, resp, "/users/")
	}
	resp, _ := postForm(t, client, env.ts.URL+"/follow", url.Values{})
	expectRedirect(t, resp, "/users/")
}

func TestUsersDirectoryAndProfile(t *testing.T) {
	env := setupTestServer(t)
	kermit := signup(t, env, "kermit")
	signup(t, env, "fozzie")
	submit(t, env, kermit, "it's not easy being green")

	resp, body := get(t, kermit, env.ts.URL+"/users/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if strings.Index(body, `class="name">fozzie`) > strings.Index(body, `class="name">kermit`) {
		t.Fatalf("directory must be ordered by username: %s", body)
	}
	if !strings.Contains(body, "it&#39;s not easy being green") {
		t.Fatalf("directory should show the latest ribbit: %s", body)
	}

	resp, _ = get(t, kermit, env.ts.URL+"/users/nobody")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", resp.StatusCode)
	}
}

func TestPublicFeedShowsLastTen(t *testing.T) {
	env := setupTestServer(t)
	client := signup(t, env, "chatty")
	for i := 0; i < 12; i++ {
		submit(t, env, client, fmt.Sprintf("ribbit-%02d", i))
	}

	_, body := get(t, client, env.ts.URL+"/ribbits")
	if n := strings.Count(body, `class="ribbit"`); n != 10 {
		t.Fatalf("expected 10 ribbits, got %d", n)
	}
	if strings.Contains(body, "ribbit-01") || !strings.Contains(body, "ribbit-11") {
		t.Fatalf("expected the newest ten ribbits: %s", body)
	}
}

func TestHealthz(t *testing.T) {
	env := setupTestServer(t)

	resp, body := get(t, newClient(t), env.ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("expected healthy, got %d: %s", resp.StatusCode, body)
	}
}

func TestHealthzStoreDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &store.MockStoreFail{}
	c := cache.NewMemory()
	svc := service.New(st, auth.NewJWTManager("s", time.Hour), c, nil, time.Minute)
	router, err := New(svc, st, c, Options{}).Router()
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                  "/",
		"/":                 "/",
		"/ribbits":          "/ribbits",
		"//evil.example":    "/",
		"https://evil.com/": "/",
		"/\\evil.example":   "/",
		"/users/kermit?x=1": "/users/kermit?x=1",
	}
	for in, want := range cases {
		if got := safeNext(in); got != want {
			t.Errorf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}
