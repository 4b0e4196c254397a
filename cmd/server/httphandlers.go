package server

import (
	"errors"
	"net/http"
	"strings"

	"example.com/ribbit/internal/auth"
	"example.com/ribbit/internal/forms"
	"example.com/ribbit/internal/middleware"
	"example.com/ribbit/internal/models"
	"example.com/ribbit/internal/service"
	"github.com/gin-gonic/gin"
)

// --- Page helpers ---

// page merges data over the values every template expects.
func (s *Server) page(c *gin.Context, title string, data gin.H) gin.H {
	user, _ := middleware.UserFromContext(c)
	h := gin.H{
		"Title":        title,
		"User":         user,
		"LoginForm":    forms.LoginForm{},
		"LoginErrors":  (*forms.ValidationError)(nil),
		"SignupForm":   forms.SignupForm{},
		"SignupErrors": (*forms.ValidationError)(nil),
		"RibbitErrors": (*forms.ValidationError)(nil),
		"Content":      "",
		"NextURL":      "/",
	}
	for k, v := range data {
		h[k] = v
	}
	return h
}

// serverError renders the 500 page and records err for the request log.
func (s *Server) serverError(c *gin.Context, module string, err error) {
	logg.Error(module, "Request failed", err)
	_ = c.Error(err)
	c.HTML(http.StatusInternalServerError, "error.html", s.page(c, "Error", gin.H{"Status": http.StatusInternalServerError}))
}

func redirectHome(c *gin.Context) {
	c.Redirect(http.StatusFound, "/")
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (s *Server) setSession(c *gin.Context, sess *auth.Session) {
	s.cookie.Set(c, sess.Token, int(s.svc.SessionTTL().Seconds()))
}

func (s *Server) clearSession(c *gin.Context) {
	s.cookie.Clear(c)
}

// --- HTTP Handlers ---

// indexHandler shows the timeline to signed-in users and the login and signup
// forms to everyone else.
func (s *Server) indexHandler(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.HTML(http.StatusOK, "home.html", s.page(c, "", nil))
		return
	}
	s.renderBuddies(c, user, nil)
}

func (s *Server) renderBuddies(c *gin.Context, user *models.User, data gin.H) {
	ribbits, err := s.svc.HomeTimeline(c.Request.Context(), user)
	if err != nil {
		s.serverError(c, "http/index", err)
		return
	}
	h := gin.H{"Ribbits": ribbits, "NextURL": "/"}
	for k, v := range data {
		h[k] = v
	}
	c.HTML(http.StatusOK, "buddies.html", s.page(c, "Buddies", h))
}

// loginHandler expects form fields username and password.
func (s *Server) loginHandler(c *gin.Context) {
	var f forms.LoginForm
	if err := c.ShouldBind(&f); err != nil {
		c.HTML(http.StatusOK, "home.html", s.page(c, "", gin.H{"LoginForm": f, "LoginErrors": forms.FromBindError(err)}))
		return
	}

	_, sess, err := s.svc.Login(c.Request.Context(), f)
	var verr *forms.ValidationError
	if errors.As(err, &verr) {
		logg.Info("http/login", "Login rejected")
		c.HTML(http.StatusOK, "home.html", s.page(c, "", gin.H{"LoginForm": f, "LoginErrors": verr}))
		return
	}
	if err != nil {
		s.serverError(c, "http/login", err)
		return
	}

	s.setSession(c, sess)
	c.Redirect(http.StatusFound, "/")
}

// signupHandler expects username, email, password1 and password2.
func (s *Server) signupHandler(c *gin.Context) {
	var f forms.SignupForm
	if err := c.ShouldBind(&f); err != nil {
		c.HTML(http.StatusOK, "home.html", s.page(c, "", gin.H{"SignupForm": f, "SignupErrors": forms.FromBindError(err)}))
		return
	}

	_, sess, err := s.svc.Signup(c.Request.Context(), f)
	var verr *forms.ValidationError
	if errors.As(err, &verr) {
		c.HTML(http.StatusOK, "home.html", s.page(c, "", gin.H{"SignupForm": f, "SignupErrors": verr}))
		return
	}
	if err != nil {
		s.serverError(c, "http/signup", err)
		return
	}

	s.setSession(c, sess)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) logoutHandler(c *gin.Context) {
	if token, err := c.Cookie(s.cookie.Name); err == nil {
		if err := s.svc.Logout(c.Request.Context(), token); err != nil {
			logg.Error("http/logout", "Failed to revoke session", err)
		}
	}
	s.clearSession(c)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) publicHandler(c *gin.Context) {
	s.renderPublic(c, nil)
}

func (s *Server) renderPublic(c *gin.Context, data gin.H) {
	ribbits, err := s.svc.PublicFeed(c.Request.Context())
	if err != nil {
		s.serverError(c, "http/ribbits", err)
		return
	}
	h := gin.H{"Ribbits": ribbits, "NextURL": "/ribbits"}
	for k, v := range data {
		h[k] = v
	}
	c.HTML(http.StatusOK, "public.html", s.page(c, "Public Ribbits", h))
}

// submitHandler expects content and an optional next_url to return to.
func (s *Server) submitHandler(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)

	var f forms.RibbitForm
	if err := c.ShouldBind(&f); err != nil {
		s.renderPublic(c, gin.H{"Content": f.Content, "RibbitErrors": forms.FromBindError(err)})
		return
	}

	_, err := s.svc.Submit(c.Request.Context(), user, f.Content)
	var verr *forms.ValidationError
	if errors.As(err, &verr) {
		s.renderPublic(c, gin.H{"Content": f.Content, "RibbitErrors": verr})
		return
	}
	if err != nil {
		s.serverError(c, "http/submit", err)
		return
	}

	c.Redirect(http.StatusFound, safeNext(f.NextURL))
}

func (s *Server) usersHandler(c *gin.Context) {
	dir, err := s.svc.UserDirectory(c.Request.Context())
	if err != nil {
		s.serverError(c, "http/users", err)
		return
	}
	c.HTML(http.StatusOK, "users.html", s.page(c, "Users", gin.H{"Directory": dir}))
}

func (s *Server) userHandler(c *gin.Context) {
	viewer, _ := middleware.UserFromContext(c)

	view, err := s.svc.Profile(c.Request.Context(), viewer, c.Param("username"))
	if errors.Is(err, service.ErrUserNotFound) {
		c.HTML(http.StatusNotFound, "404.html", s.page(c, "Not found", nil))
		return
	}
	if err != nil {
		s.serverError(c, "http/user", err)
		return
	}
	c.HTML(http.StatusOK, "user.html", s.page(c, view.User.Username, gin.H{"Profile": view}))
}

// followHandler expects the target user id in form field follow and always
// returns to the directory.
func (s *Server) followHandler(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)

	var f forms.FollowForm
	if err := c.ShouldBind(&f); err != nil {
		logg.Info("http/follow", "Follow without target")
		c.Redirect(http.StatusFound, "/users/")
		return
	}

	err := s.svc.Follow(c.Request.Context(), user, f.Follow)
	if errors.Is(err, service.ErrUserNotFound) {
		logg.Info("http/follow", "Follow target not found")
	} else if err != nil {
		s.serverError(c, "http/follow", err)
		return
	}
	c.Redirect(http.StatusFound, "/users/")
}

// healthHandler reports whether the store and the cache answer.
func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.store.Ping(ctx); err != nil {
		logg.Error("http/healthz", "Store ping failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "store"})
		return
	}
	if err := s.cache.Ping(ctx); err != nil {
		logg.Error("http/healthz", "Cache ping failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
