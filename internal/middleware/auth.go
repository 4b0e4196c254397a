package middleware

import (
	"context"
	"errors"
	"net/http"

	"example.com/ribbit/internal/logger"
	"example.com/ribbit/internal/models"
	"example.com/ribbit/internal/service"
	"github.com/gin-gonic/gin"
)

var logg = logger.New()

const UserCtxKey = "user"

// Authenticator resolves the user behind a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// SessionCookie holds the attributes shared by every write of the session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
}

// Set writes token with the given lifetime in seconds.
func (sc SessionCookie) Set(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.Name, token, maxAge, "/", "", sc.Secure, true)
}

// Clear expires the cookie in the browser.
func (sc SessionCookie) Clear(c *gin.Context) {
	sc.Set(c, "", -1)
}

// Session reads the session cookie and stores the current user in the gin
// context. Requests without a live session continue anonymously.
func Session(auth Authenticator, cookie SessionCookie) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookie.Name)
		if err != nil || token == "" {
			c.Next()
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(UserCtxKey, user)
		case errors.Is(err, service.ErrUnauthenticated):
			// Stale cookie: drop it so the browser stops sending it.
			cookie.Clear(c)
		default:
			logg.Error("http/session", "Failed to resolve session", err)
			_ = c.Error(err)
			abortWithErrorPage(c)
			return
		}
		c.Next()
	}
}

// RequireUser redirects anonymous requests to the landing page.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserFromContext(c); !ok {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserFromContext returns the user stored by Session.
func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserCtxKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
