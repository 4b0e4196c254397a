package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"example.com/ribbit/internal/cache"
	"example.com/ribbit/internal/forms"
	"example.com/ribbit/internal/logger"
	"example.com/ribbit/internal/middleware"
	"example.com/ribbit/internal/service"
	"example.com/ribbit/internal/store"
	"example.com/ribbit/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var logg = logger.New()

type Server struct {
	svc    *service.Service
	store  store.StoreInterface
	cache  cache.Cache
	cookie middleware.SessionCookie
}

// Options configure the HTTP listener and the session cookie.
type Options struct {
	Addr         string
	TLSCertFile  string
	TLSKeyFile   string
	CookieName   string
	CookieSecure bool
}

func New(svc *service.Service, st store.StoreInterface, c cache.Cache, opts Options) *Server {
	name := opts.CookieName
	if name == "" {
		name = "ribbit_session"
	}
	return &Server{
		svc:    svc,
		store:  st,
		cache:  c,
		cookie: middleware.SessionCookie{Name: name, Secure: opts.CookieSecure},
	}
}

// Router builds the gin engine with every route installed.
func (s *Server) Router() (*gin.Engine, error) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		forms.Register(v)
	}

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.Use(middleware.RequestLogger(), middleware.Recovery())
	r.Use(middleware.Session(s.svc, s.cookie))

	r.GET("/healthz", s.healthHandler)

	r.GET("/", s.indexHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/signup", s.signupHandler)
	r.GET("/logout", s.logoutHandler)
	r.POST("/logout", s.logoutHandler)

	// POST-only endpoints send stray GETs home.
	for _, path := range []string{"/login", "/signup", "/submit", "/follow"} {
		r.GET(path, redirectHome)
	}

	authed := r.Group("/", middleware.RequireUser())
	authed.GET("/ribbits", s.publicHandler)
	authed.POST("/submit", s.submitHandler)
	authed.GET("/users/", s.usersHandler)
	authed.GET("/users/:username", s.userHandler)
	authed.POST("/follow", s.followHandler)

	r.NoRoute(func(c *gin.Context) {
		c.HTML(http.StatusNotFound, "404.html", s.page(c, "Not found", nil))
	})

	return r, nil
}

// Run starts the HTTP server and shuts it down gracefully when ctx is canceled.
// TLS is used when both certificate files are configured.
func Run(ctx context.Context, s *Server, opts Options) error {
	router, err := s.Router()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if opts.TLSCertFile != "" && opts.TLSKeyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+opts.Addr)
			err = srv.ListenAndServeTLS(opts.TLSCertFile, opts.TLSKeyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+opts.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server", "Server stopped unexpectedly", err)
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logg.Info("server", "Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
