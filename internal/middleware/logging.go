package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger writes one JSON line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		msg := fmt.Sprintf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		switch {
		case status >= http.StatusInternalServerError:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last
			}
			logg.Error("http", msg, err)
		case status >= http.StatusBadRequest:
			logg.Warn("http", msg)
		default:
			logg.Info("http", msg)
		}
	}
}

// Recovery turns a panic into the 500 page.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logg.Error("http", "Panic while serving "+c.Request.URL.Path+": "+string(debug.Stack()), fmt.Errorf("%v", rec))
				abortWithErrorPage(c)
			}
		}()
		c.Next()
	}
}

// abortWithErrorPage renders the 500 page and stops the handler chain.
func abortWithErrorPage(c *gin.Context) {
	c.HTML(http.StatusInternalServerError, "error.html", gin.H{"Status": http.StatusInternalServerError})
	c.Abort()
}
