// api/middleware/rate_limiter.go
package middleware

import (
	"net"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/ratelimit"
)

func getIP(c *gin.Context) string {
	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.ClientIP()
	}
	return ip
}

// RateLimitMiddleware admits at most the window's limit of requests per client IP.
func RateLimitMiddleware(window *ratelimit.Window) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getIP(c)
		if !window.Allow(ip) {
			customLog.Warnf("RateLimit: rejected request from %s to %s", ip, c.FullPath())
			_ = c.Error(errs.RateLimited("TOO_MANY_REQUESTS", "Too many requests. Please wait."))
			c.Abort()
			return
		}
		c.Next()
	}
}
