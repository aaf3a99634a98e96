package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/tenant"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderOwnerID   = "X-Owner-ID"
)

// RequestID takes X-Request-ID from the caller or generates one, and puts it
// on the request context and the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(tenant.WithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger logs one line per request and records its duration.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		observer.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(status), latency)

		log := logger.FromContext(c.Request.Context())
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(c.Request.Context()).Error("[panic] Recovered from panic in HTTP handler",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				respondError(c, fmt.Errorf("panic: %v", r))
			}
		}()
		c.Next()
	}
}

// RequireOwner scopes the request to the account named by X-Owner-ID.
// Authentication happens upstream; a missing header is 401.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(HeaderOwnerID))
		if owner == "" {
			respondError(c, fmt.Errorf("%w: missing %s header", apperrors.ErrUnauthorized, HeaderOwnerID))
			return
		}
		c.Request = c.Request.WithContext(tenant.WithOwnerID(c.Request.Context(), owner))
		c.Next()
	}
}

// FixedOwner scopes the request to a configured account. Used by channel
// webhooks, which carry no user identity.
func FixedOwner(owner string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "ingestion owner is not configured"})
			return
		}
		c.Request = c.Request.WithContext(tenant.WithOwnerID(c.Request.Context(), owner))
		c.Next()
	}
}

// RateLimit rejects requests beyond rps with a burst allowance. A
// non-positive rps disables the limit.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	return func(c *gin.Context) {
		if !limiter.Allow() {
			respondError(c, fmt.Errorf("%w: too many inbound requests", apperrors.ErrRateLimited))
			return
		}
		c.Next()
	}
}
