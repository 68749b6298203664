package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aimerfeng/Gigsy/internal/cache"
	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderIdempotencyKey names the duplicate-submission key header
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKey = 128

// Idempotency rejects a mutation while another request with the same key from
// the same caller is still in flight. Keys are released when the request
// finishes; responses are never replayed.
func Idempotency(guard cache.InFlight, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKey {
			respondWithError(c, apierrors.NewInvalidRequestError("Idempotency-Key is too long"))
			return
		}

		scoped := callerKey(c) + ":" + key
		ctx := context.WithoutCancel(c.Request.Context())
		ok, err := guard.Acquire(ctx, scoped, ttl)
		if err != nil {
			log.Warn().Err(err).Str("key", scoped).Msg("In-flight guard unavailable, continuing")
			c.Next()
			return
		}
		if !ok {
			monitoring.RecordDuplicateRequest()
			respondWithError(c, apierrors.ErrRequestInFlightError)
			return
		}

		defer func() {
			if err := guard.Release(ctx, scoped); err != nil {
				log.Warn().Err(err).Str("key", scoped).Msg("Failed to release in-flight key")
			}
		}()
		c.Next()
	}
}

// Limiter reports whether a caller may make another request
type Limiter interface {
	Check(ctx context.Context, callerID string) (*cache.RateLimitResult, error)
}

// RateLimit applies a per-caller limit to mutations
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		result, err := limiter.Check(c.Request.Context(), callerKey(c))
		if err != nil {
			log.Warn().Err(err).Msg("Rate limiter unavailable, continuing")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		if !result.Allowed {
			monitoring.RecordRateLimitHit()
			retry := int(result.RetryAfter.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			respondWithError(c, apierrors.ErrRateLimitedError)
			return
		}
		c.Next()
	}
}

// callerKey identifies the caller by profile when authenticated, otherwise
// by client address
func callerKey(c *gin.Context) string {
	if p := ProfileFromContext(c); p != nil {
		return p.ID.String()
	}
	return "ip:" + c.ClientIP()
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
