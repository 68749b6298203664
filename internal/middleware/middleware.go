package middleware

import (
	"slices"

	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys
const (
	ContextKeyRequestID     = "request_id"
	ContextKeyCorrelationID = "correlation_id"
	ContextKeyIdentity      = "identity"
	ContextKeyProfile       = "profile"
)

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CorrelationID propagates an upstream correlation ID, falling back to the
// request ID
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString(ContextKeyRequestID)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
		}
		c.Set(ContextKeyCorrelationID, correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Correlation-ID, Idempotency-Key")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Correlation-ID, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// GetRequestIDFromContext returns the request ID, or "" when unset
func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationIDFromContext returns the correlation ID, or "" when unset
func GetCorrelationIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// IdentityFromContext returns the verified caller identity set by Authenticate
func IdentityFromContext(c *gin.Context) *models.Identity {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return nil
	}
	id, _ := v.(*models.Identity)
	return id
}

// ProfileFromContext returns the caller's profile set by Authenticate
func ProfileFromContext(c *gin.Context) *models.Profile {
	v, ok := c.Get(ContextKeyProfile)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Profile)
	return p
}

// RespondError classifies err and writes the error envelope. Errors of no
// known kind are logged and answered with a generic internal error.
func RespondError(c *gin.Context, err error) {
	apiErr, known := apierrors.FromError(err)
	if !known {
		logging.LogError(err, GetRequestIDFromContext(c), "api", c.Request.Method+" "+c.FullPath())
	}
	respondWithError(c, apiErr)
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, err *apierrors.APIError) {
	reqID := GetRequestIDFromContext(c)
	corrID := GetCorrelationIDFromContext(c)
	if corrID == "" {
		corrID = reqID
	}

	response := apierrors.NewErrorResponse(err, reqID, corrID, c.Request.URL.Path, c.Request.Method)
	c.AbortWithStatusJSON(response.Error.HTTPStatus, response)
}
