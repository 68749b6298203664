package middleware

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aimerfeng/Gigsy/internal/auth"
	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/gin-gonic/gin"
)

// ErrMissingToken is returned when a request carries no bearer token
var ErrMissingToken = fmt.Errorf("%w: missing bearer token", models.ErrUnauthorized)

// IdentitySource turns a bearer token into a verified identity
type IdentitySource interface {
	Identify(ctx context.Context, token string) (*models.Identity, error)
}

// ProfileResolver maps a verified identity to its profile
type ProfileResolver interface {
	Resolve(ctx context.Context, id *models.Identity) (*models.Profile, error)
}

// LocalTokens verifies access tokens issued by the auth service
type LocalTokens struct {
	auth *auth.Service
}

// NewLocalTokens creates an identity source for locally issued tokens
func NewLocalTokens(a *auth.Service) *LocalTokens {
	return &LocalTokens{auth: a}
}

func (l *LocalTokens) Identify(_ context.Context, token string) (*models.Identity, error) {
	claims, err := l.auth.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	return claims.Identity()
}

// Authenticator checks bearer tokens against its sources in order and loads
// the caller's profile
type Authenticator struct {
	sources  []IdentitySource
	profiles ProfileResolver
}

// NewAuthenticator creates an authenticator. At least one source is required.
func NewAuthenticator(profiles ProfileResolver, sources ...IdentitySource) *Authenticator {
	return &Authenticator{sources: sources, profiles: profiles}
}

// Identify tries every source and returns the first verified identity
func (a *Authenticator) Identify(ctx context.Context, token string) (*models.Identity, error) {
	var first error
	for _, src := range a.sources {
		id, err := src.Identify(ctx, token)
		if err == nil {
			return id, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = ErrMissingToken
	}
	return nil, first
}

// Authenticate requires a valid bearer token. Websocket clients that cannot
// set headers may pass the token as the "access_token" query parameter.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			token = c.Query("access_token")
		}
		if token == "" {
			respondWithError(c, apierrors.ErrUnauthorizedError)
			return
		}

		id, err := a.Identify(c.Request.Context(), token)
		if err != nil {
			logging.LogSecurityEvent("token_rejected", "", c.ClientIP(), err.Error())
			if errors.Is(err, auth.ErrTokenExpired) {
				respondWithError(c, apierrors.ErrTokenExpiredError)
				return
			}
			if !errors.Is(err, models.ErrUnauthorized) {
				err = fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
			}
			RespondError(c, err)
			return
		}

		p, err := a.profiles.Resolve(c.Request.Context(), id)
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(ContextKeyIdentity, id)
		c.Set(ContextKeyProfile, p)
		c.Next()
	}
}

// RequireRole allows only callers whose stored role is in roles. It must run
// after Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := ProfileFromContext(c)
		if p == nil {
			respondWithError(c, apierrors.ErrUnauthorizedError)
			return
		}
		if !slices.Contains(roles, p.Role) {
			RespondError(c, fmt.Errorf("%w: requires role %v", models.ErrForbidden, roles))
			return
		}
		c.Next()
	}
}

// RequireAdmin is a convenience middleware that requires the admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// extractBearerToken extracts the token from a Bearer authorization header
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
