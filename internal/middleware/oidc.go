package middleware

import (
	"context"
	"fmt"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCSource verifies ID tokens from an external identity provider
type OIDCSource struct {
	verifier *oidc.IDTokenVerifier
}

type oidcClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Picture       string `json:"picture"`
	ImageURL      string `json:"image_url"`
}

// NewOIDCSource discovers the provider at issuerURL. Tokens must be issued
// for clientID.
func NewOIDCSource(ctx context.Context, issuerURL, clientID string) (*OIDCSource, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCSource{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewOIDCSourceWithVerifier wraps an existing verifier
func NewOIDCSourceWithVerifier(v *oidc.IDTokenVerifier) *OIDCSource {
	return &OIDCSource{verifier: v}
}

func (o *OIDCSource) Identify(ctx context.Context, token string) (*models.Identity, error) {
	idToken, err := o.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: unreadable token claims", models.ErrUnauthorized)
	}

	id := &models.Identity{Subject: idToken.Subject, ImageURL: claims.Picture}
	if id.ImageURL == "" {
		id.ImageURL = claims.ImageURL
	}
	// only a provider-confirmed email may link to an existing profile
	if claims.EmailVerified != nil && *claims.EmailVerified {
		id.Email = claims.Email
	}
	return id, nil
}
