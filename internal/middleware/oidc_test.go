package middleware

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://id.example.com"
	testClientID = "gigsy-web"
)

func oidcFixture(t *testing.T) (*OIDCSource, func(claims jwt.MapClaims) string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	src := NewOIDCSourceWithVerifier(oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testClientID}))

	sign := func(extra jwt.MapClaims) string {
		claims := jwt.MapClaims{
			"iss": testIssuer,
			"aud": testClientID,
			"sub": "user_oidc",
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		for k, v := range extra {
			claims[k] = v
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return token
	}
	return src, sign
}

func TestOIDCIdentify_EmailVerification(t *testing.T) {
	src, sign := oidcFixture(t)

	tests := []struct {
		name      string
		claims    jwt.MapClaims
		wantEmail string
	}{
		{"verified email is kept", jwt.MapClaims{"email": "p@example.com", "email_verified": true}, "p@example.com"},
		{"unverified email is dropped", jwt.MapClaims{"email": "p@example.com", "email_verified": false}, ""},
		{"missing claim counts as unverified", jwt.MapClaims{"email": "p@example.com"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := src.Identify(context.Background(), sign(tt.claims))
			if err != nil {
				t.Fatalf("Identify failed: %v", err)
			}
			if id.Subject != "user_oidc" {
				t.Errorf("subject = %q", id.Subject)
			}
			if id.Email != tt.wantEmail {
				t.Errorf("email = %q, want %q", id.Email, tt.wantEmail)
			}
		})
	}
}

func TestOIDCIdentify_Rejections(t *testing.T) {
	src, sign := oidcFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong audience", sign(jwt.MapClaims{"aud": "someone-else"})},
		{"expired", sign(jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := src.Identify(context.Background(), tt.token); !errors.Is(err, models.ErrUnauthorized) {
				t.Errorf("expected Unauthorized, got %v", err)
			}
		})
	}
}

func TestOIDCIdentify_ImageFallback(t *testing.T) {
	src, sign := oidcFixture(t)
	id, err := src.Identify(context.Background(), sign(jwt.MapClaims{"image_url": "https://img.example.com/a.png"}))
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if id.ImageURL != "https://img.example.com/a.png" {
		t.Errorf("image url = %q", id.ImageURL)
	}
}
