package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/config"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/profile"
	"github.com/aimerfeng/Gigsy/internal/store/memory"
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

func testConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:             "test-secret-key-for-property-testing-32chars",
		AccessTokenExpiry:  15,
		RefreshTokenExpiry: 168,
	}
}

func newTestService() *Service {
	st := memory.New()
	return NewService(st, profile.NewService(st, nil), testConfig())
}

// generateValidEmail generates a valid email address for testing
func generateValidEmail(t *rapid.T) string {
	localPart := rapid.StringMatching(`[a-z]{5,10}`).Draw(t, "localPart")
	domain := rapid.StringMatching(`[a-z]{3,8}`).Draw(t, "domain")
	tld := rapid.SampledFrom([]string{"com", "org", "net", "io"}).Draw(t, "tld")
	return fmt.Sprintf("%s.%s@%s.%s", localPart, uuid.NewString()[:8], domain, tld)
}

func TestRegisterCreatesProfileAndWallet(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	resp, err := s.Register(ctx, &RegisterRequest{
		Email:       "  Player.One@Example.com ",
		Password:    "hunter22!",
		DisplayName: "Player One",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if resp.Profile.Email != "player.one@example.com" {
		t.Errorf("email not normalized: %q", resp.Profile.Email)
	}
	if resp.Profile.Role != models.RoleIndividual || resp.Profile.AccountType != models.AccountTypeIndividual {
		t.Errorf("unexpected defaults: role=%s account=%s", resp.Profile.Role, resp.Profile.AccountType)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" || resp.Tokens.TokenType != "Bearer" {
		t.Errorf("incomplete token pair: %+v", resp.Tokens)
	}

	w, err := s.store.Wallets().GetByUser(ctx, resp.Profile.ID)
	if err != nil {
		t.Fatalf("wallet not created: %v", err)
	}
	if w.Balance != 0 || w.TotalEarned != 0 || w.TotalSpent != 0 {
		t.Errorf("new wallet should be empty: %+v", w)
	}

	stored, err := s.store.Profiles().Get(ctx, resp.Profile.ID)
	if err != nil {
		t.Fatalf("profile not stored: %v", err)
	}
	if stored.PasswordHash == nil || *stored.PasswordHash == "hunter22!" {
		t.Error("password must be stored as a hash")
	}
}

func TestRegisterGroupAccount(t *testing.T) {
	s := newTestService()
	resp, err := s.Register(context.Background(), &RegisterRequest{
		Email:       "squad@example.com",
		Password:    "password123",
		AccountType: models.AccountTypeGroup,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if resp.Profile.Role != models.RoleGroup {
		t.Errorf("group account should get the group role, got %s", resp.Profile.Role)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.Register(ctx, &RegisterRequest{Email: "dup@example.com", Password: "password123"}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	_, err := s.Register(ctx, &RegisterRequest{Email: "DUP@example.com", Password: "password456"})
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
	if !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate email should be a Conflict, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	s := newTestService()
	_, err := s.Register(context.Background(), &RegisterRequest{Email: "short@example.com", Password: "1234567"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.Register(ctx, &RegisterRequest{Email: "login@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	resp, err := s.Login(ctx, &LoginRequest{Email: "Login@Example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	claims, err := s.ValidateAccessToken(resp.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("issued access token rejected: %v", err)
	}
	if claims.UserID != resp.Profile.ID.String() {
		t.Errorf("claims user %s != profile %s", claims.UserID, resp.Profile.ID)
	}

	_, wrongPassword := s.Login(ctx, &LoginRequest{Email: "login@example.com", Password: "battery-staple"})
	_, unknownEmail := s.Login(ctx, &LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", wrongPassword, unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Error("wrong password and unknown email must be indistinguishable")
	}
}

func TestLoginWithoutLocalPassword(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	subject := "user_ext_1"
	if _, _, err := s.profiles.Create(ctx, &profile.CreateRequest{Email: "ext@example.com", Subject: &subject}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := s.Login(ctx, &LoginRequest{Email: "ext@example.com", Password: "anything-at-all"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

// TestProperty_TokenKinds tests that access and refresh tokens are not interchangeable.
// *For any* profile, the access token SHALL validate only as an access token and the
// refresh token SHALL only be usable for rotation.
func TestProperty_TokenKinds(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom(models.AllRoles).Draw(t, "role")
		p := &models.Profile{
			ID:          uuid.New(),
			Email:       generateValidEmail(t),
			AccountType: models.AccountTypeIndividual,
			Role:        role,
			Level:       1,
		}
		if err := s.store.Profiles().Create(ctx, p); err != nil {
			t.Fatalf("failed to create profile: %v", err)
		}

		pair, err := s.generateTokenPair(p)
		if err != nil {
			t.Fatalf("failed to generate tokens: %v", err)
		}

		claims, err := s.ValidateAccessToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: access token rejected: %v", err)
		}
		if claims.Role != role || claims.Email != p.Email {
			t.Fatalf("PROPERTY VIOLATION: claims do not carry the profile: %+v", claims)
		}

		if _, err := s.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("PROPERTY VIOLATION: refresh token accepted as access token (err=%v)", err)
		}
		if _, err := s.RefreshTokens(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("PROPERTY VIOLATION: access token accepted for refresh (err=%v)", err)
		}

		rotated, err := s.RefreshTokens(ctx, pair.RefreshToken)
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: refresh failed: %v", err)
		}
		if rotated.AccessToken == pair.AccessToken {
			t.Fatal("PROPERTY VIOLATION: rotation returned the same access token")
		}

		id, err := claims.Identity()
		if err != nil || id.ProfileID == nil || *id.ProfileID != p.ID {
			t.Fatalf("PROPERTY VIOLATION: identity does not point at the profile (err=%v)", err)
		}
	})
}

// TestProperty_TamperedTokensRejected tests signature enforcement.
// *For any* issued token, changing any character of its signature SHALL make it invalid.
func TestProperty_TamperedTokensRejected(t *testing.T) {
	s := newTestService()
	p := &models.Profile{ID: uuid.New(), Email: "tamper@example.com", Role: models.RoleIndividual}
	pair, err := s.generateTokenPair(p)
	if err != nil {
		t.Fatalf("failed to generate tokens: %v", err)
	}
	token := pair.AccessToken

	rapid.Check(t, func(t *rapid.T) {
		// Last segment is the signature
		sigStart := len(token) - 43
		pos := rapid.IntRange(sigStart, len(token)-2).Draw(t, "pos")
		replacement := rapid.SampledFrom([]byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_")).Draw(t, "char")
		if token[pos] == replacement {
			return
		}
		tampered := token[:pos] + string(replacement) + token[pos+1:]

		if _, err := s.ValidateAccessToken(tampered); err == nil {
			t.Fatalf("PROPERTY VIOLATION: tampered token accepted at position %d", pos)
		}
	})
}

func TestExpiredAccessToken(t *testing.T) {
	s := newTestService()
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	p := &models.Profile{ID: uuid.New(), Email: "late@example.com", Role: models.RoleIndividual}
	pair, err := s.generateTokenPair(p)
	if err != nil {
		t.Fatalf("failed to generate tokens: %v", err)
	}

	s.now = func() time.Time { return issued.Add(16 * time.Minute) }
	_, err = s.ValidateAccessToken(pair.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("expired token should be Unauthorized, got %v", err)
	}
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	s := newTestService()
	other := newTestService()
	other.config = &config.JWTConfig{Secret: "a-completely-different-secret-value", AccessTokenExpiry: 15, RefreshTokenExpiry: 1}

	p := &models.Profile{ID: uuid.New(), Email: "x@example.com", Role: models.RoleAdmin}
	pair, err := other.generateTokenPair(p)
	if err != nil {
		t.Fatalf("failed to generate tokens: %v", err)
	}
	if _, err := s.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
