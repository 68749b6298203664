package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/Gigsy/internal/config"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/profile"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "gigsy"

// Service handles local credential sign-up and sign-in
type Service struct {
	store    store.Store
	profiles *profile.Service
	config   *config.JWTConfig
	now      func() time.Time
}

// NewService creates a new auth service
func NewService(st store.Store, profiles *profile.Service, cfg *config.JWTConfig) *Service {
	return &Service{
		store:    st,
		profiles: profiles,
		config:   cfg,
		now:      time.Now,
	}
}

// Claims represents JWT claims
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	Email  string      `json:"email"`
	jwt.RegisteredClaims
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// RegisterRequest represents a sign-up request
type RegisterRequest struct {
	Email       string             `json:"email" binding:"required,email"`
	Password    string             `json:"password" binding:"required,min=8"`
	DisplayName string             `json:"display_name" binding:"max=50"`
	AccountType models.AccountType `json:"account_type" binding:"omitempty,oneof=individual group"`
}

// LoginRequest represents a sign-in request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// SessionResponse is returned by sign-up and sign-in
type SessionResponse struct {
	Profile *profile.ProfileResponse `json:"profile"`
	Tokens  TokenPair                `json:"tokens"`
}

// Register creates a profile with a password and its empty wallet
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*SessionResponse, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	create := &profile.CreateRequest{
		Email:        req.Email,
		AccountType:  req.AccountType,
		PasswordHash: &passwordHash,
		Source:       "signup",
	}
	if req.DisplayName != "" {
		name := req.DisplayName
		create.DisplayName = &name
	}
	if create.AccountType == models.AccountTypeGroup {
		create.Role = models.RoleGroup
	}

	p, _, err := s.profiles.Create(ctx, create)
	if err != nil {
		if errors.Is(err, profile.ErrEmailTaken) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, err
	}

	tokens, err := s.generateTokenPair(p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &SessionResponse{
		Profile: profile.ToResponse(p),
		Tokens:  *tokens,
	}, nil
}

// Login authenticates a profile by email and password
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*SessionResponse, error) {
	p, err := s.store.Profiles().GetByEmail(ctx, profile.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same answer as a wrong password
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	// Profiles created through the identity provider have no local password
	if p.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, *p.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.generateTokenPair(p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &SessionResponse{
		Profile: profile.ToResponse(p),
		Tokens:  *tokens,
	}, nil
}

// RefreshTokens rotates a token pair from a valid refresh token
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.validateToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Subject != "refresh" {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Role changes since the last pair are picked up here
	p, err := s.store.Profiles().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	return s.generateTokenPair(p)
}

// ValidateAccessToken validates an access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.validateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != "access" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Identity converts validated claims to a caller identity
func (c *Claims) Identity() (*models.Identity, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &models.Identity{
		ProfileID: &id,
		Email:     c.Email,
		Role:      c.Role,
	}, nil
}

func (s *Service) generateTokenPair(p *models.Profile) (*TokenPair, error) {
	now := s.now()
	accessExpiry := now.Add(time.Duration(s.config.AccessTokenExpiry) * time.Minute)
	refreshExpiry := now.Add(time.Duration(s.config.RefreshTokenExpiry) * time.Hour)

	access, err := s.sign(p, "access", now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.sign(p, "refresh", now, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
		TokenType:    "Bearer",
	}, nil
}

func (s *Service) sign(p *models.Profile, kind string, now, expiry time.Time) (string, error) {
	claims := &Claims{
		UserID: p.ID.String(),
		Role:   p.Role,
		Email:  p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   kind,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        generateJTI(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

func (s *Service) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// generateJTI generates a unique JWT ID
func generateJTI() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
