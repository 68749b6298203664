package auth

import (
	"fmt"

	"github.com/aimerfeng/Gigsy/internal/models"
)

// Auth-specific errors
var (
	ErrEmailAlreadyExists = fmt.Errorf("email already exists: %w", models.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", models.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
	ErrTokenExpired       = fmt.Errorf("%w: token has expired", models.ErrUnauthorized)
	ErrUserNotFound       = fmt.Errorf("%w: user no longer exists", models.ErrUnauthorized)
	ErrWeakPassword       = models.NewValidationError("password", "must be at least 8 characters")
)
