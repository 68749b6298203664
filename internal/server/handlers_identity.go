package server

import (
	"io"
	"net/http"

	"github.com/aimerfeng/Gigsy/internal/auth"
	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/middleware"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/profile"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// handleSignup handles local account registration
func (s *APIServer) handleSignup(c *gin.Context) {
	var req auth.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.authService.Register(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// handleSignin handles email and password login
func (s *APIServer) handleSignin(c *gin.Context) {
	var req auth.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.authService.Login(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleRefresh(c *gin.Context) {
	var req auth.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := s.authService.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// handleSignout acknowledges a signout. Tokens are stateless; clients drop them.
func (s *APIServer) handleSignout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Signed out successfully"})
}

func (s *APIServer) handleIdentityWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		middleware.RespondError(c, apierrors.NewInvalidRequestError("unreadable body"))
		return
	}

	result, err := s.webhookService.Handle(c.Request.Context(), c.Request.Header, body, c.ClientIP())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *APIServer) handleGetMe(c *gin.Context) {
	resp, err := s.profileService.GetCurrentUser(c.Request.Context(), middleware.IdentityFromContext(c))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleGetDashboard(c *gin.Context) {
	summary, err := s.dashboardService.Summary(c.Request.Context(), middleware.ProfileFromContext(c))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleListUsers lists profiles, optionally filtered by ?role=
func (s *APIServer) handleListUsers(c *gin.Context) {
	resp, err := s.profileService.ListProfiles(c.Request.Context(),
		middleware.ProfileFromContext(c),
		models.Role(c.Query("role")),
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 20),
	)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleGetProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.profileService.GetProfile(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleUpdateProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req profile.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.profileService.UpdateProfile(c.Request.Context(), middleware.IdentityFromContext(c), id, &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleVerifyProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.profileService.Verify(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type setRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

func (s *APIServer) handleSetRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.profileService.SetRole(c.Request.Context(), middleware.ProfileFromContext(c), id, req.Role)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
