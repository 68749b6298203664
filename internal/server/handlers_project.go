package server

import (
	"net/http"

	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/middleware"
	"github.com/aimerfeng/Gigsy/internal/project"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleListProjects lists projects. Filters: status, skill, owner.
func (s *APIServer) handleListProjects(c *gin.Context) {
	var req project.ListProjectsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.RespondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	if owner := c.Query("owner"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			middleware.RespondError(c, apierrors.NewInvalidRequestError("invalid owner"))
			return
		}
		req.OwnerID = &id
	}

	resp, err := s.projectService.ListProjects(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleCreateProject(c *gin.Context) {
	var req project.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := s.projectService.CreateProject(c.Request.Context(), middleware.ProfileFromContext(c), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *APIServer) handleGetProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := s.projectService.GetProject(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *APIServer) handleCompleteProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := s.projectService.CompleteProject(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *APIServer) handleCancelProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := s.projectService.CancelProject(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *APIServer) handleListBids(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	bids, err := s.projectService.ListBids(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

func (s *APIServer) handleListBidsByBidder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	bids, err := s.projectService.ListBidsByBidder(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

func (s *APIServer) handleSubmitBid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req project.SubmitBidRequest
	if !bindJSON(c, &req) {
		return
	}

	bid, err := s.projectService.SubmitBid(c.Request.Context(), middleware.ProfileFromContext(c), id, &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

func (s *APIServer) handleAcceptBid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.projectService.AcceptBid(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleRejectBid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	bid, err := s.projectService.RejectBid(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bid)
}

func (s *APIServer) handleListMilestones(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	milestones, err := s.projectService.ListMilestones(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (s *APIServer) handleAddMilestone(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req project.CreateMilestoneRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := s.projectService.AddMilestone(c.Request.Context(), middleware.ProfileFromContext(c), id, &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *APIServer) handleCompleteMilestone(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	m, err := s.projectService.CompleteMilestone(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
