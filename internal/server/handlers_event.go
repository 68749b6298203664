package server

import (
	"net/http"

	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/event"
	"github.com/aimerfeng/Gigsy/internal/middleware"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/gin-gonic/gin"
)

func (s *APIServer) handleListEvents(c *gin.Context) {
	var req event.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.RespondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.eventService.ListEvents(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleCreateEvent(c *gin.Context) {
	var req event.CreateEventRequest
	if !bindJSON(c, &req) {
		return
	}

	e, err := s.eventService.CreateEvent(c.Request.Context(), middleware.ProfileFromContext(c), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *APIServer) handleGetEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := s.eventService.GetEvent(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *APIServer) handleCancelEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	e, err := s.eventService.CancelEvent(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *APIServer) handleListRegistrations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	regs, err := s.eventService.ListRegistrations(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

// handleRegister registers the caller for an event
func (s *APIServer) handleRegister(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reg, err := s.eventService.Register(c.Request.Context(), id, middleware.ProfileFromContext(c).ID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

type attendanceRequest struct {
	Status models.RegistrationStatus `json:"status" binding:"required,oneof=attended no_show"`
}

func (s *APIServer) handleMarkAttendance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req attendanceRequest
	if !bindJSON(c, &req) {
		return
	}

	reg, err := s.eventService.MarkAttendance(c.Request.Context(), middleware.ProfileFromContext(c), id, req.Status)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (s *APIServer) handleClaimReward(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.eventService.ClaimReward(c.Request.Context(), middleware.ProfileFromContext(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
