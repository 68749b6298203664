package server

import (
	"net/http"
	"strconv"

	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/messaging"
	"github.com/aimerfeng/Gigsy/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func (s *APIServer) handleListConversations(c *gin.Context) {
	convs, err := s.messagingService.ListConversations(c.Request.Context(), middleware.ProfileFromContext(c))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *APIServer) handleCreateConversation(c *gin.Context) {
	var req messaging.CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.messagingService.CreateConversation(c.Request.Context(), middleware.ProfileFromContext(c), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// handleListMessages pages a conversation by sequence. ?after=<seq> returns
// only newer messages.
func (s *APIServer) handleListMessages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var after int64
	if v := c.Query("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			middleware.RespondError(c, apierrors.NewInvalidRequestError("invalid after cursor"))
			return
		}
		after = n
	}

	msgs, err := s.messagingService.ListMessages(c.Request.Context(), id,
		middleware.ProfileFromContext(c).ID, after, queryInt(c, "limit", 0))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *APIServer) handleSendMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req messaging.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := s.messagingService.SendMessage(c.Request.Context(), id, middleware.ProfileFromContext(c).ID, &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *APIServer) handleMarkSeen(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req messaging.MarkSeenRequest
	if !bindJSON(c, &req) {
		return
	}

	member, err := s.messagingService.MarkSeen(c.Request.Context(), id, middleware.ProfileFromContext(c).ID, req.MessageID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// handleStream upgrades to a websocket carrying new messages of one
// conversation. Membership is checked before the upgrade.
func (s *APIServer) handleStream(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	caller := middleware.ProfileFromContext(c)
	if err := s.messagingService.CheckMember(c.Request.Context(), id, caller.ID); err != nil {
		middleware.RespondError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the client
		log.Debug().Err(err).Str("conversation_id", id.String()).Msg("Websocket upgrade failed")
		return
	}
	s.hub.Serve(c.Request.Context(), conn, id)
}
