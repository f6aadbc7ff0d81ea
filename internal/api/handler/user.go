package handler

import (
	"fmt"
	"net/http"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type userResponse struct {
	ID            uint             `json:"id"`
	Position      models.Position  `json:"position"`
	Treatment     models.Treatment `json:"treatment"`
	PostSurveyURL string           `json:"post_survey_url"`
	NoChatURL     string           `json:"no_chat_url"`
}

func (h *Handler) GetUser(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, userResponse{
		ID:            user.ID,
		Position:      user.Position,
		Treatment:     user.Treatment,
		PostSurveyURL: user.PostChatURL(h.Survey.PostChatURL),
		NoChatURL:     user.NoChatURL(h.Survey.NoChatURL),
	})
}

type updateUserRequest struct {
	LeaveReason string `json:"leaveReason" binding:"required,max=10000"`
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("update user: %v: %w", err, apperrors.ErrInvalidInput))
		return
	}
	if err := h.Moderation.RecordLeave(c.Request.Context(), currentUser(c).ID, req.LeaveReason); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type initialViewRequest struct {
	View string `json:"view" binding:"required,max=10000"`
}

// SubmitInitialView stores the view and pushes any resulting redirect to the
// user's waiting-room connection.
func (h *Handler) SubmitInitialView(c *gin.Context) {
	var req initialViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("initial view: %v: %w", err, apperrors.ErrInvalidInput))
		return
	}
	if err := h.Coordinator.SubmitView(c.Request.Context(), currentUser(c).ID, req.View, models.PageView, ""); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) WaitingStatus(c *gin.Context) {
	status, err := h.Coordinator.WaitingStatus(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partnerStatus": status})
}

func (h *Handler) GetChatroom(c *gin.Context) {
	snapshot, err := h.Coordinator.Snapshot(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Storage.GetStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": stats})
}
