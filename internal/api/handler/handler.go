package handler

import (
	"net/http"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/chathub"
	"debatechat/backend/internal/config"
	"debatechat/backend/internal/moderation"
	"debatechat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler holds everything the HTTP and websocket endpoints need.
type Handler struct {
	Storage     storage.Storage
	Hub         *chathub.ManagerService
	Coordinator *chathub.Coordinator
	Moderation  *moderation.Service
	Auth        config.AuthConfig
	Survey      config.SurveyConfig
	Log         zerolog.Logger
}

func NewHandler(s storage.Storage, hub *chathub.ManagerService, co *chathub.Coordinator, mod *moderation.Service, auth config.AuthConfig, survey config.SurveyConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		Storage:     s,
		Hub:         hub,
		Coordinator: co,
		Moderation:  mod,
		Auth:        auth,
		Survey:      survey,
		Log:         logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes mounts the public API on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.POST("/signup", h.Signup)

	authed := r.Group("/", h.AuthRequired())
	authed.GET("/user", h.GetUser)
	authed.PUT("/user", h.UpdateUser)
	authed.POST("/initial-view", h.SubmitInitialView)
	authed.GET("/waiting-status", h.WaitingStatus)
	authed.GET("/chatroom", h.GetChatroom)

	ws := r.Group("/ws", h.AuthRequired())
	ws.GET("/waiting-room", h.ServeWaitingRoom)
	ws.GET("/chatroom", h.ServeChatroom)
}

// respondError logs err and writes a generic body for its status.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, apperrors.NewAPIError(http.StatusText(status), status))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
