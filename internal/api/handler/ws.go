package handler

import (
	"net/http"

	"debatechat/backend/internal/chathub"
	"debatechat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The survey frontend is served from another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// waitingRoomPages are the screens that hold a waiting-room connection.
var waitingRoomPages = map[models.Page]bool{
	models.PageView:     true,
	models.PageWaiting:  true,
	models.PageTutorial: true,
}

// ServeWaitingRoom upgrades a waiting-room connection. page is the screen
// the client is on and defaults to waiting.
func (h *Handler) ServeWaitingRoom(c *gin.Context) {
	page := models.Page(c.DefaultQuery("page", string(models.PageWaiting)))
	if !waitingRoomPages[page] {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown page"})
		return
	}
	h.serveWebSocket(c, models.NamespaceWaitingRoom, page)
}

func (h *Handler) ServeChatroom(c *gin.Context) {
	h.serveWebSocket(c, models.NamespaceChatroom, models.PageChatroom)
}

func (h *Handler) serveWebSocket(c *gin.Context, ns models.Namespace, page models.Page) {
	user := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Warn().Err(err).Uint("user_id", user.ID).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Hub, h.Coordinator, user.ID, ns, page, h.Log)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}
