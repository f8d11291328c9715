package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocket subscribes the caller to a system's dispatch events. The read
// loop only exists to notice the peer going away.
func (h *Handler) WebSocket(c *gin.Context) {
	systemID := c.Param("systemID")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Websocket upgrade failed for system %s: %v", systemID, err)
		return
	}
	if !h.hub.Add(systemID, conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"too many connections"}`))
		conn.Close()
		return
	}
	defer func() {
		h.hub.Remove(systemID, conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
