package handlers

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	ws "mangrovewatch/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The feed is read-only and carries public incident data.
		return true
	},
}

// LiveFeed upgrades to a WebSocket carrying incident lifecycle events.
func (h *Handlers) LiveFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// FeedStats reports how many clients are on the live feed and how many
// events went out, for operational monitoring.
func (h *Handlers) FeedStats(c *gin.Context) {
	clients, broadcasts := h.hub.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": clients,
		"broadcasts":        broadcasts,
	})
}
