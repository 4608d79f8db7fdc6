package controller

import (
	"log"

	"meetsync/notify"
	"meetsync/utils"

	"github.com/gofiber/websocket/v2"
)

// HandleNotificationWS keeps a principal's in-app connection registered on
// the hub so fallback notifications reach them live. The connection stays
// open until the client goes away.
func HandleNotificationWS(hub *notify.Hub, logger *log.Logger) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		userID := utils.ParseUint(c.Params("userID"))
		if userID == 0 {
			logger.Printf("Websocket connection with invalid user ID rejected")
			return
		}

		hub.Register(userID, c)
		defer hub.Unregister(userID, c)

		for {
			// Drain client frames; we only push server-side
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}
}
