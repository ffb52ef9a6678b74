package ws

import (
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/rvedder/gambit/internal/services"
	"github.com/rvedder/gambit/internal/ws"
)

func handleWs(c *websocket.Conn) {
	services := c.Locals("services").(*services.Services) //nolint: errcheck

	h := ws.NewHandler(c, services)
	if err := h.Handle(); err != nil {
		slog.Debug("Websocket connection closed", "err", err)
	}
}

// SetupRoutes registers the websocket endpoint.
func SetupRoutes(app *fiber.App) {
	app.Get("/ws", websocket.New(handleWs))
}
