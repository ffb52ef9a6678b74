package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rvedder/gambit/internal/routes/api"
	"github.com/rvedder/gambit/internal/routes/ws"
)

func rootHandler(c *fiber.Ctx) error {
	return c.Redirect("/api/positions/stats")
}

func SetupRoutes(app *fiber.App) {
	// Serve API routes
	api.SetupRoutes(app)

	// Serve websocket lookups
	ws.SetupRoutes(app)

	// Serve root page
	app.Get("/", rootHandler)
}
