package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rvedder/gambit/internal/middleware"
)

// SetupRoutes sets up the API routes.
func SetupRoutes(app *fiber.App) {
	apiGroup := app.Group("/api", middleware.AuthOrToken())

	// Client routes
	apiGroup.Post("/clients/register", RegisterClient)
	apiGroup.Post("/clients/heartbeat", Heartbeat)
	apiGroup.Get("/clients", GetClients)

	// Position routes
	apiGroup.Post("/positions/evaluations", SubmitEvaluations)
	apiGroup.Post("/positions/lookup", LookupPositions)
	apiGroup.Get("/positions/stats", GetBookStats)
}
