// handlers/events.go
package handlers

import (
	"club-engagement-system/middleware"
	"club-engagement-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupEventRoutes(app *fiber.App, eventService *services.EventService, checkinService *services.CheckInService, photoService *services.PhotoService) {
	// Public reads — no user context, but still behind Gateway auth.
	app.Get("/events", eventService.GetAllEvents)
	app.Get("/events/:id", eventService.GetEvent)
	app.Get("/events/:id/photos", photoService.GetEventPhotos)

	// Member actions require user context.
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/events/:id/rsvp", checkinService.HandleRSVP)
	secured.Post("/events/:id/photos", photoService.HandleUpload)
}
