// handlers/admin.go
package handlers

import (
	"club-engagement-system/middleware"
	"club-engagement-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes wires the role authority and the event CRUD
// collaborator. Both sit behind user context; fine-grained gating
// (super_admin vs event_manager) happens inside the services.
func SetupAdminRoutes(app *fiber.App, roleService *services.RoleService, eventService *services.EventService, photoService *services.PhotoService) {
	admin := app.Group("/admin", middleware.UserContextMiddleware())

	admin.Post("/roles", roleService.HandleRoles)
	admin.Post("/events", eventService.HandleAdminEvents)
	admin.Delete("/photos/:id", photoService.HandleDelete)
}
