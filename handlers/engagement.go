// handlers/engagement.go
package handlers

import (
	"club-engagement-system/middleware"
	"club-engagement-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupEngagementRoutes wires ticket issuance, ticket verification and
// the points ledger.
func SetupEngagementRoutes(app *fiber.App, ticketService *services.TicketService, checkinService *services.CheckInService, pointsService *services.PointsService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Admin QR view polls this every few seconds while open.
	secured.Post("/checkin/ticket", ticketService.HandleIssueTicket)
	secured.Post("/checkin/verify", checkinService.HandleVerify)

	secured.Post("/points/award", pointsService.HandleAward)
	secured.Get("/points/balance", pointsService.GetBalance)
	secured.Get("/points/history", pointsService.GetHistory)

	// Leaderboard is a public read.
	app.Get("/points/leaderboard", pointsService.GetLeaderboard)
}
