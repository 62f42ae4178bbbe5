package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"club-engagement-system/handlers"
	"club-engagement-system/middleware"
	"club-engagement-system/models"
	"club-engagement-system/services"
	"club-engagement-system/utils"
	"club-engagement-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // photos
	})

	// GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// TranslateError maps unique-constraint violations to
	// gorm.ErrDuplicatedKey, which the ledger and role authority rely
	// on to resolve duplicate-write races as typed outcomes.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Event{},
		&models.RoleGrant{},
		&models.Attendance{},
		&models.PointsTransaction{},
		&models.UserPointsBalance{},
		&models.EventPhoto{},
		&models.Member{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// AutoMigrate cannot express a partial index; the active-grant
	// uniqueness must exclude revoked rows.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_role_grants_active
		ON role_grants (user_id, role_type)
		WHERE revoked_at IS NULL
	`).Error; err != nil {
		log.Fatal("failed to create active role grant index:", err)
	}

	// NULL event_ids are distinct under the composite unique index, so
	// event-less awards need their own guard.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_points_user_reason_no_event
		ON points_transactions (user_id, reason)
		WHERE event_id IS NULL
	`).Error; err != nil {
		log.Fatal("failed to create event-less points index:", err)
	}

	ticketSecret := os.Getenv("TICKET_SIGNING_SECRET")
	if ticketSecret == "" {
		log.Fatal("TICKET_SIGNING_SECRET environment variable not set")
	}
	ticketTTL := 5 * time.Minute
	if v := os.Getenv("TICKET_TTL_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			ticketTTL = time.Duration(minutes) * time.Minute
		}
	}

	roleService := services.NewRoleService(db)
	eventService := services.NewEventService(db, roleService)
	ticketService := services.NewTicketService(db, roleService, []byte(ticketSecret), ticketTTL)
	pointsService := services.NewPointsService(db, services.PointsConfigFromEnv())
	checkinService := services.NewCheckInService(db, ticketService, pointsService)
	photoService := services.NewPhotoService(db, pointsService, roleService)

	if seeds := os.Getenv("BOOTSTRAP_SUPER_ADMINS"); seeds != "" {
		if err := roleService.BootstrapSuperAdmins(seeds); err != nil {
			log.Fatal("failed to bootstrap super admins:", err)
		}
	}

	identityServiceURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityServiceURL == "" {
		log.Fatal("IDENTITY_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("CLUB_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("CLUB_SERVICE_TOKEN environment variable not set")
	}

	memberSync := workers.NewMemberSyncWorker(db, identityServiceURL, "/api/v1/public/profiles", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	memberSync.Start(ctx)
	go workers.PollBalances(ctx, workers.NewBalanceAuditor(db), 5*time.Minute)

	eventService.StartArchiveScheduler()

	handlers.SetupAdminRoutes(app, roleService, eventService, photoService)
	handlers.SetupEventRoutes(app, eventService, checkinService, photoService)
	handlers.SetupEngagementRoutes(app, ticketService, checkinService, pointsService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	log.Println("server running on http://localhost:5300")
	log.Println("member sync worker running")
	log.Println("balance audit worker running (every 5m)")
	log.Printf("CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("shutting down server...")
}
