package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/devzayn/otpbazaar_backend/bot"
	"github.com/devzayn/otpbazaar_backend/config"
	"github.com/devzayn/otpbazaar_backend/middleware"
	"github.com/devzayn/otpbazaar_backend/repositories"
	"github.com/devzayn/otpbazaar_backend/routes"
	"github.com/devzayn/otpbazaar_backend/models"
	"github.com/devzayn/otpbazaar_backend/services"
	"github.com/devzayn/otpbazaar_backend/utils"
	"github.com/devzayn/otpbazaar_backend/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis (flood-wait tracking; optional)
	redisClient := config.ConnectRedis()
	defer config.CloseRedis()

	// Connect to database
	client := config.ConnectDB()

	// Repositories
	accountRepo := repositories.NewAccountRepository(client)
	adminRepo := repositories.NewAdminRepository(client)
	countryRepo := repositories.NewCountryRepository(client)

	// Bootstrap the first admin from env on an empty deployment
	if err := seedDefaultAdmin(adminRepo); err != nil {
		log.Printf("Warning: default admin not seeded: %v", err)
	}

	// Verification facade and bulk engine
	gateway := services.NewLoginGateway(redisClient)
	bulkService := services.NewBulkService(gateway, accountRepo)

	// WebSocket hub pushes job events to the dashboard
	wsHub := websocket.NewHub()
	go wsHub.Run()
	bulkService.AddSink(wsHub)

	// Summary emails
	bulkService.AddSink(services.NewReportService())

	// Telegram bot (optional, enabled by BOT_TOKEN)
	tgBot, err := bot.New(bulkService, adminRepo, countryRepo, accountRepo)
	if err != nil {
		log.Fatal("Failed to start Telegram bot:", err)
	}
	if tgBot != nil {
		bulkService.AddSink(tgBot)
		go tgBot.Start()
	}

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	e.Validator = &CustomValidator{validator: validator.New()}

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())

	routes.RegisterRoutes(e, client, bulkService, wsHub)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}

// seedDefaultAdmin creates the admin from SEED_ADMIN_EMAIL /
// SEED_ADMIN_PASSWORD / SEED_ADMIN_TELEGRAM_ID if no admin with that email
// exists yet. Skipped when the env vars are not set.
func seedDefaultAdmin(adminRepo *repositories.AdminRepository) error {
	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	telegramID, err := strconv.ParseInt(os.Getenv("SEED_ADMIN_TELEGRAM_ID"), 10, 64)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := adminRepo.GetAdminByEmail(ctx, email); err == nil {
		return nil
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	if err := adminRepo.CreateAdmin(ctx, &models.Admin{
		Email:      email,
		Password:   hashed,
		TelegramID: telegramID,
	}); err != nil {
		return err
	}

	log.Printf("Seeded default admin %s", email)
	return nil
}
