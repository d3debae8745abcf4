// routes/routes.go
package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/devzayn/otpbazaar_backend/controllers"
	"github.com/devzayn/otpbazaar_backend/middleware"
	"github.com/devzayn/otpbazaar_backend/services"
	"github.com/devzayn/otpbazaar_backend/websocket"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, db *mongo.Client, bulk *services.BulkService, hub *websocket.Hub) {
	authController := controllers.NewAuthController(db)
	bulkController := controllers.NewBulkController(db, bulk)
	accountController := controllers.NewAccountController(db)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/api/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(c, hub)
	})

	// Admin routes group
	admin := e.Group("/api/admin")

	// Public routes (no auth required)
	admin.POST("/login", authController.Login)

	// Protected routes (require admin authentication)
	protected := admin.Group("")
	protected.Use(middleware.JWTMiddleware())

	// Bulk provisioning routes
	protected.POST("/bulk-jobs", bulkController.CreateJob)
	protected.POST("/bulk-jobs/start", bulkController.StartJob)
	protected.POST("/bulk-jobs/pause", bulkController.PauseJob)
	protected.POST("/bulk-jobs/resume", bulkController.ResumeJob)
	protected.POST("/bulk-jobs/skip", bulkController.SkipCurrent)
	protected.POST("/bulk-jobs/cancel", bulkController.CancelJob)
	protected.POST("/bulk-jobs/input", bulkController.SubmitInput)
	protected.GET("/bulk-jobs/progress", bulkController.GetProgress)

	// Inventory routes
	protected.GET("/accounts/stock", accountController.GetStock)
	protected.GET("/countries", accountController.GetCountries)
	protected.PUT("/countries", accountController.UpsertCountry)
}
