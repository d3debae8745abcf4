// controllers/auth_controller.go
package controllers

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/devzayn/otpbazaar_backend/middleware"
	"github.com/devzayn/otpbazaar_backend/models"
	"github.com/devzayn/otpbazaar_backend/repositories"
	"github.com/devzayn/otpbazaar_backend/utils"
)

// AuthController contains admin authentication logic
type AuthController struct {
	adminRepo *repositories.AdminRepository
	validate  *validator.Validate
	logger    *log.Logger
}

// NewAuthController creates a new auth controller
func NewAuthController(db *mongo.Client) *AuthController {
	return &AuthController{
		adminRepo: repositories.NewAdminRepository(db),
		validate:  validator.New(),
		logger:    log.New(os.Stdout, "[AUTH] ", log.LstdFlags),
	}
}

// Login authenticates an admin and issues a JWT
func (ac *AuthController) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	if err := ac.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Email and password are required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	admin, err := ac.adminRepo.GetAdminByEmail(ctx, req.Email)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return c.JSON(http.StatusUnauthorized, models.Response{
				Status:  http.StatusUnauthorized,
				Message: "Invalid email or password",
			})
		}
		ac.logger.Printf("Failed to look up admin %s: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to process login",
		})
	}

	if !utils.CheckPassword(admin.Password, req.Password) {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}

	token, refreshToken, err := middleware.GenerateJWT(admin.ID.Hex(), admin.Email, admin.TelegramID)
	if err != nil {
		ac.logger.Printf("Failed to generate token for %s: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	ac.logger.Printf("Admin %s logged in", admin.Email)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data: models.LoginResponse{
			Token:        token,
			RefreshToken: refreshToken,
		},
	})
}
