// controllers/account_controller.go
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

	"github.com/devzayn/otpbazaar_backend/models"
	"github.com/devzayn/otpbazaar_backend/repositories"
)

// AccountController serves stock and catalog operations
type AccountController struct {
	accountRepo *repositories.AccountRepository
	countryRepo *repositories.CountryRepository
	validate    *validator.Validate
	logger      *log.Logger
}

// NewAccountController creates a new account controller
func NewAccountController(db *mongo.Client) *AccountController {
	return &AccountController{
		accountRepo: repositories.NewAccountRepository(db),
		countryRepo: repositories.NewCountryRepository(db),
		validate:    validator.New(),
		logger:      log.New(os.Stdout, "[STOCK] ", log.LstdFlags),
	}
}

// GetStock returns available-account counts per country. With ?country=X it
// returns the count for that country only.
func (ac *AccountController) GetStock(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if country := c.QueryParam("country"); country != "" {
		count, err := ac.accountRepo.CountAvailable(ctx, country)
		if err != nil {
			ac.logger.Printf("Stock count failed for %s: %v", country, err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to count stock",
			})
		}
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Stock count",
			Data:    map[string]int64{country: count},
		})
	}

	stock, err := ac.accountRepo.StockByCountry(ctx)
	if err != nil {
		ac.logger.Printf("Stock aggregation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to count stock",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Stock counts",
		Data:    stock,
	})
}

// GetCountries lists the active catalog entries
func (ac *AccountController) GetCountries(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	countries, err := ac.countryRepo.GetActiveCountries(ctx)
	if err != nil {
		ac.logger.Printf("Country list failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to list countries",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Active countries",
		Data:    countries,
	})
}

// UpsertCountry creates or updates a catalog entry
func (ac *AccountController) UpsertCountry(c echo.Context) error {
	var req models.UpsertCountryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := ac.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Name and a status of active or disabled are required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := ac.countryRepo.UpsertCountry(ctx, req.Name, req.Price, req.Status); err != nil {
		ac.logger.Printf("Country upsert failed for %s: %v", req.Name, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to save country",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Country saved",
	})
}
