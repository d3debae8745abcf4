// controllers/bulk_controller.go
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
	"github.com/devzayn/otpbazaar_backend/services"
)

// BulkController exposes the bulk provisioning engine over HTTP. Every route
// resolves the caller's Telegram identity from the JWT; that identity keys
// the job, so the dashboard and the bot drive the same job.
type BulkController struct {
	bulk        *services.BulkService
	countryRepo *repositories.CountryRepository
	validate    *validator.Validate
	logger      *log.Logger
}

// NewBulkController creates a new bulk controller
func NewBulkController(db *mongo.Client, bulk *services.BulkService) *BulkController {
	return &BulkController{
		bulk:        bulk,
		countryRepo: repositories.NewCountryRepository(db),
		validate:    validator.New(),
		logger:      log.New(os.Stdout, "[BULK] ", log.LstdFlags),
	}
}

// owner resolves the caller's Telegram identity. On failure it writes the
// 401 response itself and reports false.
func (bc *BulkController) owner(c echo.Context) (int64, bool) {
	telegramID, err := middleware.ExtractTelegramID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "No Telegram identity linked to this account",
		})
		return 0, false
	}
	return telegramID, true
}

// bulkError maps engine errors to HTTP responses
func (bc *BulkController) bulkError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch err {
	case services.ErrNoJob:
		status = http.StatusNotFound
	case services.ErrJobExists, services.ErrAlreadyRunning, services.ErrAlreadyStarted, services.ErrBusy:
		status = http.StatusConflict
	case services.ErrNoValidNumbers, services.ErrBadCodeFormat, services.ErrEmptyPassword, services.ErrNoInput:
		status = http.StatusBadRequest
	}
	return c.JSON(status, models.Response{
		Status:  status,
		Message: err.Error(),
	})
}

// CreateJob registers a new bulk job from a list of phone numbers
func (bc *BulkController) CreateJob(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}

	var req models.CreateBulkJobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := bc.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Country and at least one number are required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	country, err := bc.countryRepo.GetCountryByName(ctx, req.Country)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Unknown country: " + req.Country,
			})
		}
		bc.logger.Printf("Country lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to look up country",
		})
	}

	job, invalid, err := bc.bulk.CreateJob(owner, country.Name, req.Numbers)
	if err != nil {
		return bc.bulkError(c, err)
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Bulk job created",
		Data: map[string]interface{}{
			"country":        job.Country,
			"total":          len(job.Attempts()),
			"invalidNumbers": invalid,
		},
	})
}

// StartJob kicks off processing. The engine blocks until the job waits for
// input, so the actual run happens on its own goroutine.
func (bc *BulkController) StartJob(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}

	if _, err := bc.bulk.Job(owner); err != nil {
		return bc.bulkError(c, err)
	}

	go func() {
		if err := bc.bulk.Start(owner); err != nil {
			bc.logger.Printf("Start failed: owner=%d err=%v", owner, err)
		}
	}()

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Bulk job started",
	})
}

// PauseJob stops the job from advancing past the current number
func (bc *BulkController) PauseJob(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}
	if err := bc.bulk.Pause(owner); err != nil {
		return bc.bulkError(c, err)
	}
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Bulk job paused",
	})
}

// ResumeJob re-enables advancement
func (bc *BulkController) ResumeJob(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}

	go func() {
		if err := bc.bulk.Resume(owner); err != nil {
			bc.logger.Printf("Resume failed: owner=%d err=%v", owner, err)
		}
	}()

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Bulk job resumed",
	})
}

// SkipCurrent abandons the current number
func (bc *BulkController) SkipCurrent(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}
	if err := bc.bulk.SkipCurrent(owner); err != nil {
		return bc.bulkError(c, err)
	}
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Current number skipped",
	})
}

// CancelJob tears the job down
func (bc *BulkController) CancelJob(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}
	if err := bc.bulk.Cancel(owner); err != nil {
		return bc.bulkError(c, err)
	}
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Bulk job cancelled",
	})
}

// SubmitInput forwards operator input (OTP, two-step password, or "skip") to
// the engine
func (bc *BulkController) SubmitInput(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}

	var req models.BulkInputRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	if err := bc.bulk.SubmitInput(owner, req.Text); err != nil {
		return bc.bulkError(c, err)
	}

	snap, err := bc.bulk.Progress(owner)
	if err != nil {
		// Input finished the job; there is nothing left to report
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Input accepted, job complete",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Input accepted",
		Data:    snap,
	})
}

// GetProgress returns the polling snapshot
func (bc *BulkController) GetProgress(c echo.Context) error {
	owner, ok := bc.owner(c)
	if !ok {
		return nil
	}

	snap, err := bc.bulk.Progress(owner)
	if err != nil {
		return bc.bulkError(c, err)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Bulk job progress",
		Data:    snap,
	})
}
