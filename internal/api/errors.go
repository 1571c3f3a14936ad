package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sykell/product-scraper/internal/apperr"
	"github.com/sykell/product-scraper/internal/scraper"
	"github.com/sykell/product-scraper/internal/siteconfig"
	"github.com/sykell/product-scraper/internal/staging"
)

// toAppError maps domain errors onto the API error envelope
func toAppError(err error) *apperr.AppError {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}

	switch {
	case errors.Is(err, siteconfig.ErrConfigNotFound):
		return apperr.New(apperr.CodeConfigNotFound, "Scraper configuration not found").WithCause(err).WithDetails(err.Error())
	case errors.Is(err, staging.ErrNotFound):
		return apperr.NotFound("Staging product not found").WithCause(err).WithDetails(err.Error())
	case errors.Is(err, scraper.ErrJobNotFound):
		return apperr.NotFound("Scrape job not found").WithCause(err)
	case errors.Is(err, staging.ErrInvalidTransition):
		return apperr.New(apperr.CodeInvalidTransition, "Staging product is already reviewed").WithCause(err).WithDetails(err.Error())
	case errors.Is(err, scraper.ErrQueueFull), errors.Is(err, scraper.ErrNotRunning):
		return apperr.New(apperr.CodeQueueFull, "Scraper is busy, try again later").WithCause(err).WithDetails(err.Error())
	default:
		return apperr.Internal(err)
	}
}

// respondError aborts the request with the error envelope
func respondError(c *gin.Context, err error) {
	respondErrorWith(c, err, nil)
}

// respondErrorWith aborts the request with the error envelope plus extra keys
func respondErrorWith(c *gin.Context, err error, extra gin.H) {
	appErr := toAppError(err)
	if appErr.Cause != nil {
		_ = c.Error(appErr.Cause)
	}

	body := gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	if appErr.Details != "" && appErr.Code != apperr.CodeInternal {
		body["details"] = appErr.Details
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, body)
}

// paramID parses a positive numeric path parameter
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperr.Validation("Invalid "+name, apperr.FieldError{Field: name, Message: "must be a positive integer"}))
		return 0, false
	}
	return uint(id), true
}
