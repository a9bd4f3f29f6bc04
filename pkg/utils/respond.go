package utils

import (
	"errors"
	"net/http"
	"strconv"

	"crowdship/internal/models"
	"crowdship/pkg/otp"

	"github.com/labstack/echo/v4"
)

// RespondWithJSON writes a JSON body with the given status code.
func RespondWithJSON(c echo.Context, status int, payload interface{}) error {
	return c.JSON(status, payload)
}

// RespondWithError writes the standard error envelope.
func RespondWithError(c echo.Context, status int, message string) error {
	return c.JSON(status, models.ErrorResponse{Message: message})
}

// HandleServiceError maps domain errors to HTTP responses. Every service
// error funnels through here so handlers stay thin.
func HandleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return RespondWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidCoordinate):
		return RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrStateConflict),
		errors.Is(err, models.ErrConflict):
		return RespondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrForbidden),
		errors.Is(err, models.ErrKYCNotApproved):
		return RespondWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrInvalidCredentials):
		return RespondWithError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, otp.ErrMismatch),
		errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrAlreadyUsed):
		return RespondWithError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrDisputeFlagged):
		// Not a plain failure: the delivery left the happy path and now
		// needs an admin. 423 tells the client the resource is locked.
		return RespondWithError(c, http.StatusLocked, err.Error())
	default:
		c.Logger().Errorf("unhandled service error: %v", err)
		return RespondWithError(c, http.StatusInternalServerError, "internal error")
	}
}

// ExtractUserInfo pulls the authenticated caller's identity out of the echo
// context, where the JWT middleware stashed it.
func ExtractUserInfo(c echo.Context) (userID, role string, err error) {
	id, ok := c.Get("userID").(string)
	if !ok || id == "" {
		return "", "", RespondWithError(c, http.StatusUnauthorized, "Not authenticated")
	}
	r, _ := c.Get("userRole").(string)
	return id, r, nil
}

// GetPageLimit reads pagination query params, falling back to defaultLimit
// when limit is absent or outside [1, maxLimit].
func GetPageLimit(c echo.Context, defaultLimit, maxLimit int) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	return page, limit
}
