package ratings

import (
	"net/http"

	"crowdship/internal/models"
	"crowdship/pkg/utils"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	service ServiceInterface
}

func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// CreateRating handles POST /api/ratings.
func (h *Handler) CreateRating(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	req := new(models.CreateRatingRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	r, err := h.service.CreateRating(c.Request().Context(), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, r)
}

// Summary handles GET /api/users/:id/ratings.
func (h *Handler) Summary(c echo.Context) error {
	if _, _, err := utils.ExtractUserInfo(c); err != nil {
		return err
	}

	page, limit := utils.GetPageLimit(c, listLimit, listLimit)
	summary, err := h.service.Summary(c.Request().Context(), c.Param("id"), page, limit)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, summary)
}
