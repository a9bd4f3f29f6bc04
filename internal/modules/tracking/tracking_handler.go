package tracking

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

// RecordPing handles POST /api/deliveries/:id/location.
func (h *Handler) RecordPing(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	req := new(models.LocationPingRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}

	ping, err := h.service.RecordPing(c.Request().Context(), c.Param("id"), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, ping)
}

// History handles GET /api/deliveries/:id/location.
func (h *Handler) History(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	page, limit := utils.GetPageLimit(c, historyLimit, historyLimit)
	pings, err := h.service.History(c.Request().Context(), c.Param("id"), userID, role, page, limit)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, pings)
}
