package chat

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

// SendMessage handles POST /api/deliveries/:id/messages.
func (h *Handler) SendMessage(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	req := new(models.SendMessageRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	req.DeliveryID = c.Param("id")
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	m, err := h.service.SendMessage(c.Request().Context(), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, m)
}

// ListMessages handles GET /api/deliveries/:id/messages.
func (h *Handler) ListMessages(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	page, limit := utils.GetPageLimit(c, messageLimit, messageLimit)
	msgs, err := h.service.ListMessages(c.Request().Context(), c.Param("id"), userID, page, limit)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, msgs)
}
