package admin

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

// ListPendingKYC handles GET /api/admin/kyc.
func (h *Handler) ListPendingKYC(c echo.Context) error {
	items, err := h.service.ListPendingKYC(c.Request().Context())
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, items)
}

// ResolveKYC handles PUT /api/admin/kyc/:userID.
func (h *Handler) ResolveKYC(c echo.Context) error {
	var req struct {
		Status string  `json:"status" validate:"required,oneof=approved rejected"`
		Reason *string `json:"reason,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	if err := h.service.ResolveKYC(c.Request().Context(), c.Param("userID"), req.Status, req.Reason); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]string{"status": req.Status})
}

// ListDisputes handles GET /api/admin/disputes?status=.
func (h *Handler) ListDisputes(c echo.Context) error {
	items, err := h.service.ListDisputes(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, items)
}

// ResolveDispute handles PUT /api/admin/disputes/:id.
func (h *Handler) ResolveDispute(c echo.Context) error {
	req := new(models.ResolveDisputeRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	if err := h.service.ResolveDispute(c.Request().Context(), c.Param("id"), req); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]string{"outcome": req.Outcome})
}

// ListConfig handles GET /api/admin/config.
func (h *Handler) ListConfig(c echo.Context) error {
	items, err := h.service.ListConfig(c.Request().Context())
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, items)
}

// UpdateConfig handles PUT /api/admin/config.
func (h *Handler) UpdateConfig(c echo.Context) error {
	req := new(models.UpdateConfigRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	if err := h.service.UpdateConfig(c.Request().Context(), req); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, req)
}

// ListFlaggedCarriers handles GET /api/admin/flagged-carriers.
func (h *Handler) ListFlaggedCarriers(c echo.Context) error {
	items, err := h.service.ListFlaggedCarriers(c.Request().Context())
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, items)
}
