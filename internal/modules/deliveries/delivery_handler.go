package deliveries

import (
	"context"
	"net/http"
	"strconv"

	"crowdship/internal/models"
	"crowdship/pkg/geo"
	"crowdship/pkg/utils"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	service ServiceInterface
}

func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// Create handles POST /api/deliveries.
func (h *Handler) Create(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	req := new(models.CreateDeliveryRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	resp, err := h.service.Create(c.Request().Context(), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, resp)
}

// Get handles GET /api/deliveries/:id.
func (h *Handler) Get(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	d, err := h.service.Get(c.Request().Context(), c.Param("id"), userID, role)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, d)
}

// ListMine handles GET /api/deliveries. Optional ?role= narrows to one side
// of the marketplace and ?status= to one lifecycle state.
func (h *Handler) ListMine(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	items, err := h.service.ListMine(c.Request().Context(), userID, c.QueryParam("role"), c.QueryParam("status"))
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, items)
}

// ListNearby handles GET /api/deliveries/nearby?lat=&lng=&radius_km=.
func (h *Handler) ListNearby(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	lat, latErr := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.QueryParam("lng"), 64)
	if latErr != nil || lngErr != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "lat and lng query params are required")
	}
	radius, _ := strconv.ParseFloat(c.QueryParam("radius_km"), 64)

	items, err := h.service.ListNearby(c.Request().Context(), userID, geo.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, items)
}

// Accept handles POST /api/deliveries/:id/accept.
func (h *Handler) Accept(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	d, err := h.service.Accept(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, d)
}

// VerifyPickup handles POST /api/deliveries/:id/verify-pickup.
func (h *Handler) VerifyPickup(c echo.Context) error {
	return h.verify(c, h.service.VerifyPickup)
}

// VerifyDelivery handles POST /api/deliveries/:id/verify-delivery.
func (h *Handler) VerifyDelivery(c echo.Context) error {
	return h.verify(c, h.service.VerifyDelivery)
}

func (h *Handler) verify(c echo.Context, op func(ctx context.Context, deliveryID, carrierID string, req *models.VerifyOTPRequest) (*models.Delivery, error)) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	req := new(models.VerifyOTPRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	d, err := op(c.Request().Context(), c.Param("id"), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, d)
}

// Cancel handles POST /api/deliveries/:id/cancel.
func (h *Handler) Cancel(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	d, err := h.service.Cancel(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, d)
}

// OpenDispute handles POST /api/deliveries/:id/dispute.
func (h *Handler) OpenDispute(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}

	if err := h.service.OpenDispute(c.Request().Context(), c.Param("id"), userID, req.Description); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]string{"status": "disputed"})
}

// Track handles GET /track/:id, the unauthenticated recipient page.
func (h *Handler) Track(c echo.Context) error {
	view, err := h.service.PublicTracking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, view)
}
