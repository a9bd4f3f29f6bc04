package pricing

import (
	"net/http"

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

// Estimate handles POST /api/pricing/estimate: a quote before the sender
// commits to posting.
func (h *Handler) Estimate(c echo.Context) error {
	req := new(models.EstimateRequest)
	if err := c.Bind(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	distance, price, err := h.service.Estimate(c.Request().Context(),
		geo.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		geo.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
		req.WeightKg, req.Timing)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, models.EstimateResponse{
		DistanceKm: distance,
		PriceRs:    price,
	})
}
