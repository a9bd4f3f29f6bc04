package api

import (
	"net/http"

	"crowdship/internal/api/middleware"
	"crowdship/internal/modules/admin"
	"crowdship/internal/modules/chat"
	"crowdship/internal/modules/deliveries"
	"crowdship/internal/modules/pricing"
	"crowdship/internal/modules/ratings"
	"crowdship/internal/modules/tracking"
	"crowdship/internal/modules/users"

	"github.com/labstack/echo/v4"
)

// Handlers bundles every module's HTTP surface for route registration.
type Handlers struct {
	Users      *users.Handler
	Deliveries *deliveries.Handler
	Tracking   *tracking.Handler
	Chat       *chat.Handler
	Ratings    *ratings.Handler
	Pricing    *pricing.Handler
	Admin      *admin.Handler
}

// RegisterRoutes mounts all endpoints. Everything under /api except auth
// requires a valid token; /track/:id is deliberately public so a recipient
// without an account can follow a parcel.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/track/:id", h.Deliveries.Track)

	auth := e.Group("/api/auth")
	auth.POST("/signup", h.Users.Signup)
	auth.POST("/login", h.Users.Login)
	auth.GET("/google", h.Users.GoogleLogin)
	auth.GET("/google/callback", h.Users.GoogleCallback)

	api := e.Group("/api", middleware.JWTAuth(jwtSecret))

	api.POST("/pricing/estimate", h.Pricing.Estimate)

	api.GET("/users/me", h.Users.Me)
	api.POST("/users/me/role", h.Users.SwitchRole)
	api.GET("/users/:id/ratings", h.Ratings.Summary)

	api.POST("/carriers/kyc", h.Users.SubmitKYC)
	api.GET("/carriers/me", h.Users.GetCarrierProfile)
	api.PUT("/carriers/me/online", h.Users.SetOnline)

	api.POST("/deliveries", h.Deliveries.Create)
	api.GET("/deliveries", h.Deliveries.ListMine)
	api.GET("/deliveries/nearby", h.Deliveries.ListNearby)
	api.GET("/deliveries/:id", h.Deliveries.Get)
	api.POST("/deliveries/:id/accept", h.Deliveries.Accept)
	api.POST("/deliveries/:id/verify-pickup", h.Deliveries.VerifyPickup)
	api.POST("/deliveries/:id/verify-delivery", h.Deliveries.VerifyDelivery)
	api.POST("/deliveries/:id/cancel", h.Deliveries.Cancel)
	api.POST("/deliveries/:id/dispute", h.Deliveries.OpenDispute)

	api.POST("/deliveries/:id/location", h.Tracking.RecordPing)
	api.GET("/deliveries/:id/location", h.Tracking.History)

	api.POST("/deliveries/:id/messages", h.Chat.SendMessage)
	api.GET("/deliveries/:id/messages", h.Chat.ListMessages)

	api.POST("/ratings", h.Ratings.CreateRating)

	back := api.Group("/admin", middleware.AdminRequired)
	back.GET("/kyc", h.Admin.ListPendingKYC)
	back.PUT("/kyc/:userID", h.Admin.ResolveKYC)
	back.GET("/disputes", h.Admin.ListDisputes)
	back.PUT("/disputes/:id", h.Admin.ResolveDispute)
	back.GET("/config", h.Admin.ListConfig)
	back.PUT("/config", h.Admin.UpdateConfig)
	back.GET("/flagged-carriers", h.Admin.ListFlaggedCarriers)
}
