package middleware

import (
	"net/http"

	"crowdship/internal/models"
	"crowdship/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// JWTAuth validates the bearer token and stashes the caller's identity in the
// echo context for handlers to read through utils.ExtractUserInfo.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return new(models.JwtCustomClaims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*models.JwtCustomClaims)
			if !ok {
				return
			}
			c.Set("userID", claims.UserID)
			c.Set("userEmail", claims.Email)
			c.Set("userRole", claims.Role)
		},
	})
}

// AdminRequired gates back-office routes on the admin role.
func AdminRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if role, _ := c.Get("userRole").(string); role != models.RoleAdmin {
			return utils.RespondWithError(c, http.StatusForbidden, "Admin access required")
		}
		return next(c)
	}
}
