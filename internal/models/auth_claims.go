package models

import "github.com/golang-jwt/jwt/v5"

type JwtCustomClaims struct {
	UserID string `json:"userID"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ErrorResponse is the generic error envelope returned by the API.
type ErrorResponse struct {
	Message string `json:"message"`
}
