package utils

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

// RequestValidator wraps go-playground/validator for request DTOs.
type RequestValidator struct {
	validate *validator.Validate
}

var (
	validatorOnce sync.Once
	validatorInst *RequestValidator
)

// GetValidator returns the shared validator instance.
func GetValidator() *RequestValidator {
	validatorOnce.Do(func() {
		validatorInst = &RequestValidator{validate: validator.New()}
	})
	return validatorInst
}

// Validate runs struct-tag validation on a request body.
func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
