package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/groupchat-api/internal/sendwindow"
)

// NewValidator returns a validator with the custom tags used by the DTOs registered.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return sendwindow.ValidClock(fl.Field().String())
	})
	return validate
}
