package services

import (
	"batepapo/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type JoinRequest struct {
	Name string `json:"name" validate:"required"`
}

type SendRequest struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
	Type string `json:"type" validate:"required,oneof=message private_message"`
}

// validateRequest wraps validator failures under ErrValidation so callers
// can map them without knowing about the validator package.
func validateRequest(request any) error {
	if err := validate.Struct(request); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}
