package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/errors"
)

var validate = validator.New()

// validateRequest checks req against its struct tags and reports the first
// violation as ErrInvalidInput.
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err.Error()
	}
	e := validationErrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s: field is required", e.Field())
	case "min":
		return fmt.Sprintf("%s: must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s: must not exceed %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s: validation failed (%s)", e.Field(), e.Tag())
	}
}
