package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/samirrijal/huddle/internal/core/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("latitude", validateLatitude)
	validate.RegisterValidation("longitude", validateLongitude)
}

func validateLatitude(fl validator.FieldLevel) bool {
	lat := fl.Field().Float()
	return lat >= -90 && lat <= 90
}

func validateLongitude(fl validator.FieldLevel) bool {
	lon := fl.Field().Float()
	return lon >= -180 && lon <= 180
}

// Record checks a stored record against its struct tags. Violations wrap
// domain.ErrMalformedRecord.
func Record(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%s: %w", describe(err), domain.ErrMalformedRecord)
	}
	return nil
}

// Request checks a decoded request body. Violations wrap
// domain.ErrInvalidInput.
func Request(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%s: %w", describe(err), domain.ErrInvalidInput)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
