// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var entityIDPattern = regexp.MustCompile(`^[A-Z]{3}[0-9A-F]{8}$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("entity_id", validateEntityID)
	validate.RegisterValidation("tier", validateTier)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateEntityID(fl validator.FieldLevel) bool {
	return entityIDPattern.MatchString(fl.Field().String())
}

func validateTier(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "critical", "important", "tracking":
		return true
	}
	return false
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "entity_id":
		return "Entity ID must be a 3-letter retailer code followed by 8 hex characters"
	case "tier":
		return "Tier must be one of critical, important, tracking"
	default:
		return e.Field() + " is invalid"
	}
}
