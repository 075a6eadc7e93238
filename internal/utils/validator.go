// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	// Merchant order ids and idempotency keys share the gateways' charset.
	gatewayKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_=:-]+$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("order_id", validateOrderID)
	validate.RegisterValidation("idempotency_key", validateIdempotencyKey)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateVar checks a single value against a tag expression.
func ValidateVar(v interface{}, tag string) error {
	return validate.Var(v, tag)
}

func validateOrderID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if len(id) < 6 || len(id) > 64 {
		return false
	}
	return gatewayKeyPattern.MatchString(id)
}

func validateIdempotencyKey(fl validator.FieldLevel) bool {
	key := fl.Field().String()
	if key == "" {
		return true
	}
	if len(key) > 255 {
		return false
	}
	return gatewayKeyPattern.MatchString(key)
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
	case "uuid", "uuid4":
		return e.Field() + " must be a valid UUID"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gt":
		return e.Field() + " must be greater than " + e.Param()
	case "order_id":
		return e.Field() + " must be 6-64 characters of letters, numbers, '-', '_', '=' or ':'"
	case "idempotency_key":
		return e.Field() + " must be at most 255 characters of letters, numbers, '-', '_', '=' or ':'"
	default:
		return e.Field() + " is invalid"
	}
}
