package binding

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorV10 "github.com/go-playground/validator/v10"
)

var validator = newValidator()

// newValidator reports fields by their query parameter name.
func newValidator() *validatorV10.Validate {
	v := validatorV10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.Split(f.Tag.Get("query"), ",")[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func validateStruct(v any) error {
	err := validator.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validatorV10.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &BindError{Type: "validation_error", Message: err.Error()}
	}
	bindErrors := make(ValidationErrors, 0, len(validationErrors))
	for _, fe := range validationErrors {
		bindErrors = append(bindErrors, BindError{
			Type:    "validation_error",
			Field:   fe.Field(),
			Message: getValidationMessage(fe),
		})
	}
	return bindErrors
}

func getValidationMessage(fe validatorV10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters long", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}
