package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/archives-observability/archives/archerr"
	"github.com/go-playground/validator/v10"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateStruct checks `validate` tags and returns the first violation as an
// InvalidParameter error naming the field.
func ValidateStruct(s interface{}) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return archerr.Param(fe.Field(), describeViolation(fe))
	}
	return archerr.Wrap(archerr.InvalidRequest, err, "request validation failed")
}

func describeViolation(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "hexadecimal":
		return "must be hexadecimal"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}
