package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Rules shared by struct tags and single-field checks.
const (
	userNameRules = "min=2,max=100"
	passwordRules = "min=8"
	bioRules      = "max=500"
)

// validateStruct checks s against its validate tags and reports the first
// failing field as a *common.ValidationError.
func validateStruct(s any) error {
	return toValidationError(validate.Struct(s), "")
}

// validateField checks a single value against rules on behalf of field.
func validateField(field string, value any, rules string) error {
	return toValidationError(validate.Var(value, rules), field)
}

func toValidationError(err error, field string) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	fe := verrs[0]
	name := field
	if name == "" {
		name = fe.Field()
	}
	return common.NewValidationError(name, validationMessage(name, fe))
}

func validationMessage(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email", name)
	case "min":
		return fmt.Sprintf("%s length must be at least %s characters long", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s length must be at most %s characters long", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

// normalizeEmail is applied before every lookup and insert by email.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
