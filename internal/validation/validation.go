// Package validation validates request payloads with go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"reflect"
	"strings"
	"sync"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
)

// Validator wraps validator.Validate and reports failures as InvalidArgument errors.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that names fields by their JSON tag.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// Stricter than the built-in email tag: must parse as a bare RFC 5322 address.
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		addr, err := mail.ParseAddress(s)
		return err == nil && addr.Address == s
	})

	return &Validator{v: v}
}

// Default returns a shared Validator.
func Default() *Validator {
	defaultOnce.Do(func() {
		defaultValidator = New()
	})
	return defaultValidator
}

// Validate checks s and returns an *apperrors.Error with per-field details.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Wrap(apperrors.KindInvalidArgument, "validation failed", err)
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = friendlyMessage(fe)
	}

	first := fieldErrs[0]
	msg := fmt.Sprintf("%s %s", first.Field(), friendlyMessage(first))
	return apperrors.New(apperrors.KindInvalidArgument, msg).WithDetails(details)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email", "mailbox":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return "is invalid"
	}
}
