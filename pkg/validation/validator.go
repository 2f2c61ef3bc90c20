// Package validation validates decoded request payloads with
// go-playground/validator and reports failures as bad_payload errors whose
// detail maps each JSON field to a message.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/platinummonkey/watchlist/pkg/apperr"
)

// Validator wraps go-playground/validator with apperr conversion.
type Validator struct {
	v *validator.Validate
}

var std = New()

// New creates a validator that reports JSON field names and understands the
// "notblank_trim" tag (non-empty after trimming spaces).
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return fld.Name
		}
		if i := strings.IndexByte(name, ','); i >= 0 {
			name = name[:i]
		}
		if name == "-" {
			return fld.Name
		}
		return name
	})

	v.RegisterValidation("notblank_trim", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{v: v}
}

// Struct validates s using the package validator.
func Struct(s any) error {
	return std.Struct(s)
}

// Var validates a single value against a tag using the package validator.
func Var(field any, tag string) error {
	return std.Var(field, tag)
}

// Struct validates s and returns a bad_payload error on failure.
func (v *Validator) Struct(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Var validates a single value against a tag.
func (v *Validator) Var(field any, tag string) error {
	if err := v.v.Var(field, tag); err != nil {
		return v.formatError(err)
	}
	return nil
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperr.ErrBadPayload.WithCause(err)
	}

	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Field()
		if field == "" {
			field = "value"
		}
		fields[field] = friendlyMessage(e)
	}
	return apperr.ErrBadPayload.WithDetail(fields)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank_trim":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "uuid", "uuid4", "uuid_rfc4122":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	default:
		return "is invalid"
	}
}
