package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/listing-market/internal/apperr"
)

// Validator plugs go-playground/validator into echo. Failures become a
// BadRequest whose Fields are keyed by the request's wire names.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(wireName)
	return &Validator{v: v}
}

func wireName(f reflect.StructField) string {
	for _, tag := range []string{"json", "query", "param"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = reason(fe)
		}
		return apperr.Validation(fields)
	}
	return apperr.Internal(err)
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	case "uuid4":
		return "must be a valid UUID"
	}
	return "is invalid"
}

// trimmer is implemented by requests that normalize whitespace before
// validation.
type trimmer interface {
	trim()
}

// bind decodes the request into req and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.BadRequest("malformed request")
	}
	if t, ok := req.(trimmer); ok {
		t.trim()
	}
	return c.Validate(req)
}
