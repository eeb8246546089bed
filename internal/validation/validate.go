// Package validation validates request inputs and reports every violated
// field at once.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"devconnector/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// DateLayout is the short date form accepted alongside RFC 3339.
const DateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("skills", func(fl validator.FieldLevel) bool {
		return len(SplitSkills(fl.Field().String())) > 0
	})
	return v
}

// Struct validates s and returns a VALIDATION_ERROR AppError listing every
// violated field, or nil.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.NewValidationError(err.Error())
	}

	fields := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, models.FieldError{
			Field:   fe.Field(),
			Message: message(s, fe),
		})
	}
	return models.NewFieldValidationError(fields)
}

func message(s interface{}, fe validator.FieldError) string {
	label := fe.StructField()
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if f, ok := t.FieldByName(fe.StructField()); ok {
		if l := f.Tag.Get("label"); l != "" {
			label = l
		}
	}

	switch fe.Tag() {
	case "required", "notblank", "skills":
		return label + " is required"
	case "date":
		return fmt.Sprintf("%s must be a date (%s)", label, DateLayout)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// SplitSkills splits a comma-separated skill list, trimming each entry and
// dropping empty ones. Order is preserved.
func SplitSkills(raw string) []string {
	parts := strings.Split(raw, ",")
	skills := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			skills = append(skills, p)
		}
	}
	return skills
}
