package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

var (
	validate *validator.Validate
	once     sync.Once

	emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Get returns a singleton validator instance with the lead rules registered:
// leademail, leadetapa, leadstatus and leadevent.
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New()

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = validate.RegisterValidation("leademail", func(fl validator.FieldLevel) bool {
			return emailShape.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("leadetapa", func(fl validator.FieldLevel) bool {
			return model.Etapa(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("leadstatus", func(fl validator.FieldLevel) bool {
			return model.LeadStatus(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("leadevent", func(fl validator.FieldLevel) bool {
			return model.LeadEventType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate validates a struct and returns apperrors.ValidationErrors keyed
// by JSON field name.
func Validate(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	out := make(apperrors.ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		out = append(out, &apperrors.FieldError{Field: e.Field(), Message: getErrorMessage(e)})
	}
	return out
}

// ValidateVar validates a single variable against tag and reports failures
// as a FieldError for field.
func ValidateVar(field string, value interface{}, tag string) error {
	err := Get().Var(value, tag)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		return &apperrors.FieldError{Field: field, Message: getErrorMessage(validationErrors[0])}
	}
	return err
}

func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email", "leademail":
		return "must be a valid email address"
	case "leadetapa":
		return "must be one of: " + joinValues(model.Etapas())
	case "leadstatus":
		return "must be one of: NEW CONTACTED QUALIFIED CONVERTED"
	case "leadevent":
		return "must be one of: " + joinValues(model.LeadEventTypes())
	case "min":
		return fmt.Sprintf("must be at least %s characters long", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed '%s' validation", e.Tag())
	}
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, " ")
}
