package validator

import (
	"strings"
	"unicode/utf8"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/identity"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// Field limits, in characters.
const (
	maxNameLen    = 255
	maxEmailLen   = 255
	maxSourceLen  = 100
	maxCiudadLen  = 255
	maxInteresLen = 500
)

// ParseName trims raw, rejects an empty result and truncates to 255 characters.
func ParseName(raw string) (string, error) {
	name := truncate(strings.TrimSpace(raw), maxNameLen)
	if name == "" {
		return "", apperrors.NewFieldError("name", "is required")
	}
	return name, nil
}

// ParsePhone normalizes raw. Blank or digitless input yields nil.
func ParsePhone(raw string) *string {
	phone, ok := identity.NormalizePhone(raw)
	if !ok {
		return nil
	}
	return &phone
}

// ParseEmail trims and lower-cases raw. Blank input yields nil; anything else
// must look like local@domain.tld.
func ParseEmail(raw string) (*string, error) {
	email := truncate(strings.ToLower(strings.TrimSpace(raw)), maxEmailLen)
	if email == "" {
		return nil, nil
	}
	if err := ValidateVar("email", email, "leademail"); err != nil {
		return nil, err
	}
	return &email, nil
}

// ParseStatus upper-cases raw and checks it against the status set.
func ParseStatus(raw string) (model.LeadStatus, error) {
	status, ok := model.ParseLeadStatus(raw)
	if !ok {
		return "", ruleError("status", string(status), "leadstatus")
	}
	return status, nil
}

// ParseEtapa upper-cases raw and checks it against the stage set.
func ParseEtapa(raw string) (model.Etapa, error) {
	etapa, ok := model.ParseEtapa(raw)
	if !ok {
		return "", ruleError("etapa", string(etapa), "leadetapa")
	}
	return etapa, nil
}

// ParseEventType upper-cases raw and checks it against the event type set.
func ParseEventType(raw string) (model.LeadEventType, error) {
	t, ok := model.ParseLeadEventType(raw)
	if !ok {
		return "", ruleError("type", string(t), "leadevent")
	}
	return t, nil
}

// ParseSource trims raw, defaults to MANUAL and truncates to 100 characters.
func ParseSource(raw string) string {
	source := truncate(strings.TrimSpace(raw), maxSourceLen)
	if source == "" {
		return model.DefaultSource
	}
	return source
}

func ParseCiudad(raw string) *string {
	return optionalText(raw, maxCiudadLen)
}

func ParseInteres(raw string) *string {
	return optionalText(raw, maxInteresLen)
}

func optionalText(raw string, max int) *string {
	s := truncate(strings.TrimSpace(raw), max)
	if s == "" {
		return nil
	}
	return &s
}

// ruleError reports value as failing tag. The parse has already decided the
// value is invalid, so a passing rule still yields an error.
func ruleError(field, value, tag string) error {
	if err := ValidateVar(field, value, tag); err != nil {
		return err
	}
	return apperrors.NewFieldError(field, "is invalid")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
