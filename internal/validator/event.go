package validator

import (
	"encoding/json"
	"math"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// EventCreateRequest is the body of an event creation call.
type EventCreateRequest struct {
	Type    string          `json:"type" validate:"required"`
	Revenue *float64        `json:"revenue"`
	Meta    json.RawMessage `json:"meta"`
}

// EventInput is a validated event ready for the ledger.
type EventInput struct {
	Type    model.LeadEventType
	Revenue *float64
	Meta    []byte
}

// ParseEventCreate validates the type and revenue and keeps meta verbatim.
func ParseEventCreate(req EventCreateRequest) (EventInput, error) {
	if err := Validate(req); err != nil {
		return EventInput{}, err
	}
	var errs fieldErrors

	eventType, err := ParseEventType(req.Type)
	errs.add(err)
	errs.add(ParseRevenue(req.Revenue))

	if err := errs.err(); err != nil {
		return EventInput{}, err
	}

	in := EventInput{Type: eventType, Revenue: req.Revenue}
	if !utils.IsJSONNull(req.Meta) {
		in.Meta = append([]byte(nil), req.Meta...)
	}
	return in, nil
}

// ParseRevenue accepts an absent revenue or a finite, non-negative amount.
func ParseRevenue(revenue *float64) error {
	if revenue == nil {
		return nil
	}
	if math.IsNaN(*revenue) || math.IsInf(*revenue, 0) {
		return apperrors.NewFieldError("revenue", "must be a finite number")
	}
	return ValidateVar("revenue", *revenue, "gte=0")
}
