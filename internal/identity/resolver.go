package identity

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// LeadLookup finds the oldest lead of the context owner whose stored phone
// digits contain digits.
type LeadLookup interface {
	FindByPhoneDigits(ctx context.Context, digits string) (*model.Lead, error)
}

// Resolver maps inbound phone identifiers to leads.
type Resolver struct {
	leads LeadLookup
}

func NewResolver(leads LeadLookup) *Resolver {
	return &Resolver{leads: leads}
}

// ResolveLeadByPhone normalizes raw and looks up a lead for the context
// owner. It returns a nil lead and nil error when nothing matches.
func (r *Resolver) ResolveLeadByPhone(ctx context.Context, raw string) (*model.Lead, error) {
	phone, ok := NormalizePhone(raw)
	if !ok {
		return nil, apperrors.NewFieldError("from", "must contain at least one digit")
	}
	lead, err := r.leads.FindByPhoneDigits(ctx, Digits(phone))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve lead by phone: %w", err)
	}
	return lead, nil
}
