package storage

import (
	"context"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/identity"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// LeadLookupAdapter adapts a LeadRepo to the identity.LeadLookup interface
type LeadLookupAdapter struct {
	leads LeadRepo
}

// NewLeadLookupAdapter creates a new lead lookup adapter
func NewLeadLookupAdapter(leads LeadRepo) identity.LeadLookup {
	return &LeadLookupAdapter{leads: leads}
}

// FindByPhoneDigits finds the oldest lead whose phone contains digits
func (a *LeadLookupAdapter) FindByPhoneDigits(ctx context.Context, digits string) (*model.Lead, error) {
	return a.leads.FindLeadByPhoneDigits(ctx, digits)
}
