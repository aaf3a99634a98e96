package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/identity"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/storage"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/tenant"
)

// LeadService implements the pipeline, the event ledger, inbound ingestion
// and the KPI aggregator on top of one repository.
type LeadService struct {
	repo     storage.Repository
	resolver *identity.Resolver
}

// NewLeadService creates a new lead service
func NewLeadService(repo storage.Repository) *LeadService {
	return &LeadService{
		repo:     repo,
		resolver: identity.NewResolver(storage.NewLeadLookupAdapter(repo)),
	}
}

// requireOwner returns the owner carried by ctx.
func requireOwner(ctx context.Context) (string, error) {
	owner, err := tenant.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	return owner, nil
}

// checkLeadID rejects ids that cannot name a stored lead. They are reported
// as not found so callers cannot tell a malformed id from a foreign one.
func checkLeadID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: lead %q", apperrors.ErrNotFound, id)
	}
	return nil
}
