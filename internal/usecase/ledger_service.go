package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/validator"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// RecordEvent appends an event to the ledger of an owned lead and projects
// its status onto the lead in the same transaction. The projection always
// overwrites, so an earlier status can follow a later one.
func (s *LeadService) RecordEvent(ctx context.Context, leadID string, req validator.EventCreateRequest) (*model.LeadEvent, *model.Lead, error) {
	log := logger.FromContext(ctx)

	in, err := validator.ParseEventCreate(req)
	if err != nil {
		return nil, nil, err
	}
	if err := checkLeadID(leadID); err != nil {
		return nil, nil, err
	}

	event := &model.LeadEvent{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Type:      in.Type,
		Revenue:   in.Revenue,
		CreatedAt: utils.Now(),
	}
	if in.Meta != nil {
		event.Meta = datatypes.JSON(in.Meta)
	}

	lead, err := s.repo.RecordLeadEvent(ctx, event)
	if err != nil {
		log.Warn("Failed to record lead event",
			zap.String("lead_id", leadID),
			zap.String("type", string(in.Type)),
			zap.Error(err),
		)
		return nil, nil, err
	}

	observer.IncLedgerEvent(string(event.Type))
	log.Info("Lead event recorded",
		zap.String("lead_id", leadID),
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("status", string(lead.Status)),
	)
	return event, lead, nil
}

// ListEvents returns every event of an owned lead, newest first.
func (s *LeadService) ListEvents(ctx context.Context, leadID string) ([]*model.LeadEvent, error) {
	if err := s.ensureLead(ctx, leadID); err != nil {
		return nil, err
	}
	events, err := s.repo.FindLeadEvents(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*model.LeadEvent{}
	}
	return events, nil
}
