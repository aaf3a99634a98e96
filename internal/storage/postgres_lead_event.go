package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// --- Lead Event Repository Methods ---

// RecordLeadEvent appends event and projects its status onto the lead in
// one transaction. A lead id that references no lead of the owner fails
// with ErrNotFound and leaves nothing written.
func (r *PostgresRepo) RecordLeadEvent(ctx context.Context, event *model.LeadEvent) (*model.Lead, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var lead *model.Lead
	start := utils.Now()
	err = r.WithTx(ctx, func(ctx context.Context) error {
		// The foreign key is the existence check.
		if err := r.conn(ctx).Create(event).Error; err != nil {
			return checkConstraintViolation(err)
		}
		updated, err := r.SetLeadStatus(ctx, event.LeadID, event.Type.ProjectedStatus())
		if err != nil {
			return fmt.Errorf("project status for event %s: %w", event.ID, err)
		}
		lead = updated
		return nil
	})
	observer.ObserveDbOperationDuration("record", "lead_event", owner, time.Since(start), err)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to record lead event",
			zap.String("lead_id", event.LeadID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return nil, err
	}
	return lead, nil
}

// FindLeadEvents returns the events of a lead, most recent first.
func (r *PostgresRepo) FindLeadEvents(ctx context.Context, leadID string) ([]*model.LeadEvent, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var events []*model.LeadEvent
	start := utils.Now()
	err = r.conn(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").Order("id DESC").
		Find(&events).Error
	observer.ObserveDbOperationDuration("list", "lead_event", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return events, nil
}
