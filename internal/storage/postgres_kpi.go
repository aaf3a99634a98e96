package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// --- KPI Repository Methods ---
// Reads only. They run outside any transaction and accept a snapshot that
// concurrent writers may have moved past.

// FindKPIEventsInRange returns the owner's events created in [from, to].
func (r *PostgresRepo) FindKPIEventsInRange(ctx context.Context, from, to time.Time) ([]model.KPIEventRow, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.KPIEventRow
	start := utils.Now()
	err = r.conn(ctx).
		Table(r.table("lead_events")+" AS e").
		Select("e.lead_id, e.type, e.revenue").
		Joins("JOIN "+r.table("leads")+" AS l ON l.id = e.lead_id").
		Where("l.owner_user_id = ? AND e.created_at >= ? AND e.created_at <= ?", owner, from, to).
		Scan(&rows).Error
	observer.ObserveDbOperationDuration("range", "kpi_event", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return rows, nil
}

// FindContactedLeadIDs returns the owner's leads created up to to whose
// current status counts as contacted.
func (r *PostgresRepo) FindContactedLeadIDs(ctx context.Context, to time.Time) ([]string, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	start := utils.Now()
	err = r.conn(ctx).
		Model(&model.Lead{}).
		Where("owner_user_id = ? AND status IN ? AND created_at <= ?", owner, model.ContactedStatuses(), to).
		Pluck("id", &ids).Error
	observer.ObserveDbOperationDuration("contacted_ids", "lead", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return ids, nil
}
