package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// --- Inbound Message Repository Methods ---

// FindInboundMessageByExternalID looks up a delivery by the channel's own
// message id. The id is unique across owners, so the lookup is not scoped.
func (r *PostgresRepo) FindInboundMessageByExternalID(ctx context.Context, externalID string) (*model.InboundMessage, error) {
	owner, _ := ownerFromContext(ctx)

	var msg model.InboundMessage
	start := utils.Now()
	err := r.conn(ctx).
		Where("external_message_id = ?", externalID).
		Take(&msg).Error
	observer.ObserveDbOperationDuration("find_by_external_id", "inbound_message", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return &msg, nil
}

// InsertInboundMessageIfAbsent stores msg unless its external id was stored
// before. It reports whether the row was written.
func (r *PostgresRepo) InsertInboundMessageIfAbsent(ctx context.Context, msg *model.InboundMessage) (bool, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return false, err
	}
	if msg.OwnerUserID == "" {
		msg.OwnerUserID = owner
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	start := utils.Now()
	result := r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_message_id"}},
			DoNothing: true,
		}).
		Create(msg)
	observer.ObserveDbOperationDuration("insert_if_absent", "inbound_message", owner, time.Since(start), result.Error)
	if result.Error != nil {
		return false, checkConstraintViolation(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindInboundMessagesByLead returns the latest messages attached to a lead.
func (r *PostgresRepo) FindInboundMessagesByLead(ctx context.Context, leadID string, limit int) ([]*model.InboundMessage, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = model.DetailMessagesLimit
	}

	var msgs []*model.InboundMessage
	start := utils.Now()
	err = r.conn(ctx).
		Where("lead_id = ? AND owner_user_id = ?", leadID, owner).
		Order("received_at DESC").
		Limit(limit).
		Find(&msgs).Error
	observer.ObserveDbOperationDuration("list", "inbound_message", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return msgs, nil
}
