package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// --- Conversation Repository Methods ---

func (r *PostgresRepo) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Fecha.IsZero() {
		conv.Fecha = utils.Now()
	}

	start := utils.Now()
	err = r.conn(ctx).Create(conv).Error
	observer.ObserveDbOperationDuration("insert", "conversation", owner, time.Since(start), err)
	return checkConstraintViolation(err)
}

// FindConversationsByLead returns the latest transcript lines, newest first.
func (r *PostgresRepo) FindConversationsByLead(ctx context.Context, leadID string, limit int) ([]*model.Conversation, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = model.DetailConversationsLimit
	}

	var convs []*model.Conversation
	start := utils.Now()
	err = r.conn(ctx).
		Where("lead_id = ?", leadID).
		Order("fecha DESC").
		Limit(limit).
		Find(&convs).Error
	observer.ObserveDbOperationDuration("list", "conversation", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return convs, nil
}
