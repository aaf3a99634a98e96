package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// --- Webhook Log Repository Methods ---

// SaveWebhookLog appends an audit entry. It always writes through the pool,
// never a caller's transaction, so the entry survives a rolled back ingest.
// Transient failures are retried; the id is fixed first so a retry cannot
// write the entry twice.
func (r *PostgresRepo) SaveWebhookLog(ctx context.Context, entry *model.WebhookLogEntry) error {
	owner, _ := ownerFromContext(ctx)
	if entry.OwnerUserID == "" {
		entry.OwnerUserID = owner
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Fecha.IsZero() {
		entry.Fecha = utils.Now()
	}

	start := utils.Now()
	err := retryableOperation(ctx, newRetryPolicy(ctx, auditRetryMaxElapsedTime), "SaveWebhookLog", func() error {
		return r.db.WithContext(ctx).Create(entry).Error
	})
	observer.ObserveDbOperationDuration("insert", "webhook_log", owner, time.Since(start), err)
	return checkConstraintViolation(err)
}

// FindWebhookLogs returns the owner's latest audit entries for one origin.
func (r *PostgresRepo) FindWebhookLogs(ctx context.Context, origen string, limit int) ([]*model.WebhookLogEntry, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = model.DefaultWebhookLogLimit
	}

	query := r.conn(ctx).Where("owner_user_id = ?", owner)
	if origen != "" {
		query = query.Where("origen = ?", origen)
	}

	var entries []*model.WebhookLogEntry
	start := utils.Now()
	err = query.Order("fecha DESC").Limit(limit).Find(&entries).Error
	observer.ObserveDbOperationDuration("list", "webhook_log", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return entries, nil
}
