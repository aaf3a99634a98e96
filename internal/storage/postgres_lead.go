package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// --- Lead Repository Methods ---

func prepareLead(owner string, lead *model.Lead) error {
	if lead.OwnerUserID == "" {
		lead.OwnerUserID = owner
	}
	if lead.OwnerUserID != owner {
		return fmt.Errorf("%w: lead owner %s does not match owner ID %s", apperrors.ErrBadRequest, lead.OwnerUserID, owner)
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	return nil
}

// CreateLead inserts a new lead. A phone already used by another lead of
// the same owner fails with ErrDuplicate.
func (r *PostgresRepo) CreateLead(ctx context.Context, lead *model.Lead) error {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if err := prepareLead(owner, lead); err != nil {
		return err
	}

	start := utils.Now()
	err = r.conn(ctx).Create(lead).Error
	observer.ObserveDbOperationDuration("insert", "lead", owner, time.Since(start), err)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to create lead", zap.String("lead_id", lead.ID), zap.Error(err))
		return checkConstraintViolation(err)
	}
	return nil
}

// CreateLeadIfPhoneAbsent inserts lead unless the owner already has a lead
// with the same phone digits. It reports whether the row was written; the
// loser of a concurrent first contact gets false and no error.
func (r *PostgresRepo) CreateLeadIfPhoneAbsent(ctx context.Context, lead *model.Lead) (bool, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return false, err
	}
	if err := prepareLead(owner, lead); err != nil {
		return false, err
	}

	start := utils.Now()
	result := r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_user_id"}, {Name: "phone_digits"}},
			DoNothing: true,
		}).
		Create(lead)
	observer.ObserveDbOperationDuration("insert_if_absent", "lead", owner, time.Since(start), result.Error)
	if result.Error != nil {
		return false, checkConstraintViolation(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindLeadByID returns a lead of the context owner.
func (r *PostgresRepo) FindLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var lead model.Lead
	start := utils.Now()
	err = r.conn(ctx).
		Where("id = ? AND owner_user_id = ?", id, owner).
		Take(&lead).Error
	observer.ObserveDbOperationDuration("find_by_id", "lead", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return &lead, nil
}

// FindLeadByPhoneDigits returns the oldest lead whose stored phone digits
// contain digits. An inbound national number matches a stored number with a
// country prefix, not the other way round, and any stored number sharing the
// inbound digits as a substring matches too. Same rule as identity.Matches.
func (r *PostgresRepo) FindLeadByPhoneDigits(ctx context.Context, digits string) (*model.Lead, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if digits == "" {
		return nil, fmt.Errorf("%w: empty phone digits", apperrors.ErrNotFound)
	}

	var lead model.Lead
	start := utils.Now()
	err = r.conn(ctx).
		Where("owner_user_id = ? AND phone_digits LIKE ?", owner, "%"+digits+"%").
		Order("created_at ASC").Order("id ASC").
		Take(&lead).Error
	observer.ObserveDbOperationDuration("find_by_phone", "lead", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return &lead, nil
}

// FindLeadByExactPhoneDigits returns the lead holding exactly digits. It is
// the lookup that agrees with the identity index.
func (r *PostgresRepo) FindLeadByExactPhoneDigits(ctx context.Context, digits string) (*model.Lead, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var lead model.Lead
	start := utils.Now()
	err = r.conn(ctx).
		Where("owner_user_id = ? AND phone_digits = ?", owner, digits).
		Take(&lead).Error
	observer.ObserveDbOperationDuration("find_by_exact_phone", "lead", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return &lead, nil
}

// ListLeads returns the owner's leads, newest first.
func (r *PostgresRepo) ListLeads(ctx context.Context, filter model.LeadFilter) ([]*model.Lead, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultLeadListLimit
	}
	limit = min(limit, model.MaxLeadListLimit)

	query := r.conn(ctx).Where("owner_user_id = ?", owner)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Etapa != "" {
		query = query.Where("etapa = ?", filter.Etapa)
	}
	if filter.Ciudad != "" {
		query = query.Where("ciudad ILIKE ?", "%"+filter.Ciudad+"%")
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where(
			"name ILIKE ? OR email ILIKE ? OR phone ILIKE ? OR ciudad ILIKE ? OR interes ILIKE ?",
			like, like, like, like, like,
		)
	}

	var leads []*model.Lead
	start := utils.Now()
	err = query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(filter.Offset, 0)).
		Find(&leads).Error
	observer.ObserveDbOperationDuration("list", "lead", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return leads, nil
}

// updateLeadColumns writes cols to one lead of the owner and scans the row
// back in the same statement.
func (r *PostgresRepo) updateLeadColumns(ctx context.Context, op, id string, cols map[string]interface{}) (*model.Lead, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var lead model.Lead
	start := utils.Now()
	result := r.conn(ctx).
		Model(&lead).
		Clauses(clause.Returning{}).
		Where("id = ? AND owner_user_id = ?", id, owner).
		Updates(cols)
	err = result.Error
	if err == nil && result.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
	}
	observer.ObserveDbOperationDuration(op, "lead", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return &lead, nil
}

// UpdateLead applies a partial update. An empty patch returns the stored lead.
func (r *PostgresRepo) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) (*model.Lead, error) {
	cols := patch.Columns()
	if len(cols) == 0 {
		return r.FindLeadByID(ctx, id)
	}
	return r.updateLeadColumns(ctx, "update", id, cols)
}

// SetLeadStage writes etapa and its probability in one statement.
func (r *PostgresRepo) SetLeadStage(ctx context.Context, id string, etapa model.Etapa) (*model.Lead, error) {
	return r.updateLeadColumns(ctx, "set_stage", id, map[string]interface{}{
		"etapa":               etapa,
		"probabilidad_cierre": etapa.Probability(),
	})
}

// SetLeadStatus overwrites the lead status unconditionally.
func (r *PostgresRepo) SetLeadStatus(ctx context.Context, id string, status model.LeadStatus) (*model.Lead, error) {
	return r.updateLeadColumns(ctx, "set_status", id, map[string]interface{}{
		"status": status,
	})
}

// FillBlankLeadFields sets ciudad, interes and etapa only where the stored
// value is still blank. The default stage counts as blank. The name is
// never touched.
func (r *PostgresRepo) FillBlankLeadFields(ctx context.Context, id string, ciudad, interes *string, etapa *model.Etapa) (*model.Lead, error) {
	cols := map[string]interface{}{}
	if ciudad != nil && *ciudad != "" {
		cols["ciudad"] = gorm.Expr("COALESCE(NULLIF(ciudad, ''), ?)", *ciudad)
	}
	if interes != nil && *interes != "" {
		cols["interes"] = gorm.Expr("COALESCE(NULLIF(interes, ''), ?)", *interes)
	}
	if etapa != nil && *etapa != model.DefaultEtapa {
		// Both expressions read the pre-update etapa.
		cols["etapa"] = gorm.Expr("CASE WHEN etapa = ? THEN ? ELSE etapa END", model.DefaultEtapa, *etapa)
		cols["probabilidad_cierre"] = gorm.Expr("CASE WHEN etapa = ? THEN ? ELSE probabilidad_cierre END", model.DefaultEtapa, etapa.Probability())
	}
	if len(cols) == 0 {
		return r.FindLeadByID(ctx, id)
	}
	return r.updateLeadColumns(ctx, "fill_blank", id, cols)
}

type stageStatRow struct {
	Etapa           model.Etapa `gorm:"column:etapa"`
	Count           int64       `gorm:"column:count"`
	AvgProbabilidad float64     `gorm:"column:avg_probabilidad"`
}

// LeadPipelineStats counts the owner's leads per stage. Stages without
// leads are absent from the result.
func (r *PostgresRepo) LeadPipelineStats(ctx context.Context) ([]model.PipelineStageStat, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []stageStatRow
	start := utils.Now()
	err = r.conn(ctx).
		Model(&model.Lead{}).
		Select("etapa, COUNT(*) AS count, COALESCE(AVG(probabilidad_cierre), 0) AS avg_probabilidad").
		Where("owner_user_id = ?", owner).
		Group("etapa").
		Scan(&rows).Error
	observer.ObserveDbOperationDuration("stats", "lead", owner, time.Since(start), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}

	stats := make([]model.PipelineStageStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, model.PipelineStageStat{
			Etapa:                  row.Etapa,
			Count:                  row.Count,
			AvgProbabilidad:        row.AvgProbabilidad,
			ProbabilidadPorDefecto: row.Etapa.Probability(),
		})
	}
	return stats, nil
}
