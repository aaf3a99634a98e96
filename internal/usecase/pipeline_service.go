package usecase

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/validator"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// CreateLead validates req and stores a new lead for the context owner.
// A phone already held by another of the owner's leads fails with
// ErrDuplicate.
func (s *LeadService) CreateLead(ctx context.Context, req validator.LeadCreateRequest) (*model.Lead, error) {
	log := logger.FromContext(ctx)

	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	lead, err := validator.ParseLeadCreate(owner, req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateLead(ctx, lead); err != nil {
		return nil, err
	}

	log.Info("Lead created",
		zap.String("lead_id", lead.ID),
		zap.String("etapa", string(lead.Etapa)),
		zap.String("source", lead.Source),
	)
	return lead, nil
}

// GetLead returns a lead with its events, its latest inbound messages and
// its latest conversation lines.
func (s *LeadService) GetLead(ctx context.Context, id string) (*model.LeadDetail, error) {
	if err := checkLeadID(id); err != nil {
		return nil, err
	}

	detail := &model.LeadDetail{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(utils.WrapWithRecovery(func() error {
		lead, err := s.repo.FindLeadByID(gctx, id)
		detail.Lead = lead
		return err
	}))
	g.Go(utils.WrapWithRecovery(func() error {
		events, err := s.repo.FindLeadEvents(gctx, id)
		detail.Events = events
		return err
	}))
	g.Go(utils.WrapWithRecovery(func() error {
		messages, err := s.repo.FindInboundMessagesByLead(gctx, id, model.DetailMessagesLimit)
		detail.Messages = messages
		return err
	}))
	g.Go(utils.WrapWithRecovery(func() error {
		convs, err := s.repo.FindConversationsByLead(gctx, id, model.DetailConversationsLimit)
		detail.Conversations = convs
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if detail.Events == nil {
		detail.Events = []*model.LeadEvent{}
	}
	if detail.Messages == nil {
		detail.Messages = []*model.InboundMessage{}
	}
	if detail.Conversations == nil {
		detail.Conversations = []*model.Conversation{}
	}
	return detail, nil
}

// ListLeads returns the owner's leads matching q, newest first.
func (s *LeadService) ListLeads(ctx context.Context, q validator.LeadListQuery) ([]*model.Lead, error) {
	filter, err := validator.ParseLeadFilter(q)
	if err != nil {
		return nil, err
	}
	leads, err := s.repo.ListLeads(ctx, filter)
	if err != nil {
		return nil, err
	}
	if leads == nil {
		leads = []*model.Lead{}
	}
	return leads, nil
}

// UpdateLead applies a partial update. A stage change recomputes the
// closing probability in the same statement.
func (s *LeadService) UpdateLead(ctx context.Context, id string, req validator.LeadUpdateRequest) (*model.Lead, error) {
	patch, err := validator.ParseLeadUpdate(req)
	if err != nil {
		return nil, err
	}
	if err := checkLeadID(id); err != nil {
		return nil, err
	}

	lead, err := s.repo.UpdateLead(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.Etapa != nil {
		observer.IncStageChange(string(lead.Etapa))
	}
	logger.FromContext(ctx).Debug("Lead updated", zap.String("lead_id", id))
	return lead, nil
}

// SetStage moves a lead to etapa. Any stage may follow any other, and
// setting the current stage again is a no-op write.
func (s *LeadService) SetStage(ctx context.Context, id, rawEtapa string) (*model.Lead, error) {
	etapa, err := validator.ParseEtapa(rawEtapa)
	if err != nil {
		return nil, err
	}
	if err := checkLeadID(id); err != nil {
		return nil, err
	}

	lead, err := s.repo.SetLeadStage(ctx, id, etapa)
	if err != nil {
		return nil, err
	}

	observer.IncStageChange(string(etapa))
	logger.FromContext(ctx).Info("Lead stage changed",
		zap.String("lead_id", id),
		zap.String("etapa", string(etapa)),
		zap.Int("probabilidad_cierre", lead.ProbabilidadCierre),
	)
	return lead, nil
}

// PipelineStats reports every stage in funnel order, empty ones included.
func (s *LeadService) PipelineStats(ctx context.Context) ([]model.PipelineStageStat, error) {
	rows, err := s.repo.LeadPipelineStats(ctx)
	if err != nil {
		return nil, err
	}

	byEtapa := make(map[model.Etapa]model.PipelineStageStat, len(rows))
	for _, row := range rows {
		byEtapa[row.Etapa] = row
	}

	stats := make([]model.PipelineStageStat, 0, len(model.Etapas()))
	for _, etapa := range model.Etapas() {
		stat, ok := byEtapa[etapa]
		if !ok {
			stat = model.PipelineStageStat{Etapa: etapa}
		}
		stat.AvgProbabilidad = round2(stat.AvgProbabilidad)
		stat.ProbabilidadPorDefecto = etapa.Probability()
		stats = append(stats, stat)
	}
	return stats, nil
}

// ListMessages returns the latest inbound messages of an owned lead.
func (s *LeadService) ListMessages(ctx context.Context, leadID string) ([]*model.InboundMessage, error) {
	if err := s.ensureLead(ctx, leadID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.FindInboundMessagesByLead(ctx, leadID, model.DetailMessagesLimit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*model.InboundMessage{}
	}
	return msgs, nil
}

// ListConversations returns the latest conversation lines of an owned lead.
func (s *LeadService) ListConversations(ctx context.Context, leadID string) ([]*model.Conversation, error) {
	if err := s.ensureLead(ctx, leadID); err != nil {
		return nil, err
	}
	convs, err := s.repo.FindConversationsByLead(ctx, leadID, model.DetailConversationsLimit)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	return convs, nil
}

// ListWebhookLogs returns the owner's audit entries, newest first.
func (s *LeadService) ListWebhookLogs(ctx context.Context, origen string, limit int) ([]*model.WebhookLogEntry, error) {
	if limit <= 0 {
		limit = model.DefaultWebhookLogLimit
	}
	entries, err := s.repo.FindWebhookLogs(ctx, strings.ToLower(strings.TrimSpace(origen)), limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.WebhookLogEntry{}
	}
	return entries, nil
}

// ensureLead fails with ErrNotFound unless id names a lead of the owner.
func (s *LeadService) ensureLead(ctx context.Context, id string) error {
	if err := checkLeadID(id); err != nil {
		return err
	}
	_, err := s.repo.FindLeadByID(ctx, id)
	return err
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
