package httpapi

import (
	"context"
	"time"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/validator"
)

// LeadService is what the HTTP surface needs from the usecase layer.
type LeadService interface {
	CreateLead(ctx context.Context, req validator.LeadCreateRequest) (*model.Lead, error)
	GetLead(ctx context.Context, id string) (*model.LeadDetail, error)
	ListLeads(ctx context.Context, q validator.LeadListQuery) ([]*model.Lead, error)
	UpdateLead(ctx context.Context, id string, req validator.LeadUpdateRequest) (*model.Lead, error)
	SetStage(ctx context.Context, id, rawEtapa string) (*model.Lead, error)
	PipelineStats(ctx context.Context) ([]model.PipelineStageStat, error)

	RecordEvent(ctx context.Context, leadID string, req validator.EventCreateRequest) (*model.LeadEvent, *model.Lead, error)
	ListEvents(ctx context.Context, leadID string) ([]*model.LeadEvent, error)
	ListMessages(ctx context.Context, leadID string) ([]*model.InboundMessage, error)
	ListConversations(ctx context.Context, leadID string) ([]*model.Conversation, error)
	ListWebhookLogs(ctx context.Context, origen string, limit int) ([]*model.WebhookLogEntry, error)

	IngestRaw(ctx context.Context, origen string, body []byte, autoCreateLead bool) (*model.IngestResult, error)
	ComputeKPIs(ctx context.Context, from, to *time.Time) (*model.KPIResult, error)
}
