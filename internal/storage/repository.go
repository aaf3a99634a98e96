package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// LeadRepo defines lead storage operations. Every method is scoped to the
// owner carried by ctx.
type LeadRepo interface {
	CreateLead(ctx context.Context, lead *model.Lead) error
	CreateLeadIfPhoneAbsent(ctx context.Context, lead *model.Lead) (bool, error)
	FindLeadByID(ctx context.Context, id string) (*model.Lead, error)
	FindLeadByPhoneDigits(ctx context.Context, digits string) (*model.Lead, error)
	FindLeadByExactPhoneDigits(ctx context.Context, digits string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter model.LeadFilter) ([]*model.Lead, error)
	UpdateLead(ctx context.Context, id string, patch model.LeadPatch) (*model.Lead, error)
	SetLeadStage(ctx context.Context, id string, etapa model.Etapa) (*model.Lead, error)
	SetLeadStatus(ctx context.Context, id string, status model.LeadStatus) (*model.Lead, error)
	FillBlankLeadFields(ctx context.Context, id string, ciudad, interes *string, etapa *model.Etapa) (*model.Lead, error)
	LeadPipelineStats(ctx context.Context) ([]model.PipelineStageStat, error)
}

// LeadEventRepo defines event ledger storage operations
type LeadEventRepo interface {
	RecordLeadEvent(ctx context.Context, event *model.LeadEvent) (*model.Lead, error)
	FindLeadEvents(ctx context.Context, leadID string) ([]*model.LeadEvent, error)
}

// InboundMessageRepo defines inbound message storage operations
type InboundMessageRepo interface {
	FindInboundMessageByExternalID(ctx context.Context, externalID string) (*model.InboundMessage, error)
	InsertInboundMessageIfAbsent(ctx context.Context, msg *model.InboundMessage) (bool, error)
	FindInboundMessagesByLead(ctx context.Context, leadID string, limit int) ([]*model.InboundMessage, error)
}

// WebhookLogRepo defines audit trail storage operations
type WebhookLogRepo interface {
	SaveWebhookLog(ctx context.Context, entry *model.WebhookLogEntry) error
	FindWebhookLogs(ctx context.Context, origen string, limit int) ([]*model.WebhookLogEntry, error)
}

// ConversationRepo defines conversation transcript storage operations
type ConversationRepo interface {
	SaveConversation(ctx context.Context, conv *model.Conversation) error
	FindConversationsByLead(ctx context.Context, leadID string, limit int) ([]*model.Conversation, error)
}

// KPIRepo defines the reads behind the KPI aggregator
type KPIRepo interface {
	FindKPIEventsInRange(ctx context.Context, from, to time.Time) ([]model.KPIEventRow, error)
	FindContactedLeadIDs(ctx context.Context, to time.Time) ([]string, error)
}

// TxManager runs a unit of work in one transaction
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository combines all repository interfaces
type Repository interface {
	LeadRepo
	LeadEventRepo
	InboundMessageRepo
	WebhookLogRepo
	ConversationRepo
	KPIRepo
	TxManager
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var _ Repository = (*PostgresRepo)(nil)
