package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// RepositoryMock mocks the combined storage.Repository interface.
type RepositoryMock struct {
	mock.Mock
}

func leadOrNil(args mock.Arguments) (*model.Lead, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// --- LeadRepo ---

func (m *RepositoryMock) CreateLead(ctx context.Context, lead *model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

func (m *RepositoryMock) CreateLeadIfPhoneAbsent(ctx context.Context, lead *model.Lead) (bool, error) {
	args := m.Called(ctx, lead)
	return args.Bool(0), args.Error(1)
}

func (m *RepositoryMock) FindLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, id))
}

func (m *RepositoryMock) FindLeadByPhoneDigits(ctx context.Context, digits string) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, digits))
}

func (m *RepositoryMock) FindLeadByExactPhoneDigits(ctx context.Context, digits string) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, digits))
}

func (m *RepositoryMock) ListLeads(ctx context.Context, filter model.LeadFilter) ([]*model.Lead, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *RepositoryMock) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, id, patch))
}

func (m *RepositoryMock) SetLeadStage(ctx context.Context, id string, etapa model.Etapa) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, id, etapa))
}

func (m *RepositoryMock) SetLeadStatus(ctx context.Context, id string, status model.LeadStatus) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, id, status))
}

func (m *RepositoryMock) FillBlankLeadFields(ctx context.Context, id string, ciudad, interes *string, etapa *model.Etapa) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, id, ciudad, interes, etapa))
}

func (m *RepositoryMock) LeadPipelineStats(ctx context.Context) ([]model.PipelineStageStat, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PipelineStageStat), args.Error(1)
}

// --- LeadEventRepo ---

func (m *RepositoryMock) RecordLeadEvent(ctx context.Context, event *model.LeadEvent) (*model.Lead, error) {
	return leadOrNil(m.Called(ctx, event))
}

func (m *RepositoryMock) FindLeadEvents(ctx context.Context, leadID string) ([]*model.LeadEvent, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LeadEvent), args.Error(1)
}

// --- InboundMessageRepo ---

func (m *RepositoryMock) FindInboundMessageByExternalID(ctx context.Context, externalID string) (*model.InboundMessage, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InboundMessage), args.Error(1)
}

func (m *RepositoryMock) InsertInboundMessageIfAbsent(ctx context.Context, msg *model.InboundMessage) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *RepositoryMock) FindInboundMessagesByLead(ctx context.Context, leadID string, limit int) ([]*model.InboundMessage, error) {
	args := m.Called(ctx, leadID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.InboundMessage), args.Error(1)
}

// --- WebhookLogRepo ---

func (m *RepositoryMock) SaveWebhookLog(ctx context.Context, entry *model.WebhookLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *RepositoryMock) FindWebhookLogs(ctx context.Context, origen string, limit int) ([]*model.WebhookLogEntry, error) {
	args := m.Called(ctx, origen, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WebhookLogEntry), args.Error(1)
}

// --- ConversationRepo ---

func (m *RepositoryMock) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *RepositoryMock) FindConversationsByLead(ctx context.Context, leadID string, limit int) ([]*model.Conversation, error) {
	args := m.Called(ctx, leadID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Conversation), args.Error(1)
}

// --- KPIRepo ---

func (m *RepositoryMock) FindKPIEventsInRange(ctx context.Context, from, to time.Time) ([]model.KPIEventRow, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.KPIEventRow), args.Error(1)
}

func (m *RepositoryMock) FindContactedLeadIDs(ctx context.Context, to time.Time) ([]string, error) {
	args := m.Called(ctx, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// --- TxManager and lifecycle ---

// WithTx runs fn directly; it records no call.
func (m *RepositoryMock) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *RepositoryMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *RepositoryMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
