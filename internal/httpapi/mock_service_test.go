package httpapi

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/validator"
)

type serviceMock struct {
	mock.Mock
}

var _ LeadService = (*serviceMock)(nil)

func (m *serviceMock) CreateLead(ctx context.Context, req validator.LeadCreateRequest) (*model.Lead, error) {
	args := m.Called(ctx, req)
	return leadArg(args, 0), args.Error(1)
}

func (m *serviceMock) GetLead(ctx context.Context, id string) (*model.LeadDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LeadDetail), args.Error(1)
}

func (m *serviceMock) ListLeads(ctx context.Context, q validator.LeadListQuery) ([]*model.Lead, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *serviceMock) UpdateLead(ctx context.Context, id string, req validator.LeadUpdateRequest) (*model.Lead, error) {
	args := m.Called(ctx, id, req)
	return leadArg(args, 0), args.Error(1)
}

func (m *serviceMock) SetStage(ctx context.Context, id, rawEtapa string) (*model.Lead, error) {
	args := m.Called(ctx, id, rawEtapa)
	return leadArg(args, 0), args.Error(1)
}

func (m *serviceMock) PipelineStats(ctx context.Context) ([]model.PipelineStageStat, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PipelineStageStat), args.Error(1)
}

func (m *serviceMock) RecordEvent(ctx context.Context, leadID string, req validator.EventCreateRequest) (*model.LeadEvent, *model.Lead, error) {
	args := m.Called(ctx, leadID, req)
	var event *model.LeadEvent
	if args.Get(0) != nil {
		event = args.Get(0).(*model.LeadEvent)
	}
	return event, leadArg(args, 1), args.Error(2)
}

func (m *serviceMock) ListEvents(ctx context.Context, leadID string) ([]*model.LeadEvent, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LeadEvent), args.Error(1)
}

func (m *serviceMock) ListMessages(ctx context.Context, leadID string) ([]*model.InboundMessage, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.InboundMessage), args.Error(1)
}

func (m *serviceMock) ListConversations(ctx context.Context, leadID string) ([]*model.Conversation, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Conversation), args.Error(1)
}

func (m *serviceMock) ListWebhookLogs(ctx context.Context, origen string, limit int) ([]*model.WebhookLogEntry, error) {
	args := m.Called(ctx, origen, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WebhookLogEntry), args.Error(1)
}

func (m *serviceMock) IngestRaw(ctx context.Context, origen string, body []byte, autoCreateLead bool) (*model.IngestResult, error) {
	args := m.Called(ctx, origen, body, autoCreateLead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestResult), args.Error(1)
}

func (m *serviceMock) ComputeKPIs(ctx context.Context, from, to *time.Time) (*model.KPIResult, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.KPIResult), args.Error(1)
}

func leadArg(args mock.Arguments, i int) *model.Lead {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*model.Lead)
}
