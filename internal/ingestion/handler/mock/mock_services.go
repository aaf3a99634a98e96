package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// MockInboundService is a mock for the InboundService interface
type MockInboundService struct {
	mock.Mock
}

// IngestRaw mocks the IngestRaw method
func (m *MockInboundService) IngestRaw(ctx context.Context, origen string, body []byte, autoCreateLead bool) (*model.IngestResult, error) {
	args := m.Called(ctx, origen, body, autoCreateLead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestResult), args.Error(1)
}
