package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// MockInboundHandler is a mock for the inbound event handler
type MockInboundHandler struct {
	mock.Mock
}

// HandleEvent mocks the HandleEvent method
func (m *MockInboundHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}
