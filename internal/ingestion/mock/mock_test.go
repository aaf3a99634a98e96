package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

func noopHandler(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	return nil
}

func TestRouterMock(t *testing.T) {
	mockRouter := new(RouterMock)
	mockRouter.On("Register", model.V1InboundWhatsApp, mock.Anything).Return()

	mockRouter.Register(model.V1InboundWhatsApp, noopHandler)

	NewAssert(t).AssertRouterRegistered(mockRouter, []model.EventType{model.V1InboundWhatsApp})
}

func TestRouterMockRoute(t *testing.T) {
	mockRouter := new(RouterMock)
	metadata := SetupMessageMetadata("wamid.1", model.V1InboundWhatsApp.Subject("owner-1"), "owner-1")
	mockRouter.On("Route", mock.Anything, metadata, mock.Anything).Return(errors.New("boom"))

	err := mockRouter.Route(context.Background(), metadata, []byte(`{}`))
	assert.EqualError(t, err, "boom")
	mockRouter.AssertExpectations(t)
}

func TestConsumerMock(t *testing.T) {
	mockConsumer := new(ConsumerMock)
	mockConsumer.On("Setup").Return(nil)
	mockConsumer.On("Start").Return(errors.New("subscribe failed"))
	mockConsumer.On("Stop").Return()

	assert.NoError(t, mockConsumer.Setup())
	assert.Error(t, mockConsumer.Start())
	mockConsumer.Stop()

	mockConsumer.AssertExpectations(t)
}
