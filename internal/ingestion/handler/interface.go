package handler

import (
	"context"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// EventHandlerInterface defines the common interface for event handlers
type EventHandlerInterface interface {
	// HandleEvent processes an event
	HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error
}

// InboundService ingests one raw channel payload.
type InboundService interface {
	IngestRaw(ctx context.Context, origen string, body []byte, autoCreateLead bool) (*model.IngestResult, error)
}

// Ensure the handlers implement the interfaces
var _ EventHandlerInterface = (*InboundHandler)(nil)
