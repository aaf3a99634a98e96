package handler

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/tenant"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
)

// InboundHandler feeds channel messages from the bus into ingestion.
type InboundHandler struct {
	service        InboundService
	autoCreateLead bool
}

// NewInboundHandler creates the inbound handler. autoCreateLead decides
// whether unknown senders get a placeholder lead.
func NewInboundHandler(service InboundService, autoCreateLead bool) *InboundHandler {
	return &InboundHandler{
		service:        service,
		autoCreateLead: autoCreateLead,
	}
}

// HandleEvent ingests the payload and classifies failures for the consumer:
// bad payloads are fatal and go to the DLQ, store trouble is retried.
func (h *InboundHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	ctx = tenant.WithRequestID(ctx, uuid.NewString())
	log := logger.FromContext(ctx)

	switch eventType {
	case model.V1InboundWhatsApp:
	default:
		log.Error("Unsupported inbound event type", zap.String("eventType", string(eventType)))
		return apperrors.NewFatal(errors.New("unsupported event type"), "unsupported inbound event type: %s", eventType)
	}

	result, err := h.service.IngestRaw(ctx, eventType.Origen(), rawEvent, h.autoCreateLead)
	if err != nil {
		return classify(err)
	}

	fields := []zap.Field{
		zap.String("outcome", string(result.Outcome)),
		zap.Bool("created", result.Created),
	}
	if result.Lead != nil {
		fields = append(fields, zap.String("lead_id", result.Lead.ID))
	}
	log.Info("Inbound message ingested", fields...)
	return nil
}

// classify wraps err as Retryable when a later delivery may succeed.
func classify(err error) error {
	switch {
	case apperrors.IsDatabaseError(err),
		apperrors.IsTimeoutError(err),
		apperrors.IsConflictError(err),
		errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewRetryable(err, "inbound ingestion failed")
	default:
		return apperrors.NewFatal(err, "inbound payload rejected")
	}
}
