package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/config"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/ingestion"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/ingestion/handler"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/jetstream"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
)

// Processor wires the inbound bus consumer to ingestion.
type Processor struct {
	service        *LeadService
	jsClient       jetstream.ClientInterface
	consumer       ingestion.ConsumerInterface
	eventRouter    ingestion.RouterInterface
	inboundHandler handler.EventHandlerInterface
}

// NewProcessor builds the router, the inbound handler and the consumer for
// the configured ingestion owner.
func NewProcessor(service *LeadService, jsClient jetstream.ClientInterface, cfg *config.Config) *Processor {
	router := ingestion.NewRouter()
	inboundHandler := handler.NewInboundHandler(service, cfg.Ingestion.AutoCreateLead)
	consumer := ingestion.NewInboundConsumer(jsClient, router, cfg.NATS.Inbound, cfg.Ingestion.OwnerID, cfg.NATS.DLQSubject)

	return &Processor{
		service:        service,
		jsClient:       jsClient,
		consumer:       consumer,
		eventRouter:    router,
		inboundHandler: inboundHandler,
	}
}

// GetRouter returns the processor's event router.
func (p *Processor) GetRouter() ingestion.RouterInterface {
	return p.eventRouter
}

// Setup registers handlers and declares the stream and consumer.
func (p *Processor) Setup() error {
	p.eventRouter.Register(model.V1InboundWhatsApp, p.inboundHandler.HandleEvent)

	// Subjects the stream accepts but nothing handles are acked and logged.
	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("subject", metadata.MessageSubject),
		)
		return nil
	})

	if err := p.consumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup inbound consumer: %w", err)
	}

	logger.Log.Info("Processor setup complete")
	return nil
}

// Start subscribes the consumer.
func (p *Processor) Start() (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("[panic] Recovered from panic in processor",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("processor start panicked: %v", r)
		}
	}()

	if err := p.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start inbound consumer: %w", err)
	}

	logger.Log.Info("Inbound consumer started")
	return nil
}

// Stop drains the consumer.
func (p *Processor) Stop() {
	logger.Log.Info("Stopping event processor...")
	p.consumer.Stop()
	logger.Log.Info("Event processor stopped")
}
