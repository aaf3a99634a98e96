package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/config"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/jetstream"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/tenant"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // processed, ACK it
	ActionNak                          // NAK immediately
	ActionNakDelay                     // retryable error, NAK with backoff
	ActionDLQ                          // fatal or out of attempts, publish to DLQ then ACK
)

const consumerType = "inbound"

// acker is the acknowledgement surface of a JetStream message.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
}

// InboundConsumer consumes channel messages published for one owner and
// routes them to the registered handlers.
type InboundConsumer struct {
	client        jetstream.ClientInterface
	router        RouterInterface
	cfg           config.ConsumerNatsConfig
	ownerID       string
	dlqSubject    string
	ctx           context.Context
	cancel        context.CancelFunc
	sub           *nats.Subscription
	filterSubject string
}

// NewInboundConsumer creates a consumer bound to ownerID. Durable and queue
// group names get the owner appended so several owners can share a stream.
func NewInboundConsumer(client jetstream.ClientInterface, router RouterInterface, cfg config.ConsumerNatsConfig, ownerID, dlqSubject string) *InboundConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithLogger(ctx, logger.Log.With(zap.String("consumer_type", consumerType)))
	ctx = tenant.WithOwnerID(ctx, ownerID)

	cfg.Consumer = cfg.Consumer + "-" + ownerID
	cfg.QueueGroup = cfg.QueueGroup + "-" + ownerID

	return &InboundConsumer{
		client:     client,
		router:     router,
		cfg:        cfg,
		ownerID:    ownerID,
		dlqSubject: dlqSubject,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// modifySubjects derives the stream subjects (any owner) and the consumer
// filter subjects (this owner) from the configured base subjects.
func modifySubjects(subjects []string, ownerID string) (streamSubjects, consumerSubjects []string) {
	for _, subject := range subjects {
		subject = strings.TrimSuffix(subject, ".*")
		streamSubjects = append(streamSubjects, subject+".*")
		consumerSubjects = append(consumerSubjects, subject+"."+ownerID)
	}
	return streamSubjects, consumerSubjects
}

// determineAckNakAction decides the fate of a message from the processing
// result and its delivery count.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {
	if processingErr == nil {
		return ActionAck, 0
	}

	numDelivered := metadata.NumDelivered
	if numDelivered >= uint64(maxDeliver) || !apperrors.IsRetryable(processingErr) {
		return ActionDLQ, 0
	}

	delay = nakBaseDelay
	if numDelivered > 1 {
		delay = nakBaseDelay * (1 << (numDelivered - 1))
	}
	if delay > nakMaxDelay || delay <= 0 {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// Setup declares the stream and the durable push consumer.
func (c *InboundConsumer) Setup() error {
	log := logger.FromContext(c.ctx)
	log.Info("Setting up InboundConsumer", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	streamSubjects, consumerSubjects := modifySubjects(c.cfg.SubjectList, c.ownerID)

	streamCfg := &nats.StreamConfig{
		Name:       c.cfg.Stream,
		Subjects:   streamSubjects,
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     time.Duration(c.cfg.MaxAge*24) * time.Hour,
		Duplicates: 2 * time.Minute,
	}
	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		log.Error("Failed to setup inbound stream", zap.Error(err))
		return fmt.Errorf("failed to setup inbound stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: consumerSubjects,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverAllPolicy,
	}
	// a bound subscription with several filters must not name a subject
	c.filterSubject = ""
	if len(consumerSubjects) == 1 {
		c.filterSubject = consumerSubjects[0]
	}

	if err := c.client.SetupConsumer(c.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup inbound consumer", zap.Error(err))
		return fmt.Errorf("failed to setup inbound consumer '%s' for stream '%s': %w", c.cfg.Consumer, c.cfg.Stream, err)
	}

	log.Info("InboundConsumer setup complete", zap.Strings("filter_subjects", consumerSubjects))
	return nil
}

// Start binds the queue subscription.
func (c *InboundConsumer) Start() error {
	log := logger.FromContext(c.ctx)

	sub, err := c.client.SubscribePush(c.filterSubject, c.cfg.Consumer, c.cfg.QueueGroup, c.cfg.Stream, c.handleMessage)
	if err != nil {
		log.Error("Failed to subscribe inbound consumer", zap.Error(err),
			zap.String("consumer", c.cfg.Consumer),
			zap.String("group", c.cfg.QueueGroup),
		)
		return fmt.Errorf("failed to subscribe inbound consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("InboundConsumer subscribed", zap.String("consumer", c.cfg.Consumer))
	return nil
}

// Stop drains the subscription and cancels in-flight handlers.
func (c *InboundConsumer) Stop() {
	log := logger.FromContext(c.ctx)
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining inbound subscription", zap.Error(err))
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("InboundConsumer stopped")
}

func (c *InboundConsumer) handleMessage(msg *nats.Msg) {
	log := logger.FromContext(c.ctx)

	metadata, err := msg.Metadata()
	if err != nil {
		log.Error("Failed to read message metadata", zap.Error(err), zap.String("subject", msg.Subject))
		observer.IncEventProcessingAction("", c.ownerID, consumerType, "nak_metadata_error", "metadata")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message", zap.Error(nakErr))
		}
		return
	}

	c.process(msg, msg.Subject, msg.Header, msg.Data, metadata)
}

// process routes one delivery and settles it.
func (c *InboundConsumer) process(ack acker, subject string, header nats.Header, data []byte, metadata *nats.MsgMetadata) {
	startTime := utils.Now()
	eventType, found := model.MapToBaseEventType(subject)

	defer func() {
		observer.ObserveEventProcessingDuration(string(eventType), c.ownerID, consumerType, time.Since(startTime))

		if r := recover(); r != nil {
			logger.FromContext(c.ctx).Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("subject", subject),
				zap.Stack("stack"),
			)
			observer.IncEventProcessingAction(string(eventType), c.ownerID, consumerType, "panic_nak", "panic")
			if nakErr := ack.Nak(); nakErr != nil {
				logger.FromContext(c.ctx).Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	log := logger.FromContext(c.ctx)
	if !found {
		log.Warn("Unknown event type", zap.String("subject", subject))
		observer.IncEventProcessingAction("", c.ownerID, consumerType, "nak_unknown_type", "unknown_event_type")
		if nakErr := ack.Nak(); nakErr != nil {
			log.Error("Failed to NAK message for unknown event type", zap.Error(nakErr))
		}
		return
	}

	msgID := header.Get(jetstream.HeaderMsgID)
	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}

	internalMetadata := &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		NumPending:       metadata.NumPending,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		Domain:           metadata.Domain,
		MessageID:        msgID,
		MessageSubject:   subject,
		OwnerID:          c.ownerID,
	}

	observer.IncEventsReceived(string(eventType), c.ownerID, consumerType)

	msgCtx := logger.WithLogger(c.ctx, logger.FromContextOr(c.ctx, nil).With(
		zap.String("nats_message_id", msgID),
		zap.Uint64("stream_sequence", internalMetadata.StreamSequence),
		zap.Uint64("num_delivered", internalMetadata.NumDelivered),
	))
	log = logger.FromContext(msgCtx)

	processingErr := c.router.Route(msgCtx, internalMetadata, data)

	action, nakDelay := determineAckNakAction(processingErr, metadata, c.cfg.MaxDeliver, c.cfg.NakBaseDelay, c.cfg.NakMaxDelay)

	errorType := "none"
	if processingErr != nil {
		errorType = observer.SanitizeErrorType(processingErr.Error())
	}

	switch action {
	case ActionAck:
		log.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventProcessingAction(string(eventType), c.ownerID, consumerType, "ack_success", errorType)
		if ackErr := ack.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		log.Info("NAKing message with delay for redelivery",
			zap.Error(processingErr),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("nak_delay", nakDelay),
		)
		observer.IncEventProcessingAction(string(eventType), c.ownerID, consumerType, "nak_retry", errorType)
		if nakErr := ack.NakWithDelay(nakDelay); nakErr != nil {
			log.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionDLQ:
		c.deadLetter(msgCtx, ack, subject, msgID, data, metadata, processingErr, string(eventType), errorType)

	default:
		observer.IncEventProcessingAction(string(eventType), c.ownerID, consumerType, "nak_terminal", errorType)
		if nakErr := ack.Nak(); nakErr != nil {
			log.Error("Failed to NAK message", zap.Error(nakErr))
		}
	}
}

// deadLetter publishes the failed delivery to the owner's DLQ subject and
// ACKs the original. A failed publish NAKs instead so the message is kept.
func (c *InboundConsumer) deadLetter(ctx context.Context, ack acker, subject, msgID string, data []byte, metadata *nats.MsgMetadata, processingErr error, eventType, errorType string) {
	log := logger.FromContext(ctx)

	classification := "fatal"
	reason := "fatal error encountered"
	if apperrors.IsRetryable(processingErr) {
		classification = "retryable"
		reason = "max delivery attempts reached"
	}
	log.Warn("Sending message to DLQ: "+reason,
		zap.Error(processingErr),
		zap.Int("max_deliver", c.cfg.MaxDeliver),
	)

	original := json.RawMessage(data)
	if !json.Valid(data) {
		original = utils.MustMarshalJSON(string(data))
	}

	payload := model.DLQPayload{
		SourceSubject:   subject,
		Owner:           c.ownerID,
		OriginalPayload: original,
		Error:           processingErr.Error(),
		ErrorType:       classification,
		RetryCount:      metadata.NumDelivered,
		MaxRetry:        c.cfg.MaxDeliver,
		Timestamp:       utils.Now(),
	}

	dlqData, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to marshal DLQ payload", zap.Error(err))
		observer.IncEventProcessingAction(eventType, c.ownerID, consumerType, "nak_dlq_marshal_fail", "dlq_marshal_fail")
		if nakErr := ack.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ marshal error", zap.Error(nakErr))
		}
		return
	}

	dlqFullSubject := c.dlqSubject + "." + c.ownerID
	headers := map[string]string{"Original-Nats-Msg-Id": msgID}
	if err := c.client.Publish(dlqFullSubject, dlqData, headers); err != nil {
		log.Error("Failed to publish message to DLQ", zap.Error(err), zap.String("dlq_subject", dlqFullSubject))
		observer.IncEventProcessingAction(eventType, c.ownerID, consumerType, "nak_dlq_publish_fail", "dlq_publish_fail")
		if nakErr := ack.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ publish error", zap.Error(nakErr))
		}
		return
	}

	log.Info("Message published to DLQ", zap.String("dlq_subject", dlqFullSubject))
	observer.IncEventProcessingAction(eventType, c.ownerID, consumerType, "dlq_published_ack_success", errorType)
	if ackErr := ack.Ack(); ackErr != nil {
		log.Error("Failed to ACK message after DLQ publish", zap.Error(ackErr))
	}
}
