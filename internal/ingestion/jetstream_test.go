package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/config"
	clientmock "gitlab.com/timkado/api/lead-pipeline-core/internal/jetstream/mock"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/tenant"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
)

const testOwner = "owner-1"

// MockHandler is a mock of the EventHandler function
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) Handle(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}

// fakeAck records how a delivery was settled.
type fakeAck struct {
	mu       sync.Mutex
	acks     int
	naks     int
	nakDelay []time.Duration
}

func (f *fakeAck) Ack(...nats.AckOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAck) Nak(...nats.AckOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.naks++
	return nil
}

func (f *fakeAck) NakWithDelay(delay time.Duration, _ ...nats.AckOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nakDelay = append(f.nakDelay, delay)
	return nil
}

func testConsumerConfig() config.ConsumerNatsConfig {
	return config.ConsumerNatsConfig{
		Stream:       "inbound-stream",
		Consumer:     "inbound-consumer",
		QueueGroup:   "inbound-group",
		SubjectList:  []string{string(model.V1InboundWhatsApp)},
		MaxAge:       7,
		MaxDeliver:   3,
		NakBaseDelay: time.Second,
		NakMaxDelay:  3 * time.Second,
	}
}

func setupTest(t *testing.T) (*clientmock.ClientMock, *Router) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return new(clientmock.ClientMock), NewRouter()
}

func deliveryMeta(numDelivered uint64) *nats.MsgMetadata {
	return &nats.MsgMetadata{
		Sequence:     nats.SequencePair{Stream: 42, Consumer: 7},
		NumDelivered: numDelivered,
		Stream:       "inbound-stream",
		Consumer:     "inbound-consumer-owner-1",
		Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInboundConsumer_Setup(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")

	mockClient.On("SetupStream", mock.Anything, mock.MatchedBy(func(cfg *nats.StreamConfig) bool {
		return cfg.Name == "inbound-stream" &&
			assert.ObjectsAreEqual([]string{"v1.inbound.whatsapp.*"}, cfg.Subjects) &&
			cfg.Storage == nats.FileStorage &&
			cfg.Retention == nats.LimitsPolicy &&
			cfg.MaxAge == 7*24*time.Hour
	})).Return(nil).Once()

	mockClient.On("SetupConsumer", mock.Anything, "inbound-stream", mock.MatchedBy(func(cfg *nats.ConsumerConfig) bool {
		return cfg.Durable == "inbound-consumer-owner-1" &&
			cfg.DeliverGroup == "inbound-group-owner-1" &&
			assert.ObjectsAreEqual([]string{"v1.inbound.whatsapp.owner-1"}, cfg.FilterSubjects) &&
			cfg.AckPolicy == nats.AckExplicitPolicy &&
			cfg.MaxDeliver == 3 &&
			cfg.DeliverSubject != ""
	})).Return(nil).Once()

	err := consumer.Setup()
	require.NoError(t, err)
	assert.Equal(t, "v1.inbound.whatsapp.owner-1", consumer.filterSubject)
	mockClient.AssertExpectations(t)
}

func TestInboundConsumer_Setup_StreamError(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")

	streamErr := errors.New("stream setup failed")
	mockClient.On("SetupStream", mock.Anything, mock.Anything).Return(streamErr).Once()

	err := consumer.Setup()
	assert.ErrorIs(t, err, streamErr)
	mockClient.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestInboundConsumer_Setup_ConsumerError(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")

	consumerErr := errors.New("consumer setup failed")
	mockClient.On("SetupStream", mock.Anything, mock.Anything).Return(nil).Once()
	mockClient.On("SetupConsumer", mock.Anything, "inbound-stream", mock.Anything).Return(consumerErr).Once()

	err := consumer.Setup()
	assert.ErrorIs(t, err, consumerErr)
	mockClient.AssertExpectations(t)
}

func TestInboundConsumer_StartStop(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
	consumer.filterSubject = "v1.inbound.whatsapp.owner-1"

	mockClient.On("SubscribePush", "v1.inbound.whatsapp.owner-1", "inbound-consumer-owner-1", "inbound-group-owner-1", "inbound-stream", mock.Anything).
		Return(nil, nil).Once()

	require.NoError(t, consumer.Start())
	consumer.Stop()

	assert.Error(t, consumer.ctx.Err(), "Stop must cancel the consumer context")
	mockClient.AssertExpectations(t)
}

func TestInboundConsumer_Start_Error(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")

	subErr := errors.New("subscribe failed")
	mockClient.On("SubscribePush", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, subErr).Once()

	err := consumer.Start()
	assert.ErrorIs(t, err, subErr)
	assert.Nil(t, consumer.sub)
}

func TestInboundConsumer_ProcessAcksSuccess(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
	handler := new(MockHandler)
	router.Register(model.V1InboundWhatsApp, handler.Handle)

	subject := model.V1InboundWhatsApp.Subject(testOwner)
	body := []byte(`{"from":"5215512345678","messageId":"wamid.1"}`)
	handler.On("Handle",
		mock.MatchedBy(func(ctx context.Context) bool {
			owner, err := tenant.FromContext(ctx)
			return err == nil && owner == testOwner
		}),
		model.V1InboundWhatsApp,
		mock.MatchedBy(func(md *model.MessageMetadata) bool {
			return md.MessageID == "wamid.1" && md.StreamSequence == 42 && md.OwnerID == testOwner && md.MessageSubject == subject
		}),
		body,
	).Return(nil).Once()

	ack := &fakeAck{}
	header := nats.Header{}
	header.Set(nats.MsgIdHdr, "wamid.1")
	consumer.process(ack, subject, header, body, deliveryMeta(1))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.naks)
	handler.AssertExpectations(t)
	mockClient.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestInboundConsumer_ProcessRetriesWithBackoff(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
	router.Register(model.V1InboundWhatsApp, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		return apperrors.NewRetryable(apperrors.ErrDatabase, "store down")
	})

	ack := &fakeAck{}
	consumer.process(ack, model.V1InboundWhatsApp.Subject(testOwner), nil, []byte(`{}`), deliveryMeta(2))

	assert.Equal(t, []time.Duration{2 * time.Second}, ack.nakDelay)
	assert.Zero(t, ack.acks)
}

func TestInboundConsumer_ProcessDeadLetters(t *testing.T) {
	testCases := []struct {
		name         string
		err          error
		numDelivered uint64
		wantType     string
	}{
		{"fatal on first delivery", apperrors.NewFatal(apperrors.ErrValidation, "bad payload"), 1, "fatal"},
		{"retryable out of attempts", apperrors.NewRetryable(apperrors.ErrDatabase, "store down"), 3, "retryable"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockClient, router := setupTest(t)
			consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
			router.Register(model.V1InboundWhatsApp, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
				return tc.err
			})

			var published model.DLQPayload
			mockClient.On("Publish", "v1.dlq.inbound.owner-1", mock.Anything, map[string]string{"Original-Nats-Msg-Id": "msg-42"}).
				Run(func(args mock.Arguments) {
					require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &published))
				}).Return(nil).Once()

			ack := &fakeAck{}
			body := []byte(`{"from":""}`)
			consumer.process(ack, model.V1InboundWhatsApp.Subject(testOwner), nil, body, deliveryMeta(tc.numDelivered))

			assert.Equal(t, 1, ack.acks)
			assert.Zero(t, ack.naks)
			assert.Equal(t, tc.wantType, published.ErrorType)
			assert.Equal(t, testOwner, published.Owner)
			assert.Equal(t, tc.numDelivered, published.RetryCount)
			assert.Equal(t, 3, published.MaxRetry)
			assert.JSONEq(t, string(body), string(published.OriginalPayload))
			mockClient.AssertExpectations(t)
		})
	}
}

func TestInboundConsumer_ProcessDeadLetterKeepsNonJSONBody(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
	router.Register(model.V1InboundWhatsApp, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		return apperrors.NewFatal(apperrors.ErrValidation, "bad payload")
	})

	var published model.DLQPayload
	mockClient.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &published))
		}).Return(nil).Once()

	consumer.process(&fakeAck{}, model.V1InboundWhatsApp.Subject(testOwner), nil, []byte("not json"), deliveryMeta(1))

	assert.JSONEq(t, `"not json"`, string(published.OriginalPayload))
}

func TestInboundConsumer_ProcessNaksWhenDLQPublishFails(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
	router.Register(model.V1InboundWhatsApp, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		return apperrors.NewFatal(apperrors.ErrValidation, "bad payload")
	})
	mockClient.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(apperrors.ErrNATS).Once()

	ack := &fakeAck{}
	consumer.process(ack, model.V1InboundWhatsApp.Subject(testOwner), nil, []byte(`{}`), deliveryMeta(1))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.naks)
}

func TestInboundConsumer_ProcessUnknownSubject(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
	handler := new(MockHandler)
	router.RegisterDefault(handler.Handle)

	ack := &fakeAck{}
	consumer.process(ack, "v9.unknown", nil, []byte(`{}`), deliveryMeta(1))

	assert.Equal(t, 1, ack.naks)
	handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInboundConsumer_ProcessRecoversPanic(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewInboundConsumer(mockClient, router, testConsumerConfig(), testOwner, "v1.dlq.inbound")
	router.Register(model.V1InboundWhatsApp, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		panic("handler exploded")
	})

	ack := &fakeAck{}
	assert.NotPanics(t, func() {
		consumer.process(ack, model.V1InboundWhatsApp.Subject(testOwner), nil, []byte(`{}`), deliveryMeta(1))
	})
	assert.Equal(t, 1, ack.naks)
	assert.Zero(t, ack.acks)
}

func TestDetermineAckNakAction(t *testing.T) {
	base := time.Second
	maxDelay := 5 * time.Second
	retryable := apperrors.NewRetryable(errors.New("temporary"), "retry me")
	fatal := apperrors.NewFatal(errors.New("permanent"), "give up")

	tests := []struct {
		name         string
		err          error
		numDelivered uint64
		maxDeliver   int
		wantAction   AckNakAction
		wantDelay    time.Duration
	}{
		{"success", nil, 1, 3, ActionAck, 0},
		{"retryable first attempt", retryable, 1, 3, ActionNakDelay, base},
		{"retryable second attempt doubles", retryable, 2, 5, ActionNakDelay, 2 * base},
		{"retryable delay capped", retryable, 4, 10, ActionNakDelay, maxDelay},
		{"retryable at max deliver", retryable, 3, 3, ActionDLQ, 0},
		{"fatal goes straight to dlq", fatal, 1, 3, ActionDLQ, 0},
		{"unclassified counts as fatal", errors.New("plain"), 1, 3, ActionDLQ, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, delay := determineAckNakAction(tt.err, &nats.MsgMetadata{NumDelivered: tt.numDelivered}, tt.maxDeliver, base, maxDelay)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantDelay, delay)
		})
	}
}

func TestModifySubjects(t *testing.T) {
	tests := []struct {
		name         string
		subjects     []string
		wantStream   []string
		wantConsumer []string
	}{
		{
			name:         "base subject",
			subjects:     []string{"v1.inbound.whatsapp"},
			wantStream:   []string{"v1.inbound.whatsapp.*"},
			wantConsumer: []string{"v1.inbound.whatsapp.owner-1"},
		},
		{
			name:         "wildcard is not doubled",
			subjects:     []string{"v1.inbound.whatsapp.*", "v1.inbound.sms"},
			wantStream:   []string{"v1.inbound.whatsapp.*", "v1.inbound.sms.*"},
			wantConsumer: []string{"v1.inbound.whatsapp.owner-1", "v1.inbound.sms.owner-1"},
		},
		{
			name:     "empty",
			subjects: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, consumer := modifySubjects(tt.subjects, testOwner)
			assert.Equal(t, tt.wantStream, stream)
			assert.Equal(t, tt.wantConsumer, consumer)
		})
	}
}
