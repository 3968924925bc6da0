package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/config"
	clientmock "gitlab.com/timkado/api/concierge-engine/internal/jetstream/mock"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// MockHandler is a mock of the EventHandler function
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) Handle(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}

// fakeDelivery records how a message was settled.
type fakeDelivery struct {
	acks, naks, terms int
	nakDelay          time.Duration
}

func (f *fakeDelivery) Ack(...nats.AckOpt) error { f.acks++; return nil }
func (f *fakeDelivery) Nak(...nats.AckOpt) error { f.naks++; return nil }
func (f *fakeDelivery) Term(...nats.AckOpt) error {
	f.terms++
	return nil
}
func (f *fakeDelivery) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	f.naks++
	f.nakDelay = d
	return nil
}

func webhookConfig() config.ConsumerNatsConfig {
	return config.ConsumerNatsConfig{
		Stream:       "WEBHOOKS",
		Consumer:     "concierge-webhooks",
		QueueGroup:   "concierge-webhooks",
		SubjectList:  []string{"v1.webhooks.>"},
		MaxAge:       7,
		MaxDeliver:   3,
		NakBaseDelay: time.Second,
		NakMaxDelay:  10 * time.Second,
	}
}

func setupTest(t *testing.T) (*clientmock.ClientMock, *Router) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return new(clientmock.ClientMock), NewRouter()
}

func meta(delivered uint64) *nats.MsgMetadata {
	return &nats.MsgMetadata{
		Sequence:     nats.SequencePair{Stream: 10, Consumer: 4},
		NumDelivered: delivered,
		Stream:       "WEBHOOKS",
		Consumer:     "concierge-webhooks",
	}
}

func TestWebhookConsumer_Setup(t *testing.T) {
	mockClient, router := setupTest(t)
	cfg := webhookConfig()
	consumer := NewWebhookConsumer(mockClient, router, cfg, "v1.dlq")

	mockClient.On("SetupStream", mock.Anything, mock.MatchedBy(func(sc *nats.StreamConfig) bool {
		return sc.Name == "WEBHOOKS" &&
			sc.MaxAge == 7*24*time.Hour &&
			sc.Retention == nats.LimitsPolicy &&
			assert.ElementsMatch(t, []string{"v1.webhooks.>"}, sc.Subjects)
	})).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, "WEBHOOKS", mock.MatchedBy(func(cc *nats.ConsumerConfig) bool {
		return cc.Durable == cfg.Consumer &&
			cc.DeliverGroup == cfg.QueueGroup &&
			cc.AckPolicy == nats.AckExplicitPolicy &&
			cc.MaxDeliver == 3 &&
			cc.DeliverSubject != ""
	})).Return(nil)

	assert.NoError(t, consumer.Setup())
	mockClient.AssertExpectations(t)
}

func TestWebhookConsumer_Setup_StreamError(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	mockClient.On("SetupStream", mock.Anything, mock.Anything).Return(errors.New("stream boom"))

	err := consumer.Setup()

	assert.ErrorContains(t, err, "stream boom")
	mockClient.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookConsumer_StartStop(t *testing.T) {
	mockClient, router := setupTest(t)
	cfg := webhookConfig()
	consumer := NewWebhookConsumer(mockClient, router, cfg, "v1.dlq")

	mockClient.On("SubscribePush", "", cfg.Consumer, cfg.QueueGroup, cfg.Stream, mock.AnythingOfType("nats.MsgHandler")).
		Return(&nats.Subscription{}, nil)
	require.NoError(t, consumer.Start())

	ctx := consumer.base.ctx
	consumer.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("context was not cancelled")
	}
	mockClient.AssertExpectations(t)
}

func TestWebhookConsumer_StartError(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	mockClient.On("SubscribePush", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("no consumer"))

	assert.ErrorContains(t, consumer.Start(), "no consumer")
	assert.Nil(t, consumer.sub)
}

func TestDetermineAckNakAction(t *testing.T) {
	baseDelay := time.Second
	maxDelay := 16 * time.Second
	maxDeliver := 5
	transient := apperrors.NewRetryable(errors.New("transient"), "transient")

	tests := []struct {
		name           string
		processingErr  error
		numDelivered   uint64
		expectedAction AckNakAction
		expectedDelay  time.Duration
	}{
		{"success", nil, 1, ActionAck, 0},
		{"retryable first attempt", transient, 1, ActionNakDelay, time.Second},
		{"retryable third attempt", transient, 3, ActionNakDelay, 4 * time.Second},
		{"retryable fourth attempt", transient, 4, ActionNakDelay, 8 * time.Second},
		{"retryable at max deliver", transient, 5, ActionDLQ, 0},
		{"fatal", apperrors.NewFatal(errors.New("bad"), "bad"), 1, ActionDLQ, 0},
		{"unclassified is fatal", errors.New("plain"), 1, ActionDLQ, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, delay := determineAckNakAction(tt.processingErr, meta(tt.numDelivered), maxDeliver, baseDelay, maxDelay)
			assert.Equal(t, tt.expectedAction, action)
			assert.Equal(t, tt.expectedDelay, delay)
		})
	}

	_, delay := determineAckNakAction(transient, meta(4), 10, time.Second, 5*time.Second)
	assert.Equal(t, 5*time.Second, delay)
}

func TestProcess_AckOnSuccess(t *testing.T) {
	mockClient, router := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1WebhookWhatsApp, forward(handler))
	handler.On("Handle", mock.Anything, model.V1WebhookWhatsApp, mock.MatchedBy(func(m *model.MessageMetadata) bool {
		return m.TenantID == "42" && m.MessageID == "abc" && m.StreamSequence == 10
	}), []byte(`{}`)).Return(nil)

	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	d := &fakeDelivery{}
	consumer.base.process(d, "v1.webhooks.whatsapp.42", []byte(`{}`), "abc", meta(1))

	assert.Equal(t, 1, d.acks)
	assert.Zero(t, d.naks)
	handler.AssertExpectations(t)
}

func TestProcess_RetryableNaksWithDelay(t *testing.T) {
	mockClient, router := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1WebhookWhatsApp, forward(handler))
	handler.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewRetryable(apperrors.ErrDatabase, "save"))

	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	d := &fakeDelivery{}
	consumer.base.process(d, "v1.webhooks.whatsapp.42", []byte(`{}`), "", meta(2))

	assert.Equal(t, 1, d.naks)
	assert.Equal(t, 2*time.Second, d.nakDelay)
	assert.Zero(t, d.acks)
	mockClient.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_FatalGoesToTenantDLQ(t *testing.T) {
	mockClient, router := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1WebhookInstagram, forward(handler))
	handler.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewFatal(apperrors.ErrBadRequest, "decode"))

	var published model.DLQPayload
	mockClient.On("Publish", "v1.dlq.42", mock.Anything, map[string]string{"Original-Nats-Msg-Id": "abc"}).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &published))
		}).Return(nil)

	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	d := &fakeDelivery{}
	consumer.base.process(d, "v1.webhooks.instagram.42", []byte(`{"object":"instagram"}`), "abc", meta(1))

	assert.Equal(t, 1, d.acks)
	assert.Equal(t, "v1.webhooks.instagram.42", published.SourceSubject)
	assert.Equal(t, "42", published.TenantID)
	assert.Equal(t, "fatal", published.ErrorType)
	assert.JSONEq(t, `{"object":"instagram"}`, string(published.OriginalPayload))
	mockClient.AssertExpectations(t)
}

func TestProcess_DLQPublishFailureNaks(t *testing.T) {
	mockClient, router := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1WebhookWhatsApp, forward(handler))
	handler.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewRetryable(apperrors.ErrTimeout, "slow"))
	mockClient.On("Publish", "v1.dlq.42", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	d := &fakeDelivery{}
	consumer.base.process(d, "v1.webhooks.whatsapp.42", []byte(`not json`), "", meta(3))

	assert.Equal(t, 1, d.naks)
	assert.Zero(t, d.acks)
}

func TestProcess_UnknownSubjectTerminates(t *testing.T) {
	mockClient, router := setupTest(t)
	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	d := &fakeDelivery{}

	consumer.base.process(d, "v1.webhooks.fax.42", []byte(`{}`), "", meta(1))

	assert.Equal(t, 1, d.terms)
	assert.Zero(t, d.acks+d.naks)
}

func TestProcess_PanicNaks(t *testing.T) {
	mockClient, router := setupTest(t)
	router.Register(model.V1WebhookWhatsApp, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		panic("handler exploded")
	})
	consumer := NewWebhookConsumer(mockClient, router, webhookConfig(), "v1.dlq")
	d := &fakeDelivery{}

	assert.NotPanics(t, func() {
		consumer.base.process(d, "v1.webhooks.whatsapp.42", []byte(`{}`), "", meta(1))
	})
	assert.Equal(t, 1, d.naks)
}
