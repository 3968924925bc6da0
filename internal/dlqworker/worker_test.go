package dlqworker

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
	ingestionmock "gitlab.com/timkado/api/concierge-engine/internal/ingestion/mock"
	jsmock "gitlab.com/timkado/api/concierge-engine/internal/jetstream/mock"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	storagemock "gitlab.com/timkado/api/concierge-engine/internal/storage/mock"
)

type fakeDelivery struct {
	acks, terms int
	nakDelay    time.Duration
	naks        int
	termErr     error
}

func (f *fakeDelivery) Ack(...nats.AckOpt) error { f.acks++; return nil }
func (f *fakeDelivery) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	f.naks++
	f.nakDelay = d
	return nil
}
func (f *fakeDelivery) Term(...nats.AckOpt) error { f.terms++; return f.termErr }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.NATS.DLQStream = "DLQ"
	cfg.NATS.DLQSubject = "v1.dlq"
	cfg.NATS.DLQWorkers = 2
	cfg.NATS.DLQBaseDelayMinutes = 1
	cfg.NATS.DLQMaxDelayMinutes = 5
	cfg.NATS.DLQMaxDeliver = 3
	cfg.NATS.DLQMaxAgeDays = 7
	return cfg
}

func setupWorker(t *testing.T) (*Worker, *ingestionmock.RouterMock, *storagemock.ExhaustedEventRepoMock) {
	t.Helper()
	router := new(ingestionmock.RouterMock)
	store := new(storagemock.ExhaustedEventRepoMock)
	w, err := newWorker(testConfig(), zaptest.NewLogger(t), new(jsmock.ClientMock), router, store)
	require.NoError(t, err)
	t.Cleanup(w.pool.Release)
	return w, router, store
}

func dlqPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(model.DLQPayload{
		SourceSubject:   "v1.webhooks.whatsapp.42",
		TenantID:        "42",
		OriginalPayload: json.RawMessage(`{"object":"whatsapp_business_account"}`),
		Error:           "llm timeout",
		ErrorType:       "fatal",
		Timestamp:       time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return data
}

func meta(delivered uint64) *nats.MsgMetadata {
	return &nats.MsgMetadata{NumDelivered: delivered, Sequence: nats.SequencePair{Stream: 7, Consumer: 3}}
}

func TestCalculateBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 5 * time.Minute},
		{64, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateBackoffDelay(tt.attempt, 1, 5), "attempt %d", tt.attempt)
	}
}

func TestHandle_AckOnSuccess(t *testing.T) {
	w, router, store := setupWorker(t)
	router.On("Route", mock.Anything, mock.MatchedBy(func(m *model.MessageMetadata) bool {
		return m.MessageSubject == "v1.webhooks.whatsapp.42" && m.TenantID == "42" && m.NumDelivered == 1
	}), mock.Anything).Return(nil)

	d := &fakeDelivery{}
	w.handle(context.Background(), d, "v1.dlq.42", dlqPayload(t), meta(1))

	assert.Equal(t, 1, d.acks)
	assert.Zero(t, d.naks+d.terms)
	router.AssertExpectations(t)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestHandle_NaksWithBackoffBeforeLastDelivery(t *testing.T) {
	w, router, store := setupWorker(t)
	router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(apperrors.NewRetryable(apperrors.ErrTimeout, "llm"))

	d := &fakeDelivery{}
	w.handle(context.Background(), d, "v1.dlq.42", dlqPayload(t), meta(2))

	assert.Equal(t, 1, d.naks)
	assert.Equal(t, 2*time.Minute, d.nakDelay)
	assert.Zero(t, d.terms)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestHandle_ExhaustedIsPersistedAndTerminated(t *testing.T) {
	w, router, store := setupWorker(t)
	router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("still broken"))
	data := dlqPayload(t)
	store.On("Save", mock.Anything, mock.MatchedBy(func(e model.ExhaustedEvent) bool {
		return e.UserID == 42 &&
			e.SourceSubject == "v1.webhooks.whatsapp.42" &&
			e.LastError == "still broken" &&
			e.RetryCount == 3 &&
			string(e.DLQPayload) == string(data) &&
			string(e.OriginalPayload) == `{"object":"whatsapp_business_account"}`
	})).Return(nil)

	d := &fakeDelivery{}
	w.handle(context.Background(), d, "v1.dlq.42", data, meta(3))

	assert.Equal(t, 1, d.terms)
	assert.Zero(t, d.naks)
	store.AssertExpectations(t)
}

func TestHandle_ExhaustedSaveFailureStillTerminates(t *testing.T) {
	w, router, store := setupWorker(t)
	router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))
	store.On("Save", mock.Anything, mock.Anything).Return(apperrors.ErrDatabase)

	d := &fakeDelivery{}
	w.handle(context.Background(), d, "v1.dlq.42", dlqPayload(t), meta(5))

	assert.Equal(t, 1, d.terms)
}

func TestHandle_BadPayloadTerminates(t *testing.T) {
	w, router, _ := setupWorker(t)

	d := &fakeDelivery{}
	w.handle(context.Background(), d, "v1.dlq.42", []byte("{not json"), meta(1))

	assert.Equal(t, 1, d.terms)
	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything, mock.Anything)
}

func TestMaxDeliverDefault(t *testing.T) {
	w, _, _ := setupWorker(t)
	assert.Equal(t, 3, w.maxDeliver())
	w.cfg.NATS.DLQMaxDeliver = 0
	assert.Equal(t, defaultMaxDeliver, w.maxDeliver())
}

func TestNewWorker_SetupStreamAndConsumer(t *testing.T) {
	js := new(jsmock.ClientMock)
	js.On("SetupStream", mock.Anything, mock.MatchedBy(func(c *nats.StreamConfig) bool {
		return c.Name == "DLQ" && len(c.Subjects) == 1 && c.Subjects[0] == "v1.dlq.>" && c.MaxAge == 7*24*time.Hour
	})).Return(nil)
	js.On("SetupConsumer", mock.Anything, "DLQ", mock.MatchedBy(func(c *nats.ConsumerConfig) bool {
		return c.Durable == "v1_dlq_worker_consumer" && c.MaxDeliver == 3 && c.AckPolicy == nats.AckExplicitPolicy
	})).Return(nil)

	w, err := NewWorker(testConfig(), zaptest.NewLogger(t), js, new(ingestionmock.RouterMock), new(storagemock.ExhaustedEventRepoMock))

	require.NoError(t, err)
	w.pool.Release()
	js.AssertExpectations(t)
}

func TestNewWorker_StreamError(t *testing.T) {
	js := new(jsmock.ClientMock)
	js.On("SetupStream", mock.Anything, mock.Anything).Return(apperrors.ErrNATS)

	_, err := NewWorker(testConfig(), zaptest.NewLogger(t), js, new(ingestionmock.RouterMock), new(storagemock.ExhaustedEventRepoMock))

	assert.ErrorIs(t, err, apperrors.ErrNATS)
	js.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestStart_SubscribeError(t *testing.T) {
	w, _, _ := setupWorker(t)
	js := w.js.(*jsmock.ClientMock)
	js.On("SubscribePull", "DLQ", "v1.dlq.>", "v1_dlq_worker_consumer").Return(nil, apperrors.ErrNATS)

	err := w.Start(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrNATS)
}
