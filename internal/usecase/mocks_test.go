package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

func testCtx(t *testing.T, tenantID uint64) context.Context {
	logger.Log = zaptest.NewLogger(t)
	ctx := logger.WithLogger(context.Background(), logger.Log)
	if tenantID != 0 {
		ctx = tenant.WithTenantID(ctx, tenantID)
	}
	return ctx
}

type completerMock struct{ mock.Mock }

func (m *completerMock) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

type replyGeneratorMock struct{ mock.Mock }

func (m *replyGeneratorMock) Respond(ctx context.Context, tenantID uint64, text string) (string, error) {
	args := m.Called(ctx, tenantID, text)
	return args.String(0), args.Error(1)
}

type senderMock struct{ mock.Mock }

func (m *senderMock) Send(ctx context.Context, tenantID uint64, platform model.Platform, to, text string) (string, error) {
	args := m.Called(ctx, tenantID, platform, to, text)
	return args.String(0), args.Error(1)
}

type replyWorkerMock struct{ mock.Mock }

func (m *replyWorkerMock) SubmitTask(task ReplyTask) error {
	return m.Called(task).Error(0)
}

func (m *replyWorkerMock) Stop() { m.Called() }

type transcriberMock struct{ mock.Mock }

func (m *transcriberMock) TranscribeBase64Audio(ctx context.Context, b64, mimeType string) (string, error) {
	args := m.Called(ctx, b64, mimeType)
	return args.String(0), args.Error(1)
}

type mediaFetcherMock struct{ mock.Mock }

func (m *mediaFetcherMock) FetchWhatsAppMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	args := m.Called(ctx, mediaID)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.String(1), args.Error(2)
}

type calendarMock struct{ mock.Mock }

func (m *calendarMock) CreateEvent(ctx context.Context, b *model.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

func (m *calendarMock) DeleteEvent(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

type sessionSenderMock struct{ mock.Mock }

func (m *sessionSenderMock) SendText(ctx context.Context, tenantID uint64, to, text string) (string, error) {
	args := m.Called(ctx, tenantID, to, text)
	return args.String(0), args.Error(1)
}

type metaSenderMock struct{ mock.Mock }

func (m *metaSenderMock) SendWhatsApp(ctx context.Context, to, text string) (string, error) {
	args := m.Called(ctx, to, text)
	return args.String(0), args.Error(1)
}

func (m *metaSenderMock) SendInstagram(ctx context.Context, recipientID, text string) (string, error) {
	args := m.Called(ctx, recipientID, text)
	return args.String(0), args.Error(1)
}
