package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/auth"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/session"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/internal/usecase"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

const testSecret = "test-secret-at-least-16"

type sessionsMock struct{ mock.Mock }

func (m *sessionsMock) Connect(ctx context.Context, tenantID uint64) session.ConnectResult {
	return m.Called(ctx, tenantID).Get(0).(session.ConnectResult)
}
func (m *sessionsMock) Info(tenantID uint64) session.Info {
	return m.Called(tenantID).Get(0).(session.Info)
}
func (m *sessionsMock) Disconnect(ctx context.Context, tenantID uint64) bool {
	return m.Called(ctx, tenantID).Bool(0)
}
func (m *sessionsMock) SendText(ctx context.Context, tenantID uint64, to, text string) (string, error) {
	args := m.Called(ctx, tenantID, to, text)
	return args.String(0), args.Error(1)
}

type credsMock struct{ mock.Mock }

func (m *credsMock) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *credsMock) GetAllByCategory(ctx context.Context, c model.SettingCategory) (map[string]string, error) {
	args := m.Called(ctx, c)
	v, _ := args.Get(0).(map[string]string)
	return v, args.Error(1)
}
func (m *credsMock) Set(ctx context.Context, in credentials.SetInput) error {
	return m.Called(ctx, in).Error(0)
}
func (m *credsMock) Delete(ctx context.Context, key, actor string) (bool, error) {
	args := m.Called(ctx, key, actor)
	return args.Bool(0), args.Error(1)
}

type publisherMock struct{ mock.Mock }

func (m *publisherMock) Publish(subject string, data []byte, headers map[string]string) error {
	return m.Called(subject, data, headers).Error(0)
}

type identityMock struct{ mock.Mock }

func (m *identityMock) SyncIdentity(ctx context.Context, ev model.IdentityEvent) (*model.User, error) {
	args := m.Called(ctx, ev)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

type calendarMock struct{ mock.Mock }

func (m *calendarMock) AuthURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *calendarMock) HandleCallback(ctx context.Context, code, state string) (uint64, error) {
	args := m.Called(ctx, code, state)
	return args.Get(0).(uint64), args.Error(1)
}

type bookingsMock struct{ mock.Mock }

func (m *bookingsMock) Create(ctx context.Context, b *model.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *bookingsMock) Get(ctx context.Context, id uint64) (*model.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}
func (m *bookingsMock) List(ctx context.Context, f storage.BookingFilter) ([]model.Booking, error) {
	args := m.Called(ctx, f)
	b, _ := args.Get(0).([]model.Booking)
	return b, args.Error(1)
}
func (m *bookingsMock) Transition(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, error) {
	args := m.Called(ctx, id, next)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}
func (m *bookingsMock) GenerateContract(ctx context.Context, id uint64, ct model.ContractType, lang string) (*model.Contract, error) {
	args := m.Called(ctx, id, ct, lang)
	c, _ := args.Get(0).(*model.Contract)
	return c, args.Error(1)
}
func (m *bookingsMock) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*model.Contract)
	return c, args.Error(1)
}
func (m *bookingsMock) TransitionContract(ctx context.Context, id string, next model.ContractStatus) (*model.Contract, error) {
	args := m.Called(ctx, id, next)
	c, _ := args.Get(0).(*model.Contract)
	return c, args.Error(1)
}
func (m *bookingsMock) Forecast(ctx context.Context, now time.Time) ([]usecase.Forecast, error) {
	args := m.Called(ctx, now)
	f, _ := args.Get(0).([]usecase.Forecast)
	return f, args.Error(1)
}

type transcriberMock struct{ mock.Mock }

func (m *transcriberMock) TranscribeBase64Audio(ctx context.Context, b64, mimeType string) (string, error) {
	args := m.Called(ctx, b64, mimeType)
	return args.String(0), args.Error(1)
}

type fixture struct {
	router    http.Handler
	tokens    *auth.Tokens
	sessions  *sessionsMock
	creds     *credsMock
	publisher *publisherMock
	identity  *identityMock
	hook      *svix.Webhook
	calendar  *calendarMock
	bookings  *bookingsMock
	audio     *transcriberMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger.Log = zaptest.NewLogger(t)
	tokens, err := auth.NewTokens(testSecret)
	require.NoError(t, err)
	hook, err := svix.NewWebhook("whsec_" + base64.StdEncoding.EncodeToString([]byte("identity-webhook-secret")))
	require.NoError(t, err)

	f := &fixture{
		tokens:    tokens,
		sessions:  new(sessionsMock),
		creds:     new(credsMock),
		publisher: new(publisherMock),
		identity:  new(identityMock),
		hook:      hook,
		calendar:  new(calendarMock),
		bookings:  new(bookingsMock),
		audio:     new(transcriberMock),
	}
	f.router = NewRouter(Deps{
		Tokens:       tokens,
		Sessions:     f.sessions,
		Credentials:  f.creds,
		Publisher:    f.publisher,
		IdentityHook: hook,
		Identity:     f.identity,
		Calendar:     f.calendar,
		Bookings:     f.bookings,
		Transcriber:  f.audio,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, tenantID uint64) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		reader = bytes.NewReader(utils.MustMarshalJSON(b))
	}
	req := httptest.NewRequest(method, path, reader)
	if tenantID != 0 {
		token, err := f.tokens.Sign(tenantID, auth.AudienceAPI, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var out utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func hasTenant(id uint64) interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool {
		got, err := tenant.FromContext(ctx)
		return err == nil && got == id
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.ErrValidation, http.StatusBadRequest},
		{apperrors.NewFatal(apperrors.ErrBadRequest, "x"), http.StatusBadRequest},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{apperrors.ErrNotFound, http.StatusNotFound},
		{apperrors.ErrConflict, http.StatusConflict},
		{apperrors.ErrInvalidTransition, http.StatusConflict},
		{apperrors.ErrDuplicate, http.StatusConflict},
		{apperrors.ErrConfiguration, http.StatusPreconditionFailed},
		{apperrors.ErrIntegration, http.StatusBadGateway},
		{apperrors.NewRetryable(apperrors.ErrDatabase, "db"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/sessions/status", nil, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, envelope(t, rec).Success)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	oauthState, err := f.tokens.Sign(5, auth.AudienceGoogleOAuth, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/status", nil)
	req.Header.Set("Authorization", "Bearer "+oauthState)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RequestIDPropagates(t *testing.T) {
	f := newFixture(t)
	f.sessions.On("Info", uint64(5)).Return(session.Info{Status: session.StatusDisconnected})

	token, err := f.tokens.Sign(5, auth.AudienceAPI, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestAPI_Sessions(t *testing.T) {
	f := newFixture(t)
	f.sessions.On("Connect", hasTenant(5), uint64(5)).
		Return(session.ConnectResult{Success: true, Status: session.ResultAlreadyConnected}).Once()
	f.sessions.On("Connect", hasTenant(6), uint64(6)).
		Return(session.ConnectResult{Success: false, Status: session.ResultError, Error: "dial failed"}).Once()
	f.sessions.On("Disconnect", mock.Anything, uint64(5)).Return(true)
	f.sessions.On("Disconnect", mock.Anything, uint64(6)).Return(false)

	rec := f.do(t, http.MethodPost, "/api/sessions/connect", nil, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := envelope(t, rec).Data.(map[string]interface{})
	assert.Equal(t, "already_connected", data["status"])

	rec = f.do(t, http.MethodPost, "/api/sessions/connect", nil, 6)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "dial failed", envelope(t, rec).Error)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/sessions", nil, 5).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/sessions", nil, 6).Code)
}

func TestAPI_SendMessage(t *testing.T) {
	f := newFixture(t)
	f.sessions.On("SendText", hasTenant(5), uint64(5), "393331234567", "Your table is ready").Return("3EB0", nil).Once()
	f.sessions.On("SendText", mock.Anything, uint64(5), mock.Anything, mock.Anything).Return("", session.ErrNotConnected)

	rec := f.do(t, http.MethodPost, "/api/messages", map[string]string{"to": "+39 333 123-4567", "text": "Your table is ready"}, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3EB0", envelope(t, rec).Data.(map[string]interface{})["message_id"])

	rec = f.do(t, http.MethodPost, "/api/messages", map[string]string{"to": "123", "text": "hi"}, 5)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/messages", map[string]string{"to": "123"}, 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/messages", `{"to":"1","text":"x","extra":true}`, 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Settings(t *testing.T) {
	f := newFixture(t)
	f.creds.On("GetAllByCategory", hasTenant(5), model.CategoryTwilio).
		Return(map[string]string{model.KeyTwilioAccountSID: "AC1"}, nil)
	f.creds.On("Set", hasTenant(5), mock.MatchedBy(func(in credentials.SetInput) bool {
		return in.Key == model.KeySendGridAPIKey && in.Value == "SG.x" && in.Category == model.CategorySendGrid && in.Actor == "api:tenant:5"
	})).Return(nil)
	f.creds.On("Delete", hasTenant(5), "missing", "api:tenant:5").Return(false, nil)

	rec := f.do(t, http.MethodGet, "/api/settings/twilio", nil, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AC1", envelope(t, rec).Data.(map[string]interface{})[model.KeyTwilioAccountSID])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/settings/paypal", nil, 5).Code)

	rec = f.do(t, http.MethodPut, "/api/settings", map[string]interface{}{
		"key": model.KeySendGridAPIKey, "value": "SG.x", "category": "sendgrid", "required": true,
	}, 5)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/settings/missing", nil, 5).Code)
	f.creds.AssertExpectations(t)
}

func TestAPI_Bookings(t *testing.T) {
	f := newFixture(t)
	eventDate := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	f.bookings.On("Create", hasTenant(5), mock.MatchedBy(func(b *model.Booking) bool {
		return b.ClientName == "Ava Sterling" && b.EventDate.Equal(eventDate) && b.Budget == 4500000
	})).Run(func(args mock.Arguments) {
		b := args.Get(1).(*model.Booking)
		b.ID, b.UserID, b.Status = 11, 5, model.BookingPending
	}).Return(nil)
	f.bookings.On("Transition", hasTenant(5), uint64(11), model.BookingConfirmed).
		Return(&model.Booking{ID: 11, Status: model.BookingConfirmed}, nil)
	f.bookings.On("Transition", mock.Anything, uint64(12), model.BookingCompleted).
		Return(nil, apperrors.ErrInvalidTransition)
	f.bookings.On("Get", mock.Anything, uint64(99)).Return(nil, apperrors.ErrNotFound)
	f.bookings.On("List", hasTenant(5), storage.BookingFilter{Status: model.BookingConfirmed, Limit: 10}).
		Return([]model.Booking{{ID: 11}}, nil)

	rec := f.do(t, http.MethodPost, "/api/bookings", map[string]interface{}{
		"client_name": "Ava Sterling", "event_date": eventDate, "event_type": "gala", "budget": 4500000,
	}, 5)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 11, envelope(t, rec).Data.(map[string]interface{})["id"])

	rec = f.do(t, http.MethodPost, "/api/bookings/11/transition", map[string]string{"status": "confirmed"}, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/bookings/12/transition", map[string]string{"status": "completed"}, 5).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/bookings/12/transition", map[string]string{"status": "lost"}, 5).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/bookings/99", nil, 5).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/bookings/abc", nil, 5).Code)

	rec = f.do(t, http.MethodGet, "/api/bookings?status=confirmed&limit=10", nil, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/bookings?from=yesterday", nil, 5).Code)
}

func TestAPI_Contracts(t *testing.T) {
	f := newFixture(t)
	f.bookings.On("GenerateContract", hasTenant(5), uint64(11), model.ContractService, "it").
		Return(&model.Contract{ID: "01J", Status: model.ContractDraft}, nil)
	f.bookings.On("TransitionContract", mock.Anything, "01J", model.ContractStatus("sent")).
		Return(&model.Contract{ID: "01J", Status: "sent"}, nil)

	rec := f.do(t, http.MethodPost, "/api/bookings/11/contract", map[string]string{"type": "service", "language": "it"}, 5)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/bookings/11/contract", map[string]string{"type": "prenup"}, 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/contracts/01J/transition", map[string]string{"status": "sent"}, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_ForecastAndTranscription(t *testing.T) {
	f := newFixture(t)
	f.bookings.On("Forecast", hasTenant(5), mock.Anything).Return([]usecase.Forecast{{Currency: "EUR", TotalBookings: 2}}, nil)
	f.audio.On("TranscribeBase64Audio", hasTenant(5), "AAAA", "video/mp4").
		Return("", apperrors.NewFatal(apperrors.ErrValidation, "unsupported audio type"))
	f.audio.On("TranscribeBase64Audio", hasTenant(5), "AAAA", "audio/ogg").Return("see you at eight", nil)

	rec := f.do(t, http.MethodGet, "/api/forecast", nil, 5)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/transcriptions", map[string]string{"audio_base64": "AAAA", "mime_type": "video/mp4"}, 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/transcriptions", map[string]string{"audio_base64": "AAAA", "mime_type": "audio/ogg"}, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "see you at eight", envelope(t, rec).Data.(map[string]interface{})["text"])
}

func TestWebhook_Verification(t *testing.T) {
	f := newFixture(t)
	f.creds.On("Get", hasTenant(42), model.KeyWhatsAppVerifyToken).Return("s3cret", true, nil)
	f.creds.On("Get", hasTenant(43), model.KeyWhatsAppVerifyToken).Return("", false, nil)
	f.creds.On("Get", hasTenant(42), model.KeyInstagramVerifyToken).Return("ig-token", true, nil)

	rec := f.do(t, http.MethodGet, "/webhooks/whatsapp/42?hub.mode=subscribe&hub.verify_token=s3cret&hub.challenge=1158201444", nil, 0)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1158201444", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/webhooks/whatsapp/42?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil, 0)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/webhooks/whatsapp/42?hub.mode=unsubscribe&hub.verify_token=s3cret&hub.challenge=1", nil, 0)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/webhooks/whatsapp/43?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil, 0)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/webhooks/instagram/42?hub.mode=subscribe&hub.verify_token=ig-token&hub.challenge=7", nil, 0)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/webhooks/whatsapp/zero", nil, 0).Code)
}

func TestWebhook_ReceivePublishes(t *testing.T) {
	f := newFixture(t)
	body := `{"object":"whatsapp_business_account","entry":[]}`
	f.publisher.On("Publish", "v1.webhooks.whatsapp.42", []byte(body), map[string]string(nil)).Return(nil).Once()
	f.publisher.On("Publish", "v1.webhooks.instagram.42", mock.Anything, mock.Anything).Return(apperrors.ErrNATS).Once()

	rec := f.do(t, http.MethodPost, "/webhooks/whatsapp/42", body, 0)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EVENT_RECEIVED", rec.Body.String())

	rec = f.do(t, http.MethodPost, "/webhooks/instagram/42", `{"object":"instagram"}`, 0)
	assert.Equal(t, http.StatusOK, rec.Code, "publish failures are not surfaced to Meta")

	rec = f.do(t, http.MethodPost, "/webhooks/whatsapp/42", "", 0)
	assert.Equal(t, http.StatusOK, rec.Code)
	f.publisher.AssertExpectations(t)
}

func (f *fixture) signedIdentity(t *testing.T, payload string) *http.Request {
	t.Helper()
	msgID := "msg_2Lc8"
	now := time.Now()
	sig, err := f.hook.Sign(msgID, now, []byte(payload))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader(payload))
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", sig)
	return req
}

func TestWebhook_Identity(t *testing.T) {
	f := newFixture(t)
	payload := `{"type":"user.created","data":{"id":"user_29w83sxmDNGwOuEthce5gg56FcC","first_name":"Ava","last_name":"Sterling"}}`
	f.identity.On("SyncIdentity", mock.Anything, mock.MatchedBy(func(ev model.IdentityEvent) bool {
		return ev.Type == "user.created" && ev.Data.ID == "user_29w83sxmDNGwOuEthce5gg56FcC"
	})).Return(&model.User{ID: 5, ExternalID: "user_29w83sxmDNGwOuEthce5gg56FcC"}, nil).Once()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, f.signedIdentity(t, payload))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tampered := f.signedIdentity(t, payload)
	tampered.Body = http.NoBody
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, tampered)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unsigned := httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader(payload))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, unsigned)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.identity.AssertExpectations(t)
}

func TestWebhook_IdentityDisabled(t *testing.T) {
	logger.Log = zaptest.NewLogger(t)
	router := NewRouter(Deps{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader("{}")))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestGoogleCallback(t *testing.T) {
	f := newFixture(t)
	f.calendar.On("HandleCallback", mock.Anything, "4/0Ab", "state-jwt").Return(uint64(5), nil)
	f.calendar.On("HandleCallback", mock.Anything, "4/0Ab", "forged").Return(uint64(0), apperrors.ErrUnauthorized)
	f.calendar.On("AuthURL", hasTenant(5)).Return("https://accounts.google.com/o/oauth2/auth?state=x", nil)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/oauth/google/callback?code=4/0Ab&state=state-jwt", nil, 0).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/oauth/google/callback?code=4/0Ab&state=forged", nil, 0).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/oauth/google/callback?error=access_denied", nil, 0).Code)

	rec := f.do(t, http.MethodGet, "/api/google/auth-url", nil, 5)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, envelope(t, rec).Data.(map[string]interface{})["url"], "accounts.google.com")
}
