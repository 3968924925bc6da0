// Package httpapi serves Meta webhooks, identity and OAuth callbacks and the
// tenant API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/session"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/usecase"
)

// TokenVerifier is satisfied by auth.Tokens.
type TokenVerifier interface {
	Verify(raw, audience string) (uint64, error)
}

// SessionManager is satisfied by session.Registry.
type SessionManager interface {
	Connect(ctx context.Context, tenantID uint64) session.ConnectResult
	Info(tenantID uint64) session.Info
	Disconnect(ctx context.Context, tenantID uint64) bool
	SendText(ctx context.Context, tenantID uint64, to, text string) (string, error)
}

// CredentialStore is satisfied by credentials.Store.
type CredentialStore interface {
	credentials.ReadWriter
	Delete(ctx context.Context, key, actor string) (bool, error)
}

// Publisher is satisfied by the JetStream client.
type Publisher interface {
	Publish(subject string, data []byte, headers map[string]string) error
}

// SignatureVerifier checks a signed webhook body; *svix.Webhook satisfies it.
type SignatureVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

type IdentitySyncer interface {
	SyncIdentity(ctx context.Context, ev model.IdentityEvent) (*model.User, error)
}

// CalendarLinker is satisfied by calendar.Service.
type CalendarLinker interface {
	AuthURL(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, code, state string) (uint64, error)
}

// BookingManager is satisfied by usecase.BookingService.
type BookingManager interface {
	Create(ctx context.Context, b *model.Booking) error
	Get(ctx context.Context, id uint64) (*model.Booking, error)
	List(ctx context.Context, filter storage.BookingFilter) ([]model.Booking, error)
	Transition(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, error)
	GenerateContract(ctx context.Context, bookingID uint64, ct model.ContractType, language string) (*model.Contract, error)
	GetContract(ctx context.Context, id string) (*model.Contract, error)
	TransitionContract(ctx context.Context, id string, next model.ContractStatus) (*model.Contract, error)
	Forecast(ctx context.Context, now time.Time) ([]usecase.Forecast, error)
}

type AudioTranscriber interface {
	TranscribeBase64Audio(ctx context.Context, b64, mimeType string) (string, error)
}

// Deps wires the handlers. IdentityHook nil disables /webhooks/identity.
type Deps struct {
	Tokens       TokenVerifier
	Sessions     SessionManager
	Credentials  CredentialStore
	Publisher    Publisher
	IdentityHook SignatureVerifier
	Identity     IdentitySyncer
	Calendar     CalendarLinker
	Bookings     BookingManager
	Transcriber  AudioTranscriber
}

type handler struct {
	Deps
}

// Register mounts every route on r. Health and metrics routes registered
// on r elsewhere are not affected by the middleware installed here.
func Register(r chi.Router, d Deps) {
	h := &handler{Deps: d}

	r.Group(func(r chi.Router) {
		r.Use(requestID)
		r.Use(chimw.RealIP)
		r.Use(logRequests)
		r.Use(chimw.Recoverer)

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/identity", h.identityWebhook)
			r.Group(func(r chi.Router) {
				r.Use(pathTenant)
				r.Get("/whatsapp/{tenantID}", h.verifyMeta(model.KeyWhatsAppVerifyToken))
				r.Post("/whatsapp/{tenantID}", h.receiveMeta(model.V1WebhookWhatsApp))
				r.Get("/instagram/{tenantID}", h.verifyMeta(model.KeyInstagramVerifyToken))
				r.Post("/instagram/{tenantID}", h.receiveMeta(model.V1WebhookInstagram))
			})
		})

		r.Get("/oauth/google/callback", h.googleCallback)

		r.Route("/api", func(r chi.Router) {
			r.Use(authenticate(d.Tokens))

			r.Post("/sessions/connect", h.connectSession)
			r.Get("/sessions/status", h.sessionStatus)
			r.Delete("/sessions", h.disconnectSession)
			r.Post("/messages", h.sendMessage)

			r.Get("/settings/{category}", h.listSettings)
			r.Put("/settings", h.putSetting)
			r.Delete("/settings/{key}", h.deleteSetting)

			r.Get("/google/auth-url", h.googleAuthURL)

			r.Get("/bookings", h.listBookings)
			r.Post("/bookings", h.createBooking)
			r.Get("/bookings/{id}", h.getBooking)
			r.Post("/bookings/{id}/transition", h.transitionBooking)
			r.Post("/bookings/{id}/contract", h.generateContract)

			r.Get("/contracts/{id}", h.getContract)
			r.Post("/contracts/{id}/transition", h.transitionContract)

			r.Get("/forecast", h.forecast)
			r.Post("/transcriptions", h.transcribe)
		})
	})
}

// NewRouter returns a standalone router with the API registered.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	Register(r, d)
	return r
}
