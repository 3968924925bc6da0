// Package calendar links a tenant's Google Calendar and mirrors confirmed
// bookings into it.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/auth"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

const (
	stateTTL        = 10 * time.Minute
	primaryCalendar = "primary"
	defaultDuration = 4 * time.Hour
)

// Options configures a Service.
type Options struct {
	RedirectURL string
	// Endpoint and APIBaseURL default to Google's.
	Endpoint   oauth2.Endpoint
	APIBaseURL string
	HTTPClient *http.Client
}

// Service handles the OAuth link and calendar event writes.
type Service struct {
	creds  credentials.ReadWriter
	tokens *auth.Tokens
	opts   Options
}

func NewService(creds credentials.ReadWriter, tokens *auth.Tokens, opts Options) *Service {
	if opts.Endpoint.TokenURL == "" {
		opts.Endpoint = google.Endpoint
	}
	return &Service{creds: creds, tokens: tokens, opts: opts}
}

func (s *Service) oauthConfig(ctx context.Context) (*oauth2.Config, error) {
	keys, err := credentials.Require(ctx, s.creds, model.KeyGoogleClientID, model.KeyGoogleClientSecret)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     keys[model.KeyGoogleClientID],
		ClientSecret: keys[model.KeyGoogleClientSecret],
		Endpoint:     s.opts.Endpoint,
		RedirectURL:  s.opts.RedirectURL,
		Scopes:       []string{gcal.CalendarEventsScope},
	}, nil
}

func (s *Service) httpContext(ctx context.Context) context.Context {
	if s.opts.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, s.opts.HTTPClient)
	}
	return ctx
}

// AuthURL returns the consent URL for the tenant in ctx.
func (s *Service) AuthURL(ctx context.Context) (string, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	cfg, err := s.oauthConfig(ctx)
	if err != nil {
		return "", err
	}
	state, err := s.tokens.Sign(tenantID, auth.AudienceGoogleOAuth, stateTTL)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback verifies state, exchanges code and stores the token.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (uint64, error) {
	if code == "" {
		return 0, fmt.Errorf("%w: missing code", apperrors.ErrBadRequest)
	}
	tenantID, err := s.tokens.Verify(state, auth.AudienceGoogleOAuth)
	if err != nil {
		return 0, err
	}
	ctx = tenant.WithTenantID(ctx, tenantID)

	cfg, err := s.oauthConfig(ctx)
	if err != nil {
		return 0, err
	}
	tok, err := cfg.Exchange(s.httpContext(ctx), code)
	if err != nil {
		return 0, fmt.Errorf("%w: google token exchange: %v", apperrors.ErrIntegration, err)
	}
	if err := s.saveToken(ctx, tok, "google-oauth"); err != nil {
		return 0, err
	}
	logger.FromContext(ctx).Info("google calendar linked")
	return tenantID, nil
}

func (s *Service) saveToken(ctx context.Context, tok *oauth2.Token, actor string) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	return s.creds.Set(ctx, credentials.SetInput{
		Key:         model.KeyGoogleCalendarToken,
		Value:       string(raw),
		Category:    model.CategoryGoogle,
		Description: "Google Calendar OAuth token",
		Actor:       actor,
	})
}

// calendarService builds a client from the stored token and returns a func
// that persists a refreshed token after use.
func (s *Service) calendarService(ctx context.Context) (*gcal.Service, func(), error) {
	cfg, err := s.oauthConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	raw, found, err := s.creds.Get(ctx, model.KeyGoogleCalendarToken)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrConfiguration, model.KeyGoogleCalendarToken)
	}
	var stored oauth2.Token
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, nil, fmt.Errorf("%w: stored google token is corrupt", apperrors.ErrConfiguration)
	}

	httpCtx := s.httpContext(ctx)
	source := cfg.TokenSource(httpCtx, &stored)
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(httpCtx, source))}
	if s.opts.APIBaseURL != "" {
		opts = append(opts, option.WithEndpoint(s.opts.APIBaseURL))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: calendar client: %v", apperrors.ErrIntegration, err)
	}

	persist := func() {
		current, err := source.Token()
		if err != nil || current.AccessToken == stored.AccessToken {
			return
		}
		if err := s.saveToken(ctx, current, "google-refresh"); err != nil {
			logger.FromContext(ctx).Warn("persist refreshed google token", zap.Error(err))
		}
	}
	return svc, persist, nil
}

// CreateEvent adds the booking to the tenant's primary calendar.
func (s *Service) CreateEvent(ctx context.Context, b *model.Booking) (string, error) {
	svc, persist, err := s.calendarService(ctx)
	if err != nil {
		return "", err
	}
	defer persist()

	event := &gcal.Event{
		Summary:     fmt.Sprintf("%s · %s", b.EventType, b.ClientName),
		Location:    b.Location,
		Description: bookingDescription(b),
		Start:       &gcal.EventDateTime{DateTime: b.EventDate.UTC().Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: b.EventDate.Add(defaultDuration).UTC().Format(time.RFC3339)},
	}
	created, err := svc.Events.Insert(primaryCalendar, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: create calendar event: %v", apperrors.ErrIntegration, err)
	}
	return created.Id, nil
}

// DeleteEvent removes a previously created event.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	svc, persist, err := s.calendarService(ctx)
	if err != nil {
		return err
	}
	defer persist()

	if err := svc.Events.Delete(primaryCalendar, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: delete calendar event: %v", apperrors.ErrIntegration, err)
	}
	return nil
}

func bookingDescription(b *model.Booking) string {
	desc := fmt.Sprintf("Client: %s", b.ClientName)
	if b.ClientPhone != "" {
		desc += "\nPhone: " + b.ClientPhone
	}
	if b.ClientEmail != "" {
		desc += "\nEmail: " + b.ClientEmail
	}
	if b.Notes != "" {
		desc += "\n\n" + b.Notes
	}
	return desc
}
