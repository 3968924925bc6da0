package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

const (
	personaPreamble = "You are the personal concierge of a luxury event house. " +
		"You help clients plan weddings, galas and private celebrations, answer questions about availability, " +
		"venues and services, and move conversations toward a booking. Be warm, discreet and precise."
	fallbackPreamble = "You are a professional concierge. Answer the client helpfully and courteously."
)

// Completer is satisfied by llm.Provider.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Responder produces persona-conditioned replies to client messages.
type Responder struct {
	tones ToneReader
	model Completer
}

// ToneReader is the read side of storage.ToneRepo.
type ToneReader interface {
	Latest(ctx context.Context) (*model.ToneConfig, error)
}

var _ ToneReader = (storage.ToneRepo)(nil)

func NewResponder(tones ToneReader, completer Completer) *Responder {
	return &Responder{tones: tones, model: completer}
}

// Respond returns the reply for text, or "" when the model produced nothing.
func (r *Responder) Respond(ctx context.Context, tenantID uint64, text string) (string, error) {
	ctx = tenant.WithTenantID(ctx, tenantID)
	log := logger.FromContext(ctx)

	system := r.systemPrompt(ctx)

	start := time.Now()
	reply, err := r.model.Complete(ctx, system, text)
	observer.ObserveLLMRequest("chat", time.Since(start), err)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Warn("Model returned empty content")
		return "", nil
	}
	return reply, nil
}

func (r *Responder) systemPrompt(ctx context.Context) string {
	cfg, err := r.tones.Latest(ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			logger.FromContext(ctx).Warn("Falling back to default persona", zap.Error(err))
		}
		return fallbackPreamble
	}
	return BuildSystemPrompt(cfg.Config.Data())
}

// BuildSystemPrompt appends the present tone attributes to the persona preamble.
func BuildSystemPrompt(attrs model.ToneAttributes) string {
	var b strings.Builder
	b.WriteString(personaPreamble)
	if attrs.Tone != "" {
		fmt.Fprintf(&b, "\nTone: %s.", attrs.Tone)
	}
	if attrs.Language != "" {
		fmt.Fprintf(&b, "\nAlways reply in %s.", attrs.Language)
	}
	if attrs.Style != "" {
		fmt.Fprintf(&b, "\nStyle: %s.", attrs.Style)
	}
	return b.String()
}
