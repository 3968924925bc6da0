package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

const maxWebhookBody = 2 << 20

// verifyMeta answers the Meta subscription handshake for the tenant's
// verify token stored under key.
func (h *handler) verifyMeta(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		expected, found, err := h.Credentials.Get(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		token := q.Get("hub.verify_token")
		if q.Get("hub.mode") != "subscribe" || !found || expected == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			logger.FromContext(r.Context()).Warn("Webhook verification rejected", zap.String("key", key))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
	}
}

// receiveMeta publishes the raw payload to JetStream and always answers
// 200 so Meta does not disable the subscription.
func (h *handler) receiveMeta(eventType model.EventType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		tenantID := tenant.MustFromContext(r.Context())

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		switch {
		case err != nil:
			log.Warn("Failed to read webhook body", zap.Error(err))
		case len(body) == 0:
			log.Warn("Empty webhook body")
		default:
			subject := fmt.Sprintf("%s.%d", eventType, tenantID)
			if err := h.Publisher.Publish(subject, body, nil); err != nil {
				log.Error("Failed to publish webhook", zap.String("subject", subject), zap.Error(err))
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "EVENT_RECEIVED")
	}
}

func (h *handler) identityWebhook(w http.ResponseWriter, r *http.Request) {
	if h.IdentityHook == nil || h.Identity == nil {
		writeError(w, r, fmt.Errorf("%w: identity webhook secret not configured", apperrors.ErrConfiguration))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err))
		return
	}
	if err := h.IdentityHook.Verify(payload, r.Header); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid webhook signature", apperrors.ErrBadRequest))
		return
	}

	var ev model.IdentityEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err))
		return
	}
	user, err := h.Identity.SyncIdentity(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		utils.WriteSuccess(w, http.StatusOK, map[string]string{"ignored": ev.Type})
		return
	}
	utils.WriteSuccess(w, http.StatusOK, user)
}

func (h *handler) googleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		writeError(w, r, fmt.Errorf("%w: google authorization denied: %s", apperrors.ErrBadRequest, msg))
		return
	}
	tenantID, err := h.Calendar.HandleCallback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]interface{}{"tenant_id": tenantID, "linked": true})
}
