package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
)

const maxMediaBytes = 16 << 20

// MetaGraph sends WhatsApp Cloud and Instagram messages and downloads
// inbound media through the Graph API.
type MetaGraph struct {
	creds    credentials.Reader
	baseURL  string
	http     *http.Client
	perSec   rate.Limit
	limiters sync.Map // tenant id -> *rate.Limiter
}

func NewMetaGraph(creds credentials.Reader, baseURL string, httpClient *http.Client) *MetaGraph {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &MetaGraph{
		creds:   creds,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		perSec:  rate.Limit(20),
	}
}

// wait applies a per-tenant outbound rate limit.
func (g *MetaGraph) wait(ctx context.Context) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	l, _ := g.limiters.LoadOrStore(tenantID, rate.NewLimiter(g.perSec, int(g.perSec)))
	return l.(*rate.Limiter).Wait(ctx)
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *MetaGraph) do(req *http.Request, token string, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: graph %s: %v", apperrors.ErrIntegration, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return fmt.Errorf("%w: graph read: %v", apperrors.ErrIntegration, err)
	}
	if resp.StatusCode >= 300 {
		var ge graphError
		_ = json.Unmarshal(body, &ge)
		return fmt.Errorf("%w: graph status %d: %s", apperrors.ErrIntegration, resp.StatusCode, ge.Error.Message)
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case *[]byte:
		if len(body) > maxMediaBytes {
			return fmt.Errorf("%w: media larger than %d bytes", apperrors.ErrValidation, maxMediaBytes)
		}
		*dst = body
		return nil
	default:
		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("%w: graph decode: %v", apperrors.ErrIntegration, err)
		}
		return nil
	}
}

func (g *MetaGraph) postJSON(ctx context.Context, path, token string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, token, out)
}

// SendWhatsApp sends a text through the tenant's WhatsApp Cloud number.
func (g *MetaGraph) SendWhatsApp(ctx context.Context, to, text string) (string, error) {
	keys, err := credentials.Require(ctx, g.creds, model.KeyWhatsAppPhoneNumberID, model.KeyWhatsAppAccessToken)
	if err != nil {
		return "", err
	}
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := g.postJSON(ctx, "/"+keys[model.KeyWhatsAppPhoneNumberID]+"/messages", keys[model.KeyWhatsAppAccessToken], payload, &out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// SendInstagram replies to an Instagram-scoped user id.
func (g *MetaGraph) SendInstagram(ctx context.Context, recipientID, text string) (string, error) {
	keys, err := credentials.Require(ctx, g.creds, model.KeyInstagramAccessToken)
	if err != nil {
		return "", err
	}
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	payload := map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	}
	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := g.postJSON(ctx, "/me/messages", keys[model.KeyInstagramAccessToken], payload, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// FetchWhatsAppMedia resolves a media id and downloads its bytes.
func (g *MetaGraph) FetchWhatsAppMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	keys, err := credentials.Require(ctx, g.creds, model.KeyWhatsAppAccessToken)
	if err != nil {
		return nil, "", err
	}
	token := keys[model.KeyWhatsAppAccessToken]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/"+mediaID, nil)
	if err != nil {
		return nil, "", err
	}
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := g.do(req, token, &meta); err != nil {
		return nil, "", err
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("%w: media %s has no url", apperrors.ErrIntegration, mediaID)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", err
	}
	var data []byte
	if err := g.do(req, token, &data); err != nil {
		return nil, "", err
	}
	return data, meta.MimeType, nil
}
