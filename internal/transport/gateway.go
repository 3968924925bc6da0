package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// CredsFile is the pairing state file inside a tenant auth directory.
const CredsFile = "creds.json"

// Bus is the NATS subset the gateway needs.
type Bus interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	SubscribeCore(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// Event kinds published by the gateway on <prefix>.evt.<tenant>.<kind>.
const (
	EventConnection  = "connection"
	EventCredentials = "creds"
	EventMessage     = "message"
)

type connectCommand struct {
	Creds json.RawMessage `json:"creds,omitempty"`
}

type sendCommand struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type gatewayReply struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Gateway dials connections hosted by the chat gateway process over NATS.
type Gateway struct {
	bus     Bus
	prefix  string
	timeout time.Duration
}

var _ Dialer = (*Gateway)(nil)

func NewGateway(bus Bus, prefix string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{bus: bus, prefix: strings.TrimSuffix(prefix, "."), timeout: timeout}
}

func (g *Gateway) commandSubject(tenantID uint64, verb string) string {
	return fmt.Sprintf("%s.cmd.%d.%s", g.prefix, tenantID, verb)
}

func (g *Gateway) eventSubject(tenantID uint64) string {
	return fmt.Sprintf("%s.evt.%d.>", g.prefix, tenantID)
}

// Dial subscribes to the tenant's events before asking the gateway to
// connect, so the first QR is never missed.
func (g *Gateway) Dial(ctx context.Context, tenantID uint64, authDir string, h Handlers) (Connection, error) {
	conn := &gatewayConn{gw: g, tenantID: tenantID}

	sub, err := g.bus.SubscribeCore(g.eventSubject(tenantID), func(msg *nats.Msg) {
		kind := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]
		if err := dispatchEvent(h, kind, msg.Data); err != nil {
			logger.Log.Warn("dropping malformed gateway event",
				zap.Uint64("tenant_id", tenantID),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		return nil, err
	}
	conn.sub = sub

	cmd := connectCommand{}
	if creds, err := os.ReadFile(filepath.Join(authDir, CredsFile)); err == nil && json.Valid(creds) {
		cmd.Creds = creds
	}
	if _, err := g.call(ctx, tenantID, "connect", cmd); err != nil {
		conn.unsubscribe()
		return nil, err
	}
	return conn, nil
}

func (g *Gateway) call(ctx context.Context, tenantID uint64, verb string, payload interface{}) (gatewayReply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gatewayReply{}, fmt.Errorf("marshal %s command: %w", verb, err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.bus.Request(ctx, g.commandSubject(tenantID, verb), body)
	if err != nil {
		return gatewayReply{}, err
	}
	return decodeReply(raw)
}

func decodeReply(raw []byte) (gatewayReply, error) {
	var reply gatewayReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return gatewayReply{}, fmt.Errorf("%w: gateway reply: %v", apperrors.ErrIntegration, err)
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = "gateway rejected command"
		}
		return reply, fmt.Errorf("%w: %s", apperrors.ErrIntegration, msg)
	}
	return reply, nil
}

func dispatchEvent(h Handlers, kind string, data []byte) error {
	switch kind {
	case EventConnection:
		var update ConnectionUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return err
		}
		if h.OnConnection != nil {
			h.OnConnection(update)
		}
	case EventCredentials:
		if !json.Valid(data) {
			return errors.New("credentials payload is not JSON")
		}
		if h.OnCredentials != nil {
			h.OnCredentials(data)
		}
	case EventMessage:
		var ev model.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		if ev.Platform == "" {
			ev.Platform = model.PlatformWhatsApp
		}
		if h.OnMessage != nil {
			h.OnMessage(ev)
		}
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
	return nil
}

type gatewayConn struct {
	gw       *Gateway
	tenantID uint64
	sub      *nats.Subscription
	once     sync.Once
}

func (c *gatewayConn) SendText(ctx context.Context, to, text string) (string, error) {
	reply, err := c.gw.call(ctx, c.tenantID, "send", sendCommand{To: to, Text: text})
	if err != nil {
		return "", err
	}
	return reply.MessageID, nil
}

func (c *gatewayConn) Logout(ctx context.Context) error {
	defer c.unsubscribe()
	_, err := c.gw.call(ctx, c.tenantID, "logout", struct{}{})
	return err
}

func (c *gatewayConn) Close() error {
	defer c.unsubscribe()
	_, err := c.gw.call(context.Background(), c.tenantID, "close", struct{}{})
	return err
}

func (c *gatewayConn) unsubscribe() {
	c.once.Do(func() {
		if c.sub != nil {
			if err := c.sub.Unsubscribe(); err != nil {
				logger.Log.Debug("unsubscribe gateway events", zap.Uint64("tenant_id", c.tenantID), zap.Error(err))
			}
		}
	})
}
