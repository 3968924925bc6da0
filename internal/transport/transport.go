// Package transport abstracts the pairing-based chat connection used by the
// session registry.
package transport

import (
	"context"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// ConnState is the raw connection state reported by the transport.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClose      ConnState = "close"
)

// ConnectionUpdate is one connection lifecycle notification.
type ConnectionUpdate struct {
	State     ConnState `json:"state,omitempty"`
	QR        string    `json:"qr,omitempty"`
	LoggedOut bool      `json:"logged_out,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Handlers are invoked by a Connection, possibly from other goroutines.
type Handlers struct {
	OnConnection  func(ConnectionUpdate)
	OnCredentials func(creds []byte)
	OnMessage     func(model.InboundEvent)
}

// Dialer opens a connection for a tenant using the pairing state in authDir.
type Dialer interface {
	Dial(ctx context.Context, tenantID uint64, authDir string, h Handlers) (Connection, error)
}

// Connection is a live transport handle.
type Connection interface {
	SendText(ctx context.Context, to, text string) (messageID string, err error)
	// Logout unpairs the device; the handle is unusable afterwards.
	Logout(ctx context.Context) error
	// Close drops the connection and keeps the pairing.
	Close() error
}
