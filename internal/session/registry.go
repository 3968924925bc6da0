// Package session keeps one chat transport connection per tenant.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/internal/transport"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// Status is the lifecycle state of a tenant session.
type Status string

const (
	StatusDisconnected   Status = "disconnected"
	StatusConnecting     Status = "connecting"
	StatusQRReady        Status = "qr_ready"
	StatusConnected      Status = "connected"
	StatusNeedsRepairing Status = "needs_repairing"
)

// Connect result statuses that are not session states.
const (
	ResultAlreadyConnected = "already_connected"
	ResultError            = "error"
)

// ErrNotConnected is returned by SendText when the tenant has no open session.
var ErrNotConnected = fmt.Errorf("%w: session not connected", apperrors.ErrConflict)

// ConnectResult is returned by Connect.
type ConnectResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	QR      string `json:"qr,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Info is a point-in-time view of a tenant session.
type Info struct {
	Status            Status    `json:"status"`
	QR                string    `json:"qr,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MessageHandler receives inbound events. ctx carries the tenant id.
type MessageHandler func(ctx context.Context, tenantID uint64, ev model.InboundEvent)

type entry struct {
	conn      transport.Connection
	status    Status
	qr        string
	updatedAt time.Time
}

// detached tracks tenants without a live handle: reconnecting or needing repair.
type detached struct {
	status    Status
	attempts  int
	updatedAt time.Time
}

// Registry owns at most one connection per tenant.
type Registry struct {
	dialer    transport.Dialer
	cfg       config.SessionConfig
	onMessage MessageHandler

	mu       sync.Mutex
	entries  map[uint64]*entry
	detached map[uint64]*detached
	locks    sync.Map // tenant id -> *sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(dialer transport.Dialer, cfg config.SessionConfig, onMessage MessageHandler) *Registry {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		dialer:    dialer,
		cfg:       cfg,
		onMessage: onMessage,
		entries:   make(map[uint64]*entry),
		detached:  make(map[uint64]*detached),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *Registry) tenantLock(tenantID uint64) *sync.Mutex {
	l, _ := r.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// AuthDir is where the tenant's pairing state lives.
func (r *Registry) AuthDir(tenantID uint64) string {
	return filepath.Join(r.cfg.AuthDir, strconv.FormatUint(tenantID, 10))
}

// Connect opens the tenant session, or reports it is already open, then waits
// up to ConnectWait for a QR code or an open connection.
func (r *Registry) Connect(ctx context.Context, tenantID uint64) ConnectResult {
	log := logger.FromContext(ctx).With(zap.Uint64("tenant_id", tenantID))

	if r.Status(tenantID) == StatusConnected {
		return ConnectResult{Success: true, Status: ResultAlreadyConnected}
	}

	already, err := r.dial(ctx, tenantID)
	if err != nil {
		log.Error("session dial failed", zap.Error(err))
		return ConnectResult{Success: false, Status: ResultError, Error: err.Error()}
	}
	if already {
		return ConnectResult{Success: true, Status: ResultAlreadyConnected}
	}
	return r.waitForPairing(ctx, tenantID)
}

// dial registers a new handle unless one exists. It reports true when the
// session was already connected.
func (r *Registry) dial(ctx context.Context, tenantID uint64) (bool, error) {
	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if e, ok := r.entries[tenantID]; ok {
		connected := e.status == StatusConnected
		r.mu.Unlock()
		return connected, nil
	}
	r.mu.Unlock()

	dir := r.AuthDir(tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create auth dir: %w", err)
	}

	e := &entry{status: StatusConnecting, updatedAt: utils.Now()}
	conn, err := r.dialer.Dial(ctx, tenantID, dir, r.handlersFor(tenantID, e))
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	e.conn = conn
	r.entries[tenantID] = e
	delete(r.detached, tenantID)
	r.mu.Unlock()

	observer.IncSessionTransition(string(StatusConnecting))
	return false, nil
}

func (r *Registry) waitForPairing(ctx context.Context, tenantID uint64) ConnectResult {
	timer := time.NewTimer(r.cfg.ConnectWait)
	defer timer.Stop()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		info := r.Info(tenantID)
		switch {
		case info.Status == StatusConnected:
			return ConnectResult{Success: true, Status: string(StatusConnected)}
		case info.Status == StatusQRReady && info.QR != "":
			return ConnectResult{Success: true, Status: string(StatusQRReady), QR: info.QR}
		}

		select {
		case <-ctx.Done():
			return ConnectResult{Success: true, Status: string(info.Status), QR: info.QR}
		case <-timer.C:
			return ConnectResult{Success: true, Status: string(info.Status), QR: info.QR}
		case <-ticker.C:
		}
	}
}

// Status returns the tenant's session status; disconnected when unknown.
func (r *Registry) Status(tenantID uint64) Status {
	return r.Info(tenantID).Status
}

func (r *Registry) Info(tenantID uint64) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[tenantID]; ok {
		return Info{Status: e.status, QR: e.qr, UpdatedAt: e.updatedAt}
	}
	if d, ok := r.detached[tenantID]; ok {
		return Info{Status: d.status, ReconnectAttempts: d.attempts, UpdatedAt: d.updatedAt}
	}
	return Info{Status: StatusDisconnected}
}

// Disconnect logs out, forgets the session and deletes its pairing state.
// It returns false when no session existed.
func (r *Registry) Disconnect(ctx context.Context, tenantID uint64) bool {
	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	e, ok := r.entries[tenantID]
	delete(r.entries, tenantID)
	_, wasDetached := r.detached[tenantID]
	delete(r.detached, tenantID)
	r.mu.Unlock()

	if !ok {
		if wasDetached {
			r.removeAuthDir(tenantID)
		}
		return false
	}

	log := logger.FromContext(ctx).With(zap.Uint64("tenant_id", tenantID))
	if err := e.conn.Logout(ctx); err != nil {
		log.Warn("logout failed, clearing session anyway", zap.Error(err))
	}
	r.removeAuthDir(tenantID)
	observer.IncSessionTransition(string(StatusDisconnected))
	log.Info("session disconnected")
	return true
}

// SendText sends through the tenant's open session.
func (r *Registry) SendText(ctx context.Context, tenantID uint64, to, text string) (string, error) {
	r.mu.Lock()
	e, ok := r.entries[tenantID]
	connected := ok && e.status == StatusConnected
	r.mu.Unlock()
	if !connected {
		return "", ErrNotConnected
	}
	return e.conn.SendText(ctx, to, text)
}

// Shutdown closes every handle without logging out and stops reconnect loops.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uint64]*entry)
	r.mu.Unlock()

	for tenantID, e := range entries {
		if err := e.conn.Close(); err != nil {
			logger.Log.Warn("close session", zap.Uint64("tenant_id", tenantID), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) handlersFor(tenantID uint64, e *entry) transport.Handlers {
	return transport.Handlers{
		OnConnection: func(u transport.ConnectionUpdate) {
			r.onConnectionUpdate(tenantID, e, u)
		},
		OnCredentials: func(creds []byte) {
			if err := r.saveCreds(tenantID, creds); err != nil {
				logger.Log.Error("persist session credentials", zap.Uint64("tenant_id", tenantID), zap.Error(err))
			}
		},
		OnMessage: func(ev model.InboundEvent) {
			if r.onMessage == nil {
				return
			}
			ctx := tenant.WithTenantID(r.ctx, tenantID)
			utils.SafeGo("session.onMessage", func() { r.onMessage(ctx, tenantID, ev) }, nil)
		},
	}
}

func (r *Registry) onConnectionUpdate(tenantID uint64, e *entry, u transport.ConnectionUpdate) {
	log := logger.Log.With(zap.Uint64("tenant_id", tenantID))

	r.mu.Lock()
	current := r.entries[tenantID] == e
	prev := e.status
	if u.QR != "" {
		e.qr = u.QR
		e.status = StatusQRReady
	}
	switch u.State {
	case transport.StateOpen:
		e.status = StatusConnected
		e.qr = ""
	case transport.StateConnecting:
		if e.status != StatusQRReady {
			e.status = StatusConnecting
		}
	case transport.StateClose:
		e.status = StatusDisconnected
		if current {
			delete(r.entries, tenantID)
		}
	}
	e.updatedAt = utils.Now()
	next := e.status
	r.mu.Unlock()

	if prev != next {
		observer.IncSessionTransition(string(next))
		log.Info("session status changed", zap.String("from", string(prev)), zap.String("to", string(next)))
	}
	if u.State != transport.StateClose || !current {
		return
	}

	if u.LoggedOut {
		log.Info("session logged out, clearing pairing", zap.String("reason", u.Reason))
		r.removeAuthDir(tenantID)
		return
	}
	r.startReconnect(tenantID)
}

func (r *Registry) startReconnect(tenantID uint64) {
	if r.ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	r.detached[tenantID] = &detached{status: StatusDisconnected, updatedAt: utils.Now()}
	r.mu.Unlock()

	r.wg.Add(1)
	utils.SafeGo("session.reconnect", func() {
		defer r.wg.Done()
		r.reconnect(tenantID)
	}, nil)
}

func (r *Registry) newReconnectPolicy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.ReconnectInitial
	exp.MaxInterval = r.cfg.ReconnectMax
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, r.cfg.ReconnectMaxRetries), r.ctx)
}

// reconnect redials with capped backoff; a successful dial ends the loop.
func (r *Registry) reconnect(tenantID uint64) {
	log := logger.Log.With(zap.Uint64("tenant_id", tenantID))
	ctx := tenant.WithTenantID(r.ctx, tenantID)

	op := func() error {
		r.mu.Lock()
		d, waiting := r.detached[tenantID]
		if waiting {
			d.attempts++
			d.updatedAt = utils.Now()
		}
		r.mu.Unlock()
		if !waiting {
			// Disconnected or reconnected by someone else meanwhile.
			return nil
		}
		_, err := r.dial(ctx, tenantID)
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn("session reconnect failed, retrying", zap.Error(err), zap.Duration("next_retry_in", next))
	}

	err := backoff.RetryNotify(op, r.newReconnectPolicy(), notify)
	switch {
	case err == nil:
		observer.IncSessionReconnect("success")
		log.Info("session redialed")
	case errors.Is(r.ctx.Err(), context.Canceled):
		observer.IncSessionReconnect("cancelled")
	default:
		r.mu.Lock()
		if d, ok := r.detached[tenantID]; ok {
			d.status = StatusNeedsRepairing
			d.updatedAt = utils.Now()
		}
		r.mu.Unlock()
		observer.IncSessionReconnect("exhausted")
		observer.IncSessionTransition(string(StatusNeedsRepairing))
		log.Error("session reconnect budget exhausted, re-pairing required", zap.Error(err))
	}
}

// saveCreds replaces creds.json atomically with owner-only permissions.
func (r *Registry) saveCreds(tenantID uint64, creds []byte) error {
	dir := r.AuthDir(tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, transport.CredsFile+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(creds); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, transport.CredsFile))
}

func (r *Registry) removeAuthDir(tenantID uint64) {
	if err := os.RemoveAll(r.AuthDir(tenantID)); err != nil {
		logger.Log.Warn("remove auth dir", zap.Uint64("tenant_id", tenantID), zap.Error(err))
	}
}
