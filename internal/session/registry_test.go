package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/internal/transport"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    []string
	logouts int
	closes  int
}

func (c *fakeConn) SendText(_ context.Context, to, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to+":"+text)
	return "MSG1", nil
}

func (c *fakeConn) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    atomic.Int32
	failFrom int32 // dials numbered >= failFrom fail; 0 never fails
	onDial   func(h transport.Handlers)
	handlers []transport.Handlers
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ uint64, _ string, h transport.Handlers) (transport.Connection, error) {
	n := d.dials.Add(1)
	if d.failFrom > 0 && n >= d.failFrom {
		return nil, errors.New("gateway unreachable")
	}
	if d.onDial != nil {
		d.onDial(h)
	}
	conn := &fakeConn{}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) last() (transport.Handlers, *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[len(d.handlers)-1], d.conns[len(d.conns)-1]
}

func testConfig(t *testing.T) config.SessionConfig {
	return config.SessionConfig{
		AuthDir:             t.TempDir(),
		ConnectWait:         100 * time.Millisecond,
		PollInterval:        5 * time.Millisecond,
		ReconnectInitial:    time.Millisecond,
		ReconnectMax:        5 * time.Millisecond,
		ReconnectMaxRetries: 2,
	}
}

func newTestRegistry(t *testing.T, d *fakeDialer, onMessage MessageHandler) *Registry {
	logger.Log = zaptest.NewLogger(t)
	r := NewRegistry(d, testConfig(t), onMessage)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func openImmediately(h transport.Handlers) {
	h.OnConnection(transport.ConnectionUpdate{State: transport.StateOpen})
}

func TestConnectReturnsQR(t *testing.T) {
	d := &fakeDialer{onDial: func(h transport.Handlers) {
		h.OnConnection(transport.ConnectionUpdate{QR: "2@qr-payload"})
	}}
	r := newTestRegistry(t, d, nil)

	res := r.Connect(context.Background(), 1)
	assert.Equal(t, ConnectResult{Success: true, Status: string(StatusQRReady), QR: "2@qr-payload"}, res)
	assert.Equal(t, StatusQRReady, r.Status(1))
	assert.DirExists(t, r.AuthDir(1))
}

func TestSecondConnectIsAlreadyConnected(t *testing.T) {
	d := &fakeDialer{onDial: openImmediately}
	r := newTestRegistry(t, d, nil)

	first := r.Connect(context.Background(), 1)
	assert.Equal(t, string(StatusConnected), first.Status)

	second := r.Connect(context.Background(), 1)
	assert.Equal(t, ConnectResult{Success: true, Status: ResultAlreadyConnected}, second)
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestConcurrentConnectsDialOnce(t *testing.T) {
	d := &fakeDialer{}
	r := newTestRegistry(t, d, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.Connect(context.Background(), 7)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), d.dials.Load())
	assert.Equal(t, StatusConnecting, r.Status(7))
}

func TestConnectPairingEntryWaitsWithoutRedial(t *testing.T) {
	d := &fakeDialer{}
	r := newTestRegistry(t, d, nil)

	res := r.Connect(context.Background(), 1)
	assert.Equal(t, string(StatusConnecting), res.Status, "timeout is not an error")

	h, _ := d.last()
	h.OnConnection(transport.ConnectionUpdate{QR: "2@later"})

	res = r.Connect(context.Background(), 1)
	assert.Equal(t, "2@later", res.QR)
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestConnectDialError(t *testing.T) {
	d := &fakeDialer{failFrom: 1}
	r := newTestRegistry(t, d, nil)

	res := r.Connect(context.Background(), 1)
	assert.False(t, res.Success)
	assert.Equal(t, ResultError, res.Status)
	assert.Contains(t, res.Error, "gateway unreachable")
	assert.Equal(t, StatusDisconnected, r.Status(1))
}

func TestUnexpectedCloseRedials(t *testing.T) {
	d := &fakeDialer{onDial: openImmediately}
	r := newTestRegistry(t, d, nil)
	r.Connect(context.Background(), 1)

	h, _ := d.last()
	h.OnConnection(transport.ConnectionUpdate{State: transport.StateClose, Reason: "stream errored"})

	require.Eventually(t, func() bool { return d.dials.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.Status(1) == StatusConnected }, time.Second, 5*time.Millisecond)
}

func TestReconnectBudgetEndsInNeedsRepairing(t *testing.T) {
	d := &fakeDialer{onDial: openImmediately, failFrom: 2}
	r := newTestRegistry(t, d, nil)
	r.Connect(context.Background(), 1)

	h, _ := d.last()
	h.OnConnection(transport.ConnectionUpdate{State: transport.StateClose})

	require.Eventually(t, func() bool { return r.Status(1) == StatusNeedsRepairing }, time.Second, 5*time.Millisecond)
	info := r.Info(1)
	assert.Equal(t, 3, info.ReconnectAttempts, "initial try plus two retries")
	assert.Equal(t, int32(4), d.dials.Load())
}

func TestLoggedOutCloseClearsPairing(t *testing.T) {
	d := &fakeDialer{onDial: openImmediately}
	r := newTestRegistry(t, d, nil)
	r.Connect(context.Background(), 1)
	require.DirExists(t, r.AuthDir(1))

	h, _ := d.last()
	h.OnConnection(transport.ConnectionUpdate{State: transport.StateClose, LoggedOut: true})

	assert.Equal(t, StatusDisconnected, r.Status(1))
	assert.NoDirExists(t, r.AuthDir(1))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestCredentialsPersistedOwnerOnly(t *testing.T) {
	d := &fakeDialer{onDial: func(h transport.Handlers) {
		h.OnCredentials([]byte(`{"me":{"id":"628"}}`))
	}}
	r := newTestRegistry(t, d, nil)
	r.Connect(context.Background(), 3)

	path := filepath.Join(r.AuthDir(3), transport.CredsFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"me":{"id":"628"}}`, string(data))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestDisconnect(t *testing.T) {
	d := &fakeDialer{onDial: openImmediately}
	r := newTestRegistry(t, d, nil)
	r.Connect(context.Background(), 1)
	_, conn := d.last()

	assert.True(t, r.Disconnect(context.Background(), 1))
	assert.Equal(t, 1, conn.logouts)
	assert.NoDirExists(t, r.AuthDir(1))
	assert.Equal(t, StatusDisconnected, r.Status(1))

	assert.False(t, r.Disconnect(context.Background(), 1))
}

func TestSendText(t *testing.T) {
	d := &fakeDialer{}
	r := newTestRegistry(t, d, nil)

	_, err := r.SendText(context.Background(), 1, "628", "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	r.Connect(context.Background(), 1)
	_, err = r.SendText(context.Background(), 1, "628", "hi")
	assert.ErrorIs(t, err, ErrNotConnected, "pairing sessions cannot send")

	h, conn := d.last()
	h.OnConnection(transport.ConnectionUpdate{State: transport.StateOpen})
	id, err := r.SendText(context.Background(), 1, "628", "hi")
	require.NoError(t, err)
	assert.Equal(t, "MSG1", id)
	assert.Equal(t, []string{"628:hi"}, conn.sent)
}

func TestShutdownClosesWithoutLogout(t *testing.T) {
	d := &fakeDialer{onDial: openImmediately}
	logger.Log = zaptest.NewLogger(t)
	r := NewRegistry(d, testConfig(t), nil)
	r.Connect(context.Background(), 1)
	_, conn := d.last()

	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, 1, conn.closes)
	assert.Equal(t, 0, conn.logouts)
	assert.DirExists(t, r.AuthDir(1))
}

func TestInboundMessageCarriesTenant(t *testing.T) {
	got := make(chan uint64, 1)
	d := &fakeDialer{onDial: openImmediately}
	r := newTestRegistry(t, d, func(ctx context.Context, tenantID uint64, ev model.InboundEvent) {
		fromCtx, err := tenant.FromContext(ctx)
		if err == nil && fromCtx == tenantID && ev.Text == "hello" {
			got <- tenantID
		}
	})
	r.Connect(context.Background(), 5)

	h, _ := d.last()
	h.OnMessage(model.InboundEvent{Sender: "628", Text: "hello"})

	select {
	case id := <-got:
		assert.Equal(t, uint64(5), id)
	case <-time.After(time.Second):
		t.Fatal("message handler not invoked")
	}
}
