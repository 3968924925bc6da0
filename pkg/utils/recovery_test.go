package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func useObservedLogger(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zap.DebugLevel)
	original := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = original })
	return logs
}

func TestSafeGo(t *testing.T) {
	logs := useObservedLogger(t)

	done := make(chan struct{})
	SafeGo("ok", func() { close(done) }, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function did not run")
	}

	recovered := make(chan interface{}, 1)
	SafeGo("custom", func() { panic("boom") }, func(r interface{}, _ []byte) { recovered <- r })
	select {
	case r := <-recovered:
		assert.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("panic was not recovered")
	}

	SafeGo("logged", func() { panic("logged boom") }, nil)
	require.Eventually(t, func() bool {
		return logs.FilterField(zap.String("operation", "logged")).Len() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWrapWithRecovery(t *testing.T) {
	useObservedLogger(t)
	ctx := context.Background()

	assert.NoError(t, WrapWithRecovery(ctx, "ok", func(context.Context) error { return nil }))

	err := WrapWithRecovery(ctx, "err", func(context.Context) error { return errors.New("plain") })
	assert.EqualError(t, err, "plain")

	err = WrapWithRecovery(ctx, "panic", func(context.Context) error { panic("kaboom") })
	assert.EqualError(t, err, "panic recovered: kaboom")
}

func TestRecoverWithLog(t *testing.T) {
	logs := useObservedLogger(t)

	func() {
		defer RecoverWithLog(context.Background(), "sweep")
		panic("bad")
	}()

	assert.Equal(t, 1, logs.FilterField(zap.String("operation", "sweep")).Len())
}
