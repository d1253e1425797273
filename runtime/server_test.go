package runtime

import (
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linchenxuan/r2p2/event"
	"github.com/linchenxuan/r2p2/network/engine"
	"github.com/linchenxuan/r2p2/network/transport"
)

type fakeTransport struct {
	started   atomic.Bool
	stopped   atomic.Bool
	failStart bool
}

func (f *fakeTransport) Start(_ transport.TransportOption) error {
	if f.failStart {
		return errors.New("start failed")
	}
	f.started.Store(true)
	return nil
}

func (f *fakeTransport) Stop() error {
	f.stopped.Store(true)
	return nil
}

func (f *fakeTransport) SendChain(_ *transport.Buffer, _ transport.HostTuple) error {
	return nil
}

func (f *fakeTransport) PrepareToSend() (transport.Conn, error) {
	return nil, errors.New("fake transport cannot send")
}

func (f *fakeTransport) LocalHost() transport.HostTuple {
	return transport.HostTuple{}
}

func newTestEngine(t *testing.T, tr transport.Transport) *engine.Engine {
	t.Helper()
	e, err := engine.New(&engine.EngineCfg{ClientPoolSize: 4, ServerPoolSize: 4}, tr)
	require.NoError(t, err)
	return e
}

func TestNewServerRequiresEngines(t *testing.T) {
	_, err := NewServer()
	assert.Error(t, err)
}

func TestServerStartStop(t *testing.T) {
	tr := &fakeTransport{}
	srv, err := NewServer(newTestEngine(t, tr))
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	assert.True(t, tr.started.Load())

	srv.Stop()
	assert.True(t, tr.stopped.Load())

	// Stop is idempotent.
	srv.Stop()
}

func TestServerStartRollsBackOnFailure(t *testing.T) {
	good := &fakeTransport{}
	bad := &fakeTransport{failStart: true}

	srv, err := NewServer(newTestEngine(t, good), newTestEngine(t, bad))
	require.NoError(t, err)

	assert.Error(t, srv.Start())
	assert.True(t, good.stopped.Load(), "engines started before the failure must be stopped")
}

func TestServerReloadSignalPublishes(t *testing.T) {
	srv, err := NewServer(newTestEngine(t, &fakeTransport{}))
	require.NoError(t, err)

	var reloads atomic.Int32
	require.NoError(t, srv.Publisher().RegisterSubscriber(event.ReloadConfig, func(any) {
		reloads.Add(1)
	}))

	keepRunning := srv.handleSignal(syscall.SIGHUP)
	assert.True(t, keepRunning)
	assert.Equal(t, int32(1), reloads.Load())

	keepRunning = srv.handleSignal(syscall.SIGTERM)
	assert.False(t, keepRunning)
}

func TestServerRunStopsOnStop(t *testing.T) {
	tr := &fakeTransport{}
	srv, err := NewServer(newTestEngine(t, tr))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- srv.Run()
	}()

	// Give Run a moment to install its signal handler.
	time.Sleep(20 * time.Millisecond)
	srv.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.True(t, tr.stopped.Load())
}
