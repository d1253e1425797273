package engine

import (
	"testing"
	"time"

	"github.com/linchenxuan/r2p2/network/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineCfgLimiterKindValidation(t *testing.T) {
	cfg := &EngineCfg{RecvLimit: 100, RecvBurst: 10}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, LimiterBucket, cfg.RecvLimiterKind)

	// The funnel has no burst, so none is required.
	cfg = &EngineCfg{RecvLimit: 100, RecvLimiterKind: LimiterFunnel}
	require.NoError(t, cfg.Validate())

	cfg = &EngineCfg{RecvLimit: 100, RecvBurst: 10, RecvLimiterKind: "sieve"}
	assert.Error(t, cfg.Validate())

	cfg = &EngineCfg{RecvLimit: 100}
	assert.Error(t, cfg.Validate(), "bucket kind requires a burst")
}

func TestBucketLimiterAdmitsBurst(t *testing.T) {
	l := newRecvLimiter(LimiterBucket, 5, 8)

	// A full burst passes without waiting for the steady rate.
	start := time.Now()
	for i := 0; i < 8; i++ {
		require.NoError(t, l.Filter(&Delivery{}, func(*Delivery) error { return nil }))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFunnelLimiterPaces(t *testing.T) {
	l := newRecvLimiter(LimiterFunnel, 100, 0)

	// 100/s means ~10ms between admissions; five packets span >= 4 slots.
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Filter(&Delivery{}, func(*Delivery) error { return nil }))
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLimiterReload(t *testing.T) {
	l := newRecvLimiter(LimiterFunnel, 1, 0)
	l.Reload(1000, 0)

	// After the reload the old 1/s pace no longer applies.
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Filter(&Delivery{}, func(*Delivery) error { return nil }))
	}
	assert.Less(t, time.Since(start), time.Second)

	b := newRecvLimiter(LimiterBucket, 1, 1)
	b.Reload(1000, 100)
	start = time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Filter(&Delivery{}, func(*Delivery) error { return nil }))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestEngineFunnelLimiterEndToEnd(t *testing.T) {
	net := newTestNet()
	srvTr := net.transport(9001)
	srv, err := New(&EngineCfg{RecvLimit: 2000, RecvLimiterKind: LimiterFunnel}, srvTr)
	require.NoError(t, err)
	srv.SetRecvCB(func(h ServerHandle, req [][]byte, _ transport.HostTuple) {
		assert.NoError(t, srv.SendResponse(h, req))
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	cli := startClient(t, net, 9000, nil)
	res := roundTrip(t, cli, []byte("paced"), srv.LocalHost(), 2*time.Second)
	require.NoError(t, res.err)
	assert.Equal(t, []byte("paced"), res.reply)
}
