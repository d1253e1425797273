package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureReporter collects records synchronously for assertions.
type captureReporter struct {
	records []Record
}

func (c *captureReporter) Report(r Record) {
	c.records = append(c.records, r)
}

func withCapture(t *testing.T) *captureReporter {
	t.Helper()
	c := &captureReporter{}
	SetMetricsReporters([]Reporter{c})
	t.Cleanup(func() { SetMetricsReporters(nil) })
	return c
}

func TestCounterEmit(t *testing.T) {
	c := withCapture(t)

	IncrCounterWithGroup(NameEngineRequestSentTotal, GroupR2P2, 1)
	IncrCounterWithGroup(NameEngineRequestSentTotal, GroupR2P2, 2)

	require.Len(t, c.records, 2)
	rc := c.records[1]
	assert.Equal(t, NameEngineRequestSentTotal, rc.Metric().Name())
	assert.Equal(t, GroupR2P2, rc.Metric().Group())
	assert.Equal(t, PolicySum, rc.Metric().Policy())
	assert.Equal(t, Value(2), rc.Value())
	assert.Nil(t, rc.Dimensions())
}

func TestCounterEmitWithDimensions(t *testing.T) {
	c := withCapture(t)

	IncrCounterWithDimGroup(NameTransportSendPckTotal, GroupR2P2, 3, Dimension{DimTransport: "udp"})

	require.Len(t, c.records, 1)
	assert.Equal(t, "udp", c.records[0].Dimensions()[DimTransport])
	assert.Equal(t, Value(3), c.records[0].Value())
}

func TestAvgGaugeRecordCarriesCount(t *testing.T) {
	c := withCapture(t)

	UpdateAvgGaugeWithGroup(NameEngineRequestLatencyUs, GroupR2P2, 250)

	require.Len(t, c.records, 1)
	rc := c.records[0]
	assert.Equal(t, PolicyAvg, rc.Metric().Policy())
	v, cnt := rc.RawData()
	assert.Equal(t, Value(250), v)
	assert.Equal(t, 1, cnt)
	assert.Equal(t, Value(250), rc.Value())
}

func TestInstrumentRegistryReusesSeries(t *testing.T) {
	c := withCapture(t)

	IncrCounterWithGroup("registry_reuse_total", GroupR2P2, 1)
	IncrCounterWithGroup("registry_reuse_total", GroupR2P2, 1)

	require.Len(t, c.records, 2)
	assert.Same(t, c.records[0].Metric(), c.records[1].Metric())
}

func TestEmitWithoutReportersIsSafe(t *testing.T) {
	SetMetricsReporters(nil)
	IncrCounterWithGroup(NameEngineTimeoutTotal, GroupR2P2, 1)
	UpdateGaugeWithGroup("idle_workers", GroupR2P2, 4)
}

func TestRecordAverages(t *testing.T) {
	ins := getInstrument("avg_record_test", GroupR2P2, PolicyAvg)
	r := Record{metric: ins, value: 300, cnt: 3}
	assert.Equal(t, Value(100), r.Value())

	r = Record{metric: ins, value: 300, cnt: 0}
	assert.Equal(t, Value(300), r.Value(), "zero count falls back to the raw value")
}
