// Package metrics is the instrumentation facade of the protocol stack. Hot
// paths call the package-level helpers, which stamp a Record and hand it to
// the registered reporters. Aggregation happens inside the reporter, so an
// emit is one map lookup and one channel send.
package metrics

import "sync"

// Metric identifies one series: a name, the group it belongs to and the
// aggregation policy reporters apply to it.
type Metric interface {
	Name() string
	Group() string
	Policy() Policy
}

// Reporter receives every emitted record. Implementations must not block;
// records are emitted from the packet path.
type Reporter interface {
	Report(r Record)
}

var (
	_reporters []Reporter

	_mu          sync.RWMutex
	_instruments = map[string]*instrument{}
)

// SetMetricsReporters installs the reporter list. Called once during
// startup, before any workers emit.
func SetMetricsReporters(reporters []Reporter) {
	_reporters = reporters
}

// instrument is the one Metric implementation. The first emit for a name
// fixes its group and policy; later emits reuse the registered series.
type instrument struct {
	name   string
	group  string
	policy Policy
}

func (i *instrument) Name() string { return i.name }

func (i *instrument) Group() string { return i.group }

func (i *instrument) Policy() Policy { return i.policy }

func getInstrument(name, group string, policy Policy) *instrument {
	_mu.RLock()
	ins, ok := _instruments[name]
	_mu.RUnlock()
	if ok {
		return ins
	}

	_mu.Lock()
	defer _mu.Unlock()
	if ins, ok = _instruments[name]; ok {
		return ins
	}
	ins = &instrument{name: name, group: group, policy: policy}
	_instruments[name] = ins
	return ins
}

func emit(ins *instrument, v Value, cnt int, dims Dimension) {
	r := Record{metric: ins, value: v, cnt: cnt, dims: dims}
	for _, reporter := range _reporters {
		reporter.Report(r)
	}
}

// IncrCounterWithGroup adds delta to a cumulative series.
func IncrCounterWithGroup(name, group string, delta Value) {
	emit(getInstrument(name, group, PolicySum), delta, 0, nil)
}

// IncrCounterWithDimGroup adds delta to a cumulative series labeled with
// dims.
func IncrCounterWithDimGroup(name, group string, delta Value, dims Dimension) {
	emit(getInstrument(name, group, PolicySum), delta, 0, dims)
}

// UpdateGaugeWithGroup sets the current value of a last-wins series.
func UpdateGaugeWithGroup(name, group string, v Value) {
	emit(getInstrument(name, group, PolicySet), v, 0, nil)
}

// UpdateAvgGaugeWithGroup adds one observation to an averaged series. Used
// for the latency metrics, where the mean is the useful number.
func UpdateAvgGaugeWithGroup(name, group string, v Value) {
	emit(getInstrument(name, group, PolicyAvg), v, 1, nil)
}

// UpdateAvgGaugeWithDimGroup adds one labeled observation to an averaged
// series.
func UpdateAvgGaugeWithDimGroup(name, group string, v Value, dims Dimension) {
	emit(getInstrument(name, group, PolicyAvg), v, 1, dims)
}
