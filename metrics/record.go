package metrics

// Record is one emitted measurement on its way to the reporters. For
// PolicyAvg series the count travels with the value so reporters can keep a
// running mean.
type Record struct {
	metric Metric
	value  Value
	cnt    int
	dims   Dimension
}

// Metric returns the series this record belongs to.
func (r *Record) Metric() Metric {
	return r.metric
}

// Value returns the record's value, averaged when the policy calls for it.
func (r *Record) Value() Value {
	if r.metric.Policy() == PolicyAvg && r.cnt > 0 {
		return r.value / Value(r.cnt)
	}
	return r.value
}

// RawData returns the unprocessed value and observation count.
func (r *Record) RawData() (Value, int) {
	return r.value, r.cnt
}

// Dimensions returns the record's labels. May be nil.
func (r *Record) Dimensions() Dimension {
	return r.dims
}
