// Package pool wraps sync.Pool with a creation counter, so pool churn shows
// up in metrics instead of only as GC pressure.
package pool

import (
	"sync"

	"github.com/linchenxuan/r2p2/metrics"
)

// Pool recycles values of one type. Every construction of a fresh value,
// meaning the pool was empty, increments a per-pool counter.
type Pool[T any] struct {
	pool sync.Pool
}

// New creates an instrumented pool. The name labels the creation counter.
func New[T any](name string, newFunc func() T) *Pool[T] {
	p := &Pool[T]{}
	p.pool.New = func() any {
		metrics.IncrCounterWithDimGroup(metrics.NamePoolCreateTotal, metrics.GroupR2P2, 1, metrics.Dimension{
			metrics.DimPoolName: name,
		})
		return newFunc()
	}
	return p
}

// Get returns a pooled value, constructing one if none is available.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put makes x available for reuse. The caller must not touch it afterwards.
func (p *Pool[T]) Put(x T) {
	p.pool.Put(x)
}
