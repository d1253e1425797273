// This file contains the rate limiters guarding the dispatch front door.
// They run on the transport read pump before any pair state is touched, so
// an overloaded worker slows the socket drain instead of growing queues.
package engine

import (
	"context"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// Limiter kinds selectable through EngineCfg.RecvLimiterKind.
const (
	// LimiterBucket admits bursts up to the configured size, then throttles
	// to the steady rate. Suits the arrival pattern of multi-packet
	// messages, where fragments of one message land back to back.
	LimiterBucket = "bucket"
	// LimiterFunnel paces packets to a constant interval with no bursts.
	LimiterFunnel = "funnel"
)

// recvLimiter is the front-door rate limiter seam. Both implementations
// swap their underlying limiter through an atomic pointer, so Reload is
// safe against concurrent packets passing Filter.
type recvLimiter interface {
	// Filter is installed into the dispatch chain; it blocks the read pump
	// until the packet is admitted.
	Filter(d *Delivery, next FilterHandleFunc) error
	// Reload replaces the rate (and burst, where the kind has one) at
	// runtime without dropping in-flight packets.
	Reload(limit, burst int)
}

func newRecvLimiter(kind string, limit, burst int) recvLimiter {
	if kind == LimiterFunnel {
		return newFunnelRecvLimiter(limit)
	}
	return newBucketRecvLimiter(limit, burst)
}

// bucketRecvLimiter admits inbound packets from a token bucket
// (golang.org/x/time/rate): limit tokens per second, up to burst banked.
type bucketRecvLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

func newBucketRecvLimiter(limit, burst int) *bucketRecvLimiter {
	l := &bucketRecvLimiter{}
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
	return l
}

func (l *bucketRecvLimiter) Filter(d *Delivery, next FilterHandleFunc) error {
	if err := l.limiter.Load().Wait(context.Background()); err != nil {
		return err
	}
	return next(d)
}

func (l *bucketRecvLimiter) Reload(limit, burst int) {
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// funnelRecvLimiter admits inbound packets from a leaky bucket
// (go.uber.org/ratelimit): every Take returns one fixed interval after the
// previous one, so the drain rate is flat regardless of arrival shape.
type funnelRecvLimiter struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

func newFunnelRecvLimiter(limit int) *funnelRecvLimiter {
	l := &funnelRecvLimiter{}
	lim := ratelimit.New(limit, ratelimit.WithoutSlack)
	l.limiter.Store(&lim)
	return l
}

func (l *funnelRecvLimiter) Filter(d *Delivery, next FilterHandleFunc) error {
	(*l.limiter.Load()).Take()
	return next(d)
}

// Reload swaps in a new rate. The funnel has no burst; the argument is
// accepted to satisfy the seam and ignored.
func (l *funnelRecvLimiter) Reload(limit, _ int) {
	lim := ratelimit.New(limit, ratelimit.WithoutSlack)
	l.limiter.Store(&lim)
}
