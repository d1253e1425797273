// Package engine implements the R2P2 request/response protocol over a
// datagram transport. One Engine instance is one protocol worker: it owns the
// client and server pair pools, fragments and reassembles messages, runs the
// request/ack/response handshake and drives the application callbacks.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/network/transport"
)

// ErrUnknownHandle reports an operation on a handle whose pair has already
// been released or recycled.
var ErrUnknownHandle = errors.New("handle matches no live pair")

// RouterNotify is invoked after every response send so an R2P2-aware router
// can update its load view of this worker.
type RouterNotify func(local, peer transport.HostTuple, rid uint16)

// Engine is one protocol worker bound to one transport instance.
type Engine struct {
	cfg     *EngineCfg
	tr      transport.Transport
	filters FilterChain
	limiter recvLimiter

	mu      sync.Mutex
	clients *pairPool[clientPair]
	servers *pairPool[serverPair]
	recvFn  RecvFn
	router  RouterNotify
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithFilters appends dispatch filters behind the built-in rate limiter.
func WithFilters(fs ...Filter) Option {
	return func(e *Engine) {
		e.filters = append(e.filters, fs...)
	}
}

// WithRecvFn sets the upcall for fully reassembled inbound requests.
func WithRecvFn(fn RecvFn) Option {
	return func(e *Engine) {
		e.recvFn = fn
	}
}

// WithRouterNotify sets the post-response router notification hook.
func WithRouterNotify(fn RouterNotify) Option {
	return func(e *Engine) {
		e.router = fn
	}
}

// New creates a protocol worker over tr. The transport is not started; call
// Start once the application is ready to receive.
func New(cfg *EngineCfg, tr transport.Transport, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid EngineCfg: %w", err)
	}
	e := &Engine{
		cfg:     cfg,
		tr:      tr,
		clients: newPairPool[clientPair](cfg.ClientPoolSize),
		servers: newPairPool[serverPair](cfg.ServerPoolSize),
	}
	if cfg.RecvLimit > 0 {
		e.limiter = newRecvLimiter(cfg.RecvLimiterKind, cfg.RecvLimit, cfg.RecvBurst)
		e.filters = append(e.filters, e.limiter.Filter)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start begins receiving: the engine registers itself as the transport's
// packet receiver and the transport opens its socket.
func (e *Engine) Start() error {
	return e.tr.Start(transport.BuildTransportOption(transport.WithReceiver(e)))
}

// Stop shuts the transport down. In-flight pairs are not failed; their
// timers still fire and release them.
func (e *Engine) Stop() error {
	return e.tr.Stop()
}

// LocalHost returns the transport's bound endpoint.
func (e *Engine) LocalHost() transport.HostTuple {
	return e.tr.LocalHost()
}

// SetRecvCB installs the inbound request upcall. Call before Start.
func (e *Engine) SetRecvCB(fn RecvFn) {
	e.mu.Lock()
	e.recvFn = fn
	e.mu.Unlock()
}

// ReloadRecvLimit updates the front door rate limit at runtime. It is a
// no-op when the engine was built without rate limiting.
func (e *Engine) ReloadRecvLimit(limit, burst int) {
	if e.limiter == nil {
		log.Warn().Msg("recv limit reload ignored, limiter not configured")
		return
	}
	e.limiter.Reload(limit, burst)
}
