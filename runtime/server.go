// Package runtime provides the process-level lifecycle harness. A Server owns
// one or more protocol engines, drives their start and stop, and translates
// POSIX signals into lifecycle actions: SIGHUP publishes a configuration
// reload event, SIGINT/SIGTERM trigger graceful shutdown.
package runtime

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/linchenxuan/r2p2/event"
	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/network/engine"
)

// reloadPublishTimeout bounds how long a single ReloadConfig fan-out may take.
const reloadPublishTimeout = 5 * time.Second

// Server is the top-level process harness. It starts every registered engine,
// then blocks in Run until a termination signal arrives.
type Server struct {
	engines   []*engine.Engine
	publisher *event.Publisher

	sigCh    chan os.Signal
	quitCh   chan struct{}
	stopOnce sync.Once
}

// NewServer creates a harness owning the given engines. The ReloadConfig
// topic is created eagerly so components can subscribe before Run.
func NewServer(engines ...*engine.Engine) (*Server, error) {
	if len(engines) == 0 {
		return nil, errors.New("server requires at least one engine")
	}

	pub := event.NewPublisher()
	if err := pub.NewTopic(event.ReloadConfig, reloadPublishTimeout); err != nil {
		return nil, err
	}

	return &Server{
		engines:   engines,
		publisher: pub,
		sigCh:     make(chan os.Signal, 1),
		quitCh:    make(chan struct{}),
	}, nil
}

// Publisher returns the process event bus. Components subscribe to
// event.ReloadConfig here to pick up configuration changes on SIGHUP.
func (s *Server) Publisher() *event.Publisher {
	return s.publisher
}

// Start brings up every engine and its transport. Engines started before a
// failure are stopped again so Start is all-or-nothing.
func (s *Server) Start() error {
	for i, e := range s.engines {
		if err := e.Start(); err != nil {
			for j := 0; j < i; j++ {
				s.engines[j].Stop()
			}
			return err
		}
	}
	log.Info().Int("engines", len(s.engines)).Msg("server started")
	return nil
}

// Run starts the server and blocks until SIGINT or SIGTERM arrives, or Stop
// is called from another goroutine. SIGHUP is handled inline.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	signal.Notify(s.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(s.sigCh)

	for {
		select {
		case sig := <-s.sigCh:
			if !s.handleSignal(sig) {
				s.Stop()
				return nil
			}
		case <-s.quitCh:
			return nil
		}
	}
}

// handleSignal reacts to a single signal. It returns false when the signal
// requests termination.
func (s *Server) handleSignal(sig os.Signal) bool {
	switch sig {
	case syscall.SIGHUP:
		log.Info().Str("signal", sig.String()).Msg("reloading configuration")
		if err := s.publisher.Publish(event.ReloadConfig, struct{}{}); err != nil {
			log.Error().Err(err).Msg("reload publish failed")
		}
		log.Refresh()
		return true
	default:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		return false
	}
}

// Stop shuts every engine down. Safe to call more than once and from any
// goroutine; a concurrent Run returns after the first call completes.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		for _, e := range s.engines {
			e.Stop()
		}
		log.Info().Msg("server stopped")
		close(s.quitCh)
	})
}
