// Package r2p2 assembles the framework components into one application
// object: logger, plugin manager with the built-in factories, and the process
// event bus.
package r2p2

import (
	"github.com/linchenxuan/r2p2/event"
	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/metrics/prometheus"
	"github.com/linchenxuan/r2p2/network/transport/tcp"
	"github.com/linchenxuan/r2p2/network/transport/udp"
	"github.com/linchenxuan/r2p2/plugin"
	"github.com/linchenxuan/r2p2/tracing"
	"github.com/linchenxuan/r2p2/tracing/zipking"
)

// R2P2 is the core application struct, holding all major framework components and dependencies.
type R2P2 struct {
	Logger        log.Logger
	PluginManager *plugin.Manager
	Publisher     *event.Publisher
	Tracer        tracing.Tracer
}

// New creates a new R2P2 application instance with default configurations.
// It initializes the logger, the plugin manager with the built-in transport
// and metrics factories, and the event bus.
func New() (*R2P2, error) {
	// 1. Initialize Logger
	logCfg := &log.LogCfg{
		ConsoleAppender:   true,
		LogLevel:          log.DebugLevel,
		EnabledCallerInfo: true,
		CallerSkip:        1,
	}
	logger := log.NewLogger(logCfg)

	// Set the created logger as the global default for convenient access
	log.SetDefaultLogger(logger)

	// 2. Initialize Plugin Manager and register built-in factories
	pluginManager := plugin.NewManager()
	pluginManager.RegisterFactory(udp.NewFactory())
	pluginManager.RegisterFactory(tcp.NewFactory())
	pluginManager.RegisterFactory(prometheus.NewFactory())
	pluginManager.RegisterFactory(zipking.NewFactory())

	// 3. Initialize the process event bus
	publisher := event.NewPublisher()

	// 4. Install the default tracer. It reports nowhere until a reporter
	// plugin (such as zipkin) replaces it via SetGlobalTracer.
	tracer := tracing.NewTracer()
	tracing.SetGlobalTracer(tracer)

	// 5. Assemble R2P2 instance
	r := &R2P2{
		Logger:        logger,
		PluginManager: pluginManager,
		Publisher:     publisher,
		Tracer:        tracer,
	}

	logger.Info().Msg("r2p2 application initialized")
	return r, nil
}

// Stop gracefully shuts down the R2P2 application, closing all components.
func (r *R2P2) Stop() {
	r.Logger.Info().Msg("r2p2 application shutting down")
	r.PluginManager.DestroyPlugins()
	_ = tracing.CloseGlobalTracer()
	log.Close()
}
