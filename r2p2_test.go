package r2p2

import (
	"testing"

	"github.com/linchenxuan/r2p2/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew verifies that calling New successfully creates a default
// application instance.
func TestNew(t *testing.T) {
	app, err := New()
	require.NoError(t, err)
	require.NotNil(t, app)

	assert.NotNil(t, app.Logger, "Default logger should not be nil")
	assert.NotNil(t, app.PluginManager, "Default plugin manager should not be nil")
	assert.NotNil(t, app.Publisher, "Default event publisher should not be nil")
}

// TestStop verifies that the Stop method runs without panicking.
func TestStop(t *testing.T) {
	app, err := New()
	require.NoError(t, err)
	require.NotNil(t, app)

	// Just ensure Stop() doesn't panic
	assert.NotPanics(t, func() {
		app.Stop()
	})
}

// TestBuiltInUDPFactoryRegistration verifies that New wires built-in transport
// factories into the plugin manager and that UDP plugin setup works with config decoding.
func TestBuiltInUDPFactoryRegistration(t *testing.T) {
	app, err := New()
	require.NoError(t, err)
	require.NotNil(t, app)

	conf := map[string]any{
		string(plugin.Transport): map[string]any{
			"udp_transport": map[string]any{
				"tag":  plugin.DefaultInsName,
				"addr": "127.0.0.1:0",
			},
		},
	}

	err = app.PluginManager.SetupPlugins(conf)
	require.NoError(t, err)

	p, err := app.PluginManager.GetDefaultPlugin(plugin.Transport)
	require.NoError(t, err)
	require.NotNil(t, p)
}
