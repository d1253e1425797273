// Package plugin wires optional transports, metrics reporters and tracer
// backends into the stack. Factories register themselves by type and name,
// and SetupPlugins builds instances from decoded configuration.
package plugin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// DefaultInsName is the instance tag looked up when a caller does not care
// which configured instance it gets.
const DefaultInsName = "default"

var (
	ErrPluginNotFound      = errors.New("plugin not found")
	ErrDuplicatePlugin     = errors.New("duplicate plugin")
	ErrInvalidConfigFormat = errors.New("invalid config format")
	ErrConfigDecode        = errors.New("config decode error")
	ErrFactorySetup        = errors.New("factory setup error")
)

// pluginEntry pairs a built instance with the factory that made it, so
// teardown can go back through the same factory.
type pluginEntry struct {
	ins     Plugin
	factory Factory
}

// Manager owns the registered factories and the plugin instances built from
// configuration.
type Manager struct {
	mu        sync.RWMutex
	factories map[Type]map[string]Factory
	plugins   map[Type]map[string]pluginEntry
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		factories: make(map[Type]map[string]Factory),
		plugins:   make(map[Type]map[string]pluginEntry),
	}
}

// RegisterFactory makes a factory available under its type and name.
func (m *Manager) RegisterFactory(f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	factories, ok := m.factories[f.Type()]
	if !ok {
		factories = make(map[string]Factory)
		m.factories[f.Type()] = factories
	}
	factories[f.Name()] = f
}

// SetupPlugins builds one instance per configured entry. conf maps plugin
// type to instance name to that instance's raw settings, mirroring the
// [plugin] section of the config file. Types with no registered factory are
// skipped.
func (m *Manager) SetupPlugins(conf map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for typeName, rawGroup := range conf {
		typ := Type(typeName)
		factories, ok := m.factories[typ]
		if !ok {
			continue
		}

		group, ok := rawGroup.(map[string]any)
		if !ok {
			return fmt.Errorf("%w for plugin type %q", ErrInvalidConfigFormat, typ)
		}

		for name, raw := range group {
			factory, ok := factories[name]
			if !ok {
				return fmt.Errorf("%w: no factory registered for %q/%q", ErrPluginNotFound, typ, name)
			}
			settings, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w for plugin %q/%q", ErrInvalidConfigFormat, typ, name)
			}
			if err := m.setupOne(typ, name, factory, settings); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) setupOne(typ Type, name string, factory Factory, settings map[string]any) error {
	cfg := factory.ConfigType()
	if cfg == nil {
		return fmt.Errorf("%w: factory %q/%q has no config type", ErrInvalidConfigFormat, typ, name)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: cfg})
	if err != nil {
		return fmt.Errorf("%w: %q/%q: %v", ErrConfigDecode, typ, name, err)
	}
	if err := dec.Decode(settings); err != nil {
		return fmt.Errorf("%w: %q/%q: %v", ErrConfigDecode, typ, name, err)
	}

	ins, err := factory.Setup(cfg)
	if err != nil {
		return fmt.Errorf("%w: %q/%q: %v", ErrFactorySetup, typ, name, err)
	}

	// Instances register under their configured tag when one is set, so
	// several instances of the same factory can coexist.
	key := name
	if tag, ok := settings["tag"].(string); ok && tag != "" {
		key = tag
	}

	if m.plugins[typ] == nil {
		m.plugins[typ] = make(map[string]pluginEntry)
	}
	if _, exists := m.plugins[typ][key]; exists {
		return fmt.Errorf("%w: tag %q for type %q", ErrDuplicatePlugin, key, typ)
	}
	m.plugins[typ][key] = pluginEntry{ins: ins, factory: factory}
	return nil
}

// GetPlugin returns the instance registered under name or its tag.
func (m *Manager) GetPlugin(typ Type, name string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group, ok := m.plugins[typ]
	if !ok {
		return nil, fmt.Errorf("%w: no plugins of type %q", ErrPluginNotFound, typ)
	}
	entry, ok := group[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q of type %q", ErrPluginNotFound, name, typ)
	}
	return entry.ins, nil
}

// GetDefaultPlugin returns the instance tagged as the default for typ.
func (m *Manager) GetDefaultPlugin(typ Type) (any, error) {
	return m.GetPlugin(typ, DefaultInsName)
}

// DestroyPlugins tears every built instance down through its factory and
// forgets it. Factories stay registered, so SetupPlugins can run again.
func (m *Manager) DestroyPlugins() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for typ, group := range m.plugins {
		for _, entry := range group {
			entry.factory.Destroy(entry.ins)
		}
		delete(m.plugins, typ)
	}
}
