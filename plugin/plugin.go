package plugin

// Type groups factories by the concern they provide. The config file is
// keyed by type first, then by implementation name.
type Type string

const (
	Metrics   Type = "metrics"
	Transport Type = "transport"
	Tracer    Type = "tracer"
)

// Factory builds plugin instances of one implementation, for example the tcp
// transport or the prometheus reporter.
type Factory interface {
	Type() Type

	// Name is the implementation name the config file selects.
	Name() string

	// ConfigType returns a zero value of the factory's config struct. The
	// manager decodes the raw settings into it before calling Setup.
	ConfigType() any

	Setup(any) (Plugin, error)

	Destroy(Plugin)
}

// Plugin is a live instance produced by a factory.
type Plugin interface {
	FactoryName() string
}
