package engine

import "fmt"

// Default capacities for the per-worker pair pools.
const (
	DefaultClientPoolSize = 1024
	DefaultServerPoolSize = 1024
)

// EngineCfg holds all configuration parameters for one protocol engine worker.
type EngineCfg struct {
	// ClientPoolSize caps the number of in-flight outbound requests.
	ClientPoolSize int `mapstructure:"clientPoolSize"`
	// ServerPoolSize caps the number of in-flight inbound requests.
	ServerPoolSize int `mapstructure:"serverPoolSize"`
	// RecvLimit is the inbound packet rate in packets per second enforced
	// by the dispatch front door. Zero disables rate limiting.
	RecvLimit int `mapstructure:"recvLimit"`
	// RecvBurst is the token-bucket burst size paired with RecvLimit.
	// Ignored by the funnel limiter.
	RecvBurst int `mapstructure:"recvBurst"`
	// RecvLimiterKind selects the limiter: "bucket" (token bucket, allows
	// bursts) or "funnel" (leaky bucket, constant pacing).
	RecvLimiterKind string `mapstructure:"recvLimiterKind"`
}

// GetName returns the configuration key for EngineCfg.
func (c *EngineCfg) GetName() string {
	return "engine"
}

// Validate checks the configuration and fills in defaults. Pool capacity is a
// deployment invariant: the application sizes the pools for its peak
// concurrency and the engine fails requests beyond them.
func (c *EngineCfg) Validate() error {
	if c.ClientPoolSize == 0 {
		c.ClientPoolSize = DefaultClientPoolSize
	}
	if c.ServerPoolSize == 0 {
		c.ServerPoolSize = DefaultServerPoolSize
	}
	if c.ClientPoolSize < 0 || c.ServerPoolSize < 0 {
		return fmt.Errorf("pair pool sizes must be positive, got client=%d server=%d",
			c.ClientPoolSize, c.ServerPoolSize)
	}
	if c.RecvLimit < 0 {
		return fmt.Errorf("recv limit must be non-negative, got %d", c.RecvLimit)
	}
	if c.RecvLimiterKind == "" {
		c.RecvLimiterKind = LimiterBucket
	}
	if c.RecvLimiterKind != LimiterBucket && c.RecvLimiterKind != LimiterFunnel {
		return fmt.Errorf("unknown recv limiter kind %q", c.RecvLimiterKind)
	}
	if c.RecvLimit > 0 && c.RecvLimiterKind == LimiterBucket && c.RecvBurst < 1 {
		return fmt.Errorf("recv burst must be at least 1 when rate limiting is enabled, got %d", c.RecvBurst)
	}
	return nil
}
