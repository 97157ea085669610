package modem

import (
	"time"
)

// Config holds the settings for one modem session.
type Config struct {
	// Dialer opens the transport. Required.
	Dialer Dialer
	// SimPIN is the SIM card PIN, entered during PreUp when the SIM asks for it.
	SimPIN string
	// AutoDelete removes stored messages from the SIM after a successful read.
	// Off by default: storage policy belongs to the session configuration, the
	// dispatcher never deletes on its own.
	AutoDelete bool
	// ATTimeout bounds each AT command round trip.
	ATTimeout time.Duration
	// InitTimeout bounds the whole Connect and PreUp sequences.
	InitTimeout time.Duration
	// CallerIDWait is how long an incoming call waits for its +CLIP line
	// before being delivered with an unknown number.
	CallerIDWait time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.CallerIDWait == 0 {
		c.CallerIDWait = 500 * time.Millisecond
	}
}

// ConfigBuilder assembles a validated Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithAutoDelete(enabled bool) *ConfigBuilder {
	b.config.AutoDelete = enabled
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithCallerIDWait(d time.Duration) *ConfigBuilder {
	b.config.CallerIDWait = d
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	c := b.config
	c.setDefaults()
	return c, nil
}
