package main

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the process configuration
type Config struct {
	// Device is the path to the modem's serial port (e.g. "/dev/ttyAMA0")
	Device string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 19200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// SimPIN is the SIM card PIN code
	SimPIN string
	// AutoDelete removes stored messages from the SIM after reading them
	AutoDelete bool
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.Device = "/dev/ttyAMA0"
		c.BaudRate = 19200
		c.LogLevel = "info"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if device := os.Getenv("SERIAL_PORT"); device != "" {
			c.Device = device
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			b, err := strconv.Atoi(baud)
			if err != nil {
				return fmt.Errorf("invalid BAUD_RATE %q: %w", baud, err)
			}
			c.BaudRate = b
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if simPIN := os.Getenv("SIM_PIN"); simPIN != "" {
			c.SimPIN = simPIN
		}

		if del := os.Getenv("SMS_AUTO_DELETE"); del != "" {
			b, err := strconv.ParseBool(del)
			if err != nil {
				return fmt.Errorf("invalid SMS_AUTO_DELETE %q: %w", del, err)
			}
			c.AutoDelete = b
		}

		return nil
	}
}

// WithArgs loads configuration from the positional command-line arguments:
// device path, then baud rate. Both are optional.
func WithArgs(args []string) ConfigOption {
	return func(c *Config) error {
		if len(args) > 2 {
			return fmt.Errorf("expected at most 2 arguments (device, baud), got %d", len(args))
		}
		if len(args) >= 1 {
			c.Device = args[0]
		}
		if len(args) == 2 {
			b, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid baud rate %q: %w", args[1], err)
			}
			c.BaudRate = b
		}
		return nil
	}
}
