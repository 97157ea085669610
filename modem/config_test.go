package modem_test

import (
	"errors"
	"testing"
	"time"

	"i4.energy/across/gsmwatch/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if !errors.Is(err, modem.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults are applied", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.SerialDialer{PortName: "/dev/ttyAMA0"}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if config.ATTimeout != 5*time.Second {
			t.Errorf("expected default AT timeout 5s, got %v", config.ATTimeout)
		}
		if config.InitTimeout != 30*time.Second {
			t.Errorf("expected default init timeout 30s, got %v", config.InitTimeout)
		}
		if config.CallerIDWait != 500*time.Millisecond {
			t.Errorf("expected default caller ID wait 500ms, got %v", config.CallerIDWait)
		}
		if config.AutoDelete {
			t.Error("expected auto delete to default off")
		}
	})

	t.Run("Options override defaults", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.SerialDialer{PortName: "/dev/ttyAMA0"}).
			WithSimPIN("0000").
			WithAutoDelete(true).
			WithATTimeout(time.Second).
			WithInitTimeout(10 * time.Second).
			WithCallerIDWait(100 * time.Millisecond).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if config.SimPIN != "0000" {
			t.Errorf("expected SIM PIN %q, got %q", "0000", config.SimPIN)
		}
		if !config.AutoDelete {
			t.Error("expected auto delete on")
		}
		if config.ATTimeout != time.Second {
			t.Errorf("expected AT timeout 1s, got %v", config.ATTimeout)
		}
		if config.InitTimeout != 10*time.Second {
			t.Errorf("expected init timeout 10s, got %v", config.InitTimeout)
		}
		if config.CallerIDWait != 100*time.Millisecond {
			t.Errorf("expected caller ID wait 100ms, got %v", config.CallerIDWait)
		}
	})
}
