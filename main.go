package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/gsmwatch/modem"
)

// logHandler reports every inbound event through the process logger, field
// by field in delivery order.
type logHandler struct {
	logger *slog.Logger
}

func (h logHandler) HandleCall(call modem.Call) error {
	h.logger.Info("Incoming call rejected", fieldAttrs(call.Fields())...)
	return nil
}

func (h logHandler) HandleMessage(msg modem.Message) error {
	h.logger.Info("Incoming message", fieldAttrs(msg.Fields())...)
	return nil
}

func fieldAttrs(fields []modem.Field) []any {
	attrs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		attrs = append(attrs, f.Name, f.Value)
	}
	return attrs
}

// Usage: gsmwatch [device [baud]]
//
// Device defaults to /dev/ttyAMA0, baud to 19200. Remaining settings come
// from the environment (SERIAL_PORT, BAUD_RATE, LOG_LEVEL, SIM_PIN,
// SMS_AUTO_DELETE).
func main() {
	config, err := LoadConfig(WithDefaults(), WithEnv(), WithArgs(os.Args[1:]))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithSimPIN(config.SimPIN).
		WithAutoDelete(config.AutoDelete).
		WithDialer(modem.SerialDialer{
			PortName: config.Device,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	session, err := modem.NewSession(modemConfig, logger.With("component", "session"))
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting GSM watch", "device", config.Device, "baud", config.BaudRate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &Runner{
		Logger:  logger,
		Session: session,
		Handler: logHandler{logger: logger.With("component", "events")},
	}

	if err := runner.Run(ctx); err != nil {
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}
}
