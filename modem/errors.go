package modem

import "errors"

var (
	// ErrNoDialer is returned when a Session is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrConnection marks failures while opening the transport or probing the
	// modem during Connect. A session that reports it is left in StateFailed
	// and must be reconnected from scratch.
	ErrConnection = errors.New("connection failed")

	// ErrInitialization marks a readiness step rejected by the modem during
	// PreUp. The session is left in StateFailed, never half-initialized.
	ErrInitialization = errors.New("initialization failed")

	// ErrInvalidState is returned when an operation is invoked while the
	// session is not in the state it requires (for example running the
	// dispatcher before PreUp completed). This is a sequencing bug in the
	// caller and is always surfaced.
	ErrInvalidState = errors.New("invalid session state")

	// ErrTransport marks a mid-run link failure: the serial port dropped or a
	// command could not be delivered. When it occurs on the notification path
	// the session is assumed unusable without a reconnect.
	ErrTransport = errors.New("transport failed")

	// ErrAlreadyClosed is returned when Teardown is called on a Session whose
	// transport has already been released.
	ErrAlreadyClosed = errors.New("session already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry initialization.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrPowerDown is returned by the dispatcher when the modem announces
	// NORMAL POWER DOWN. It marks a clean, modem-initiated shutdown rather
	// than a failure.
	ErrPowerDown = errors.New("modem powered down")
)
