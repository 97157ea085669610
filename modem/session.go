package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/gsmwatch/at"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session owns the connection to one GSM modem. It is the only component
// that touches the Transport: all AT traffic, solicited or not, flows through
// its event loop, and every other component goes through Session operations.
//
// Lifecycle: Disconnected -> Connecting -> Ready (Connect), Ready + PreUp ->
// ready to dispatch, any exit path -> Teardown. A failed Connect or PreUp
// leaves the session in StateFailed; the only way out of StateFailed is a
// fresh Connect.
type Session struct {
	config    Config
	logger    *slog.Logger
	transport Transport

	mu          sync.Mutex
	state       State
	prepared    bool
	closed      bool
	loopRunning bool

	info Info

	// urcChan receives Unsolicited Result Codes from the modem
	urcChan chan string
	// commands queues AT command requests for the Loop to process
	commands chan *commandRequest

	// collector reassembles multipart SMS deliveries
	collector *partCollector
}

// Info is the status board read from the modem during PreUp.
type Info struct {
	Product  string
	Revision string
	Operator string
	RSSI     int
	BER      int
}

// commandRequest represents an AT command request to be executed by the Loop.
type commandRequest struct {
	// cmd is the AT command string to send to the modem
	cmd string
	// respChan receives the command response from the Loop
	respChan chan commandResponse
	// ctx provides timeout and cancellation control for the command
	ctx context.Context
}

// commandResponse contains the result of an AT command execution.
type commandResponse struct {
	// response contains the complete response text from the modem
	response string
	// err contains any error that occurred during command execution
	err error
}

// PollConfig defines configuration for polling operations like waiting for SIM readiness.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

// NewSession creates a disconnected session. No I/O happens until Connect.
func NewSession(config Config, logger *slog.Logger) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Session{
		config:    config,
		logger:    logger,
		state:     StateDisconnected,
		urcChan:   make(chan string, 100), // Buffered to prevent blocking on URCs
		commands:  make(chan *commandRequest),
		collector: newPartCollector(),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Prepared reports whether PreUp has completed on the current connection.
func (s *Session) Prepared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared
}

// Info returns the status board captured during the last PreUp.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Connect dials the transport and probes the modem: a wake-up AT, echo off,
// verbose errors. On success the session is StateReady and PreUp may run.
//
// Connect is not idempotent. Calling it while Connecting or Ready returns
// ErrInvalidState; calling it on a Failed session starts over.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	if s.state != StateDisconnected && s.state != StateFailed {
		s.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, s.state)
	}
	s.state = StateConnecting
	s.prepared = false
	s.mu.Unlock()

	if s.config.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.InitTimeout)
		defer cancel()
	}

	transport, err := s.config.Dialer.Dial(ctx)
	if err != nil {
		s.fail()
		return fmt.Errorf("%w: dial: %w", ErrConnection, err)
	}
	s.mu.Lock()
	s.transport = transport
	s.mu.Unlock()

	if err := s.probe(ctx); err != nil {
		transport.Close()
		s.mu.Lock()
		s.transport = nil
		s.mu.Unlock()
		s.fail()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	s.logger.Info("modem connected")
	return nil
}

// probe is the wake-up sequence run on a fresh transport.
func (s *Session) probe(ctx context.Context) error {
	if err := s.expectOkDirect(ctx, at.CmdAt); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}
	if err := s.expectOkDirect(ctx, at.CmdEchoOff); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}
	if err := s.expectOkDirect(ctx, at.CmdVerboseErrors); err != nil {
		return fmt.Errorf("could not enable verbose errors: %w", err)
	}
	return nil
}

// PreUp performs the readiness steps required before events can be received:
// SIM unlock, the status board queries, caller-ID presentation and PDU mode.
// Any rejected step fails the whole call and leaves the session StateFailed.
func (s *Session) PreUp(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	if s.state != StateReady || s.prepared {
		s.mu.Unlock()
		return fmt.Errorf("%w: pre-up while %s", ErrInvalidState, s.state)
	}
	s.mu.Unlock()

	if s.config.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.InitTimeout)
		defer cancel()
	}

	if err := s.preUp(ctx); err != nil {
		s.fail()
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	s.mu.Lock()
	s.prepared = true
	info := s.info
	s.mu.Unlock()
	s.logger.Info("modem ready",
		"product", info.Product,
		"revision", info.Revision,
		"operator", info.Operator,
		"rssi", info.RSSI,
		"ber", info.BER,
	)
	return nil
}

func (s *Session) preUp(ctx context.Context) error {
	// 1. SIM status
	simStatus, err := s.execDirect(ctx, at.CmdSimStatus)
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch {
	case strings.Contains(simStatus, at.SimReady):
		// OK

	case strings.Contains(simStatus, at.SimPin):
		if s.config.SimPIN == "" {
			return ErrSIMPinRequired
		}
		if err := s.expectOkDirect(ctx, fmt.Sprintf(`AT+CPIN="%s"`, s.config.SimPIN)); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}
		if err := s.waitForSIMReady(ctx, PollConfig{}); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported SIM state: %q", simStatus)
	}

	// 2. Status board
	var info Info
	if resp, err := s.execDirect(ctx, at.CmdProductInfo); err != nil {
		return fmt.Errorf("query product info: %w", err)
	} else {
		info.Product = firstDataLine(resp)
	}
	if resp, err := s.execDirect(ctx, at.CmdRevision); err != nil {
		return fmt.Errorf("query revision: %w", err)
	} else {
		info.Revision = firstDataLine(resp)
	}
	if resp, err := s.execDirect(ctx, at.CmdOperator); err != nil {
		return fmt.Errorf("query operator: %w", err)
	} else {
		info.Operator = parseOperator(resp)
	}
	if resp, err := s.execDirect(ctx, at.CmdSignalQuality); err != nil {
		return fmt.Errorf("query signal quality: %w", err)
	} else {
		info.RSSI, info.BER = parseSignalQuality(resp)
	}
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()

	// 3. Calling line identification presentation
	if err := s.expectOkDirect(ctx, at.CmdCallerIDOn); err != nil {
		return fmt.Errorf("enable caller ID: %w", err)
	}

	// 4. PDU mode for stored message reads
	if err := s.expectOkDirect(ctx, at.CmdSetPDUMode); err != nil {
		return fmt.Errorf("set PDU mode: %w", err)
	}

	return nil
}

// Teardown releases the transport. It is safe to call on every exit path;
// the first call closes the port, later calls return ErrAlreadyClosed so the
// serial device is never double-released or leaked.
func (s *Session) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrAlreadyClosed
	}
	s.closed = true
	s.state = StateDisconnected
	s.prepared = false

	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}

// Loop is the main event loop that owns all transport I/O. It must be running
// before exec-based operations (Reject, ReadStored, DeleteStored) are used;
// the Dispatcher starts it. The Loop is the ONLY goroutine that reads from
// the transport, so URCs are never lost to a competing reader.
//
// It runs until the context is cancelled or the transport fails; transport
// failures are reported wrapped in ErrTransport.
func (s *Session) Loop(ctx context.Context) error {
	s.mu.Lock()
	if s.loopRunning {
		s.mu.Unlock()
		return fmt.Errorf("%w: loop already running", ErrInvalidState)
	}
	if s.state != StateReady || s.transport == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: loop while %s", ErrInvalidState, s.state)
	}
	s.loopRunning = true
	transport := s.transport
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loopRunning = false
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(transport)
	scanner.Split(at.Splitter)

	// Channels for tokens and errors from the scanner goroutine
	tokens := make(chan string, 10)
	scanErrs := make(chan error, 1)

	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token != "" {
				select {
				case tokens <- token:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	// Current command being processed
	var currentCmd *commandRequest
	var currentLines []string

	for {
		select {
		case <-ctx.Done():
			if currentCmd != nil {
				currentCmd.respChan <- commandResponse{err: ctx.Err()}
			}
			return ctx.Err()

		case req := <-s.commands:
			currentCmd = req
			currentLines = nil

			wire := strings.TrimSpace(req.cmd) + "\r"
			if _, err := transport.Write([]byte(wire)); err != nil {
				req.respChan <- commandResponse{err: fmt.Errorf("write command %q: %w", req.cmd, err)}
				currentCmd = nil
				continue
			}

		case token, ok := <-tokens:
			if !ok {
				// Scanner stopped without a read error: port closed or EOF
				if currentCmd != nil {
					currentCmd.respChan <- commandResponse{err: io.EOF}
					currentCmd = nil
				}
				return fmt.Errorf("%w: %w", ErrTransport, io.EOF)
			}

			switch at.Classify(token) {
			case at.TypeURC:
				// URCs can arrive at any time, even during command execution
				select {
				case s.urcChan <- token:
				default:
					s.logger.Warn("URC buffer full, dropping", "urc", token)
				}

			case at.TypeFinal:
				if currentCmd != nil {
					currentLines = append(currentLines, token)
					response := strings.Join(currentLines, "\n")

					if token == at.OK {
						currentCmd.respChan <- commandResponse{response: response}
					} else {
						currentCmd.respChan <- commandResponse{response: response, err: errors.New(token)}
					}

					currentCmd = nil
					currentLines = nil
				}
				// If no current command, ignore the final response (orphaned)

			case at.TypeData:
				if currentCmd != nil {
					currentLines = append(currentLines, token)
				}
				// If no current command, ignore the data (orphaned)

			case at.TypePrompt:
				if currentCmd != nil {
					currentLines = append(currentLines, token)
					response := strings.Join(currentLines, "\n")
					currentCmd.respChan <- commandResponse{response: response}
					currentCmd = nil
					currentLines = nil
				}
			}

			// Check if current command has timed out
			if currentCmd != nil {
				select {
				case <-currentCmd.ctx.Done():
					currentCmd.respChan <- commandResponse{err: fmt.Errorf("command timeout: %w", currentCmd.ctx.Err())}
					currentCmd = nil
					currentLines = nil
				default:
				}
			}

		case err := <-scanErrs:
			if currentCmd != nil {
				currentCmd.respChan <- commandResponse{err: fmt.Errorf("read error: %w", err)}
				currentCmd = nil
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
}

// URC returns a read-only channel that receives Unsolicited Result Codes.
// These are asynchronous notifications from the modem (incoming call ring,
// caller ID, new stored SMS, power down). The channel is buffered, but may
// drop URCs if not consumed fast enough.
func (s *Session) URC() <-chan string {
	return s.urcChan
}

// Reject hangs up the currently ringing call.
func (s *Session) Reject(ctx context.Context) error {
	if _, err := s.exec(ctx, at.CmdHangup); err != nil {
		return fmt.Errorf("%w: hangup: %w", ErrTransport, err)
	}
	return nil
}

// exec sends an AT command to the modem and waits for the response.
// The Loop must be running; requests are serialized through it.
func (s *Session) exec(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrAlreadyClosed
	}
	if s.transport == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: not connected", ErrInvalidState)
	}
	s.mu.Unlock()

	// Apply per-command timeout if context has none
	if _, ok := ctx.Deadline(); !ok && s.config.ATTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ATTimeout)
		defer cancel()
	}

	req := &commandRequest{
		cmd:      cmd,
		respChan: make(chan commandResponse, 1), // Buffered to prevent blocking
		ctx:      ctx,
	}

	select {
	case s.commands <- req:
	case <-ctx.Done():
		return "", fmt.Errorf("command cancelled before sending: %w", ctx.Err())
	}

	select {
	case resp := <-req.respChan:
		return resp.response, resp.err
	case <-ctx.Done():
		return "", fmt.Errorf("command timeout: %w", ctx.Err())
	}
}

// execDirect executes an AT command directly on the transport without going
// through the Loop. It is used during Connect and PreUp, before the Loop is
// accepting commands.
//
// WARNING: never call this while the Loop is running; two readers on the
// same transport would race for response bytes.
func (s *Session) execDirect(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrAlreadyClosed
	}
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return "", fmt.Errorf("%w: not connected", ErrInvalidState)
	}

	if _, ok := ctx.Deadline(); !ok && s.config.ATTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ATTimeout)
		defer cancel()
	}

	wire := strings.TrimSpace(cmd) + "\r"
	if _, err := transport.Write([]byte(wire)); err != nil {
		return "", fmt.Errorf("write command %q: %w", cmd, err)
	}

	scanner := bufio.NewScanner(transport)
	scanner.Split(at.Splitter)

	var lines []string

	for {
		select {
		case <-ctx.Done():
			return strings.Join(lines, "\n"), ctx.Err()
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return strings.Join(lines, "\n"), fmt.Errorf("read error: %w", err)
			}
			return strings.Join(lines, "\n"), io.EOF
		}

		token := scanner.Text()
		if token == "" {
			continue
		}

		switch at.Classify(token) {
		case at.TypeFinal:
			lines = append(lines, token)

			response := strings.Join(lines, "\n")
			if token == at.OK {
				return response, nil
			}
			return response, errors.New(token)

		case at.TypeData:
			lines = append(lines, token)

		case at.TypeURC:
			// Ignore URCs in direct exec
			continue

		case at.TypePrompt:
			lines = append(lines, token)
			response := strings.Join(lines, "\n")
			return response, nil
		}
	}
}

// expectOkDirect executes an AT command and validates that the response
// contains "OK". Used during Connect and PreUp for configuration commands.
func (s *Session) expectOkDirect(ctx context.Context, cmd string) error {
	resp, err := s.execDirect(ctx, cmd)
	if err != nil {
		return err
	}
	if !strings.Contains(resp, at.OK) {
		return fmt.Errorf("unexpected response: %q", resp)
	}
	return nil
}

// waitForSIMReady polls the SIM card status until it reports ready state.
// This is necessary after entering a SIM PIN, as the SIM card needs time
// to authenticate and become operational.
func (s *Session) waitForSIMReady(ctx context.Context, config PollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("SIM not ready: %w", ctx.Err())
		case <-ticker.C:
			retries++
			if retries > maxRetries {
				return fmt.Errorf("SIM not ready after %d retries", maxRetries)
			}
			resp, err := s.execDirect(ctx, at.CmdSimStatus)
			if err != nil {
				// Fail fast on critical errors
				if errors.Is(err, ErrAlreadyClosed) || errors.Is(err, ErrInvalidState) {
					return fmt.Errorf("SIM status check failed: %w", err)
				}
				continue
			}
			if strings.Contains(resp, at.SimReady) {
				return nil
			}
		}
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.prepared = false
	s.mu.Unlock()
}

// firstDataLine returns the first response line that is not a final result
// code, e.g. the product string out of "SIM900 R11.0\nOK".
func firstDataLine(resp string) string {
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || at.Classify(line) == at.TypeFinal {
			continue
		}
		return line
	}
	return ""
}

// parseOperator extracts the operator name from a +COPS? response,
// e.g. `+COPS: 0,0,"Vodafone"` -> "Vodafone".
func parseOperator(resp string) string {
	line := firstLineWithPrefix(resp, "+COPS:")
	if line == "" {
		return ""
	}
	parts := strings.Split(line, ",")
	return strings.Trim(strings.TrimSpace(parts[len(parts)-1]), `"`)
}

// parseSignalQuality extracts rssi and ber from a +CSQ response,
// e.g. "+CSQ: 15,99" -> 15, 99.
func parseSignalQuality(resp string) (rssi, ber int) {
	line := firstLineWithPrefix(resp, "+CSQ:")
	if line == "" {
		return 0, 0
	}
	if _, err := fmt.Sscanf(line, "+CSQ: %d,%d", &rssi, &ber); err != nil {
		return 0, 0
	}
	return rssi, ber
}

func firstLineWithPrefix(resp, prefix string) string {
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	return ""
}
