package modem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/gsmwatch/at"
)

// Dispatcher is the blocking run loop that turns raw URCs into policy-applied,
// handler-delivered events. It is the sole consumer of the session's URC
// stream: notifications are handled strictly in arrival order, one at a time,
// and each surfaced event reaches exactly one handler invocation.
//
// The call policy is fixed: every incoming call is hung up before its event
// is delivered. Handlers observe, they do not get a vote.
type Dispatcher struct {
	session *Session
	handler Handler
	logger  *slog.Logger
	errs    chan error
}

// NewDispatcher wires a dispatcher to a session and a handler. A nil handler
// gets NopHandler, a nil logger discards.
func NewDispatcher(session *Session, handler Handler, logger *slog.Logger) *Dispatcher {
	if handler == nil {
		handler = NopHandler{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		session: session,
		handler: handler,
		logger:  logger,
		errs:    make(chan error, 16),
	}
}

// Errs returns the channel on which isolated runtime errors are reported:
// handler failures and panics, failed hangups, undecodable messages. None of
// them stop the run loop. The channel is buffered and closed when Run
// returns; errors beyond the buffer are logged and dropped.
func (d *Dispatcher) Errs() <-chan error {
	return d.errs
}

// Run blocks, processing notifications until the context is cancelled, the
// transport fails, or the modem announces a power down (ErrPowerDown).
//
// The session must be Ready with PreUp completed; otherwise Run returns
// ErrInvalidState without touching the transport. Run starts the session's
// event loop itself.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.session.State() != StateReady || !d.session.Prepared() {
		return fmt.Errorf("%w: run while %s", ErrInvalidState, d.session.State())
	}
	defer close(d.errs)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopErr := make(chan error, 1)
	go func() {
		loopErr <- d.session.Loop(loopCtx)
	}()

	// A RING is rejected immediately, but its caller ID arrives in a
	// trailing +CLIP line. The call event is held pending until +CLIP, the
	// caller-ID window lapses, or another event arrives, whichever is first.
	var pending *Call
	var clipTimer *time.Timer
	var clipC <-chan time.Time

	stopTimer := func() {
		if clipTimer != nil {
			clipTimer.Stop()
			clipTimer = nil
			clipC = nil
		}
	}
	flush := func() {
		stopTimer()
		if pending == nil {
			return
		}
		call := *pending
		pending = nil
		d.deliverCall(call)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			<-loopErr
			return ctx.Err()

		case err := <-loopErr:
			flush()
			return err

		case <-clipC:
			// Caller ID never showed up; the call is delivered anonymous.
			flush()

		case line := <-d.session.URC():
			switch {
			case line == at.UrcCall:
				flush()
				// Fixed policy: hang up before anything else sees the call.
				if err := d.session.Reject(ctx); err != nil {
					// Not fatal, but the line may keep ringing.
					d.report(fmt.Errorf("reject incoming call: %w", err))
				}
				pending = &Call{Time: time.Now()}
				clipTimer = time.NewTimer(d.session.config.CallerIDWait)
				clipC = clipTimer.C

			case strings.HasPrefix(line, at.UrcCallerID):
				if pending == nil {
					d.logger.Debug("caller ID without ring", "urc", line)
					continue
				}
				pending.Phone = parseCallerID(line)
				flush()

			case strings.HasPrefix(line, at.UrcNewMsg):
				flush()
				index, err := parseNewMsg(line)
				if err != nil {
					d.report(fmt.Errorf("parse message notification %q: %w", line, err))
					continue
				}
				msg, err := d.session.ReadStored(ctx, index)
				if err != nil {
					// A failed auto-delete still yields the decoded message;
					// the read itself failing yields nothing.
					d.report(err)
				}
				if msg != nil {
					d.deliverMessage(*msg)
				}

			case line == at.UrcPowerDown:
				flush()
				d.logger.Info("modem announced power down")
				return ErrPowerDown

			default:
				// Vendor chatter and unhandled URCs are not errors.
				d.logger.Debug("ignoring unsolicited line", "urc", line)
			}
		}
	}
}

func (d *Dispatcher) deliverCall(call Call) {
	defer d.recoverHook("call")
	if err := d.handler.HandleCall(call); err != nil {
		d.report(fmt.Errorf("call handler: %w", err))
	}
}

func (d *Dispatcher) deliverMessage(msg Message) {
	defer d.recoverHook("message")
	if err := d.handler.HandleMessage(msg); err != nil {
		d.report(fmt.Errorf("message handler: %w", err))
	}
}

func (d *Dispatcher) recoverHook(kind string) {
	if r := recover(); r != nil {
		d.report(fmt.Errorf("%s handler panic: %v", kind, r))
	}
}

// report surfaces an isolated runtime error without stopping the loop.
func (d *Dispatcher) report(err error) {
	select {
	case d.errs <- err:
	default:
		d.logger.Warn("error channel full, dropping", "error", err)
	}
}

// parseCallerID extracts the number from a caller ID presentation line,
// e.g. `+CLIP: "+15551234",145,"",0,"",0` -> "+15551234".
func parseCallerID(line string) string {
	rest := strings.TrimSpace(strings.TrimPrefix(line, at.UrcCallerID))
	if i := strings.IndexByte(rest, ','); i >= 0 {
		rest = rest[:i]
	}
	return strings.Trim(rest, `"`)
}

// parseNewMsg extracts the storage index from a new-message notification,
// e.g. `+CMTI: "SM",3` -> 3.
func parseNewMsg(line string) (int, error) {
	i := strings.LastIndexByte(line, ',')
	if i < 0 {
		return 0, fmt.Errorf("missing index")
	}
	index, err := strconv.Atoi(strings.TrimSpace(line[i+1:]))
	if err != nil {
		return 0, fmt.Errorf("bad index: %w", err)
	}
	return index, nil
}
