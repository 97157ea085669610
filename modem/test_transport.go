package modem

import (
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. This is needed because the Loop's scanner goroutine continuously
// reads from the transport, and we need reads to block until data is
// available (like a real serial port would).
//
// Everything written to the transport is recorded and exposed on Writes, so
// tests can observe the AT commands the session issues (and feed back the
// matching responses) in a deterministic order.
type TestTransport struct {
	mu        sync.Mutex
	readChan  chan []byte
	writeChan chan string
	closes    int
	closed    bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan:  make(chan []byte, 10),
		writeChan: make(chan string, 10),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	select {
	case t.writeChan <- string(p):
	default:
		// Nobody watching writes; drop the record, keep the transport alive.
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes exposes the wire-level commands written to the transport.
func (t *TestTransport) Writes() <-chan string {
	return t.writeChan
}

// CloseCount reports how many times Close was called.
func (t *TestTransport) CloseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}
