package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/gsmwatch/modem"
)

// MockSequenceBuilder accumulates ordered Write/Read expectations for the AT
// exchanges the session performs, so tests can compose connect and pre-up
// sequences without repeating the wire framing.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// exchange queues one command write and the modem's response.
func (b *MockSequenceBuilder) exchange(cmd, response string) *MockSequenceBuilder {
	wire := cmd + "\r"
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(wire)).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, response), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.exchange("AT", "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.exchange("ATE0", "ATE0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) VerboseErrors() *MockSequenceBuilder {
	return b.exchange("AT+CMEE=2", "OK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.exchange("AT+CPIN?", "+CPIN: READY\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.exchange("AT+CPIN?", "+CPIN: SIM PIN\r\nOK\r\n")
}

func (b *MockSequenceBuilder) ProductInfo() *MockSequenceBuilder {
	return b.exchange("ATI", "SIM900 R11.0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Revision() *MockSequenceBuilder {
	return b.exchange("AT+GMR", "Revision:1137B02SIM900M64_ST\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Operator() *MockSequenceBuilder {
	return b.exchange("AT+COPS?", "+COPS: 0,0,\"Vodafone\"\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SignalQuality() *MockSequenceBuilder {
	return b.exchange("AT+CSQ", "+CSQ: 15,99\r\nOK\r\n")
}

func (b *MockSequenceBuilder) CallerIDOn() *MockSequenceBuilder {
	return b.exchange("AT+CLIP=1", "OK\r\n")
}

func (b *MockSequenceBuilder) PDUMode() *MockSequenceBuilder {
	return b.exchange("AT+CMGF=0", "OK\r\n")
}

// Connect queues the full probe sequence run by Connect.
func (b *MockSequenceBuilder) Connect() *MockSequenceBuilder {
	return b.AT().EchoOff().VerboseErrors()
}

// PreUp queues the full readiness sequence run by PreUp (SIM already ready).
func (b *MockSequenceBuilder) PreUp() *MockSequenceBuilder {
	return b.SimReady().
		ProductInfo().
		Revision().
		Operator().
		SignalQuality().
		CallerIDOn().
		PDUMode()
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
