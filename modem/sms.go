package modem

import (
	"context"
	"fmt"
	"strings"

	"github.com/warthog618/sms"
	"github.com/warthog618/sms/encoding/pdumode"
	"github.com/warthog618/sms/encoding/tpdu"

	"i4.energy/across/gsmwatch/at"
)

// ReadStored reads the message stored at the given SIM index, announced by a
// +CMTI URC. The modem is in PDU mode, so the payload is an SMSC-prefixed
// hex TPDU which is decoded with the sms library.
//
// A segment of a multipart message is buffered and ReadStored returns
// (nil, nil); the assembled Message is returned with the final segment.
// When the session is configured with AutoDelete, each successfully read
// segment is deleted from the SIM. A failed delete is returned alongside the
// message: the read outcome stands, the delete is auxiliary.
func (s *Session) ReadStored(ctx context.Context, index int) (*Message, error) {
	resp, err := s.exec(ctx, fmt.Sprintf("AT+CMGR=%d", index))
	if err != nil {
		return nil, fmt.Errorf("%w: read stored message %d: %w", ErrTransport, index, err)
	}

	hexPDU := pduPayload(resp)
	if hexPDU == "" {
		return nil, fmt.Errorf("no PDU in CMGR response: %q", resp)
	}

	msg, err := s.collector.decode(hexPDU)
	if err != nil {
		return nil, fmt.Errorf("decode stored message %d: %w", index, err)
	}

	if s.config.AutoDelete {
		if err := s.DeleteStored(ctx, index); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// DeleteStored removes the message at the given SIM index.
func (s *Session) DeleteStored(ctx context.Context, index int) error {
	if _, err := s.exec(ctx, fmt.Sprintf("AT+CMGD=%d", index)); err != nil {
		return fmt.Errorf("%w: delete stored message %d: %w", ErrTransport, index, err)
	}
	return nil
}

// pduPayload extracts the hex TPDU line out of a +CMGR response,
// e.g. "+CMGR: 0,,26\n<hex>\nOK" -> "<hex>".
func pduPayload(resp string) string {
	lines := strings.Split(resp, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "+CMGR:") {
			continue
		}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if next == "" {
				continue
			}
			if at.Classify(next) == at.TypeFinal {
				return ""
			}
			return next
		}
	}
	return ""
}

// partCollector turns received PDUs into Messages, holding back segments of
// a concatenated SMS until the set is complete. One assembled Message comes
// out per logical SMS, regardless of how many segments carried it.
type partCollector struct {
	c *sms.Collector
}

func newPartCollector() *partCollector {
	return &partCollector{c: sms.NewCollector()}
}

// decode unmarshals one SMSC-prefixed hex PDU and feeds it to the collector.
// It returns (nil, nil) while segments are still outstanding.
func (pc *partCollector) decode(hexPDU string) (*Message, error) {
	p, err := pdumode.UnmarshalHexString(hexPDU)
	if err != nil {
		return nil, fmt.Errorf("unmarshal pdu: %w", err)
	}
	t, err := sms.Unmarshal(p.TPDU)
	if err != nil {
		return nil, fmt.Errorf("unmarshal tpdu: %w", err)
	}
	pdus, err := pc.c.Collect(*t)
	if err != nil {
		return nil, fmt.Errorf("collect segment: %w", err)
	}
	if pdus == nil {
		// Segment buffered, message not complete yet
		return nil, nil
	}
	return assemble(pdus)
}

// assemble decodes the user data of a complete PDU set into a Message.
// Sender and timestamp come from the first segment.
func assemble(pdus []*tpdu.TPDU) (*Message, error) {
	text, err := sms.Decode(pdus)
	if err != nil {
		return nil, fmt.Errorf("decode user data: %w", err)
	}
	first := pdus[0]
	return &Message{
		Phone: first.OA.Number(),
		Time:  first.SCTS.Time,
		Text:  string(text),
	}, nil
}
