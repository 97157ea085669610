package modem_test

import (
	"testing"
	"time"

	"i4.energy/across/gsmwatch/modem"
)

func TestEventFields(t *testing.T) {
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	t.Run("Call fields in delivery order", func(t *testing.T) {
		call := modem.Call{Phone: "+15551234", Time: ts}

		fields := call.Fields()
		if len(fields) != 2 {
			t.Fatalf("expected 2 fields, got %d", len(fields))
		}
		if fields[0].Name != "phone" || fields[0].Value != "+15551234" {
			t.Errorf("unexpected first field: %+v", fields[0])
		}
		if fields[1].Name != "ts" || fields[1].Value != "2026-08-29T12:00:00Z" {
			t.Errorf("unexpected second field: %+v", fields[1])
		}
	})

	t.Run("Message fields in delivery order", func(t *testing.T) {
		msg := modem.Message{Phone: "+15557777", Time: ts, Text: "hi"}

		fields := msg.Fields()
		if len(fields) != 3 {
			t.Fatalf("expected 3 fields, got %d", len(fields))
		}
		if fields[0].Name != "phone" || fields[0].Value != "+15557777" {
			t.Errorf("unexpected first field: %+v", fields[0])
		}
		if fields[2].Name != "text" || fields[2].Value != "hi" {
			t.Errorf("unexpected last field: %+v", fields[2])
		}
	})
}
