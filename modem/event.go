package modem

import (
	"time"
)

// Field is one name/value pair of an event. Field order reflects the order in
// which the values were delivered and decoded, and is meaningful for display.
type Field struct {
	Name  string
	Value string
}

// Call represents one inbound voice call notification. It is immutable and
// purely informational: by the time a Call reaches a handler the underlying
// network call has already been rejected.
type Call struct {
	// Phone is the caller's number as reported by +CLIP. Empty when caller ID
	// was not presented before the caller-ID window lapsed.
	Phone string
	// Time is when the ring was observed.
	Time time.Time
}

// Fields returns the call attributes in delivery order.
func (c Call) Fields() []Field {
	return []Field{
		{Name: "phone", Value: c.Phone},
		{Name: "ts", Value: c.Time.Format(time.RFC3339)},
	}
}

// Message represents one inbound SMS, fully reassembled when the sender split
// it across multiple segments. The stored copy on the SIM is untouched unless
// the session was configured with AutoDelete.
type Message struct {
	// Phone is the originating address.
	Phone string
	// Time is the service center timestamp.
	Time time.Time
	// Text is the decoded message body.
	Text string
}

// Fields returns the message attributes in delivery order.
func (m Message) Fields() []Field {
	return []Field{
		{Name: "phone", Value: m.Phone},
		{Name: "ts", Value: m.Time.Format(time.RFC3339)},
		{Name: "text", Value: m.Text},
	}
}
