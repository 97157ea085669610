package modem

// Handler is the extension surface of the dispatcher. User code supplies an
// implementation to observe inbound events; the default is NopHandler.
//
// Handlers are observational only. A call handler runs after the call has
// already been hung up at the protocol level and cannot alter that policy; a
// message handler runs after the message has been decoded and cannot alter
// SIM storage. A returned error (or panic) is reported on the dispatcher's
// error channel and never stops the event loop.
//
// Handlers run inline on the dispatch loop: a slow handler delays the next
// notification. Handlers needing long work should hand it off internally.
type Handler interface {
	HandleCall(call Call) error
	HandleMessage(msg Message) error
}

// NopHandler ignores every event. Embed it to implement only one hook.
type NopHandler struct{}

func (NopHandler) HandleCall(Call) error       { return nil }
func (NopHandler) HandleMessage(Message) error { return nil }

var _ Handler = NopHandler{}
