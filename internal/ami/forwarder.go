package ami

import (
	"context"
	"log"

	"autodialer/internal/callevent"
)

// Sink receives canonicalized call-end events.
type Sink interface {
	Submit(ctx context.Context, ev callevent.Event) error
}

// Forwarder converts AMI events into call-end signals for the ingestor.
// UserEvent messages are forwarded as-is; a failed OriginateResponse for an
// AMI-originated call becomes a FAILED terminal event.
type Forwarder struct {
	events <-chan Event
	sink   Sink
	debug  bool
}

func NewForwarder(client *Client, sink Sink, debug bool) *Forwarder {
	return &Forwarder{events: client.Subscribe(), sink: sink, debug: debug}
}

// Run forwards events until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	log.Println("[AMI-Forwarder] Started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-f.events:
			if !ok {
				return nil
			}
			ev, ok := f.translate(event)
			if !ok {
				continue
			}
			if err := f.sink.Submit(ctx, ev); err != nil {
				log.Printf("[AMI-Forwarder] Error enviando evento CALL_ID %s: %v", ev.CallID(), err)
			}
		}
	}
}

func (f *Forwarder) translate(event Event) (callevent.Event, bool) {
	switch event.Type {
	case "UserEvent":
		ev := callevent.FromFields(event.Fields)
		if f.debug {
			log.Printf("[AMI-Forwarder] UserEvent %s CALL_ID %s", ev.UserEvent(), ev.CallID())
		}
		return ev, true

	case "OriginateResponse":
		if event.Fields["Response"] != "Failure" {
			return nil, false
		}
		callID := event.Fields["ActionID"]
		if callID == "" {
			return nil, false
		}
		log.Printf("[AMI-Forwarder] Originate fallido para CALL_ID %s (Reason=%s)", callID, event.Fields["Reason"])
		return callevent.Terminal(callID, 0, callevent.StatusFailed), true
	}
	return nil, false
}
