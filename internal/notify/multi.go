package notify

import (
	"context"
	"errors"
	"log"
	"time"
)

// Multi fans a notification out to several publishers. A failing publisher
// does not prevent delivery to the others.
type Multi struct {
	publishers []Publisher
}

// NewMulti builds a fan-out publisher, skipping nil entries.
func NewMulti(publishers ...Publisher) *Multi {
	m := &Multi{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Publish stamps the notification time if unset and forwards it to every publisher.
func (m *Multi) Publish(ctx context.Context, n Notification) error {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, n); err != nil {
			log.Printf("[Notify] Error publicando %s (call=%s): %v", n.Type, n.CallID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of attached publishers.
func (m *Multi) Len() int {
	return len(m.publishers)
}
