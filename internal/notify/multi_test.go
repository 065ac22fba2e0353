package notify

import (
	"context"
	"errors"
	"testing"
)

type recorder struct {
	got []Notification
	err error
}

func (r *recorder) Publish(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("down")}
	c := &recorder{}
	m := NewMulti(a, nil, b, c)

	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}

	err := m.Publish(context.Background(), Notification{Type: CallEnded, CallID: "x"})
	if err == nil {
		t.Fatal("expected joined error from failing publisher")
	}
	for i, r := range []*recorder{a, b, c} {
		if len(r.got) != 1 {
			t.Fatalf("publisher %d got %d notifications", i, len(r.got))
		}
		if r.got[0].Time.IsZero() {
			t.Errorf("publisher %d: time not stamped", i)
		}
	}
}

func TestDiscard(t *testing.T) {
	if err := (Discard{}).Publish(context.Background(), Notification{}); err != nil {
		t.Fatal(err)
	}
}
