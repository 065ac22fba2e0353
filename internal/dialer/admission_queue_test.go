package dialer

import (
	"fmt"
	"reflect"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	var q AdmissionQueue
	q.Push(req("a"), req("b"))
	q.Push(req("c"))

	var got []string
	for {
		r, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, r.CallID)
	}
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d", q.Len())
	}
}

func TestQueuePushFrontAfterPop(t *testing.T) {
	var q AdmissionQueue
	q.Push(req("a"), req("b"), req("c"))

	r, _ := q.Pop()
	q.PushFront(r)
	if ids := q.CallIDs(); !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Fatalf("ids = %v", ids)
	}

	// front insertion on a queue that was never popped
	var q2 AdmissionQueue
	q2.Push(req("b"))
	q2.PushFront(req("a"))
	if ids := q2.CallIDs(); !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestQueueCompaction(t *testing.T) {
	var q AdmissionQueue
	for i := 0; i < 5000; i++ {
		q.Push(req(fmt.Sprint(i)))
	}
	for i := 0; i < 4000; i++ {
		r, ok := q.Pop()
		if !ok || r.CallID != fmt.Sprint(i) {
			t.Fatalf("pop %d = %v %v", i, r.CallID, ok)
		}
	}
	if q.Len() != 1000 {
		t.Fatalf("len = %d", q.Len())
	}
	r, _ := q.Pop()
	if r.CallID != "4000" {
		t.Fatalf("head = %s", r.CallID)
	}
}

func TestQueueEmptyPop(t *testing.T) {
	var q AdmissionQueue
	if _, ok := q.Pop(); ok {
		t.Fatal("pop on empty queue")
	}
}
