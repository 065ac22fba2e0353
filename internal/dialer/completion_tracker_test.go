package dialer

import "testing"

func TestCampaignCompletesOnceAndResets(t *testing.T) {
	tr := NewCompletionTracker()
	tr.Begin(7, 3)

	for i, id := range []string{"a", "b"} {
		p, counted := tr.Record(7, id)
		if !counted || p.Done || p.Completed != i+1 {
			t.Fatalf("record %s = %+v counted=%v", id, p, counted)
		}
	}

	p, counted := tr.Record(7, "c")
	if !counted || !p.Done || p.Completed != 3 || p.Total != 3 {
		t.Fatalf("final record = %+v", p)
	}
	if _, ok := tr.Get(7); ok {
		t.Fatal("finished campaign should be reset")
	}

	// a late duplicate does not re-trigger completion
	if p, counted := tr.Record(7, "c"); counted || p.Done {
		t.Fatalf("late record = %+v counted=%v", p, counted)
	}
}

func TestDuplicateCallCountedOnce(t *testing.T) {
	tr := NewCompletionTracker()
	tr.Begin(1, 2)

	tr.Record(1, "a")
	p, counted := tr.Record(1, "a")
	if counted || p.Completed != 1 {
		t.Fatalf("duplicate = %+v counted=%v", p, counted)
	}
}

func TestCampaignsCountedIndependently(t *testing.T) {
	tr := NewCompletionTracker()
	tr.Begin(1, 2)
	tr.Begin(2, 1)

	tr.Record(1, "x")
	p, _ := tr.Record(2, "y")
	if !p.Done {
		t.Fatal("campaign 2 should finish on its own total")
	}
	if got, ok := tr.Get(1); !ok || got.Completed != 1 || got.Done {
		t.Fatalf("campaign 1 = %+v %v", got, ok)
	}

	active := tr.Active()
	if len(active) != 1 || active[0].CampaignID != 1 {
		t.Fatalf("active = %+v", active)
	}
}

func TestBeginExtendsTotal(t *testing.T) {
	tr := NewCompletionTracker()
	tr.Begin(1, 1)
	tr.Begin(1, 2)
	if p, _ := tr.Get(1); p.Total != 3 {
		t.Fatalf("total = %d", p.Total)
	}
}
