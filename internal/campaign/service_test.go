package campaign

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"autodialer/internal/config"
	"autodialer/internal/dialer"
)

type fakeStore struct {
	nextID     int64
	campaigns  []string
	calls      []string
	failCalls  bool
	failCreate error
}

func (f *fakeStore) CreateCampaign(_ context.Context, name, _ string) (int64, error) {
	if f.failCreate != nil {
		return 0, f.failCreate
	}
	f.nextID++
	f.campaigns = append(f.campaigns, name)
	return f.nextID, nil
}

func (f *fakeStore) CreateCall(_ context.Context, _ int64, number, _ string) error {
	if f.failCalls {
		return errors.New("db down")
	}
	f.calls = append(f.calls, number)
	return nil
}

type fakeAdmitter struct {
	admitted []dialer.CallRequest
	err      error
}

func (f *fakeAdmitter) Admit(_ context.Context, reqs ...dialer.CallRequest) error {
	if f.err != nil {
		return f.err
	}
	f.admitted = append(f.admitted, reqs...)
	return nil
}

func newTestService(store *fakeStore, adm *fakeAdmitter) (*Service, *dialer.CompletionTracker) {
	tracker := dialer.NewCompletionTracker()
	s := NewService(store, adm, tracker)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s, tracker
}

func TestStartAdmitsEveryNumber(t *testing.T) {
	store := &fakeStore{}
	adm := &fakeAdmitter{}
	s, tracker := newTestService(store, adm)

	res, err := s.Start(context.Background(), Request{
		Campaign: "Cobranza",
		Numbers:  []string{"3001", " 3002 ", "", "3001"},
		AudioURL: "https://cdn.example.com/audios/aviso.mp3",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.CampaignID != 1 || res.Queued != 3 {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != `Campaña "Cobranza" iniciada con 3 números.` {
		t.Errorf("message = %q", res.Message)
	}

	if len(adm.admitted) != 3 || len(store.calls) != 3 {
		t.Fatalf("admitted=%d stored=%d", len(adm.admitted), len(store.calls))
	}
	first := adm.admitted[0]
	if first.CallID != "id-1" || first.Number != "3001" || first.CampaignID != 1 || first.Audio != "aviso" {
		t.Errorf("first request = %+v", first)
	}
	if adm.admitted[1].Number != "3002" || adm.admitted[2].CallID != "id-3" {
		t.Errorf("requests = %+v", adm.admitted)
	}

	if p, ok := tracker.Get(1); !ok || p.Total != 3 {
		t.Errorf("tracker = %+v %v", p, ok)
	}
}

func TestStartRejectsIncompleteRequests(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"no campaign", Request{Numbers: []string{"1"}, AudioURL: "a.wav"}},
		{"no audio", Request{Campaign: "x", Numbers: []string{"1"}}},
		{"no numbers", Request{Campaign: "x", AudioURL: "a.wav"}},
		{"blank numbers", Request{Campaign: "x", AudioURL: "a.wav", Numbers: []string{" ", ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			s, _ := newTestService(store, &fakeAdmitter{})
			if _, err := s.Start(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v", err)
			}
			if len(store.campaigns) != 0 {
				t.Error("invalid request must not create a campaign")
			}
		})
	}
}

func TestCallPersistenceFailureDoesNotBlockAdmission(t *testing.T) {
	adm := &fakeAdmitter{}
	s, _ := newTestService(&fakeStore{failCalls: true}, adm)

	res, err := s.Start(context.Background(), Request{Campaign: "x", AudioURL: "a.wav", Numbers: []string{"1", "2"}})
	if err != nil || res.Queued != 2 || len(adm.admitted) != 2 {
		t.Fatalf("res=%+v err=%v admitted=%d", res, err, len(adm.admitted))
	}
}

func TestStartFailures(t *testing.T) {
	s, _ := newTestService(&fakeStore{failCreate: errors.New("db down")}, &fakeAdmitter{})
	if _, err := s.Start(context.Background(), Request{Campaign: "x", AudioURL: "a.wav", Numbers: []string{"1"}}); err == nil {
		t.Fatal("campaign creation failure should be returned")
	}

	s, tracker := newTestService(&fakeStore{}, &fakeAdmitter{err: dialer.ErrStopped})
	_, err := s.Start(context.Background(), Request{Campaign: "x", AudioURL: "a.wav", Numbers: []string{"1"}})
	if !errors.Is(err, dialer.ErrStopped) {
		t.Fatalf("err = %v", err)
	}
	if len(tracker.Active()) != 0 {
		t.Error("tracker should drop a campaign that was never admitted")
	}
}

func TestAudioName(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example.com/a/aviso.mp3": "aviso",
		"aviso.wav":                           "aviso",
		"/var/lib/asterisk/sounds/promo":      "promo",
		"archive.tar.gz":                      "archive.tar",
	}
	for in, want := range tests {
		if got := AudioName(in); got != want {
			t.Errorf("AudioName(%q) = %q, want %q", in, got, want)
		}
	}
}

// cancelingStore cancels the caller's context while the calls are persisted,
// as a client disconnecting mid-request would.
type cancelingStore struct {
	fakeStore
	cancel context.CancelFunc
}

func (c *cancelingStore) CreateCall(ctx context.Context, campaignID int64, number, callID string) error {
	c.cancel()
	return c.fakeStore.CreateCall(ctx, campaignID, number, callID)
}

type nopOriginator struct{}

func (nopOriginator) Originate(context.Context, dialer.CallRequest, dialer.Slot) error { return nil }

func TestClientCancelDoesNotAbandonPersistedCampaign(t *testing.T) {
	trunks := []config.TrunkConfig{{ID: "204", Channels: 2}, {ID: "205", Channels: 2}, {ID: "206", Channels: 2}}
	sched := dialer.NewScheduler(dialer.NewTrunkPool(trunks), nopOriginator{}, nil, dialer.Options{})
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go sched.Run(runCtx)

	tracker := dialer.NewCompletionTracker()
	store := &cancelingStore{}
	s := NewService(store, sched, tracker)

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		store.cancel = cancel

		res, err := s.Start(ctx, Request{Campaign: "x", AudioURL: "a.wav", Numbers: []string{"1", "2", "3"}})
		if err != nil {
			t.Fatalf("run %d: Start: %v", i, err)
		}
		if p, ok := tracker.Get(res.CampaignID); !ok || p.Total != 3 {
			t.Fatalf("run %d: campaign %d not tracked: %+v %v", i, res.CampaignID, p, ok)
		}
	}

	snap, err := sched.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Queued + snap.InFlight; got != 150 {
		t.Errorf("held calls = %d, want 150", got)
	}
}
