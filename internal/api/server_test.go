package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autodialer/internal/asterisk"
	"autodialer/internal/callevent"
	"autodialer/internal/campaign"
	"autodialer/internal/config"
	"autodialer/internal/database"
	"autodialer/internal/dialer"
)

type fakeCampaigns struct {
	got campaign.Request
	err error
}

func (f *fakeCampaigns) Start(_ context.Context, req campaign.Request) (campaign.Result, error) {
	f.got = req
	if f.err != nil {
		return campaign.Result{}, f.err
	}
	if err := req.Validate(); err != nil {
		return campaign.Result{}, err
	}
	return campaign.Result{Message: "ok", CampaignID: 9, Queued: len(req.Numbers)}, nil
}

type fakeSignals struct{ indices []int }

func (f *fakeSignals) Consume(_ context.Context, indices []int) (asterisk.ConsumeResult, error) {
	f.indices = indices
	return asterisk.ConsumeResult{Deleted: []string{"llamada_1_204.call"}, Skipped: []int{5}}, nil
}

type fakeEvents struct {
	events []callevent.Event
	err    error
}

func (f *fakeEvents) Submit(_ context.Context, ev callevent.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) Stats() callevent.Stats { return callevent.Stats{Processed: 4, Backlog: 1} }

type fakePool struct{}

func (fakePool) Snapshot(context.Context) (dialer.Snapshot, error) {
	return dialer.Snapshot{Capacity: 6, Free: 5, InFlight: 1, Queued: 2}, nil
}

type fakeReports struct{}

func (fakeReports) GetCampaignSummary(_ context.Context, id int64) (*database.CampaignSummary, error) {
	if id != 9 {
		return nil, fmt.Errorf("campaña %d: %w", id, database.ErrNotFound)
	}
	return &database.CampaignSummary{Campaign: database.Campaign{ID: 9, Name: "x"}, ByStatus: map[string]int{"success": 2}, Total: 2}, nil
}

func (fakeReports) ListCallsByCampaign(context.Context, int64, int) ([]database.Call, error) {
	return nil, nil
}

type testEnv struct {
	handler   http.Handler
	campaigns *fakeCampaigns
	signals   *fakeSignals
	events    *fakeEvents
}

func newTestEnv() *testEnv {
	env := &testEnv{campaigns: &fakeCampaigns{}, signals: &fakeSignals{}, events: &fakeEvents{}}
	tracker := dialer.NewCompletionTracker()
	tracker.Begin(9, 3)
	srv := NewServer(config.APIConfig{EnableCORS: true}, Deps{
		Campaigns: env.campaigns,
		Signals:   env.signals,
		Events:    env.events,
		Pool:      fakePool{},
		Tracker:   tracker,
		Reports:   fakeReports{},
	})
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestStartCampaign(t *testing.T) {
	env := newTestEnv()

	for _, path := range []string{"/api/v1/campaigns", "/start-call"} {
		rec := env.do(http.MethodPost, path, `{"campaign":"Promo","numbers":["1","2"],"audio_url":"a.wav"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", path, rec.Code, rec.Body)
		}
		var res campaign.Result
		if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
			t.Fatal(err)
		}
		if res.CampaignID != 9 || res.Queued != 2 {
			t.Errorf("%s: result = %+v", path, res)
		}
	}
}

func TestStartCallKeepsLegacyKey(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/start-call", `{"campaign":"Promo","numbers":["1"],"audio_url":"a.wav"}`)
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["campaignId"] != float64(9) || body["campaign_id"] != float64(9) {
		t.Errorf("body = %v", body)
	}

	rec = env.do(http.MethodPost, "/api/v1/campaigns", `{"campaign":"Promo","numbers":["1"],"audio_url":"a.wav"}`)
	body = nil
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["campaignId"]; ok {
		t.Errorf("v1 response carries legacy key: %v", body)
	}
}

func TestStartCampaignErrors(t *testing.T) {
	env := newTestEnv()

	if rec := env.do(http.MethodPost, "/start-call", `{"campaign":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields: status = %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/start-call", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/start-call", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d", rec.Code)
	}

	env.campaigns.err = errors.New("db down")
	if rec := env.do(http.MethodPost, "/start-call", `{"campaign":"x","numbers":["1"],"audio_url":"a"}`); rec.Code != http.StatusInternalServerError {
		t.Errorf("store failure: status = %d", rec.Code)
	}
}

func TestSignalsByIndexAndStructured(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/FileDeleteIndex",
		`{"indexCall":[0,3],"events":[{"UserEvent":"CallEnd","Exten":"h","call_id":"z","campaign_id":12}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	var resp signalsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.DeletedFiles) != 1 || resp.Events != 1 || len(resp.Skipped) != 1 {
		t.Errorf("response = %+v", resp)
	}
	if fmt.Sprint(env.signals.indices) != "[0 3]" {
		t.Errorf("indices = %v", env.signals.indices)
	}

	ev := env.events.events[0]
	if !ev.IsTerminal() || ev.CallID() != "z" {
		t.Errorf("event = %v", ev)
	}
	if id, ok := ev.CampaignID(); !ok || id != 12 {
		t.Errorf("campaign = %d %v", id, ok)
	}
}

func TestSignalsReportsConsumedFilesWhenEventsFail(t *testing.T) {
	env := newTestEnv()
	env.events.err = errors.New("ingestor saturated")

	rec := env.do(http.MethodPost, "/api/v1/signals",
		`{"indexCall":[0],"events":[{"userevent":"CallEnd","exten":"h","call_id":"a"},{"userevent":"CallEnd","exten":"h","call_id":"b"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp signalsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.DeletedFiles) != 1 || resp.Events != 0 || resp.FailedEvents != 2 {
		t.Errorf("response = %+v", resp)
	}

	rec = env.do(http.MethodPost, "/api/v1/signals", `{"events":[{"call_id":"a"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("events only: status = %d", rec.Code)
	}
}

func TestSignalsRequiresPayload(t *testing.T) {
	env := newTestEnv()
	for _, body := range []string{`{}`, `{"indexCall":[]}`} {
		if rec := env.do(http.MethodPost, "/api/v1/signals", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Pool.Capacity != 6 || resp.Pool.Queued != 2 || resp.Ingestor.Processed != 4 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Campaigns) != 1 || resp.Campaigns[0].Total != 3 {
		t.Errorf("campaigns = %+v", resp.Campaigns)
	}
}

func TestReports(t *testing.T) {
	env := newTestEnv()

	if rec := env.do(http.MethodGet, "/api/v1/campaigns/summary?id=9", ""); rec.Code != http.StatusOK {
		t.Errorf("summary: status = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/v1/campaigns/summary?id=1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown summary: status = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/v1/campaigns/summary?id=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", rec.Code)
	}

	rec := env.do(http.MethodGet, "/api/v1/calls?campaign_id=9", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("calls: %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("health: %d %v", rec.Code, rec.Header())
	}
	if rec := env.do(http.MethodOptions, "/api/v1/campaigns", ""); rec.Code != http.StatusOK {
		t.Errorf("preflight: status = %d", rec.Code)
	}
}
