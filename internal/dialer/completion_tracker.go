package dialer

import (
	"log"
	"sort"
	"sync"
)

// Progress is the completion state of one campaign.
type Progress struct {
	CampaignID int64 `json:"campaign_id"`
	Completed  int   `json:"completed"`
	Total      int   `json:"total"`
	Done       bool  `json:"done"`
}

type campaignCounter struct {
	total     int
	completed int
	seen      map[string]bool
}

// CompletionTracker counts completed calls per campaign and reports the moment
// a campaign reaches its expected total. The counter is reset (the campaign is
// forgotten) at that moment.
type CompletionTracker struct {
	campaigns map[int64]*campaignCounter
	mu        sync.Mutex
}

// NewCompletionTracker creates an empty tracker.
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{
		campaigns: make(map[int64]*campaignCounter),
	}
}

// Begin registers the expected total for a campaign. Calling it again for an
// active campaign adds to its total.
func (t *CompletionTracker) Begin(campaignID int64, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.campaigns[campaignID]; ok {
		c.total += total
		log.Printf("[CompletionTracker] Campaign %d total extended to %d", campaignID, c.total)
		return
	}
	t.campaigns[campaignID] = &campaignCounter{total: total, seen: make(map[string]bool)}
	log.Printf("[CompletionTracker] Tracking campaign %d (total=%d)", campaignID, total)
}

// Record counts callID as completed for campaignID. A call id is counted at
// most once; unknown campaigns are ignored. The returned bool reports whether
// the counter moved.
func (t *CompletionTracker) Record(campaignID int64, callID string) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.campaigns[campaignID]
	if !ok {
		log.Printf("[CompletionTracker] WARNING: campaign %d not tracked (CALL_ID %s)", campaignID, callID)
		return Progress{CampaignID: campaignID}, false
	}
	if c.seen[callID] {
		return Progress{CampaignID: campaignID, Completed: c.completed, Total: c.total}, false
	}

	c.seen[callID] = true
	c.completed++
	p := Progress{CampaignID: campaignID, Completed: c.completed, Total: c.total}
	if c.completed >= c.total {
		p.Done = true
		delete(t.campaigns, campaignID)
		log.Printf("[CompletionTracker] ====== Campaign %d finished (%d/%d) ======", campaignID, p.Completed, p.Total)
	}
	return p, true
}

// Get returns the progress of an active campaign.
func (t *CompletionTracker) Get(campaignID int64) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.campaigns[campaignID]
	if !ok {
		return Progress{}, false
	}
	return Progress{CampaignID: campaignID, Completed: c.completed, Total: c.total}, true
}

// Active lists the progress of every campaign still running, ordered by id.
func (t *CompletionTracker) Active() []Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Progress, 0, len(t.campaigns))
	for id, c := range t.campaigns {
		out = append(out, Progress{CampaignID: id, Completed: c.completed, Total: c.total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out
}

// Drop forgets a campaign without completing it.
func (t *CompletionTracker) Drop(campaignID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.campaigns, campaignID)
}
