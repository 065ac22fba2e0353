package dialer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"autodialer/internal/notify"
)

// ErrStopped is returned by Scheduler methods once Run has returned.
var ErrStopped = errors.New("dialer: scheduler stopped")

// Originator produces the origination artifact for a call placed on slot.
type Originator interface {
	Originate(ctx context.Context, req CallRequest, slot Slot) error
}

// CallStore is the persistence the dispatcher needs.
type CallStore interface {
	MarkCallStarted(ctx context.Context, callID string) error
}

// Options tune a Scheduler.
type Options struct {
	// RetryInterval re-arms a dispatch pass while work is queued and a
	// channel is free. Zero disables the retry tick.
	RetryInterval time.Duration
	// StaleCallTimeout hands calls that held a channel longer than this to
	// OnStale. Zero disables the reaper.
	StaleCallTimeout time.Duration
	// OnStale must not block; return false to be asked again next tick.
	OnStale   func(CallRequest) bool
	Publisher notify.Publisher
	Debug     bool
}

// ReleaseResult describes the outcome of a release request. When nothing was
// released, Known and State describe the call as the scheduler last saw it.
type ReleaseResult struct {
	Request  CallRequest
	Slot     Slot
	Released bool
	Known    bool
	State    CallState
}

// Pending reports a call that was admitted but never reached a channel, so a
// terminal signal for it cannot be genuine.
func (r ReleaseResult) Pending() bool {
	return !r.Released && r.Known && r.State == StateQueued
}

// Snapshot is a consistent view of the scheduler state.
type Snapshot struct {
	Trunks   []TrunkState   `json:"trunks"`
	Capacity int            `json:"capacity"`
	Free     int            `json:"free"`
	InFlight int            `json:"in_flight"`
	Queued   int            `json:"queued"`
	States   map[string]int `json:"states"`
}

type callRecord struct {
	campaignID int64
	state      CallState
	reaped     bool
}

type admitCmd struct {
	reqs  []CallRequest
	reply chan error
}

type releaseCmd struct {
	callID string
	reply  chan ReleaseResult
}

// Scheduler matches queued call requests to free trunk channels. All of its
// state is owned by the goroutine executing Run; other goroutines interact
// with it only through its exported methods.
type Scheduler struct {
	pool       *TrunkPool
	queue      *AdmissionQueue
	calls      map[string]*callRecord
	originator Originator
	store      CallStore
	opts       Options

	admitCh   chan admitCmd
	releaseCh chan releaseCmd
	forgetCh  chan int64
	queryCh   chan chan Snapshot
	wake      chan struct{}
	done      chan struct{}
}

// NewScheduler creates a scheduler over pool. Call Run to start it.
func NewScheduler(pool *TrunkPool, originator Originator, store CallStore, opts Options) *Scheduler {
	if opts.Publisher == nil {
		opts.Publisher = notify.Discard{}
	}
	return &Scheduler{
		pool:       pool,
		queue:      &AdmissionQueue{},
		calls:      make(map[string]*callRecord),
		originator: originator,
		store:      store,
		opts:       opts,
		admitCh:    make(chan admitCmd),
		releaseCh:  make(chan releaseCmd),
		forgetCh:   make(chan int64),
		queryCh:    make(chan chan Snapshot),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run executes the scheduling loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)

	var tick <-chan time.Time
	if interval := s.tickInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Printf("[Dispatcher] Started (capacity=%d)", s.pool.Capacity())
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Dispatcher] Stopped (queued=%d, in_flight=%d)", s.queue.Len(), s.pool.InFlight())
			return ctx.Err()

		case cmd := <-s.admitCh:
			err := s.admit(cmd.reqs)
			cmd.reply <- err
			if err == nil {
				s.arm()
			}

		case cmd := <-s.releaseCh:
			res := s.release(cmd.callID)
			cmd.reply <- res
			if res.Released {
				s.arm()
			}

		case id := <-s.forgetCh:
			s.forget(id)

		case reply := <-s.queryCh:
			reply <- s.snapshot()

		case <-s.wake:
			assigned := s.dispatchPass(ctx)
			// yield back to the select before the next pass
			if assigned > 0 && s.queue.Len() > 0 && s.pool.Free() > 0 {
				s.arm()
			}

		case <-tick:
			if s.queue.Len() > 0 && s.pool.Free() > 0 {
				s.arm()
			}
			s.reapStale()
		}
	}
}

func (s *Scheduler) tickInterval() time.Duration {
	interval := s.opts.RetryInterval
	if st := s.opts.StaleCallTimeout; st > 0 {
		check := st / 4
		if check < time.Second {
			check = time.Second
		}
		if interval == 0 || check < interval {
			interval = check
		}
	}
	return interval
}

// arm schedules a dispatch pass without blocking; at most one is pending.
func (s *Scheduler) arm() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Admit enqueues requests in order and triggers a dispatch pass. ctx only
// bounds the hand-off: once the loop has taken the batch, Admit waits for its
// verdict, so a nil error means queued and any error means nothing was queued.
func (s *Scheduler) Admit(ctx context.Context, reqs ...CallRequest) error {
	cmd := admitCmd{reqs: reqs, reply: make(chan error, 1)}
	select {
	case s.admitCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
	// the reply is buffered and sent before Run can return
	return <-cmd.reply
}

// Release frees the channel held by callID, if any, and re-triggers dispatch.
// As with Admit, ctx only bounds the hand-off.
func (s *Scheduler) Release(ctx context.Context, callID string) (ReleaseResult, error) {
	cmd := releaseCmd{callID: callID, reply: make(chan ReleaseResult, 1)}
	select {
	case s.releaseCh <- cmd:
	case <-ctx.Done():
		return ReleaseResult{}, ctx.Err()
	case <-s.done:
		return ReleaseResult{}, ErrStopped
	}
	return <-cmd.reply, nil
}

// ForgetCampaign drops lifecycle records of a finished campaign.
func (s *Scheduler) ForgetCampaign(ctx context.Context, campaignID int64) error {
	select {
	case s.forgetCh <- campaignID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Snapshot returns the current occupancy, queue length and lifecycle counts.
func (s *Scheduler) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case s.queryCh <- reply:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, ErrStopped
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, ErrStopped
	}
}

func (s *Scheduler) admit(reqs []CallRequest) error {
	batch := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if r.CallID == "" {
			return errors.New("dialer: call request without call id")
		}
		if _, dup := s.calls[r.CallID]; dup || batch[r.CallID] {
			return fmt.Errorf("dialer: call %s already admitted", r.CallID)
		}
		batch[r.CallID] = true
	}
	now := s.pool.now()
	queued := make([]CallRequest, len(reqs))
	for i, r := range reqs {
		if r.AdmittedAt.IsZero() {
			r.AdmittedAt = now
		}
		queued[i] = r
		s.calls[r.CallID] = &callRecord{campaignID: r.CampaignID, state: StateQueued}
	}
	s.queue.Push(queued...)
	log.Printf("[Dispatcher] Admitted %d calls (queued=%d)", len(reqs), s.queue.Len())
	return nil
}

// dispatchPass drains the queue into free channels in pool order and returns
// the number of calls assigned. A provisioning failure rolls the channel
// back, returns the request to the head of the queue and ends the pass.
func (s *Scheduler) dispatchPass(ctx context.Context) int {
	if s.queue.Len() == 0 {
		return 0
	}
	if s.pool.Free() == 0 {
		if s.opts.Debug {
			log.Printf("[Dispatcher] No hay troncales disponibles (queued=%d)", s.queue.Len())
		}
		return 0
	}

	assigned := 0
	for s.queue.Len() > 0 && s.pool.Free() > 0 {
		req, _ := s.queue.Pop()
		slot, ok := s.pool.Allocate(req)
		if !ok {
			s.queue.PushFront(req)
			break
		}
		s.transition(req.CallID, StateAssigned)
		log.Printf("[Dispatcher] Canal %d en Troncal %s asignado a CALL_ID %s", slot.Channel, slot.Trunk, req.CallID)
		if s.opts.Debug {
			log.Printf("[Dispatcher] CALL_ID %s esperó %v en cola", req.CallID, s.pool.now().Sub(req.AdmittedAt))
		}

		if err := s.provision(ctx, req, slot); err != nil {
			log.Printf("[Dispatcher] Error procesando llamada en Troncal %s, Canal %d (CALL_ID %s): %v",
				slot.Trunk, slot.Channel, req.CallID, err)
			s.pool.Release(req.CallID)
			s.transition(req.CallID, StateQueued)
			s.queue.PushFront(req)
			s.publish(ctx, notify.Notification{
				Type: notify.CallProvisioningError, CallID: req.CallID, CampaignID: req.CampaignID,
				Number: req.Number, Trunk: slot.Trunk, Channel: slot.Channel, Error: err.Error(),
			})
			break
		}

		s.transition(req.CallID, StateArtifactEmitted)
		assigned++
		log.Printf("[Dispatcher] Llamada procesada: Número %s, Troncal %s, Canal %d, CALL_ID %s",
			req.Number, slot.Trunk, slot.Channel, req.CallID)

		if s.store != nil {
			if err := s.store.MarkCallStarted(ctx, req.CallID); err != nil {
				log.Printf("[Dispatcher] Error registrando inicio de CALL_ID %s: %v", req.CallID, err)
			}
		}
		s.publish(ctx, notify.Notification{
			Type: notify.CallAssigned, CallID: req.CallID, CampaignID: req.CampaignID,
			Number: req.Number, Trunk: slot.Trunk, Channel: slot.Channel,
		})
	}

	if s.queue.Len() > 0 {
		log.Printf("[Dispatcher] Quedan %d llamadas en la cola", s.queue.Len())
	} else if assigned > 0 {
		log.Printf("[Dispatcher] Todas las llamadas en la cola han sido procesadas")
	}
	return assigned
}

// provision runs the originator inside its own failure boundary.
func (s *Scheduler) provision(ctx context.Context, req CallRequest, slot Slot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in originator: %v", r)
		}
	}()
	return s.originator.Originate(ctx, req, slot)
}

func (s *Scheduler) release(callID string) ReleaseResult {
	rec := s.calls[callID]
	if rec != nil && rec.state == StateArtifactEmitted {
		s.transition(callID, StateCompleted)
	}

	req, slot, ok := s.pool.Release(callID)
	if !ok {
		if rec == nil {
			return ReleaseResult{}
		}
		return ReleaseResult{Known: true, State: rec.state}
	}
	if rec != nil {
		s.transition(callID, StateReleased)
	}
	return ReleaseResult{Request: req, Slot: slot, Released: true}
}

func (s *Scheduler) forget(campaignID int64) {
	n := 0
	for id, rec := range s.calls {
		if rec.campaignID == campaignID && rec.state == StateReleased {
			delete(s.calls, id)
			n++
		}
	}
	if s.opts.Debug {
		log.Printf("[Dispatcher] Forgot %d released calls of campaign %d", n, campaignID)
	}
}

func (s *Scheduler) transition(callID string, next CallState) {
	rec, ok := s.calls[callID]
	if !ok {
		return
	}
	if !rec.state.CanTransition(next) {
		log.Printf("[Dispatcher] WARNING: CALL_ID %s invalid transition %s -> %s", callID, rec.state, next)
		return
	}
	rec.state = next
}

// state returns the lifecycle state of callID. Only safe from the Run
// goroutine or while Run is not executing.
func (s *Scheduler) state(callID string) (CallState, bool) {
	rec, ok := s.calls[callID]
	if !ok {
		return 0, false
	}
	return rec.state, true
}

func (s *Scheduler) reapStale() {
	if s.opts.StaleCallTimeout <= 0 || s.opts.OnStale == nil {
		return
	}
	cutoff := s.pool.now().Add(-s.opts.StaleCallTimeout)
	for _, req := range s.pool.AssignedBefore(cutoff) {
		rec := s.calls[req.CallID]
		if rec != nil && rec.reaped {
			continue
		}
		if !s.opts.OnStale(req) {
			continue
		}
		if rec != nil {
			rec.reaped = true
		}
		log.Printf("[Dispatcher] CALL_ID %s sin señal de fin tras %v, forzando cierre", req.CallID, s.opts.StaleCallTimeout)
	}
}

func (s *Scheduler) snapshot() Snapshot {
	snap := Snapshot{
		Trunks:   s.pool.Trunks(),
		Capacity: s.pool.Capacity(),
		Free:     s.pool.Free(),
		InFlight: s.pool.InFlight(),
		Queued:   s.queue.Len(),
		States:   make(map[string]int),
	}
	for _, rec := range s.calls {
		snap.States[rec.state.String()]++
	}
	return snap
}

func (s *Scheduler) publish(ctx context.Context, n notify.Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	if err := s.opts.Publisher.Publish(ctx, n); err != nil {
		log.Printf("[Dispatcher] Error publicando %s: %v", n.Type, err)
	}
}
