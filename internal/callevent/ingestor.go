package callevent

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"autodialer/internal/database"
	"autodialer/internal/dialer"
	"autodialer/internal/notify"
)

// Releaser frees the channel held by a finished call.
type Releaser interface {
	Release(ctx context.Context, callID string) (dialer.ReleaseResult, error)
	ForgetCampaign(ctx context.Context, campaignID int64) error
}

// Store records call outcomes and campaign completion.
type Store interface {
	UpdateCallStatus(ctx context.Context, callID string, status database.CallStatus, uniqueID string) error
	MarkCampaignEnded(ctx context.Context, campaignID int64) error
}

// Options tune an Ingestor.
type Options struct {
	Buffer       int
	StoreTimeout time.Duration
	Publisher    notify.Publisher
	Debug        bool
}

// Stats counts what the worker did with the events it dequeued.
type Stats struct {
	Processed int64 `json:"processed"`
	Ignored   int64 `json:"ignored"`
	Failed    int64 `json:"failed"`
	Backlog   int   `json:"backlog"`
}

// Ingestor serializes call-end events through one worker goroutine.
type Ingestor struct {
	events   chan Event
	releaser Releaser
	store    Store
	tracker  *dialer.CompletionTracker
	opts     Options

	processed atomic.Int64
	ignored   atomic.Int64
	failed    atomic.Int64
}

// NewIngestor creates an ingestor. Call Run to start draining.
func NewIngestor(releaser Releaser, store Store, tracker *dialer.CompletionTracker, opts Options) *Ingestor {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Discard{}
	}
	return &Ingestor{
		events:   make(chan Event, opts.Buffer),
		releaser: releaser,
		store:    store,
		tracker:  tracker,
		opts:     opts,
	}
}

// Submit enqueues ev, waiting for buffer space.
func (in *Ingestor) Submit(ctx context.Context, ev Event) error {
	select {
	case in.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues ev only if it can do so without blocking.
func (in *Ingestor) TrySubmit(ev Event) bool {
	select {
	case in.events <- ev:
		return true
	default:
		return false
	}
}

// Backlog is the number of events waiting for the worker.
func (in *Ingestor) Backlog() int {
	return len(in.events)
}

func (in *Ingestor) Stats() Stats {
	return Stats{
		Processed: in.processed.Load(),
		Ignored:   in.ignored.Load(),
		Failed:    in.failed.Load(),
		Backlog:   in.Backlog(),
	}
}

// Run drains events in arrival order until ctx is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	log.Printf("[Ingestor] Started (buffer=%d)", cap(in.events))
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Ingestor] Stopped (backlog=%d)", in.Backlog())
			return ctx.Err()
		case ev := <-in.events:
			if err := in.handle(ctx, ev); err != nil {
				in.failed.Add(1)
				log.Printf("[Ingestor] Error procesando evento CallEnd: %v", err)
			}
		}
	}
}

// handle processes a single event inside its own failure boundary.
func (in *Ingestor) handle(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic procesando evento %v: %v", ev, r)
		}
	}()

	if !ev.IsTerminal() {
		in.ignored.Add(1)
		if in.opts.Debug {
			log.Printf("[Ingestor] Evento ignorado: userevent=%q exten=%q", ev.UserEvent(), ev.Exten())
		}
		return nil
	}

	callID := ev.CallID()
	if callID == "" {
		return ErrMissingCallID
	}
	status := ev.Status()
	log.Printf("[Ingestor] CallEnd recibido: CALL_ID %s - Estado %s", callID, status)

	res, err := in.releaser.Release(ctx, callID)
	if err != nil {
		return fmt.Errorf("liberando CALL_ID %s: %w", callID, err)
	}
	// the call is still queued and will be dialed; the signal is bogus
	if res.Pending() {
		return fmt.Errorf("CALL_ID %s: %w", callID, ErrCallNotDialed)
	}

	campaignID := res.Request.CampaignID
	if !res.Released || campaignID == 0 {
		if id, ok := ev.CampaignID(); ok {
			campaignID = id
		}
	}

	in.persistStatus(ctx, callID, status, ev.UniqueID())
	in.processed.Add(1)

	in.publish(ctx, notify.Notification{
		Type: notify.CallEnded, CallID: callID, CampaignID: campaignID,
		Number: res.Request.Number, Trunk: res.Slot.Trunk, Channel: res.Slot.Channel, Status: status,
	})

	if campaignID == 0 {
		log.Printf("[Ingestor] WARNING: CALL_ID %s sin campaña conocida, no se contabiliza", callID)
		return nil
	}

	progress, counted := in.tracker.Record(campaignID, callID)
	if !counted || !progress.Done {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, in.opts.StoreTimeout)
	defer cancel()
	if err := in.store.MarkCampaignEnded(sctx, campaignID); err != nil {
		log.Printf("[Ingestor] Error finalizando campaña %d: %v", campaignID, err)
	}
	in.publish(ctx, notify.Notification{
		Type: notify.CampaignEnded, CampaignID: campaignID,
		Completed: progress.Completed, Total: progress.Total,
	})
	if err := in.releaser.ForgetCampaign(ctx, campaignID); err != nil {
		log.Printf("[Ingestor] Error limpiando campaña %d: %v", campaignID, err)
	}
	return nil
}

// persistStatus is best effort; failures are logged and never undo the release.
func (in *Ingestor) persistStatus(ctx context.Context, callID, status, uniqueID string) {
	var code database.CallStatus
	switch status {
	case StatusSuccess:
		code = database.StatusSuccess
	case StatusFailed:
		code = database.StatusFailed
		uniqueID = ""
	default:
		log.Printf("[Ingestor] CALL_ID %s con estado %q, sin actualización", callID, status)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, in.opts.StoreTimeout)
	defer cancel()
	if err := in.store.UpdateCallStatus(sctx, callID, code, uniqueID); err != nil {
		log.Printf("[Ingestor] Error actualizando CALL_ID %s: %v", callID, err)
		return
	}
	if code == database.StatusSuccess {
		log.Printf("[Ingestor] Llamada CALL_ID %s exitosa.", callID)
	} else {
		log.Printf("[Ingestor] Llamada CALL_ID %s fallida.", callID)
	}
}

func (in *Ingestor) publish(ctx context.Context, n notify.Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	if err := in.opts.Publisher.Publish(ctx, n); err != nil {
		log.Printf("[Ingestor] Error publicando %s: %v", n.Type, err)
	}
}
