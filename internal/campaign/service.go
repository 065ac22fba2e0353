// Package campaign admits campaigns: it persists them, registers their
// expected totals and hands one call request per number to the scheduler.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"autodialer/internal/dialer"
)

const admitTimeout = 30 * time.Second

// ErrInvalidRequest se devuelve cuando faltan campos obligatorios
var ErrInvalidRequest = errors.New("campaign: invalid request")

// Store persists campaigns and their calls.
type Store interface {
	CreateCampaign(ctx context.Context, name, audioURL string) (int64, error)
	CreateCall(ctx context.Context, campaignID int64, number, callID string) error
}

// Admitter enqueues call requests for dispatch.
type Admitter interface {
	Admit(ctx context.Context, reqs ...dialer.CallRequest) error
}

// Request is the start-campaign payload.
type Request struct {
	Campaign string   `json:"campaign"`
	Numbers  []string `json:"numbers"`
	AudioURL string   `json:"audio_url"`
}

// Result describes an admitted campaign.
type Result struct {
	Message    string `json:"message"`
	CampaignID int64  `json:"campaign_id"`
	Queued     int    `json:"queued"`
}

// Service starts campaigns.
type Service struct {
	store    Store
	admitter Admitter
	tracker  *dialer.CompletionTracker
	newID    func() string
}

func NewService(store Store, admitter Admitter, tracker *dialer.CompletionTracker) *Service {
	return &Service{
		store:    store,
		admitter: admitter,
		tracker:  tracker,
		newID:    uuid.NewString,
	}
}

// Validate trims the request and rejects it when a required field is empty.
func (r *Request) Validate() error {
	r.Campaign = strings.TrimSpace(r.Campaign)
	r.AudioURL = strings.TrimSpace(r.AudioURL)

	numbers := make([]string, 0, len(r.Numbers))
	for _, n := range r.Numbers {
		if n = strings.TrimSpace(n); n != "" {
			numbers = append(numbers, n)
		}
	}
	r.Numbers = numbers

	switch {
	case r.Campaign == "":
		return fmt.Errorf("%w: campaign es obligatorio", ErrInvalidRequest)
	case r.AudioURL == "":
		return fmt.Errorf("%w: audio_url es obligatorio", ErrInvalidRequest)
	case len(r.Numbers) == 0:
		return fmt.Errorf("%w: numbers no puede estar vacío", ErrInvalidRequest)
	}
	return nil
}

// AudioName is the audio file base name without extension.
func AudioName(audioURL string) string {
	base := path.Base(audioURL)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Start persists the campaign, registers its total and admits one call per
// number. Failing to persist an individual call is logged and does not stop
// admission.
func (s *Service) Start(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	campaignID, err := s.store.CreateCampaign(ctx, req.Campaign, req.AudioURL)
	if err != nil {
		return Result{}, err
	}

	audio := AudioName(req.AudioURL)
	reqs := make([]dialer.CallRequest, 0, len(req.Numbers))
	for _, number := range req.Numbers {
		callID := s.newID()
		if err := s.store.CreateCall(ctx, campaignID, number, callID); err != nil {
			log.Printf("[Campaign] Error registrando llamada %s (número %s): %v", callID, number, err)
		}
		reqs = append(reqs, dialer.CallRequest{
			CallID:     callID,
			Number:     number,
			CampaignID: campaignID,
			Audio:      audio,
		})
	}

	// total must be known before the first completion can arrive
	s.tracker.Begin(campaignID, len(reqs))

	// rows are persisted; the caller going away must not abandon them
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), admitTimeout)
	defer cancel()
	if err := s.admitter.Admit(actx, reqs...); err != nil {
		s.tracker.Drop(campaignID)
		return Result{}, fmt.Errorf("error encolando campaña %d: %w", campaignID, err)
	}

	log.Printf("[Campaign] Total de números: %d (campaña %d)", len(reqs), campaignID)
	return Result{
		Message:    fmt.Sprintf("Campaña %q iniciada con %d números.", req.Campaign, len(reqs)),
		CampaignID: campaignID,
		Queued:     len(reqs),
	}, nil
}
