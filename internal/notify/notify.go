// Package notify carries call lifecycle notifications to observers such as the
// websocket dashboard and the Kafka event stream.
package notify

import (
	"context"
	"time"
)

// Type identifies a lifecycle notification.
type Type string

const (
	CallAssigned          Type = "call_assigned"
	CallProvisioningError Type = "call_failed_provisioning"
	CallEnded             Type = "call_end"
	CampaignEnded         Type = "campaign_end"
)

// Notification is the payload published for every lifecycle transition.
type Notification struct {
	Type       Type      `json:"type"`
	CallID     string    `json:"call_id,omitempty"`
	CampaignID int64     `json:"campaign_id,omitempty"`
	Number     string    `json:"number,omitempty"`
	Trunk      string    `json:"trunk,omitempty"`
	Channel    int       `json:"channel,omitempty"`
	Status     string    `json:"status,omitempty"`
	Completed  int       `json:"completed,omitempty"`
	Total      int       `json:"total,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher delivers notifications. Implementations must not block the caller
// for longer than a buffered hand-off.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Publish(context.Context, Notification) error { return nil }
