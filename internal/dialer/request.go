package dialer

import (
	"fmt"
	"time"
)

// CallRequest is a pending intent to place one outbound call.
type CallRequest struct {
	CallID     string
	Number     string
	CampaignID int64
	Audio      string
	AdmittedAt time.Time
}

// Slot addresses one channel of one trunk. Channels are numbered from 1.
type Slot struct {
	Trunk   string
	Channel int
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/channel_%d", s.Trunk, s.Channel)
}
