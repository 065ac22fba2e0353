package dialer

import (
	"log"
	"time"

	"autodialer/internal/config"
)

// occupant is the call currently holding a channel.
type occupant struct {
	req        CallRequest
	assignedAt time.Time
}

type trunk struct {
	id       string
	channels []*occupant // nil = free
}

// TrunkPool owns channel occupancy for a static set of trunks and the reverse
// index from an in-flight call id to its trunk. It is not safe for concurrent
// use; the Scheduler loop is its only caller.
type TrunkPool struct {
	trunks []*trunk
	byID   map[string]*trunk
	index  map[string]string // callID -> trunk id
	now    func() time.Time
}

// NewTrunkPool builds a pool whose scan order follows the configuration order.
func NewTrunkPool(trunks []config.TrunkConfig) *TrunkPool {
	p := &TrunkPool{
		byID:  make(map[string]*trunk, len(trunks)),
		index: make(map[string]string),
		now:   time.Now,
	}
	for _, tc := range trunks {
		t := &trunk{id: tc.ID, channels: make([]*occupant, tc.Channels)}
		p.trunks = append(p.trunks, t)
		p.byID[tc.ID] = t
	}
	return p
}

// Allocate assigns req to the first free channel, scanning trunks and then
// channels in their fixed order. It returns false, with no side effect, when
// every channel is occupied.
func (p *TrunkPool) Allocate(req CallRequest) (Slot, bool) {
	if _, busy := p.index[req.CallID]; busy {
		log.Printf("[TrunkPool] WARNING: CALL_ID %s ya ocupa un canal", req.CallID)
		return Slot{}, false
	}
	for _, t := range p.trunks {
		for i, occ := range t.channels {
			if occ != nil {
				continue
			}
			t.channels[i] = &occupant{req: req, assignedAt: p.now()}
			p.index[req.CallID] = t.id
			return Slot{Trunk: t.id, Channel: i + 1}, true
		}
	}
	return Slot{}, false
}

// Release frees the channel held by callID. Unknown or already released ids
// are logged and ignored.
func (p *TrunkPool) Release(callID string) (CallRequest, Slot, bool) {
	trunkID, ok := p.index[callID]
	if !ok {
		log.Printf("[TrunkPool] WARNING: No se encontró troncal para CALL_ID %s", callID)
		return CallRequest{}, Slot{}, false
	}
	delete(p.index, callID)

	t := p.byID[trunkID]
	for i, occ := range t.channels {
		if occ != nil && occ.req.CallID == callID {
			t.channels[i] = nil
			log.Printf("[TrunkPool] Troncal %s canal %d liberada para CALL_ID %s", trunkID, i+1, callID)
			return occ.req, Slot{Trunk: trunkID, Channel: i + 1}, true
		}
	}
	// index pointed at a trunk that no longer holds the call
	log.Printf("[TrunkPool] WARNING: índice inconsistente para CALL_ID %s en troncal %s", callID, trunkID)
	return CallRequest{}, Slot{}, false
}

// Lookup returns the slot currently held by callID.
func (p *TrunkPool) Lookup(callID string) (Slot, bool) {
	trunkID, ok := p.index[callID]
	if !ok {
		return Slot{}, false
	}
	for i, occ := range p.byID[trunkID].channels {
		if occ != nil && occ.req.CallID == callID {
			return Slot{Trunk: trunkID, Channel: i + 1}, true
		}
	}
	return Slot{}, false
}

// Capacity is trunks x channels.
func (p *TrunkPool) Capacity() int {
	total := 0
	for _, t := range p.trunks {
		total += len(t.channels)
	}
	return total
}

// Free counts unoccupied channels.
func (p *TrunkPool) Free() int {
	return p.Capacity() - len(p.index)
}

// InFlight counts occupied channels.
func (p *TrunkPool) InFlight() int {
	return len(p.index)
}

// AssignedBefore returns the calls that have held their channel since before cutoff.
func (p *TrunkPool) AssignedBefore(cutoff time.Time) []CallRequest {
	var stale []CallRequest
	for _, t := range p.trunks {
		for _, occ := range t.channels {
			if occ != nil && occ.assignedAt.Before(cutoff) {
				stale = append(stale, occ.req)
			}
		}
	}
	return stale
}

// ChannelState describes one channel in a snapshot.
type ChannelState struct {
	Channel    int       `json:"channel"`
	CallID     string    `json:"call_id,omitempty"`
	Number     string    `json:"number,omitempty"`
	CampaignID int64     `json:"campaign_id,omitempty"`
	Since      time.Time `json:"since,omitempty"`
}

// TrunkState describes one trunk in a snapshot.
type TrunkState struct {
	ID       string         `json:"id"`
	Free     int            `json:"free"`
	Channels []ChannelState `json:"channels"`
}

// Trunks returns a copy of the occupancy table in pool order.
func (p *TrunkPool) Trunks() []TrunkState {
	out := make([]TrunkState, 0, len(p.trunks))
	for _, t := range p.trunks {
		ts := TrunkState{ID: t.id, Channels: make([]ChannelState, len(t.channels))}
		for i, occ := range t.channels {
			cs := ChannelState{Channel: i + 1}
			if occ == nil {
				ts.Free++
			} else {
				cs.CallID = occ.req.CallID
				cs.Number = occ.req.Number
				cs.CampaignID = occ.req.CampaignID
				cs.Since = occ.assignedAt
			}
			ts.Channels[i] = cs
		}
		out = append(out, ts)
	}
	return out
}
