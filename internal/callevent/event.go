// Package callevent canonicalizes call-end signals written back by the
// telephony engine and drains them through a single ingestion worker.
package callevent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingCallID is reported for a terminal event that names no call.
var ErrMissingCallID = errors.New("callevent: terminal event without call_id")

// ErrCallNotDialed is reported for a terminal event naming a call that is
// still waiting in the admission queue.
var ErrCallNotDialed = errors.New("callevent: terminal event for a call not yet dialed")

// Canonical keys.
const (
	KeyCallID     = "call_id"
	KeyStatus     = "status"
	KeyUniqueID   = "uniqueid"
	KeyUserEvent  = "userevent"
	KeyExten      = "exten"
	KeyCampaignID = "campaign_id"
	KeyNumber     = "destination_number"
	KeyTrunk      = "trunk"
)

// Terminal markers and status values.
const (
	UserEventCallEnd = "CallEnd"
	ExtenHangup      = "h"
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
)

// Event is a canonical call-end signal: lower-cased keys to string values.
type Event map[string]string

// Parse canonicalizes a textual signal made of "key: value" or "key=value"
// lines. A line containing '=' always splits on '='. Lines with neither
// delimiter, or with an empty key, are dropped. Later keys overwrite earlier ones.
func Parse(text string) Event {
	ev := make(Event)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSuffix(line, ",")

		var delim string
		switch {
		case strings.Contains(line, "="):
			delim = "="
		case strings.Contains(line, ":"):
			delim = ":"
		default:
			continue
		}

		k, v, _ := strings.Cut(line, delim)
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		ev[key] = unquote(strings.TrimSpace(v))
	}
	return ev
}

func unquote(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v[1 : len(v)-1]
	}
	return v
}

// FromFields builds an event from an already structured signal, such as
// AMI headers. Keys are lower-cased and both sides trimmed.
func FromFields(fields map[string]string) Event {
	ev := make(Event, len(fields))
	for k, v := range fields {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		ev[key] = strings.TrimSpace(v)
	}
	return ev
}

// FromValues is FromFields for decoded JSON objects.
func FromValues(values map[string]any) Event {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if v == nil {
			continue
		}
		fields[k] = fmt.Sprint(v)
	}
	return FromFields(fields)
}

// Terminal builds the CallEnd event the engine would have written for callID.
func Terminal(callID string, campaignID int64, status string) Event {
	return Event{
		KeyCallID:     callID,
		KeyStatus:     status,
		KeyUserEvent:  UserEventCallEnd,
		KeyExten:      ExtenHangup,
		KeyCampaignID: strconv.FormatInt(campaignID, 10),
	}
}

func (e Event) CallID() string    { return e[KeyCallID] }
func (e Event) Status() string    { return e[KeyStatus] }
func (e Event) UniqueID() string  { return e[KeyUniqueID] }
func (e Event) UserEvent() string { return e[KeyUserEvent] }
func (e Event) Exten() string     { return e[KeyExten] }

// CampaignID returns the campaign echoed in the signal, if it parses.
func (e Event) CampaignID() (int64, bool) {
	raw, ok := e[KeyCampaignID]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsTerminal reports whether the event marks the hangup of a dialed call.
// Matching is exact and case-sensitive.
func (e Event) IsTerminal() bool {
	return e.UserEvent() == UserEventCallEnd && e.Exten() == ExtenHangup
}
