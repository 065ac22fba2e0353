package asterisk

import (
	"fmt"

	"autodialer/internal/config"
	"autodialer/internal/dialer"
)

// Template holds the dial parameters written into every .call file.
type Template struct {
	Tech       string
	DialPrefix string
	Context    string
	WaitTime   int
}

// TemplateFromConfig copies the dial parameters out of the Asterisk config.
func TemplateFromConfig(cfg config.AsteriskConfig) Template {
	return Template{
		Tech:       cfg.Tech,
		DialPrefix: cfg.DialPrefix,
		Context:    cfg.Context,
		WaitTime:   cfg.WaitTime,
	}
}

// FileName is the spool file name for number dialed through trunk.
func FileName(number, trunk string) string {
	return fmt.Sprintf("llamada_%s_%s.call", number, trunk)
}

// Render produces the .call body. The layout, including the leading blank
// line and the trailing commas, is read back verbatim by the telephony
// engine and by the signal parser.
func (t Template) Render(req dialer.CallRequest, slot dialer.Slot) string {
	return fmt.Sprintf(`
Channel: %s/%s/%s%s
status: SUCCESS,
WaitTime: %d
Context: %s
Extension: s
call_id=%s
exten: "h"
uniqueid:%s.%s
Priority: 1
userevent: "CallEnd",
DESTINATION_NUMBER:%s
CAMPAIGN_ID:%d
TRUNK:%s
FailureRetryTime: 0
FailureContext: %s
`,
		t.Tech, slot.Trunk, t.DialPrefix, req.Number,
		t.WaitTime,
		t.Context,
		req.CallID,
		req.Number, req.Number,
		req.Number,
		req.CampaignID,
		slot.Trunk,
		t.Context,
	)
}
