package ami

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"autodialer/internal/config"
	"autodialer/internal/dialer"
)

// OriginateParams parámetros para originar una llamada
type OriginateParams struct {
	ActionID  string
	Channel   string // Canal de salida (ej: SIP/trunk/numero)
	Context   string
	Extension string
	Priority  int
	Timeout   int // milisegundos
	Variables map[string]string
	Async     bool
}

// Action construye el texto de la acción Originate
func (p OriginateParams) Action() string {
	var b strings.Builder
	b.WriteString("Action: Originate\r\n")
	if p.ActionID != "" {
		fmt.Fprintf(&b, "ActionID: %s\r\n", p.ActionID)
	}
	fmt.Fprintf(&b, "Channel: %s\r\n", p.Channel)
	fmt.Fprintf(&b, "Context: %s\r\n", p.Context)
	fmt.Fprintf(&b, "Exten: %s\r\n", p.Extension)
	fmt.Fprintf(&b, "Priority: %d\r\n", p.Priority)
	fmt.Fprintf(&b, "Timeout: %d\r\n", p.Timeout)
	if p.Async {
		b.WriteString("Async: true\r\n")
	}

	keys := make([]string, 0, len(p.Variables))
	for k := range p.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "Variable: %s=%s\r\n", k, p.Variables[k])
	}
	b.WriteString("\r\n")
	return b.String()
}

// Originator origina llamadas por AMI en lugar de escribir archivos .call.
// El ActionID es el CALL_ID, así un OriginateResponse fallido se puede
// correlacionar con la llamada.
type Originator struct {
	client *Client
	cfg    config.AsteriskConfig
}

func NewOriginator(client *Client, cfg config.AsteriskConfig) *Originator {
	return &Originator{client: client, cfg: cfg}
}

// Originate implements dialer.Originator.
func (o *Originator) Originate(ctx context.Context, req dialer.CallRequest, slot dialer.Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := OriginateParams{
		ActionID:  req.CallID,
		Channel:   fmt.Sprintf("%s/%s/%s%s", o.cfg.Tech, slot.Trunk, o.cfg.DialPrefix, req.Number),
		Context:   o.cfg.Context,
		Extension: "s",
		Priority:  1,
		Timeout:   o.cfg.WaitTime * 1000,
		Variables: map[string]string{
			"CALL_ID":            req.CallID,
			"CAMPAIGN_ID":        fmt.Sprintf("%d", req.CampaignID),
			"DESTINATION_NUMBER": req.Number,
			"TRUNK":              slot.Trunk,
		},
		Async: true,
	}
	if req.Audio != "" {
		params.Variables["AUDIO"] = req.Audio
	}

	if err := o.client.SendAction(params.Action()); err != nil {
		return fmt.Errorf("originate CALL_ID %s: %w", req.CallID, err)
	}
	log.Printf("[AMI] Originando llamada a %s (CALL_ID %s)", params.Channel, req.CallID)
	return nil
}
