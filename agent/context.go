package agent

import (
	"fmt"
	"strings"
	"time"

	"meetsync/models"
)

// Trigger kinds that start an orchestration run.
const (
	TriggerInboundEmail   = "inbound_email"
	TriggerPrincipalReply = "principal_reply"
	TriggerReminder       = "reminder"
)

// Invocation is the immutable per-run context snapshot handed to every tool
// call. Tools read it instead of any ambient "current request" state.
type Invocation struct {
	User    *models.User
	Prefs   *models.SchedulingPreference
	Request *models.SchedulingRequest

	Trigger              string
	InboundText          string
	InboundMessage       *models.Message
	PendingConfirmations []models.Confirmation
	ResolvedConfirmation *models.Confirmation
}

// Prompt renders the context snapshot as the opening user turn of the
// decision conversation.
func (inv *Invocation) Prompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the scheduling assistant for %s <%s>.\n", inv.User.Name, inv.User.Email)
	fmt.Fprintf(&b, "Trigger: %s\n", inv.Trigger)
	fmt.Fprintf(&b, "Current time: %s\n", time.Now().Format(time.RFC3339))

	if inv.Request != nil {
		fmt.Fprintf(&b, "\nScheduling request #%d:\n", inv.Request.ID)
		fmt.Fprintf(&b, "  Title: %s\n  Status: %s\n  Duration: %d minutes\n",
			inv.Request.Title, inv.Request.Status, inv.Request.DurationMins)
		for _, a := range inv.Request.Attendees {
			fmt.Fprintf(&b, "  Attendee: %s <%s>\n", a.Name, a.Email)
		}
		for _, pt := range inv.Request.ProposedTimes {
			fmt.Fprintf(&b, "  Proposed (round %d): %s - %s\n",
				pt.Round, pt.Start.Format(time.RFC3339), pt.End.Format(time.RFC3339))
		}
	}

	if len(inv.PendingConfirmations) > 0 {
		b.WriteString("\nConfirmations awaiting the principal's decision:\n")
		for _, c := range inv.PendingConfirmations {
			ref := "-"
			if c.ReferenceNumber != nil {
				ref = fmt.Sprintf("#%d", *c.ReferenceNumber)
			}
			kind := ""
			if c.AwaitingResponseType != nil {
				kind = *c.AwaitingResponseType
			}
			fmt.Fprintf(&b, "  %s (%s): %s\n", ref, kind, c.Body)
		}
	}

	if inv.ResolvedConfirmation != nil {
		ref := "-"
		if inv.ResolvedConfirmation.ReferenceNumber != nil {
			ref = fmt.Sprintf("#%d", *inv.ResolvedConfirmation.ReferenceNumber)
		}
		fmt.Fprintf(&b, "\nThe principal replied to confirmation %s.\n", ref)
	}

	if inv.InboundText != "" {
		fmt.Fprintf(&b, "\nInbound message:\n%s\n", inv.InboundText)
	}

	b.WriteString("\nDecide the next scheduling action using the available tools, then finish.")
	return b.String()
}
