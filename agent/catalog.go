package agent

import (
	"github.com/google/generative-ai-go/genai"
)

// Tool names. notify_principal is the critical tool: its failure aborts the
// orchestration loop.
const (
	ToolCheckAvailability   = "check_availability"
	ToolSendEmail           = "send_email"
	ToolNotifyPrincipal     = "notify_principal"
	ToolCreateBooking       = "create_booking"
	ToolCancelBooking       = "cancel_booking"
	ToolUpdateRequest       = "update_request"
	ToolLookupContact       = "lookup_contact"
	ToolFetchThread         = "fetch_thread"
	ToolLinkThread          = "link_thread"
	ToolResolvePendingEmail = "resolve_pending_email"
	ToolClearConfirmation   = "clear_confirmation"
)

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func integer(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger, Description: desc}
}

func boolean(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: desc}
}

func strArray(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: desc, Items: &genai.Schema{Type: genai.TypeString}}
}

// Catalog is the fixed tool surface offered to the decision service.
func Catalog() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolCheckAvailability,
			Description: "Find open meeting slots on the principal's calendar within a date range.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"start_date":    str("Range start, RFC3339"),
					"end_date":      str("Range end, RFC3339"),
					"duration_mins": integer("Meeting length in minutes; defaults to the principal's preference"),
					"days":          strArray("Restrict to weekday names, lowercase"),
					"hour_start":    integer("Earliest hour of day to consider"),
					"hour_end":      integer("Latest hour of day to consider"),
				},
				Required: []string{"start_date", "end_date"},
			},
		},
		{
			Name:        ToolSendEmail,
			Description: "Queue an outbound email to meeting counterparties. Replies reuse the original thread.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"to":                  strArray("Recipient email addresses"),
					"cc":                  strArray("Cc email addresses"),
					"subject":             str("Email subject"),
					"body":                str("Plain-text email body"),
					"reply_to_message_id": integer("Stored message id to reply to; keeps threading intact"),
					"immediate":           boolean("Send now instead of with a humanized delay"),
				},
				Required: []string{"to", "subject", "body"},
			},
		},
		{
			Name:        ToolNotifyPrincipal,
			Description: "Send the principal a message over their confirmation channel, optionally expecting a typed answer.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"body":             str("Message body"),
					"expects_response": str("Expected answer kind: slot_choice, approval, email_approval, or freeform"),
					"message_id":       integer("Pending message id this decision concerns"),
					"supersedes":       integer("Open confirmation id this message replaces; the reference number carries over"),
				},
				Required: []string{"body"},
			},
		},
		{
			Name:        ToolCreateBooking,
			Description: "Create the calendar event and mark the scheduling request confirmed.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":      str("Event title"),
					"start":      str("Event start, RFC3339"),
					"end":        str("Event end, RFC3339"),
					"attendees":  strArray("Attendee email addresses"),
					"location":   str("Physical location"),
					"video_call": boolean("Attach a video conference link"),
				},
				Required: []string{"title", "start", "end", "attendees"},
			},
		},
		{
			Name:        ToolCancelBooking,
			Description: "Delete a calendar event and mark the scheduling request cancelled.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"event_ref": str("Calendar event reference"),
				},
				Required: []string{"event_ref"},
			},
		},
		{
			Name:        ToolUpdateRequest,
			Description: "Partially update the scheduling request's mutable fields.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":         str("Meeting title"),
					"duration_mins": integer("Meeting length in minutes"),
					"status":        str("Non-terminal status: pending, proposing, or awaiting_confirmation"),
					"location":      str("Meeting location"),
					"reminder_at":   str("Reminder time, RFC3339"),
					"expires_at":    str("Hard expiry time, RFC3339"),
					"proposed_times": {
						Type:        genai.TypeArray,
						Description: "Offered slots with negotiation round",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"start": str("Slot start, RFC3339"),
								"end":   str("Slot end, RFC3339"),
								"round": integer("Negotiation round"),
							},
							Required: []string{"start", "end"},
						},
					},
					"attendees": {
						Type:        genai.TypeArray,
						Description: "Meeting attendees",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"email": str("Attendee email"),
								"name":  str("Attendee name"),
							},
							Required: []string{"email"},
						},
					},
				},
			},
		},
		{
			Name:        ToolLookupContact,
			Description: "Look up a contact in the principal's address book.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"email": str("Contact email address"),
				},
				Required: []string{"email"},
			},
		},
		{
			Name:        ToolFetchThread,
			Description: "Fetch the ordered message history for an email thread or a scheduling request.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"thread_id":  str("Provider thread id"),
					"request_id": integer("Scheduling request id"),
				},
			},
		},
		{
			Name:        ToolLinkThread,
			Description: "Attach an email thread's messages to an existing scheduling request.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"thread_id":  str("Provider thread id"),
					"request_id": integer("Scheduling request id"),
				},
				Required: []string{"thread_id", "request_id"},
			},
		},
		{
			Name:        ToolResolvePendingEmail,
			Description: "Approve, reject, or edit an outbound email awaiting the principal's approval.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"message_id": integer("Pending message id"),
					"action":     str("approve, reject, or edit"),
					"subject":    str("Replacement subject (edit only)"),
					"body":       str("Replacement body (edit only)"),
				},
				Required: []string{"message_id", "action"},
			},
		},
		{
			Name:        ToolClearConfirmation,
			Description: "Mark an open confirmation as answered, freeing its reference number.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"confirmation_id": integer("Confirmation id"),
				},
				Required: []string{"confirmation_id"},
			},
		},
	}
}
