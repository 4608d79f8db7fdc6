package agent

import (
	"bytes"
	"encoding/json"
	"fmt"

	"meetsync/utils"
)

// Tool inputs arrive as untyped JSON from the decision service. Each tool
// declares an explicit schema struct; unknown fields and failed validation
// are rejected as recoverable tool errors before any side effect runs.

type checkAvailabilityInput struct {
	StartDate    string   `json:"start_date" validate:"required"`
	EndDate      string   `json:"end_date" validate:"required"`
	DurationMins int      `json:"duration_mins,omitempty" validate:"omitempty,min=5,max=480"`
	Days         []string `json:"days,omitempty" validate:"omitempty,dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	HourStart    int      `json:"hour_start,omitempty" validate:"omitempty,min=0,max=23"`
	HourEnd      int      `json:"hour_end,omitempty" validate:"omitempty,min=1,max=24"`
}

type sendEmailInput struct {
	To               []string `json:"to" validate:"required,min=1,dive,email"`
	Cc               []string `json:"cc,omitempty" validate:"omitempty,dive,email"`
	Subject          string   `json:"subject" validate:"required"`
	Body             string   `json:"body" validate:"required"`
	ReplyToMessageID uint     `json:"reply_to_message_id,omitempty"`
	Immediate        bool     `json:"immediate,omitempty"`
}

type notifyPrincipalInput struct {
	Body            string `json:"body" validate:"required"`
	ExpectsResponse string `json:"expects_response,omitempty" validate:"omitempty,oneof=slot_choice approval email_approval freeform"`
	MessageID       uint   `json:"message_id,omitempty"`
	Supersedes      uint   `json:"supersedes,omitempty"`
}

type createBookingInput struct {
	Title     string   `json:"title" validate:"required"`
	Start     string   `json:"start" validate:"required"`
	End       string   `json:"end" validate:"required"`
	Attendees []string `json:"attendees" validate:"required,min=1,dive,email"`
	Location  string   `json:"location,omitempty"`
	VideoCall bool     `json:"video_call,omitempty"`
}

type cancelBookingInput struct {
	EventRef string `json:"event_ref" validate:"required"`
}

type updateRequestInput struct {
	Title         string `json:"title,omitempty"`
	DurationMins  int    `json:"duration_mins,omitempty" validate:"omitempty,min=5,max=480"`
	Status        string `json:"status,omitempty" validate:"omitempty,oneof=pending proposing awaiting_confirmation"`
	Location      string `json:"location,omitempty"`
	ReminderAt    string `json:"reminder_at,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	ProposedTimes []struct {
		Start string `json:"start" validate:"required"`
		End   string `json:"end" validate:"required"`
		Round int    `json:"round,omitempty"`
	} `json:"proposed_times,omitempty" validate:"omitempty,dive"`
	Attendees []struct {
		Email string `json:"email" validate:"required,email"`
		Name  string `json:"name,omitempty"`
	} `json:"attendees,omitempty" validate:"omitempty,dive"`
}

type lookupContactInput struct {
	Email string `json:"email" validate:"required,email"`
}

type fetchThreadInput struct {
	ThreadID  string `json:"thread_id,omitempty"`
	RequestID uint   `json:"request_id,omitempty"`
}

type linkThreadInput struct {
	ThreadID  string `json:"thread_id" validate:"required"`
	RequestID uint   `json:"request_id" validate:"required"`
}

type resolvePendingEmailInput struct {
	MessageID uint   `json:"message_id" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=approve reject edit"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`
}

type clearConfirmationInput struct {
	ConfirmationID uint `json:"confirmation_id" validate:"required"`
}

// decodeArgs maps untyped tool args onto a schema struct, rejecting unknown
// fields, then validates the struct tags.
func decodeArgs(args map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("malformed tool arguments: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed tool arguments: %w", err)
	}

	return utils.ValidateStruct(dst)
}
