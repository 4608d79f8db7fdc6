package models

import (
	"time"

	"gorm.io/gorm"
)

// Confirmation channels
const (
	ChannelSMS   = "sms"
	ChannelChat  = "chat"
	ChannelInApp = "in_app"
)

// Awaiting-response kinds. Nil means the confirmation expects no reply.
const (
	AwaitingSlotChoice    = "slot_choice"
	AwaitingApproval      = "approval"
	AwaitingEmailApproval = "email_approval"
	AwaitingFreeform      = "freeform"
)

// Confirmation is an outbound request for a principal decision, optionally
// tied to a scheduling request and to a pending outbound message (when the
// decision concerns approving that message).
type Confirmation struct {
	gorm.Model
	UserID    uint  `gorm:"not null;index" json:"user_id"`
	RequestID *uint `gorm:"index" json:"request_id"`
	MessageID *uint `gorm:"index" json:"message_id"`

	Channel   string `gorm:"not null" json:"channel"` // sms, chat, in_app
	Direction string `gorm:"not null" json:"direction"`
	Body      string `gorm:"type:text" json:"body"`

	// What kind of answer is expected; cleared to nil once answered.
	AwaitingResponseType *string `gorm:"index" json:"awaiting_response_type"`

	// Stable disambiguation number, assigned only when a response is awaited.
	// Unique among the principal's open confirmations whose request is not
	// terminal; freed numbers are reused.
	ReferenceNumber *int `json:"reference_number"`

	ChannelMessageID string     `json:"channel_message_id"`
	SentAt           *time.Time `json:"sent_at"`
	ReceivedAt       *time.Time `json:"received_at"`

	// Relations
	User    User               `json:"-"`
	Request *SchedulingRequest `gorm:"foreignKey:RequestID" json:"-"`
	Message *Message           `gorm:"foreignKey:MessageID" json:"-"`
}

// IsOpen reports whether the confirmation still awaits a principal decision.
func (c *Confirmation) IsOpen() bool {
	return c.AwaitingResponseType != nil
}
