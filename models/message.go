package models

import (
	"time"

	"gorm.io/gorm"
)

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Send states. A message moves draft → pending_approval | scheduled →
// claimed → sent; transitions into claimed and sent are conditional updates
// so concurrent dispatchers cannot double-send. A background message whose
// transmission keeps failing is parked in failed.
const (
	SendStateDraft           = "draft"
	SendStatePendingApproval = "pending_approval"
	SendStateScheduled       = "scheduled"
	SendStateClaimed         = "claimed"
	SendStateSent            = "sent"
	SendStateFailed          = "failed"
)

// Message is one email unit, inbound or outbound, optionally tied to a
// scheduling request. Outbound messages are immutable once sent; a
// pending-approval message is hard-deleted on rejection.
type Message struct {
	gorm.Model
	UserID    uint  `gorm:"not null;index" json:"user_id"`
	RequestID *uint `gorm:"index" json:"request_id"`

	Direction string `gorm:"not null" json:"direction"` // inbound, outbound

	// Provider threading identifiers
	ProviderMessageID string `gorm:"index" json:"provider_message_id"`
	ProviderThreadID  string `gorm:"index" json:"provider_thread_id"`
	InReplyTo         string `json:"in_reply_to"`
	References        string `json:"references"`

	// Envelope
	FromEmail string   `json:"from_email"`
	ToEmails  []string `gorm:"type:jsonb;serializer:json" json:"to_emails"`
	CcEmails  []string `gorm:"type:jsonb;serializer:json" json:"cc_emails"`
	Subject   string   `json:"subject"`
	Body      string   `gorm:"type:text" json:"body"`

	// Send state
	SendState       string     `gorm:"default:'draft';index" json:"send_state"` // draft, pending_approval, scheduled, claimed, sent, failed
	SendAttempts    int        `json:"send_attempts"`
	ScheduledSendAt *time.Time `json:"scheduled_send_at"`
	SentAt          *time.Time `json:"sent_at"`
	ReceivedAt      *time.Time `json:"received_at"`

	// Set once the orchestration loop has consumed an inbound message. An
	// unset value on a stored row means the run failed and the next mailbox
	// poll retries it.
	ProcessedAt *time.Time `json:"processed_at"`

	// Relations
	User    User               `json:"-"`
	Request *SchedulingRequest `gorm:"foreignKey:RequestID" json:"-"`
}

// IsSendable reports whether the message can still be claimed for transmission.
func (m *Message) IsSendable() bool {
	return m.Direction == DirectionOutbound && m.SendState == SendStateScheduled
}
