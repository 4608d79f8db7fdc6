package models

import (
	"time"

	"gorm.io/gorm"
)

// SchedulingRequest statuses
const (
	RequestStatusPending              = "pending"
	RequestStatusProposing            = "proposing"
	RequestStatusAwaitingConfirmation = "awaiting_confirmation"
	RequestStatusConfirmed            = "confirmed"
	RequestStatusExpired              = "expired"
	RequestStatusCancelled            = "cancelled"
	RequestStatusError                = "error"
)

// Attendee is a meeting participant outside the principal's organization
type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ProposedTime is one offered slot, tagged with the negotiation round it was
// offered in so re-proposals can be told apart from the original batch.
type ProposedTime struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Round int       `json:"round"`
}

// SchedulingRequest represents one end-to-end negotiation to book a meeting
type SchedulingRequest struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Meeting details
	Title          string         `gorm:"not null" json:"title"`
	DurationMins   int            `gorm:"default:30" json:"duration_mins"`
	Attendees      []Attendee     `gorm:"type:jsonb;serializer:json" json:"attendees"`
	ProposedTimes  []ProposedTime `gorm:"type:jsonb;serializer:json" json:"proposed_times"`
	Location       string         `json:"location"`
	VideoCall      bool           `gorm:"default:false" json:"video_call"`

	// Lifecycle
	Status         string     `gorm:"default:'pending';index" json:"status"` // pending, proposing, awaiting_confirmation, confirmed, expired, cancelled, error
	ConfirmedStart *time.Time `json:"confirmed_start"`
	ConfirmedEnd   *time.Time `json:"confirmed_end"`
	CalendarEventRef *string  `json:"calendar_event_ref"`
	ErrorMessage   *string    `json:"error_message"`

	// Time-driven jobs
	ReminderAt   *time.Time `json:"reminder_at"`
	ReminderSent bool       `gorm:"default:false" json:"reminder_sent"`
	ExpiresAt    *time.Time `json:"expires_at"`

	// Relations
	User          User           `json:"-"`
	Messages      []Message      `gorm:"foreignKey:RequestID" json:"messages,omitempty"`
	Confirmations []Confirmation `gorm:"foreignKey:RequestID" json:"confirmations,omitempty"`
}

// TerminalStatuses are the statuses after which the request accepts no
// further status writes, except error→cancelled via an explicit cancel.
var TerminalStatuses = []string{
	RequestStatusConfirmed,
	RequestStatusExpired,
	RequestStatusCancelled,
	RequestStatusError,
}

// IsTerminal reports whether the request has reached a terminal status.
func (r *SchedulingRequest) IsTerminal() bool {
	return IsTerminalStatus(r.Status)
}

func IsTerminalStatus(status string) bool {
	switch status {
	case RequestStatusConfirmed, RequestStatusExpired, RequestStatusCancelled, RequestStatusError:
		return true
	}
	return false
}

// LatestRound returns the highest negotiation round among proposed times.
func (r *SchedulingRequest) LatestRound() int {
	round := 0
	for _, pt := range r.ProposedTimes {
		if pt.Round > round {
			round = pt.Round
		}
	}
	return round
}
