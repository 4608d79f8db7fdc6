package models

import (
	"gorm.io/gorm"
)

// User represents the principal the assistant schedules on behalf of
type User struct {
	gorm.Model
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `gorm:"not null" json:"name"`

	// Contact points for confirmation channels
	PhoneNumber string `json:"phone_number"`
	ChatID      string `json:"chat_id"`

	// Preferred confirmation channel: sms, chat, in_app
	PreferredChannel string `gorm:"default:'in_app'" json:"preferred_channel"`

	// External references
	CalendarRef string `json:"calendar_ref"` // provider calendar id, usually the email

	// Relations
	Preference         *SchedulingPreference `gorm:"foreignKey:UserID" json:"preference,omitempty"`
	SchedulingRequests []SchedulingRequest   `gorm:"foreignKey:UserID" json:"-"`
	Confirmations      []Confirmation        `gorm:"foreignKey:UserID" json:"-"`
}

// SchedulingPreference holds per-principal slot-finding settings. The engine
// reads these; it never writes them.
type SchedulingPreference struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`

	Timezone         string `gorm:"default:'UTC'" json:"timezone"`
	WorkdayStartHour int    `gorm:"default:9" json:"workday_start_hour"`
	WorkdayEndHour   int    `gorm:"default:17" json:"workday_end_hour"`
	WorkingDays      []int  `gorm:"type:jsonb;serializer:json" json:"working_days"` // time.Weekday values

	BufferMinutes         int  `gorm:"default:15" json:"buffer_minutes"`
	LookaheadDays         int  `gorm:"default:14" json:"lookahead_days"`
	DefaultMeetingMinutes int  `gorm:"default:30" json:"default_meeting_minutes"`
	MaxOptions            int  `gorm:"default:5" json:"max_options"`
	MaxSlotsPerDay        int  `gorm:"default:3" json:"max_slots_per_day"`
	ConfirmBeforeSend     bool `gorm:"default:false" json:"confirm_before_send"`
}

// WorkingWeekdays returns the configured working days as a set, defaulting to
// Monday through Friday when none are configured.
func (p *SchedulingPreference) WorkingWeekdays() map[int]bool {
	days := p.WorkingDays
	if len(days) == 0 {
		days = []int{1, 2, 3, 4, 5}
	}
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}

// Contact is the address book entry backing the lookup_contact tool
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Email    string `gorm:"not null;index" json:"email"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	Timezone string `json:"timezone"`
	Notes    string `gorm:"type:text" json:"notes"`

	// Relations
	User User `json:"-"`
}
