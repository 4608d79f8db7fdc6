package calendar

import (
	"context"
	"time"

	"meetsync/availability"
)

// Event is a booking on the principal's calendar.
type Event struct {
	Ref       string    `json:"ref"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Attendees []string  `json:"attendees"`
	Location  string    `json:"location,omitempty"`
	VideoLink string    `json:"video_link,omitempty"`
}

// Provider is the narrow calendar contract the engine consumes. Concrete
// clients authenticate on their own; the engine only reads busy data and
// manages events it created.
type Provider interface {
	FreeBusy(ctx context.Context, calendarRef string, from, to time.Time) ([]availability.Interval, error)
	CreateEvent(ctx context.Context, calendarRef string, event Event) (string, error)
	CancelEvent(ctx context.Context, calendarRef, eventRef string) error
	GetEvent(ctx context.Context, calendarRef, eventRef string) (*Event, error)
}
