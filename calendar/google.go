package calendar

import (
	"context"
	"fmt"
	"time"

	"meetsync/availability"

	"github.com/google/uuid"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleProvider implements Provider on top of the Google Calendar API.
type GoogleProvider struct {
	svc *gcal.Service
}

func NewGoogleProvider(ctx context.Context, opts ...option.ClientOption) (*GoogleProvider, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}
	return &GoogleProvider{svc: svc}, nil
}

func (g *GoogleProvider) FreeBusy(ctx context.Context, calendarRef string, from, to time.Time) ([]availability.Interval, error) {
	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarRef}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	cal, ok := resp.Calendars[calendarRef]
	if !ok {
		return nil, fmt.Errorf("calendar %s missing from freebusy response", calendarRef)
	}

	intervals := make([]availability.Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid busy start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("invalid busy end %q: %w", period.End, err)
		}
		intervals = append(intervals, availability.Interval{Start: start, End: end})
	}
	return intervals, nil
}

func (g *GoogleProvider) CreateEvent(ctx context.Context, calendarRef string, event Event) (string, error) {
	ev := &gcal.Event{
		Summary:  event.Title,
		Location: event.Location,
		Start:    &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:      &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}
	for _, email := range event.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}
	if event.VideoLink != "" {
		ev.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{RequestId: uuid.NewString()},
		}
	}

	call := g.svc.Events.Insert(calendarRef, ev).Context(ctx).SendUpdates("all")
	if event.VideoLink != "" {
		call = call.ConferenceDataVersion(1)
	}
	created, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("event insert failed: %w", err)
	}
	return created.Id, nil
}

func (g *GoogleProvider) CancelEvent(ctx context.Context, calendarRef, eventRef string) error {
	if err := g.svc.Events.Delete(calendarRef, eventRef).Context(ctx).SendUpdates("all").Do(); err != nil {
		return fmt.Errorf("event delete failed: %w", err)
	}
	return nil
}

func (g *GoogleProvider) GetEvent(ctx context.Context, calendarRef, eventRef string) (*Event, error) {
	ev, err := g.svc.Events.Get(calendarRef, eventRef).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("event get failed: %w", err)
	}

	event := &Event{
		Ref:      ev.Id,
		Title:    ev.Summary,
		Location: ev.Location,
	}
	if ev.Start != nil && ev.Start.DateTime != "" {
		if start, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			event.Start = start
		}
	}
	if ev.End != nil && ev.End.DateTime != "" {
		if end, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			event.End = end
		}
	}
	for _, a := range ev.Attendees {
		event.Attendees = append(event.Attendees, a.Email)
	}
	if ev.HangoutLink != "" {
		event.VideoLink = ev.HangoutLink
	}
	return event, nil
}
