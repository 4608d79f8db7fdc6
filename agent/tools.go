package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"meetsync/availability"
	"meetsync/calendar"
	"meetsync/dispatch"
	"meetsync/models"
	"meetsync/notify"
	"meetsync/utils"

	"gorm.io/gorm"
)

// Toolbox executes catalog tools against the engine's components. Every
// handler returns the uniform {success, data|error} envelope; a failed
// precondition is a recoverable tool error, not a raised one.
type Toolbox struct {
	DB         *gorm.DB
	Calendar   calendar.Provider
	Dispatcher *dispatch.Scheduler
	Ledger     *notify.Ledger
	Logger     *log.Logger
}

func NewToolbox(db *gorm.DB, cal calendar.Provider, dispatcher *dispatch.Scheduler, ledger *notify.Ledger, logger *log.Logger) *Toolbox {
	return &Toolbox{
		DB:         db,
		Calendar:   cal,
		Dispatcher: dispatcher,
		Ledger:     ledger,
		Logger:     logger,
	}
}

func ok(data interface{}) map[string]interface{} {
	return map[string]interface{}{"success": true, "data": data}
}

func fail(err error) map[string]interface{} {
	return map[string]interface{}{"success": false, "error": err.Error()}
}

// Execute runs one tool call and returns its envelope. Only unknown tools
// and handler panics escape as errors; handler failures are enveloped.
func (t *Toolbox) Execute(ctx context.Context, inv *Invocation, call ToolCall) map[string]interface{} {
	var (
		data interface{}
		err  error
	)

	switch call.Name {
	case ToolCheckAvailability:
		data, err = t.checkAvailability(ctx, inv, call.Args)
	case ToolSendEmail:
		data, err = t.sendEmail(inv, call.Args)
	case ToolNotifyPrincipal:
		data, err = t.notifyPrincipal(inv, call.Args)
	case ToolCreateBooking:
		data, err = t.createBooking(ctx, inv, call.Args)
	case ToolCancelBooking:
		data, err = t.cancelBooking(ctx, inv, call.Args)
	case ToolUpdateRequest:
		data, err = t.updateRequest(inv, call.Args)
	case ToolLookupContact:
		data, err = t.lookupContact(inv, call.Args)
	case ToolFetchThread:
		data, err = t.fetchThread(inv, call.Args)
	case ToolLinkThread:
		data, err = t.linkThread(inv, call.Args)
	case ToolResolvePendingEmail:
		data, err = t.resolvePendingEmail(inv, call.Args)
	case ToolClearConfirmation:
		data, err = t.clearConfirmation(call.Args)
	default:
		err = fmt.Errorf("unknown tool %q", call.Name)
	}

	if err != nil {
		utils.LogEvent("tool_failed", map[string]interface{}{
			"tool":  call.Name,
			"error": err.Error(),
		})
		return fail(err)
	}
	return ok(data)
}

func (t *Toolbox) checkAvailability(ctx context.Context, inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input checkAvailabilityInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	from, err := time.Parse(time.RFC3339, input.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date: %w", err)
	}
	to, err := time.Parse(time.RFC3339, input.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end_date: %w", err)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("end_date must be after start_date")
	}

	busy, err := t.Calendar.FreeBusy(ctx, inv.User.CalendarRef, from, to)
	if err != nil {
		return nil, fmt.Errorf("calendar lookup failed: %w", err)
	}

	length := time.Duration(input.DurationMins) * time.Minute
	days, err := parseWeekdays(input.Days)
	if err != nil {
		return nil, err
	}
	hours := availability.HourFilter{StartHour: input.HourStart, EndHour: input.HourEnd}

	slots := availability.FindSlots(busy, inv.Prefs, from, to, length, days, hours, time.Now())

	loc, locErr := time.LoadLocation(inv.Prefs.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	return map[string]interface{}{
		"slots":     slots,
		"formatted": availability.FormatSlots(slots, loc),
	}, nil
}

func (t *Toolbox) sendEmail(inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input sendEmailInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	msg := &models.Message{
		UserID:   inv.User.ID,
		ToEmails: input.To,
		CcEmails: input.Cc,
		Subject:  input.Subject,
		Body:     input.Body,
	}
	if inv.Request != nil {
		msg.RequestID = &inv.Request.ID
	}

	if input.ReplyToMessageID != 0 {
		var parent models.Message
		if err := t.DB.Where("id = ? AND user_id = ?", input.ReplyToMessageID, inv.User.ID).
			First(&parent).Error; err != nil {
			return nil, fmt.Errorf("reply target message %d not found", input.ReplyToMessageID)
		}
		msg.InReplyTo = parent.ProviderMessageID
		msg.References = joinReferences(parent.References, parent.ProviderMessageID)
		msg.ProviderThreadID = parent.ProviderThreadID
		if msg.RequestID == nil {
			msg.RequestID = parent.RequestID
		}
	}

	loc, err := time.LoadLocation(inv.Prefs.Timezone)
	if err != nil {
		loc = time.UTC
	}

	if inv.Prefs.ConfirmBeforeSend {
		id, err := t.Dispatcher.QueuePendingApproval(msg)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"message_id": id, "state": models.SendStatePendingApproval}, nil
	}

	id, err := t.Dispatcher.Queue(msg, loc, input.Immediate)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message_id": id, "state": models.SendStateScheduled}, nil
}

func (t *Toolbox) notifyPrincipal(inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input notifyPrincipalInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	if input.Supersedes != 0 {
		replacement, err := t.Ledger.Supersede(input.Supersedes, input.Body)
		if err != nil {
			return nil, err
		}
		result := map[string]interface{}{"confirmation_id": replacement.ID}
		if replacement.ReferenceNumber != nil {
			result["reference_number"] = *replacement.ReferenceNumber
		}
		return result, nil
	}

	var kind *string
	if input.ExpectsResponse != "" {
		kind = &input.ExpectsResponse
	}
	var requestID *uint
	if inv.Request != nil {
		requestID = &inv.Request.ID
	}
	var messageID *uint
	if input.MessageID != 0 {
		messageID = &input.MessageID
	}

	confirmation, err := t.Ledger.RequestConfirmation(inv.User, input.Body, kind, requestID, messageID)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{"confirmation_id": confirmation.ID}
	if confirmation.ReferenceNumber != nil {
		result["reference_number"] = *confirmation.ReferenceNumber
	}
	return result, nil
}

func (t *Toolbox) createBooking(ctx context.Context, inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input createBookingInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	start, err := time.Parse(time.RFC3339, input.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, input.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}

	event := calendar.Event{
		Title:     input.Title,
		Start:     start,
		End:       end,
		Attendees: input.Attendees,
		Location:  input.Location,
	}
	if input.VideoCall {
		event.VideoLink = "pending"
	}

	eventRef, err := t.Calendar.CreateEvent(ctx, inv.User.CalendarRef, event)
	if err != nil {
		return nil, fmt.Errorf("booking creation failed: %w", err)
	}

	if inv.Request != nil {
		// Revalidate status right before the terminal transition
		updated := t.DB.Model(&models.SchedulingRequest{}).
			Where("id = ? AND status NOT IN ?", inv.Request.ID, models.TerminalStatuses).
			Updates(map[string]interface{}{
				"status":             models.RequestStatusConfirmed,
				"confirmed_start":    start,
				"confirmed_end":      end,
				"calendar_event_ref": eventRef,
			})
		if updated.Error != nil {
			return nil, updated.Error
		}
		if updated.RowsAffected == 0 {
			return nil, fmt.Errorf("request %d already reached a terminal status", inv.Request.ID)
		}
	}

	return map[string]interface{}{"event_ref": eventRef}, nil
}

func (t *Toolbox) cancelBooking(ctx context.Context, inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input cancelBookingInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	if err := t.Calendar.CancelEvent(ctx, inv.User.CalendarRef, input.EventRef); err != nil {
		return nil, fmt.Errorf("booking cancellation failed: %w", err)
	}

	// Explicit cancellation is the sanctioned exit from confirmed and error
	if err := t.DB.Model(&models.SchedulingRequest{}).
		Where("user_id = ? AND calendar_event_ref = ? AND status NOT IN ?",
			inv.User.ID, input.EventRef,
			[]string{models.RequestStatusExpired, models.RequestStatusCancelled}).
		Updates(map[string]interface{}{
			"status":             models.RequestStatusCancelled,
			"calendar_event_ref": nil,
		}).Error; err != nil {
		return nil, err
	}

	return map[string]interface{}{"event_ref": input.EventRef}, nil
}

func (t *Toolbox) updateRequest(inv *Invocation, args map[string]interface{}) (interface{}, error) {
	if inv.Request == nil {
		return nil, fmt.Errorf("no scheduling request in context")
	}

	var input updateRequestInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Title != "" {
		updates["title"] = input.Title
	}
	if input.DurationMins != 0 {
		updates["duration_mins"] = input.DurationMins
	}
	if input.Status != "" {
		updates["status"] = input.Status
	}
	if input.Location != "" {
		updates["location"] = input.Location
	}
	if input.ReminderAt != "" {
		at, err := time.Parse(time.RFC3339, input.ReminderAt)
		if err != nil {
			return nil, fmt.Errorf("invalid reminder_at: %w", err)
		}
		updates["reminder_at"] = at
		updates["reminder_sent"] = false
	}
	if input.ExpiresAt != "" {
		at, err := time.Parse(time.RFC3339, input.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("invalid expires_at: %w", err)
		}
		updates["expires_at"] = at
	}
	if len(input.ProposedTimes) > 0 {
		times := make([]models.ProposedTime, 0, len(input.ProposedTimes))
		for _, pt := range input.ProposedTimes {
			start, err := time.Parse(time.RFC3339, pt.Start)
			if err != nil {
				return nil, fmt.Errorf("invalid proposed start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, pt.End)
			if err != nil {
				return nil, fmt.Errorf("invalid proposed end: %w", err)
			}
			round := pt.Round
			if round == 0 {
				round = inv.Request.LatestRound() + 1
			}
			times = append(times, models.ProposedTime{Start: start, End: end, Round: round})
		}
		updates["proposed_times"] = times
	}
	if len(input.Attendees) > 0 {
		attendees := make([]models.Attendee, 0, len(input.Attendees))
		for _, a := range input.Attendees {
			attendees = append(attendees, models.Attendee{Email: a.Email, Name: a.Name})
		}
		updates["attendees"] = attendees
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	updated := t.DB.Model(&models.SchedulingRequest{}).
		Where("id = ? AND status NOT IN ?", inv.Request.ID, models.TerminalStatuses).
		Updates(updates)
	if updated.Error != nil {
		return nil, updated.Error
	}
	if updated.RowsAffected == 0 {
		return nil, fmt.Errorf("request %d already reached a terminal status", inv.Request.ID)
	}

	return map[string]interface{}{"request_id": inv.Request.ID}, nil
}

func (t *Toolbox) lookupContact(inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input lookupContactInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	var contact models.Contact
	err := t.DB.Where("user_id = ? AND email = ?", inv.User.ID, utils.NormalizeEmail(input.Email)).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]interface{}{"found": false}, nil
	}
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"found":    true,
		"email":    contact.Email,
		"name":     contact.Name,
		"company":  contact.Company,
		"timezone": contact.Timezone,
		"notes":    contact.Notes,
	}, nil
}

func (t *Toolbox) fetchThread(inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input fetchThreadInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.ThreadID == "" && input.RequestID == 0 {
		return nil, fmt.Errorf("thread_id or request_id is required")
	}

	query := t.DB.Where("user_id = ?", inv.User.ID)
	if input.ThreadID != "" {
		query = query.Where("provider_thread_id = ?", input.ThreadID)
	} else {
		query = query.Where("request_id = ?", input.RequestID)
	}

	var messages []models.Message
	if err := query.Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, err
	}

	return map[string]interface{}{"messages": messages, "count": len(messages)}, nil
}

func (t *Toolbox) linkThread(inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input linkThreadInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	var request models.SchedulingRequest
	if err := t.DB.Where("id = ? AND user_id = ?", input.RequestID, inv.User.ID).
		First(&request).Error; err != nil {
		return nil, fmt.Errorf("request %d not found", input.RequestID)
	}

	linked := t.DB.Model(&models.Message{}).
		Where("user_id = ? AND provider_thread_id = ?", inv.User.ID, input.ThreadID).
		Update("request_id", input.RequestID)
	if linked.Error != nil {
		return nil, linked.Error
	}

	return map[string]interface{}{"updated": linked.RowsAffected}, nil
}

func (t *Toolbox) resolvePendingEmail(inv *Invocation, args map[string]interface{}) (interface{}, error) {
	var input resolvePendingEmailInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}

	var msg *models.Message
	var err error
	switch input.Action {
	case "approve":
		msg, err = t.Dispatcher.ApprovePending(input.MessageID)
	case "reject":
		msg, err = t.Dispatcher.RejectPending(input.MessageID)
	case "edit":
		msg, err = t.Dispatcher.EditPending(input.MessageID, input.Subject, input.Body)
	}
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"message_id": msg.ID,
		"action":     input.Action,
		"subject":    msg.Subject,
		"body":       msg.Body,
		"send_state": msg.SendState,
	}, nil
}

func (t *Toolbox) clearConfirmation(args map[string]interface{}) (interface{}, error) {
	var input clearConfirmationInput
	if err := decodeArgs(args, &input); err != nil {
		return nil, err
	}
	if err := t.Ledger.Clear(input.ConfirmationID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"confirmation_id": input.ConfirmationID}, nil
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	byName := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		days = append(days, day)
	}
	return days, nil
}

func joinReferences(references, messageID string) string {
	if references == "" {
		return messageID
	}
	if messageID == "" {
		return references
	}
	return references + " " + messageID
}
