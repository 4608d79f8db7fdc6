package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"meetsync/agent"
	"meetsync/jobs"
	"meetsync/models"

	"gorm.io/gorm"
)

const (
	QueueReminder = "reminder"
	QueueExpiry   = "expiry"
)

type requestJobPayload struct {
	RequestID uint `json:"request_id"`
}

// ReminderWorker scans open scheduling requests for due reminder and expiry
// deadlines and enqueues them as idempotent delayed jobs. The job handlers
// re-check request status before acting, so a job firing after the
// negotiation resolved is a no-op.
type ReminderWorker struct {
	DB     *gorm.DB
	Jobs   *jobs.Scheduler
	Agent  *agent.Service
	Logger *log.Logger
}

func NewReminderWorker(db *gorm.DB, jobScheduler *jobs.Scheduler, agentService *agent.Service, logger *log.Logger) *ReminderWorker {
	rw := &ReminderWorker{
		DB:     db,
		Jobs:   jobScheduler,
		Agent:  agentService,
		Logger: logger,
	}
	jobScheduler.Handle(QueueReminder, rw.handleReminder)
	jobScheduler.Handle(QueueExpiry, rw.handleExpiry)
	jobScheduler.OnFailure(QueueReminder, rw.markRequestError)
	jobScheduler.OnFailure(QueueExpiry, rw.markRequestError)
	return rw
}

// markRequestError surfaces a job that failed all its retries as a visible
// error status on the scheduling request, instead of dropping it silently.
// Already-terminal requests are left alone.
func (rw *ReminderWorker) markRequestError(ctx context.Context, payload json.RawMessage, jobErr error) {
	var p requestJobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		rw.Logger.Printf("Undecodable payload on exhausted job: %v", err)
		return
	}

	if err := rw.DB.Model(&models.SchedulingRequest{}).
		Where("id = ? AND status NOT IN ?", p.RequestID, models.TerminalStatuses).
		Updates(map[string]interface{}{
			"status":        models.RequestStatusError,
			"error_message": jobErr.Error(),
		}).Error; err != nil {
		rw.Logger.Printf("Failed to mark request %d errored: %v", p.RequestID, err)
	}
}

func (rw *ReminderWorker) Start(ctx context.Context) {
	rw.Logger.Println("Reminder worker started")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Reminder worker shutting down...")
			return
		case <-ticker.C:
			rw.enqueueDue(ctx)
		}
	}
}

func (rw *ReminderWorker) enqueueDue(ctx context.Context) {
	now := time.Now()

	var reminders []models.SchedulingRequest
	if err := rw.DB.Where("status NOT IN ? AND reminder_sent = ? AND reminder_at IS NOT NULL AND reminder_at <= ?",
		models.TerminalStatuses, false, now).Find(&reminders).Error; err != nil {
		rw.Logger.Printf("Error scanning for due reminders: %v", err)
		return
	}
	for _, req := range reminders {
		key := fmt.Sprintf("reminder:%d:%s", req.ID, req.ReminderAt.Format(time.RFC3339))
		if _, err := rw.Jobs.ScheduleAt(ctx, QueueReminder, requestJobPayload{RequestID: req.ID}, now, key); err != nil {
			rw.Logger.Printf("Error enqueueing reminder for request %d: %v", req.ID, err)
		}
	}

	var expiries []models.SchedulingRequest
	if err := rw.DB.Where("status NOT IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
		models.TerminalStatuses, now).Find(&expiries).Error; err != nil {
		rw.Logger.Printf("Error scanning for due expiries: %v", err)
		return
	}
	for _, req := range expiries {
		key := fmt.Sprintf("expiry:%d", req.ID)
		if _, err := rw.Jobs.ScheduleAt(ctx, QueueExpiry, requestJobPayload{RequestID: req.ID}, now, key); err != nil {
			rw.Logger.Printf("Error enqueueing expiry for request %d: %v", req.ID, err)
		}
	}
}

// handleReminder nudges the agent about a still-open request. Errors are
// returned so the job scheduler's retry policy applies.
func (rw *ReminderWorker) handleReminder(ctx context.Context, payload json.RawMessage) error {
	var p requestJobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad reminder payload: %w", err)
	}

	var req models.SchedulingRequest
	if err := rw.DB.First(&req, p.RequestID).Error; err != nil {
		return fmt.Errorf("failed to load request %d: %w", p.RequestID, err)
	}
	if req.IsTerminal() || req.ReminderSent {
		return nil
	}

	if err := rw.Agent.HandleReminder(ctx, req.ID); err != nil {
		return err
	}

	return rw.DB.Model(&models.SchedulingRequest{}).
		Where("id = ?", req.ID).
		Update("reminder_sent", true).Error
}

// handleExpiry moves an unresolved request past its hard deadline to the
// expired terminal status.
func (rw *ReminderWorker) handleExpiry(ctx context.Context, payload json.RawMessage) error {
	var p requestJobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad expiry payload: %w", err)
	}

	return rw.DB.Model(&models.SchedulingRequest{}).
		Where("id = ? AND status NOT IN ?", p.RequestID, models.TerminalStatuses).
		Update("status", models.RequestStatusExpired).Error
}
