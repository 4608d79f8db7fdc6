package dispatch

import (
	"fmt"
	"time"

	"meetsync/models"
)

// Pending-approval resolution. A pending message is the only outbound unit
// the principal can still veto; approval sends it immediately, rejection
// hard-deletes it, and edit rewrites it in place while it stays pending.

// ApprovePending promotes a pending-approval message to scheduled and
// transmits it inline.
func (s *Scheduler) ApprovePending(messageID uint) (*models.Message, error) {
	now := time.Now()
	promoted := s.DB.Model(&models.Message{}).
		Where("id = ? AND send_state = ?", messageID, models.SendStatePendingApproval).
		Updates(map[string]interface{}{
			"send_state":        models.SendStateScheduled,
			"scheduled_send_at": now,
		})
	if promoted.Error != nil {
		return nil, fmt.Errorf("failed to approve message %d: %w", messageID, promoted.Error)
	}
	if promoted.RowsAffected == 0 {
		return nil, fmt.Errorf("message %d is not awaiting approval", messageID)
	}

	if err := s.Dispatch(messageID, true); err != nil {
		return nil, err
	}

	var msg models.Message
	if err := s.DB.First(&msg, messageID).Error; err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", messageID, err)
	}
	return &msg, nil
}

// RejectPending hard-deletes a pending-approval message. Rejection is the
// only path on which a message row is destroyed.
func (s *Scheduler) RejectPending(messageID uint) (*models.Message, error) {
	var msg models.Message
	if err := s.DB.Where("id = ? AND send_state = ?", messageID, models.SendStatePendingApproval).
		First(&msg).Error; err != nil {
		return nil, fmt.Errorf("message %d is not awaiting approval: %w", messageID, err)
	}

	if err := s.DB.Unscoped().Delete(&models.Message{}, messageID).Error; err != nil {
		return nil, fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	return &msg, nil
}

// EditPending rewrites the subject and/or body of a pending-approval message.
func (s *Scheduler) EditPending(messageID uint, subject, body string) (*models.Message, error) {
	updates := map[string]interface{}{}
	if subject != "" {
		updates["subject"] = subject
	}
	if body != "" {
		updates["body"] = body
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("nothing to edit")
	}

	edited := s.DB.Model(&models.Message{}).
		Where("id = ? AND send_state = ?", messageID, models.SendStatePendingApproval).
		Updates(updates)
	if edited.Error != nil {
		return nil, fmt.Errorf("failed to edit message %d: %w", messageID, edited.Error)
	}
	if edited.RowsAffected == 0 {
		return nil, fmt.Errorf("message %d is not awaiting approval", messageID)
	}

	var msg models.Message
	if err := s.DB.First(&msg, messageID).Error; err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", messageID, err)
	}
	return &msg, nil
}
