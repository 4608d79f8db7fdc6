package dispatch

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"meetsync/models"
	"meetsync/utils"

	"gorm.io/gorm"
)

const (
	maxSendAttempts = 5
	sendRetryDelay  = 5 * time.Minute
)

// Mailer is the transmission contract the scheduler depends on. Send returns
// the provider message id and thread id for the transmitted message.
type Mailer interface {
	Send(email utils.OutboundEmail) (string, string, error)
}

// Config holds the send-time knobs: the humanizing delay window and the
// blackout hours in the principal's local time.
type Config struct {
	HumanizeDelayMin  time.Duration
	HumanizeDelayMax  time.Duration
	BlackoutStartHour int
	BlackoutEndHour   int
	FromEmail         string
	FromName          string
}

// Scheduler queues outbound messages, computes humanized send times, and
// guarantees at-most-one transmission per message under concurrent dispatch
// attempts.
type Scheduler struct {
	DB     *gorm.DB
	Mailer Mailer
	Config Config
	Logger *log.Logger
}

func NewScheduler(db *gorm.DB, mailer Mailer, cfg Config, logger *log.Logger) *Scheduler {
	return &Scheduler{
		DB:     db,
		Mailer: mailer,
		Config: cfg,
		Logger: logger,
	}
}

// Queue persists the message and schedules it for sending. When immediate is
// set the send time is now and transmission is attempted inline; otherwise a
// humanized delay (pushed out of the blackout window) applies and the
// background worker picks it up.
func (s *Scheduler) Queue(msg *models.Message, loc *time.Location, immediate bool) (uint, error) {
	sendAt := s.ComputeSendTime(time.Now(), loc, immediate)

	msg.Direction = models.DirectionOutbound
	msg.SendState = models.SendStateScheduled
	msg.ScheduledSendAt = &sendAt

	if err := s.DB.Create(msg).Error; err != nil {
		return 0, fmt.Errorf("failed to queue message: %w", err)
	}

	if immediate {
		if err := s.Dispatch(msg.ID, true); err != nil {
			return 0, err
		}
	}
	return msg.ID, nil
}

// QueuePendingApproval persists the message awaiting an explicit principal
// decision. No send time is assigned until approval.
func (s *Scheduler) QueuePendingApproval(msg *models.Message) (uint, error) {
	msg.Direction = models.DirectionOutbound
	msg.SendState = models.SendStatePendingApproval
	msg.ScheduledSendAt = nil
	msg.SentAt = nil

	if err := s.DB.Create(msg).Error; err != nil {
		return 0, fmt.Errorf("failed to queue pending message: %w", err)
	}
	return msg.ID, nil
}

// ComputeSendTime returns now for immediate sends. Otherwise it adds a random
// humanizing delay, and if the result lands inside the blackout window it is
// pushed to the blackout end in the principal's timezone plus one more delay.
func (s *Scheduler) ComputeSendTime(now time.Time, loc *time.Location, immediate bool) time.Time {
	if immediate {
		return now
	}

	sendAt := now.Add(s.humanizeDelay())
	if s.inBlackout(sendAt, loc) {
		sendAt = s.blackoutEnd(sendAt, loc).Add(s.humanizeDelay())
	}
	return sendAt
}

func (s *Scheduler) humanizeDelay() time.Duration {
	min, max := s.Config.HumanizeDelayMin, s.Config.HumanizeDelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func (s *Scheduler) inBlackout(t time.Time, loc *time.Location) bool {
	start, end := s.Config.BlackoutStartHour, s.Config.BlackoutEndHour
	if start == end {
		return false
	}
	hour := t.In(loc).Hour()
	if start < end {
		return hour >= start && hour < end
	}
	// Window wraps midnight, e.g. 22 → 6
	return hour >= start || hour < end
}

// blackoutEnd returns the next instant at which the blackout window ends,
// computed with timezone-aware date construction.
func (s *Scheduler) blackoutEnd(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), s.Config.BlackoutEndHour, 0, 0, 0, loc)
	if !end.After(local) {
		end = time.Date(local.Year(), local.Month(), local.Day()+1, s.Config.BlackoutEndHour, 0, 0, 0, loc)
	}
	return end
}

// Dispatch attempts to actually transmit the message. It is idempotent and
// race-safe: the scheduled→claimed transition is a conditional update, so a
// concurrent dispatcher observes the claim and skips. On transmission failure
// the immediate path removes the row and the background path releases the
// claim with a backoff, parking the message as failed once its attempts run
// out; either way no message is left stuck in the claimed state.
func (s *Scheduler) Dispatch(messageID uint, immediate bool) error {
	claimed := s.DB.Model(&models.Message{}).
		Where("id = ? AND send_state = ?", messageID, models.SendStateScheduled).
		Update("send_state", models.SendStateClaimed)
	if claimed.Error != nil {
		return fmt.Errorf("failed to claim message %d: %w", messageID, claimed.Error)
	}
	if claimed.RowsAffected == 0 {
		// Someone else claimed or already sent it
		s.Logger.Printf("Message %d not claimable - skipping dispatch", messageID)
		return nil
	}

	var msg models.Message
	if err := s.DB.First(&msg, messageID).Error; err != nil {
		return fmt.Errorf("failed to load claimed message %d: %w", messageID, err)
	}

	providerMessageID, providerThreadID, err := s.transmit(&msg)
	if err != nil {
		if immediate {
			if delErr := s.DB.Unscoped().Delete(&models.Message{}, messageID).Error; delErr != nil {
				s.Logger.Printf("Failed to remove message %d after send failure: %v", messageID, delErr)
			}
		} else {
			s.releaseClaim(&msg, err)
		}
		return fmt.Errorf("failed to send message %d: %w", messageID, err)
	}

	now := time.Now()
	if err := s.DB.Model(&models.Message{}).
		Where("id = ? AND send_state = ?", messageID, models.SendStateClaimed).
		Updates(map[string]interface{}{
			"send_state":          models.SendStateSent,
			"sent_at":             now,
			"provider_message_id": providerMessageID,
			"provider_thread_id":  providerThreadID,
		}).Error; err != nil {
		return fmt.Errorf("failed to finalize message %d: %w", messageID, err)
	}

	utils.LogEvent("email_sent", map[string]interface{}{
		"message_id":          messageID,
		"provider_message_id": providerMessageID,
	})
	return nil
}

// releaseClaim hands a claimed message back after a background send failure.
// The send time moves out by a growing backoff, and once the attempt limit is
// reached the message is parked in the failed state so it stops retrying.
func (s *Scheduler) releaseClaim(msg *models.Message, sendErr error) {
	attempts := msg.SendAttempts + 1
	if attempts >= maxSendAttempts {
		if err := s.DB.Model(&models.Message{}).
			Where("id = ? AND send_state = ?", msg.ID, models.SendStateClaimed).
			Updates(map[string]interface{}{
				"send_state":    models.SendStateFailed,
				"send_attempts": attempts,
			}).Error; err != nil {
			s.Logger.Printf("Failed to park message %d: %v", msg.ID, err)
			return
		}
		utils.LogError("send_exhausted", sendErr, map[string]interface{}{
			"message_id": msg.ID,
			"attempts":   attempts,
		})
		return
	}

	retryAt := time.Now().Add(time.Duration(attempts) * sendRetryDelay)
	if err := s.DB.Model(&models.Message{}).
		Where("id = ? AND send_state = ?", msg.ID, models.SendStateClaimed).
		Updates(map[string]interface{}{
			"send_state":        models.SendStateScheduled,
			"send_attempts":     attempts,
			"scheduled_send_at": retryAt,
		}).Error; err != nil {
		s.Logger.Printf("Failed to release claim on message %d: %v", msg.ID, err)
	}
}

// transmit hands the message to the mail provider. A rejected thread
// reference triggers one retry without it; the In-Reply-To and References
// headers still preserve threading for recipients.
func (s *Scheduler) transmit(msg *models.Message) (string, string, error) {
	email := utils.OutboundEmail{
		From:       s.Config.FromEmail,
		FromName:   s.Config.FromName,
		To:         msg.ToEmails,
		Cc:         msg.CcEmails,
		Subject:    msg.Subject,
		Body:       msg.Body,
		InReplyTo:  msg.InReplyTo,
		References: msg.References,
		ThreadID:   msg.ProviderThreadID,
	}

	providerMessageID, providerThreadID, err := s.Mailer.Send(email)
	if err != nil && email.ThreadID != "" {
		s.Logger.Printf("Send with thread ref %s failed (%v) - retrying without it", email.ThreadID, err)
		email.ThreadID = ""
		providerMessageID, providerThreadID, err = s.Mailer.Send(email)
	}
	return providerMessageID, providerThreadID, err
}

// DispatchDue claims and sends every scheduled message whose send time has
// passed. Called by the background worker.
func (s *Scheduler) DispatchDue() {
	var due []models.Message
	if err := s.DB.Where("send_state = ? AND scheduled_send_at <= ?", models.SendStateScheduled, time.Now()).
		Order("scheduled_send_at").
		Find(&due).Error; err != nil {
		s.Logger.Printf("Error fetching due messages: %v", err)
		return
	}

	for _, msg := range due {
		if err := s.Dispatch(msg.ID, false); err != nil {
			s.Logger.Printf("Error dispatching message %d: %v", msg.ID, err)
		}
	}
}
