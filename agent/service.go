package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"meetsync/models"
	"meetsync/notify"
	"meetsync/utils"

	"gorm.io/gorm"
)

// Service assembles invocation contexts for inbound triggers and runs the
// orchestration loop. A critical loop failure marks the scheduling request
// with error status and the failure message; everything else leaves the
// request in its last-written status.
type Service struct {
	DB     *gorm.DB
	Loop   *Loop
	Ledger *notify.Ledger
	Logger *log.Logger
}

func NewService(db *gorm.DB, loop *Loop, ledger *notify.Ledger, logger *log.Logger) *Service {
	return &Service{
		DB:     db,
		Loop:   loop,
		Ledger: ledger,
		Logger: logger,
	}
}

// HandleInboundEmail processes a newly ingested email. Unmatched messages
// open a fresh scheduling request; replies on known threads continue theirs.
func (s *Service) HandleInboundEmail(ctx context.Context, msg *models.Message) error {
	user, prefs, err := s.loadPrincipal(msg.UserID)
	if err != nil {
		return err
	}

	var request *models.SchedulingRequest
	if msg.RequestID != nil {
		request = &models.SchedulingRequest{}
		if err := s.DB.First(request, *msg.RequestID).Error; err != nil {
			return fmt.Errorf("failed to load request %d: %w", *msg.RequestID, err)
		}
	} else {
		// First unmatched inbound message opens the negotiation
		request = &models.SchedulingRequest{
			UserID:       user.ID,
			Title:        msg.Subject,
			DurationMins: prefs.DefaultMeetingMinutes,
			Status:       models.RequestStatusPending,
			Attendees:    []models.Attendee{{Email: utils.NormalizeEmail(msg.FromEmail)}},
			ExpiresAt:    utils.Pointer(time.Now().AddDate(0, 0, prefs.LookaheadDays)),
		}
		if err := s.DB.Create(request).Error; err != nil {
			return fmt.Errorf("failed to create scheduling request: %w", err)
		}
		if err := s.DB.Model(msg).Update("request_id", request.ID).Error; err != nil {
			return fmt.Errorf("failed to attach message to request: %w", err)
		}
	}

	inv := &Invocation{
		User:           user,
		Prefs:          prefs,
		Request:        request,
		Trigger:        TriggerInboundEmail,
		InboundText:    msg.Body,
		InboundMessage: msg,
	}
	return s.run(ctx, inv)
}

// HandlePrincipalReply processes a reply on a confirmation channel. The
// ledger resolves which open confirmation the reply addresses before the
// loop decides what to do with the decision.
func (s *Service) HandlePrincipalReply(ctx context.Context, userID uint, text string) error {
	user, prefs, err := s.loadPrincipal(userID)
	if err != nil {
		return err
	}

	resolved, remainder, err := s.Ledger.ResolveReply(userID, text)
	if err != nil {
		return err
	}
	if err := s.Ledger.RecordInbound(resolved, text); err != nil {
		s.Logger.Printf("Failed to record inbound reply: %v", err)
	}

	var request *models.SchedulingRequest
	if resolved.RequestID != nil {
		request = &models.SchedulingRequest{}
		if err := s.DB.First(request, *resolved.RequestID).Error; err != nil {
			return fmt.Errorf("failed to load request %d: %w", *resolved.RequestID, err)
		}
	}

	inv := &Invocation{
		User:                 user,
		Prefs:                prefs,
		Request:              request,
		Trigger:              TriggerPrincipalReply,
		InboundText:          remainder,
		ResolvedConfirmation: resolved,
	}
	return s.run(ctx, inv)
}

// HandleReminder runs the loop for a time-triggered nudge on a still-open
// request.
func (s *Service) HandleReminder(ctx context.Context, requestID uint) error {
	var request models.SchedulingRequest
	if err := s.DB.First(&request, requestID).Error; err != nil {
		return fmt.Errorf("failed to load request %d: %w", requestID, err)
	}
	if request.IsTerminal() {
		return nil
	}

	user, prefs, err := s.loadPrincipal(request.UserID)
	if err != nil {
		return err
	}

	inv := &Invocation{
		User:        user,
		Prefs:       prefs,
		Request:     &request,
		Trigger:     TriggerReminder,
		InboundText: "No response has arrived for this request. Decide whether to follow up.",
	}
	return s.run(ctx, inv)
}

func (s *Service) run(ctx context.Context, inv *Invocation) error {
	pending, err := s.Ledger.ListPending(inv.User.ID)
	if err != nil {
		return err
	}
	inv.PendingConfirmations = pending

	if err := s.Loop.Run(ctx, inv); err != nil {
		utils.LogError("agent_loop_failed", err, map[string]interface{}{
			"user_id": inv.User.ID,
			"trigger": inv.Trigger,
		})
		if inv.Request != nil {
			s.DB.Model(&models.SchedulingRequest{}).
				Where("id = ? AND status NOT IN ?", inv.Request.ID, models.TerminalStatuses).
				Updates(map[string]interface{}{
					"status":        models.RequestStatusError,
					"error_message": err.Error(),
				})
		}
		return err
	}
	return nil
}

func (s *Service) loadPrincipal(userID uint) (*models.User, *models.SchedulingPreference, error) {
	var user models.User
	if err := s.DB.Preload("Preference").First(&user, userID).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	prefs := user.Preference
	if prefs == nil {
		prefs = &models.SchedulingPreference{
			UserID:                user.ID,
			Timezone:              "UTC",
			WorkdayStartHour:      9,
			WorkdayEndHour:        17,
			BufferMinutes:         15,
			LookaheadDays:         14,
			DefaultMeetingMinutes: 30,
			MaxOptions:            5,
			MaxSlotsPerDay:        3,
		}
	}
	return &user, prefs, nil
}
