package notify

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"meetsync/models"
	"meetsync/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger tracks outbound confirmations awaiting a principal decision and
// assigns the stable reference numbers that disambiguate concurrently open
// scheduling conversations.
type Ledger struct {
	DB       *gorm.DB
	Channels *Channels
	Logger   *log.Logger
}

func NewLedger(db *gorm.DB, channels *Channels, logger *log.Logger) *Ledger {
	return &Ledger{
		DB:       db,
		Channels: channels,
		Logger:   logger,
	}
}

// RequestConfirmation sends a decision request to the principal. When kind is
// non-nil a reference number is reserved: the smallest positive integer not
// used by the principal's open, non-terminal confirmations. Reservation runs
// under a row lock on the principal so two concurrent triggers cannot race
// for the same number.
func (l *Ledger) RequestConfirmation(user *models.User, body string, kind *string, requestID, messageID *uint) (*models.Confirmation, error) {
	confirmation := &models.Confirmation{
		UserID:               user.ID,
		RequestID:            requestID,
		MessageID:            messageID,
		Direction:            models.DirectionOutbound,
		AwaitingResponseType: kind,
	}

	var otherOpen []int
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		// SQLite serializes writers itself and rejects FOR UPDATE; the row
		// lock is a postgres concern.
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var locked models.User
		if err := q.First(&locked, user.ID).Error; err != nil {
			return fmt.Errorf("failed to lock principal %d: %w", user.ID, err)
		}

		open, err := openConfirmations(tx, user.ID)
		if err != nil {
			return err
		}
		for _, c := range open {
			if c.ReferenceNumber != nil {
				otherOpen = append(otherOpen, *c.ReferenceNumber)
			}
		}

		if kind != nil {
			confirmation.ReferenceNumber = utils.Pointer(lowestFreeNumber(otherOpen))
		}

		confirmation.Body = decorateBody(body, confirmation.ReferenceNumber, otherOpen)
		return tx.Create(confirmation).Error
	})
	if err != nil {
		return nil, err
	}

	channel := l.Channels.Resolve(user)
	confirmation.Channel = channel.Name()
	channelMessageID, sendErr := channel.Send(user, confirmation.Body)
	if sendErr != nil {
		// Release the reserved number so the failed confirmation does not
		// hold state open forever.
		l.DB.Model(confirmation).Updates(map[string]interface{}{
			"channel":                channel.Name(),
			"awaiting_response_type": nil,
		})
		return nil, fmt.Errorf("failed to notify principal %d: %w", user.ID, sendErr)
	}

	now := time.Now()
	if err := l.DB.Model(confirmation).Updates(map[string]interface{}{
		"channel":            channel.Name(),
		"channel_message_id": channelMessageID,
		"sent_at":            now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to record confirmation send: %w", err)
	}
	confirmation.ChannelMessageID = channelMessageID
	confirmation.SentAt = &now

	return confirmation, nil
}

// ListPending returns the principal's open confirmations oldest first.
// Confirmations whose scheduling request already reached a terminal status
// are filtered out even if their awaiting-state was never cleared.
func (l *Ledger) ListPending(userID uint) ([]models.Confirmation, error) {
	return openConfirmations(l.DB, userID)
}

// Clear resolves a confirmation by clearing its awaiting-state, freeing its
// reference number for reuse.
func (l *Ledger) Clear(confirmationID uint) error {
	cleared := l.DB.Model(&models.Confirmation{}).
		Where("id = ? AND awaiting_response_type IS NOT NULL", confirmationID).
		Updates(map[string]interface{}{
			"awaiting_response_type": nil,
			"received_at":            time.Now(),
		})
	if cleared.Error != nil {
		return fmt.Errorf("failed to clear confirmation %d: %w", confirmationID, cleared.Error)
	}
	if cleared.RowsAffected == 0 {
		return fmt.Errorf("confirmation %d is not open", confirmationID)
	}
	return nil
}

// Supersede edits an open confirmation by clearing it and creating a new row
// carrying the same reference number. History is preserved, never mutated.
func (l *Ledger) Supersede(confirmationID uint, newBody string) (*models.Confirmation, error) {
	var old models.Confirmation
	var replacement *models.Confirmation

	err := l.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&old, confirmationID).Error; err != nil {
			return fmt.Errorf("confirmation %d not found: %w", confirmationID, err)
		}
		if !old.IsOpen() {
			return fmt.Errorf("confirmation %d is not open", confirmationID)
		}

		if err := tx.Model(&old).Update("awaiting_response_type", nil).Error; err != nil {
			return err
		}

		// The replacement keeps the old number, so it must carry the same
		// decoration any other outbound confirmation would get.
		open, err := openConfirmations(tx, old.UserID)
		if err != nil {
			return err
		}
		var otherOpen []int
		for _, c := range open {
			if c.ReferenceNumber != nil {
				otherOpen = append(otherOpen, *c.ReferenceNumber)
			}
		}

		replacement = &models.Confirmation{
			UserID:               old.UserID,
			RequestID:            old.RequestID,
			MessageID:            old.MessageID,
			Channel:              old.Channel,
			Direction:            models.DirectionOutbound,
			Body:                 decorateBody(newBody, old.ReferenceNumber, otherOpen),
			AwaitingResponseType: old.AwaitingResponseType,
			ReferenceNumber:      old.ReferenceNumber,
		}
		return tx.Create(replacement).Error
	})
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := l.DB.First(&user, old.UserID).Error; err != nil {
		return nil, fmt.Errorf("failed to load principal %d: %w", old.UserID, err)
	}

	channel := l.Channels.Resolve(&user)
	channelMessageID, sendErr := channel.Send(&user, replacement.Body)
	if sendErr != nil {
		return nil, fmt.Errorf("failed to deliver superseding confirmation: %w", sendErr)
	}

	now := time.Now()
	if err := l.DB.Model(replacement).Updates(map[string]interface{}{
		"channel_message_id": channelMessageID,
		"sent_at":            now,
	}).Error; err != nil {
		return nil, err
	}
	replacement.ChannelMessageID = channelMessageID
	replacement.SentAt = &now

	return replacement, nil
}

// ResolveReply matches an inbound principal reply to an open confirmation.
// A leading integer selects by reference number; without one the reply
// resolves only when exactly one confirmation is open. The remainder of the
// text (the decision itself) is returned alongside.
func (l *Ledger) ResolveReply(userID uint, text string) (*models.Confirmation, string, error) {
	open, err := openConfirmations(l.DB, userID)
	if err != nil {
		return nil, "", err
	}
	if len(open) == 0 {
		return nil, "", fmt.Errorf("no open confirmations for user %d", userID)
	}

	return matchReply(open, text)
}

// matchReply applies the resolution rules to an already-loaded set of open
// confirmations.
func matchReply(open []models.Confirmation, text string) (*models.Confirmation, string, error) {
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(trimmed)
	if len(fields) > 0 {
		if num, err := strconv.Atoi(strings.TrimPrefix(fields[0], "#")); err == nil {
			for i := range open {
				if open[i].ReferenceNumber != nil && *open[i].ReferenceNumber == num {
					return &open[i], strings.TrimSpace(strings.Join(fields[1:], " ")), nil
				}
			}
			return nil, "", fmt.Errorf("no open confirmation #%d", num)
		}
	}

	if len(open) == 1 {
		return &open[0], trimmed, nil
	}
	return nil, "", fmt.Errorf("ambiguous reply: %d confirmations open, none referenced", len(open))
}

// RecordInbound persists the principal's reply against the confirmation it
// resolved, keeping the full conversation auditable.
func (l *Ledger) RecordInbound(resolved *models.Confirmation, text string) error {
	inbound := &models.Confirmation{
		UserID:     resolved.UserID,
		RequestID:  resolved.RequestID,
		MessageID:  resolved.MessageID,
		Channel:    resolved.Channel,
		Direction:  models.DirectionInbound,
		Body:       text,
		ReceivedAt: utils.Pointer(time.Now()),
	}
	return l.DB.Create(inbound).Error
}

// openConfirmations lists outbound confirmations that still await a response
// and whose scheduling request (if any) is not terminal, oldest first.
func openConfirmations(db *gorm.DB, userID uint) ([]models.Confirmation, error) {
	var open []models.Confirmation
	err := db.
		Joins("LEFT JOIN scheduling_requests ON scheduling_requests.id = confirmations.request_id").
		Where("confirmations.user_id = ? AND confirmations.direction = ? AND confirmations.awaiting_response_type IS NOT NULL", userID, models.DirectionOutbound).
		Where("confirmations.request_id IS NULL OR scheduling_requests.status NOT IN ?", models.TerminalStatuses).
		Order("confirmations.created_at ASC").
		Find(&open).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open confirmations: %w", err)
	}
	return open, nil
}

// lowestFreeNumber returns the smallest positive integer not in use. Freed
// numbers are handed out again, so "#2" keeps meaning the same negotiation
// only while it stays open.
func lowestFreeNumber(used []int) int {
	inUse := make(map[int]bool, len(used))
	for _, n := range used {
		inUse[n] = true
	}
	for n := 1; ; n++ {
		if !inUse[n] {
			return n
		}
	}
}

// decorateBody prefixes the reference number and appends the other open
// numbers when more than one confirmation is pending, so the principal can
// reply "<number> <decision>". A lone confirmation gets no decoration.
func decorateBody(body string, refNumber *int, otherOpen []int) string {
	if refNumber == nil || len(otherOpen) == 0 {
		return body
	}

	sort.Ints(otherOpen)
	labels := make([]string, len(otherOpen))
	for i, n := range otherOpen {
		labels[i] = fmt.Sprintf("#%d", n)
	}

	return fmt.Sprintf("#%d: %s\n(Also open: %s. Reply with a number and your decision.)",
		*refNumber, body, strings.Join(labels, ", "))
}
