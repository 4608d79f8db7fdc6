package dispatch

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"meetsync/models"
	"meetsync/utils"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type countingMailer struct {
	sends int
	err   error
}

func (m *countingMailer) Send(email utils.OutboundEmail) (string, string, error) {
	m.sends++
	if m.err != nil {
		return "", "", m.err
	}
	return "prov-1", "thread-1", nil
}

func dispatchDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared cache keeps every pooled connection on the same in-memory
	// database; the test name keeps databases isolated between tests.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Message{}))
	return db
}

func scheduledMessage(t *testing.T, db *gorm.DB, attempts int) *models.Message {
	t.Helper()
	msg := &models.Message{
		UserID:          1,
		Direction:       models.DirectionOutbound,
		ToEmails:        []string{"dana@example.com"},
		Subject:         "Coffee chat",
		Body:            "Would Tuesday at 10:00 work?",
		SendState:       models.SendStateScheduled,
		SendAttempts:    attempts,
		ScheduledSendAt: utils.Pointer(time.Now().Add(-time.Minute)),
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}

func TestDispatchTransmitsAtMostOnce(t *testing.T) {
	db := dispatchDB(t)
	mailer := &countingMailer{}
	s := NewScheduler(db, mailer, Config{}, log.New(io.Discard, "", 0))
	msg := scheduledMessage(t, db, 0)

	require.NoError(t, s.Dispatch(msg.ID, false))
	// A second attempt finds the message already claimed and does nothing
	require.NoError(t, s.Dispatch(msg.ID, false))
	require.Equal(t, 1, mailer.sends)

	var sent models.Message
	require.NoError(t, db.First(&sent, msg.ID).Error)
	require.Equal(t, models.SendStateSent, sent.SendState)
	require.Equal(t, "prov-1", sent.ProviderMessageID)
	require.NotNil(t, sent.SentAt)
}

func TestDispatchFailureReleasesWithBackoff(t *testing.T) {
	db := dispatchDB(t)
	mailer := &countingMailer{err: errors.New("smtp 550")}
	s := NewScheduler(db, mailer, Config{}, log.New(io.Discard, "", 0))
	msg := scheduledMessage(t, db, 0)

	require.Error(t, s.Dispatch(msg.ID, false))

	var released models.Message
	require.NoError(t, db.First(&released, msg.ID).Error)
	require.Equal(t, models.SendStateScheduled, released.SendState)
	require.Equal(t, 1, released.SendAttempts)
	// Not due again immediately: the worker has to wait out the backoff
	require.True(t, released.ScheduledSendAt.After(time.Now()))
}

func TestDispatchFailureParksAfterFinalAttempt(t *testing.T) {
	db := dispatchDB(t)
	mailer := &countingMailer{err: errors.New("smtp 550")}
	s := NewScheduler(db, mailer, Config{}, log.New(io.Discard, "", 0))
	msg := scheduledMessage(t, db, maxSendAttempts-1)

	require.Error(t, s.Dispatch(msg.ID, false))

	var parked models.Message
	require.NoError(t, db.First(&parked, msg.ID).Error)
	require.Equal(t, models.SendStateFailed, parked.SendState)
	require.Equal(t, maxSendAttempts, parked.SendAttempts)

	// Parked messages are no longer claimable
	require.NoError(t, s.Dispatch(msg.ID, false))
	require.Equal(t, 1, mailer.sends)
}
