package notify

import (
	"io"
	"log"
	"testing"

	"meetsync/models"
	"meetsync/utils"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func ledgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared cache keeps every pooled connection on the same in-memory
	// database; the test name keeps databases isolated between tests.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.SchedulingRequest{}, &models.Message{}, &models.Confirmation{},
	))
	return db
}

func inAppLedger(t *testing.T, db *gorm.DB) (*Ledger, *recordingChannel) {
	t.Helper()
	inApp := &recordingChannel{name: models.ChannelInApp}
	quiet := log.New(io.Discard, "", 0)
	return NewLedger(db, &Channels{InApp: inApp, Logger: quiet}, quiet), inApp
}

func seedPrincipal(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{Email: "sam@example.com", Name: "Sam", PreferredChannel: models.ChannelInApp}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestReferenceNumbersReusedThroughLedger(t *testing.T) {
	db := ledgerDB(t)
	ledger, _ := inAppLedger(t, db)
	user := seedPrincipal(t, db)

	kind := utils.Pointer(models.AwaitingSlotChoice)
	c1, err := ledger.RequestConfirmation(user, "Book Tuesday with Dana?", kind, nil, nil)
	require.NoError(t, err)
	c2, err := ledger.RequestConfirmation(user, "Book Wednesday with Lee?", kind, nil, nil)
	require.NoError(t, err)
	c3, err := ledger.RequestConfirmation(user, "Book Friday with Ada?", kind, nil, nil)
	require.NoError(t, err)

	require.Equal(t, 1, *c1.ReferenceNumber)
	require.Equal(t, 2, *c2.ReferenceNumber)
	require.Equal(t, 3, *c3.ReferenceNumber)

	// Clearing #2 frees its number; the next confirmation picks it up while
	// #1 and #3 keep meaning what they meant.
	require.NoError(t, ledger.Clear(c2.ID))

	c4, err := ledger.RequestConfirmation(user, "Book Monday with Kim?", kind, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, *c4.ReferenceNumber)

	open, err := ledger.ListPending(user.ID)
	require.NoError(t, err)
	require.Len(t, open, 3)
}

func TestSupersedeKeepsNumberAndClosesOld(t *testing.T) {
	db := ledgerDB(t)
	ledger, inApp := inAppLedger(t, db)
	user := seedPrincipal(t, db)

	kind := utils.Pointer(models.AwaitingSlotChoice)
	c1, err := ledger.RequestConfirmation(user, "Book Tuesday with Dana?", kind, nil, nil)
	require.NoError(t, err)
	_, err = ledger.RequestConfirmation(user, "Book Wednesday with Lee?", kind, nil, nil)
	require.NoError(t, err)

	replacement, err := ledger.Supersede(c1.ID, "Dana moved; Wednesday instead?")
	require.NoError(t, err)
	require.Equal(t, *c1.ReferenceNumber, *replacement.ReferenceNumber)
	require.True(t, replacement.IsOpen())

	// The superseding body carries the same decoration any outbound
	// confirmation gets while others are open.
	require.Contains(t, replacement.Body, "#1: Dana moved; Wednesday instead?")
	require.Contains(t, replacement.Body, "Also open: #2")
	require.Equal(t, replacement.Body, inApp.sent[len(inApp.sent)-1])

	var old models.Confirmation
	require.NoError(t, db.First(&old, c1.ID).Error)
	require.False(t, old.IsOpen())

	// Still two open entries, same numbers
	open, err := ledger.ListPending(user.ID)
	require.NoError(t, err)
	require.Len(t, open, 2)
}

func TestSupersedeLoneConfirmationUnadorned(t *testing.T) {
	db := ledgerDB(t)
	ledger, _ := inAppLedger(t, db)
	user := seedPrincipal(t, db)

	c1, err := ledger.RequestConfirmation(user, "Book Tuesday with Dana?",
		utils.Pointer(models.AwaitingSlotChoice), nil, nil)
	require.NoError(t, err)

	replacement, err := ledger.Supersede(c1.ID, "Dana moved; Wednesday instead?")
	require.NoError(t, err)
	require.Equal(t, "Dana moved; Wednesday instead?", replacement.Body)
}

func TestSupersedeRejectsClosedConfirmation(t *testing.T) {
	db := ledgerDB(t)
	ledger, _ := inAppLedger(t, db)
	user := seedPrincipal(t, db)

	c1, err := ledger.RequestConfirmation(user, "Book Tuesday with Dana?",
		utils.Pointer(models.AwaitingSlotChoice), nil, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Clear(c1.ID))

	_, err = ledger.Supersede(c1.ID, "too late")
	require.Error(t, err)
}
