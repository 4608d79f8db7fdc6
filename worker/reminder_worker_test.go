package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"meetsync/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func workerDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared cache keeps every pooled connection on the same in-memory
	// database; the test name keeps databases isolated between tests.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SchedulingRequest{}))
	return db
}

func TestMarkRequestErrorSurfacesExhaustedJob(t *testing.T) {
	db := workerDB(t)
	rw := &ReminderWorker{DB: db, Logger: log.New(io.Discard, "", 0)}

	req := &models.SchedulingRequest{UserID: 1, Title: "Coffee chat", Status: models.RequestStatusProposing}
	require.NoError(t, db.Create(req).Error)

	payload, _ := json.Marshal(requestJobPayload{RequestID: req.ID})
	rw.markRequestError(context.Background(), payload, errors.New("decision service unavailable"))

	var got models.SchedulingRequest
	require.NoError(t, db.First(&got, req.ID).Error)
	require.Equal(t, models.RequestStatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	require.Equal(t, "decision service unavailable", *got.ErrorMessage)
}

func TestMarkRequestErrorLeavesTerminalRequestsAlone(t *testing.T) {
	db := workerDB(t)
	rw := &ReminderWorker{DB: db, Logger: log.New(io.Discard, "", 0)}

	req := &models.SchedulingRequest{UserID: 1, Title: "Coffee chat", Status: models.RequestStatusConfirmed}
	require.NoError(t, db.Create(req).Error)

	payload, _ := json.Marshal(requestJobPayload{RequestID: req.ID})
	rw.markRequestError(context.Background(), payload, errors.New("late failure"))

	var got models.SchedulingRequest
	require.NoError(t, db.First(&got, req.ID).Error)
	require.Equal(t, models.RequestStatusConfirmed, got.Status)
	require.Nil(t, got.ErrorMessage)
}
