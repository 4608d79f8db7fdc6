package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testScheduler() *Scheduler {
	return NewScheduler(nil, log.New(io.Discard, "", 0))
}

func TestRunJobInvokesFailureHookOnExhaustion(t *testing.T) {
	s := testScheduler()

	handlerErr := errors.New("decision service unavailable")
	s.Handle("reminder", func(ctx context.Context, payload json.RawMessage) error {
		return handlerErr
	})

	var hookPayload json.RawMessage
	var hookErr error
	s.OnFailure("reminder", func(ctx context.Context, payload json.RawMessage, err error) {
		hookPayload = payload
		hookErr = err
	})

	// Final attempt: the failure must surface through the hook, not vanish
	s.runJob(context.Background(), Job{
		ID:       "job-1",
		Queue:    "reminder",
		Payload:  json.RawMessage(`{"request_id":7}`),
		RunAt:    time.Now(),
		Attempts: maxAttempts - 1,
	})

	require.Equal(t, handlerErr, hookErr)
	require.JSONEq(t, `{"request_id":7}`, string(hookPayload))
}

func TestRunJobNoHookOnSuccess(t *testing.T) {
	s := testScheduler()

	s.Handle("reminder", func(ctx context.Context, payload json.RawMessage) error {
		return nil
	})

	hooked := false
	s.OnFailure("reminder", func(ctx context.Context, payload json.RawMessage, err error) {
		hooked = true
	})

	s.runJob(context.Background(), Job{ID: "job-1", Queue: "reminder", Attempts: maxAttempts - 1})
	require.False(t, hooked)
}
