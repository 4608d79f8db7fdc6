package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeArgsRejectsUnknownFields(t *testing.T) {
	var input cancelBookingInput
	err := decodeArgs(map[string]interface{}{
		"event_ref": "evt-1",
		"force":     true,
	}, &input)
	require.Error(t, err)
}

func TestDecodeArgsRejectsMissingRequired(t *testing.T) {
	var input sendEmailInput
	err := decodeArgs(map[string]interface{}{
		"subject": "Meeting options",
	}, &input)
	require.Error(t, err)
}

func TestDecodeArgsRejectsBadEnum(t *testing.T) {
	var input resolvePendingEmailInput
	err := decodeArgs(map[string]interface{}{
		"message_id": 4,
		"action":     "postpone",
	}, &input)
	require.Error(t, err)
}

func TestDecodeArgsRejectsMalformedEmail(t *testing.T) {
	var input lookupContactInput
	err := decodeArgs(map[string]interface{}{"email": "not-an-address"}, &input)
	require.Error(t, err)
}

func TestDecodeArgsAcceptsValidPayload(t *testing.T) {
	var input sendEmailInput
	err := decodeArgs(map[string]interface{}{
		"to":      []string{"sam@example.com"},
		"subject": "Meeting options",
		"body":    "Would Tuesday at 10:00 work?",
	}, &input)
	require.NoError(t, err)
	require.Equal(t, []string{"sam@example.com"}, input.To)
	require.False(t, input.Immediate)
}

func TestDecodeArgsNestedValidation(t *testing.T) {
	var input updateRequestInput
	err := decodeArgs(map[string]interface{}{
		"attendees": []map[string]interface{}{{"email": "bad"}},
	}, &input)
	require.Error(t, err)

	input = updateRequestInput{}
	err = decodeArgs(map[string]interface{}{
		"status": "proposing",
		"proposed_times": []map[string]interface{}{
			{"start": "2026-03-02T10:15:00Z", "end": "2026-03-02T10:45:00Z", "round": 1},
		},
	}, &input)
	require.NoError(t, err)
	require.Len(t, input.ProposedTimes, 1)
}

func TestDecodeArgsStatusEnumExcludesTerminal(t *testing.T) {
	// Terminal statuses are set by dedicated tools, never by update_request
	var input updateRequestInput
	err := decodeArgs(map[string]interface{}{"status": "confirmed"}, &input)
	require.Error(t, err)
}
