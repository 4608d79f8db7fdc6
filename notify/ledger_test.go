package notify

import (
	"io"
	"log"
	"testing"

	"meetsync/models"
	"meetsync/utils"

	"github.com/stretchr/testify/require"
)

func TestLowestFreeNumber(t *testing.T) {
	require.Equal(t, 1, lowestFreeNumber(nil))
	require.Equal(t, 3, lowestFreeNumber([]int{1, 2}))
	// Clearing #2 while #1 and #3 stay open hands #2 out again
	require.Equal(t, 2, lowestFreeNumber([]int{1, 3}))
	require.Equal(t, 1, lowestFreeNumber([]int{2, 3, 5}))
}

func TestDecorateBodyLoneConfirmationUnadorned(t *testing.T) {
	body := decorateBody("Book Tuesday 10:00 with Dana?", utils.Pointer(1), nil)
	require.Equal(t, "Book Tuesday 10:00 with Dana?", body)
}

func TestDecorateBodyListsOtherOpenNumbers(t *testing.T) {
	body := decorateBody("Book Tuesday 10:00 with Dana?", utils.Pointer(2), []int{3, 1})

	require.Contains(t, body, "#2: Book Tuesday 10:00 with Dana?")
	require.Contains(t, body, "Also open: #1, #3")
	require.Contains(t, body, "Reply with a number")
}

func TestDecorateBodyNoNumberReserved(t *testing.T) {
	body := decorateBody("FYI, the room changed.", nil, []int{1})
	require.Equal(t, "FYI, the room changed.", body)
}

func openConfirmation(id uint, refNumber int, requestID uint) models.Confirmation {
	c := models.Confirmation{
		Direction:            models.DirectionOutbound,
		AwaitingResponseType: utils.Pointer(models.AwaitingSlotChoice),
		ReferenceNumber:      utils.Pointer(refNumber),
		RequestID:            utils.Pointer(requestID),
	}
	c.ID = id
	return c
}

func TestMatchReplyByReferenceNumber(t *testing.T) {
	open := []models.Confirmation{
		openConfirmation(10, 1, 100),
		openConfirmation(11, 2, 200),
	}

	// "2 y" must pick the confirmation carrying reference number 2, not the
	// second element of whatever ordering the list happens to have.
	resolved, remainder, err := matchReply(open, "2 y")
	require.NoError(t, err)
	require.Equal(t, uint(11), resolved.ID)
	require.Equal(t, uint(200), *resolved.RequestID)
	require.Equal(t, "y", remainder)
}

func TestMatchReplyReferenceNumberNotPositional(t *testing.T) {
	// Reversed list order: resolution still follows the number
	open := []models.Confirmation{
		openConfirmation(11, 2, 200),
		openConfirmation(10, 1, 100),
	}

	resolved, remainder, err := matchReply(open, "#1 take the morning slot")
	require.NoError(t, err)
	require.Equal(t, uint(10), resolved.ID)
	require.Equal(t, "take the morning slot", remainder)
}

func TestMatchReplySingleOpenNeedsNoNumber(t *testing.T) {
	open := []models.Confirmation{openConfirmation(10, 1, 100)}

	resolved, remainder, err := matchReply(open, "yes, book it")
	require.NoError(t, err)
	require.Equal(t, uint(10), resolved.ID)
	require.Equal(t, "yes, book it", remainder)
}

func TestMatchReplyAmbiguousWithoutNumber(t *testing.T) {
	open := []models.Confirmation{
		openConfirmation(10, 1, 100),
		openConfirmation(11, 2, 200),
	}

	_, _, err := matchReply(open, "yes")
	require.Error(t, err)
}

func TestMatchReplyUnknownNumber(t *testing.T) {
	open := []models.Confirmation{openConfirmation(10, 1, 100)}

	_, _, err := matchReply(open, "7 no")
	require.Error(t, err)
}

type recordingChannel struct {
	name string
	sent []string
}

func (r *recordingChannel) Name() string { return r.name }
func (r *recordingChannel) Send(user *models.User, body string) (string, error) {
	r.sent = append(r.sent, body)
	return "msg-1", nil
}

func TestChannelsResolvePreferred(t *testing.T) {
	sms := &recordingChannel{name: models.ChannelSMS}
	inApp := &recordingChannel{name: models.ChannelInApp}
	cs := &Channels{SMS: sms, InApp: inApp, Logger: log.New(io.Discard, "", 0)}

	user := &models.User{PreferredChannel: models.ChannelSMS, PhoneNumber: "+15550100"}
	require.Equal(t, sms, cs.Resolve(user))
}

func TestChannelsResolveFallsBackSilently(t *testing.T) {
	sms := &recordingChannel{name: models.ChannelSMS}
	inApp := &recordingChannel{name: models.ChannelInApp}
	cs := &Channels{SMS: sms, InApp: inApp, Logger: log.New(io.Discard, "", 0)}

	// Preferred channel lacks contact data; resolution degrades to in-app
	// without surfacing an error to the caller.
	user := &models.User{PreferredChannel: models.ChannelSMS}
	require.Equal(t, inApp, cs.Resolve(user))

	user = &models.User{PreferredChannel: models.ChannelChat}
	require.Equal(t, inApp, cs.Resolve(user))
}
