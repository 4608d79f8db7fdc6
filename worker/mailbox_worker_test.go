package worker

import (
	"bytes"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/require"
)

// fetchedMessage mirrors what the IMAP client produces: the body literal is
// stored under the client's own parsed section key, never under a pointer the
// caller holds.
func fetchedMessage(raw string) *imap.Message {
	key := &imap.BodySectionName{}
	return &imap.Message{
		SeqNum: 1,
		Body:   map[*imap.BodySectionName]imap.Literal{key: bytes.NewBufferString(raw)},
	}
}

func TestExtractBodyFindsLiteralUnderForeignKey(t *testing.T) {
	raw := "Subject: Re: Coffee chat\r\n" +
		"From: dana@example.com\r\n" +
		"To: sam@example.com\r\n" +
		"Message-Id: <m3@example.com>\r\n" +
		"In-Reply-To: <m2@example.com>\r\n" +
		"References: <m1@example.com> <m2@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Tuesday at 10 works for me."

	body, references := extractBody(fetchedMessage(raw))
	require.Equal(t, "Tuesday at 10 works for me.", body)
	require.Equal(t, "<m1@example.com> <m2@example.com>", references)
}

func TestExtractBodyPrefersPlainTextPart(t *testing.T) {
	raw := "Subject: Re: Coffee chat\r\n" +
		"From: dana@example.com\r\n" +
		"Content-Type: multipart/alternative; boundary=b1\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>Tuesday works.</p>\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Tuesday works.\r\n" +
		"--b1--\r\n"

	body, _ := extractBody(fetchedMessage(raw))
	require.Equal(t, "Tuesday works.", body)
}

func TestExtractBodyNoLiteral(t *testing.T) {
	body, references := extractBody(&imap.Message{SeqNum: 1})
	require.Empty(t, body)
	require.Empty(t, references)
}

func TestThreadIDForUsesReferenceChainRoot(t *testing.T) {
	envelope := &imap.Envelope{MessageId: "<m3@example.com>", InReplyTo: "<m2@example.com>"}

	require.Equal(t, "<m1@example.com>", threadIDFor(envelope, "<m1@example.com> <m2@example.com>"))
	require.Equal(t, "<m2@example.com>", threadIDFor(envelope, ""))

	first := &imap.Envelope{MessageId: "<m1@example.com>"}
	require.Equal(t, "<m1@example.com>", threadIDFor(first, ""))
}
