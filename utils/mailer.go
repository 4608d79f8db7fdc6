package utils

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// OutboundEmail is one raw message handed to the email provider. Thread
// reference fields are optional; when set they keep provider-side threading
// coherent across replies.
type OutboundEmail struct {
	From       string
	FromName   string
	To         []string
	Cc         []string
	Subject    string
	Body       string
	InReplyTo  string
	References string
	ThreadID   string
}

// SMTPMailer sends mail over SMTP with gomail. It retries temporary
// failures with quadratic backoff before giving up.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
}

func NewSMTPMailer(host string, port int, username, password string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}
}

// Send transmits the message and returns the provider message id and thread
// id. For SMTP the message id is the generated Message-ID header and the
// thread id is the caller's thread ref, or the new message id when starting
// a fresh thread.
func (sm *SMTPMailer) Send(email OutboundEmail) (string, string, error) {
	dialer := gomail.NewDialer(sm.host, sm.port, sm.username, sm.password)
	dialer.TLSConfig = &tls.Config{ServerName: sm.host}

	messageID := generateMessageID(email.From)

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", email.FromName, email.From))
	m.SetHeader("To", email.To...)
	if len(email.Cc) > 0 {
		m.SetHeader("Cc", email.Cc...)
	}
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", messageID)
	if email.InReplyTo != "" {
		m.SetHeader("In-Reply-To", email.InReplyTo)
	}
	if email.References != "" {
		m.SetHeader("References", email.References)
	}
	m.SetHeader("X-Mailer", "MeetSync/1.0")
	m.SetBody("text/plain", email.Body)

	maxRetries := 3
	var lastError error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * time.Second
			time.Sleep(backoff)
		}

		err := dialer.DialAndSend(m)
		if err == nil {
			threadID := email.ThreadID
			if threadID == "" {
				threadID = messageID
			}
			return messageID, threadID, nil
		}

		lastError = err
		if !isTemporaryError(err) {
			break // Permanent error, don't retry
		}
	}

	return "", "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastError)
}

func generateMessageID(from string) string {
	domain := "meetsync.local"
	if at := strings.LastIndex(from, "@"); at != -1 && at+1 < len(from) {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func isTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	// SMTP 4xx codes indicate a transient condition
	errStr := strings.ToLower(err.Error())
	tempErrors := []string{
		"try again",
		"temporary",
		"421",
		"450",
		"451",
		"452",
	}

	for _, tempErr := range tempErrors {
		if strings.Contains(errStr, tempErr) {
			return true
		}
	}

	return false
}
