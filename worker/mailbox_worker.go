package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"meetsync/agent"
	"meetsync/models"
	"meetsync/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"
)

// MailboxConfig holds the assistant mailbox's IMAP credentials.
type MailboxConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

// MailboxWorker polls the assistant's IMAP mailbox for new counterparty
// emails, stores them as inbound messages threaded onto their scheduling
// requests, and feeds each one to the orchestration loop.
type MailboxWorker struct {
	DB     *gorm.DB
	Config MailboxConfig
	Agent  *agent.Service
	Logger *log.Logger
}

func NewMailboxWorker(db *gorm.DB, cfg MailboxConfig, agentService *agent.Service, logger *log.Logger) *MailboxWorker {
	return &MailboxWorker{
		DB:     db,
		Config: cfg,
		Agent:  agentService,
		Logger: logger,
	}
}

func (mw *MailboxWorker) Start(ctx context.Context) {
	if mw.Config.Host == "" {
		mw.Logger.Println("IMAP not configured - mailbox worker disabled")
		return
	}
	mw.Logger.Println("Mailbox worker started")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mw.Logger.Println("Mailbox worker shutting down...")
			return
		case <-ticker.C:
			if err := mw.fetchNewMail(ctx); err != nil {
				mw.Logger.Printf("Error fetching mail: %v", err)
			}
		}
	}
}

func (mw *MailboxWorker) fetchNewMail(ctx context.Context) error {
	imapAddr := fmt.Sprintf("%s:%d", mw.Config.Host, mw.Config.Port)
	imapClient, err := client.DialTLS(imapAddr, &tls.Config{ServerName: mw.Config.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(mw.Config.Username, mw.Config.Password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	mailbox := mw.Config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset,
			[]imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]"), imap.FetchFlags},
			messages)
	}()

	processed := new(imap.SeqSet)
	for msg := range messages {
		if err := mw.ingest(ctx, msg); err != nil {
			// Leave the message unseen; the next poll retries it
			mw.Logger.Printf("Failed to ingest message %d: %v", msg.SeqNum, err)
			continue
		}
		processed.AddNum(msg.SeqNum)
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %w", err)
	}

	if !processed.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := imapClient.Store(processed, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			mw.Logger.Printf("Failed to mark messages seen: %v", err)
		}
	}
	return nil
}

func (mw *MailboxWorker) ingest(ctx context.Context, msg *imap.Message) error {
	if msg.Envelope == nil || msg.Envelope.MessageId == "" {
		return fmt.Errorf("message has no envelope")
	}

	// An already-stored message is skipped only once the loop has consumed
	// it; a stored-but-unprocessed row means an earlier run failed and the
	// trigger must fire again.
	var existing models.Message
	err := mw.DB.Where("provider_message_id = ? AND direction = ?",
		msg.Envelope.MessageId, models.DirectionInbound).First(&existing).Error
	if err == nil {
		if existing.ProcessedAt != nil {
			return nil
		}
		return mw.process(ctx, &existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	user, err := mw.matchPrincipal(msg.Envelope)
	if err != nil {
		mw.Logger.Printf("No principal for message %s - skipping", msg.Envelope.MessageId)
		return nil
	}

	body, references := extractBody(msg)

	inbound := &models.Message{
		UserID:            user.ID,
		Direction:         models.DirectionInbound,
		ProviderMessageID: msg.Envelope.MessageId,
		ProviderThreadID:  threadIDFor(msg.Envelope, references),
		InReplyTo:         msg.Envelope.InReplyTo,
		References:        references,
		FromEmail:         formatAddress(msg.Envelope.From),
		ToEmails:          addressList(msg.Envelope.To),
		CcEmails:          addressList(msg.Envelope.Cc),
		Subject:           msg.Envelope.Subject,
		Body:              body,
		SendState:         models.SendStateDraft,
		ReceivedAt:        utils.Pointer(msg.Envelope.Date),
	}

	// A reply on a known thread continues that thread's request
	if parentRequestID := mw.matchThread(user.ID, inbound); parentRequestID != nil {
		inbound.RequestID = parentRequestID
	}

	if err := mw.DB.Create(inbound).Error; err != nil {
		return fmt.Errorf("failed to save inbound message: %w", err)
	}

	return mw.process(ctx, inbound)
}

// process hands the inbound message to the orchestration loop and marks it
// consumed only on success, so a transient loop failure does not lose the
// trigger.
func (mw *MailboxWorker) process(ctx context.Context, inbound *models.Message) error {
	if err := mw.Agent.HandleInboundEmail(ctx, inbound); err != nil {
		return err
	}
	return mw.DB.Model(inbound).Update("processed_at", time.Now()).Error
}

// matchPrincipal finds the user this email is for by recipient address.
func (mw *MailboxWorker) matchPrincipal(envelope *imap.Envelope) (*models.User, error) {
	candidates := append(addressList(envelope.To), addressList(envelope.Cc)...)
	for _, addr := range candidates {
		var user models.User
		if err := mw.DB.Where("email = ?", utils.NormalizeEmail(addr)).First(&user).Error; err == nil {
			return &user, nil
		}
	}

	// Single-tenant fallback: the mailbox itself belongs to one principal
	var user models.User
	if err := mw.DB.Where("email = ?", utils.NormalizeEmail(mw.Config.Username)).First(&user).Error; err != nil {
		return nil, fmt.Errorf("no matching principal")
	}
	return &user, nil
}

// matchThread resolves the scheduling request an inbound reply belongs to by
// walking its In-Reply-To and thread identifiers.
func (mw *MailboxWorker) matchThread(userID uint, inbound *models.Message) *uint {
	if inbound.InReplyTo != "" {
		var parent models.Message
		if err := mw.DB.Where("user_id = ? AND provider_message_id = ?", userID, inbound.InReplyTo).
			First(&parent).Error; err == nil && parent.RequestID != nil {
			if parent.ProviderThreadID != "" {
				inbound.ProviderThreadID = parent.ProviderThreadID
			}
			return parent.RequestID
		}
	}
	if inbound.ProviderThreadID != "" {
		var sibling models.Message
		if err := mw.DB.Where("user_id = ? AND provider_thread_id = ? AND request_id IS NOT NULL",
			userID, inbound.ProviderThreadID).First(&sibling).Error; err == nil {
			return sibling.RequestID
		}
	}
	return nil
}

func extractBody(msg *imap.Message) (string, string) {
	var bodyText, bodyHTML, references string

	// GetBody matches section names by value; the client stores literals
	// under its own parsed keys, so indexing msg.Body directly always misses.
	section := imap.BodySectionName{}
	literal := msg.GetBody(&section)
	if literal == nil {
		return "", ""
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return "", ""
	}
	references = mr.Header.Get("References")

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			if strings.Contains(contentType, "text/plain") {
				bodyText = string(b)
			} else if strings.Contains(contentType, "text/html") {
				bodyHTML = string(b)
			}
		}
	}

	if bodyText == "" {
		bodyText = bodyHTML
	}
	return bodyText, references
}

// threadIDFor derives a stable thread identifier from the reference chain:
// the root message id of the conversation.
func threadIDFor(envelope *imap.Envelope, references string) string {
	if refs := strings.Fields(references); len(refs) > 0 {
		return refs[0]
	}
	if envelope.InReplyTo != "" {
		return envelope.InReplyTo
	}
	return envelope.MessageId
}

func formatAddress(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address()
}

func addressList(addrs []*imap.Address) []string {
	var result []string
	for _, a := range addrs {
		result = append(result, a.Address())
	}
	return result
}
