package mailtool

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	mailModel "github.com/ewanfisher/voxmail/backend/internal/model/mail"
)

// AccountConfig carries everything needed to serve one account slot
// over IMAP/SMTP. The two protocols negotiate TLS differently (993 is
// implicit TLS, 587 is STARTTLS), so each carries its own flag.
type AccountConfig struct {
	Name     string
	IMAPHost string
	IMAPPort string
	SMTPHost string
	SMTPPort string
	Username string
	Password string
	TLS      bool
	SMTPTLS  bool
}

// IMAPMailbox serves a single account over IMAP for reads and SMTP for
// sends. Connections are per-operation; the assistant's call rate does
// not justify pooling.
type IMAPMailbox struct {
	cfg AccountConfig
}

// NewIMAPMailbox builds a mailbox adapter for one configured account.
func NewIMAPMailbox(cfg AccountConfig) *IMAPMailbox {
	return &IMAPMailbox{cfg: cfg}
}

// Name returns the configured account identifier.
func (m *IMAPMailbox) Name() string { return m.cfg.Name }

func (m *IMAPMailbox) connect(_ context.Context) (*imapclient.Client, error) {
	addr := m.cfg.IMAPHost + ":" + m.cfg.IMAPPort

	var client *imapclient.Client
	var err error
	if m.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &TransportError{Account: m.cfg.Name, Op: "dial", Err: err}
	}

	if err := client.Login(m.cfg.Username, m.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{Account: m.cfg.Name, Message: err.Error()}
	}

	return client, nil
}

// List searches INBOX for recent messages matching the query and
// returns their envelopes, newest first.
func (m *IMAPMailbox) List(ctx context.Context, query string, max int) ([]mailModel.Summary, error) {
	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, &TransportError{Account: m.cfg.Name, Op: "select INBOX", Err: err}
	}

	criteria := searchCriteria(query)
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &TransportError{Account: m.cfg.Name, Op: "search", Err: err}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var summaries []mailModel.Summary
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		summaries = append(summaries, m.summaryFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return summaries, &TransportError{Account: m.cfg.Name, Op: "fetch", Err: err}
	}

	// Newest first for display.
	for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
		summaries[i], summaries[j] = summaries[j], summaries[i]
	}
	return summaries, nil
}

// Read fetches the full message for a UID reference and extracts a
// plain-text body.
func (m *IMAPMailbox) Read(ctx context.Context, ref string) (mailModel.Content, error) {
	uid, err := strconv.ParseUint(ref, 10, 32)
	if err != nil {
		return mailModel.Content{}, &NotFoundError{Ref: ref}
	}

	client, err := m.connect(ctx)
	if err != nil {
		return mailModel.Content{}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return mailModel.Content{}, &TransportError{Account: m.cfg.Name, Op: "select INBOX", Err: err}
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return mailModel.Content{}, &NotFoundError{Ref: ref}
	}
	buf, err := msg.Collect()
	if err != nil {
		return mailModel.Content{}, &TransportError{Account: m.cfg.Name, Op: "fetch body", Err: err}
	}

	summary := m.summaryFromBuffer(buf)
	content := mailModel.Content{
		Ref:     ref,
		Account: m.cfg.Name,
		From:    summary.From,
		Subject: summary.Subject,
		Date:    summary.Date,
	}

	if raw := buf.FindBodySection(bodySection); raw != nil {
		content.Body = extractTextBody(raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return content, &TransportError{Account: m.cfg.Name, Op: "fetch body", Err: err}
	}
	return content, nil
}

// Send delivers a plain-text message over SMTP.
func (m *IMAPMailbox) Send(_ context.Context, to, subject, body string) error {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.cfg.Username))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort
	if m.cfg.SMTPTLS {
		return m.sendWithTLS(addr, to, msg.String())
	}
	return m.sendWithStartTLS(addr, to, msg.String())
}

func (m *IMAPMailbox) sendWithTLS(addr, to, body string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.SMTPHost})
	if err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp dial", Err: err}
	}

	client, err := smtp.NewClient(conn, m.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return &TransportError{Account: m.cfg.Name, Op: "smtp client", Err: err}
	}
	defer client.Close()

	return m.authAndSend(client, to, body)
}

func (m *IMAPMailbox) sendWithStartTLS(addr, to, body string) error {
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp dial", Err: err}
	}

	client, err := smtp.NewClient(conn, m.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return &TransportError{Account: m.cfg.Name, Op: "smtp client", Err: err}
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.cfg.SMTPHost}); err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp starttls", Err: err}
	}

	return m.authAndSend(client, to, body)
}

func (m *IMAPMailbox) authAndSend(client *smtp.Client, to, body string) error {
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return &AuthError{Account: m.cfg.Name, Message: err.Error()}
	}

	if err := client.Mail(m.cfg.Username); err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp mail from", Err: err}
	}
	if err := client.Rcpt(to); err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp rcpt to", Err: err}
	}

	writer, err := client.Data()
	if err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp data", Err: err}
	}
	if _, err := writer.Write([]byte(body)); err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp write", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &TransportError{Account: m.cfg.Name, Op: "smtp close", Err: err}
	}

	return client.Quit()
}

func (m *IMAPMailbox) summaryFromBuffer(buf *imapclient.FetchMessageBuffer) mailModel.Summary {
	summary := mailModel.Summary{
		Account: m.cfg.Name,
		Ref:     strconv.FormatUint(uint64(buf.UID), 10),
	}

	if buf.Envelope != nil {
		summary.Subject = buf.Envelope.Subject
		summary.Date = buf.Envelope.Date.Format(time.RFC1123Z)
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				summary.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
			} else {
				summary.From = from.Addr()
			}
		}
	}

	return summary
}

// searchCriteria translates the assistant's query vocabulary to IMAP
// search terms. Results are always bounded to the last week.
func searchCriteria(query string) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{
		Since: time.Now().AddDate(0, 0, -7),
	}

	query = strings.TrimSpace(query)
	switch {
	case query == "":
	case query == "unread":
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	case strings.HasPrefix(query, "from:"):
		criteria.Header = []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: strings.TrimPrefix(query, "from:")},
		}
	default:
		criteria.Text = []string{query}
	}

	return criteria
}

// extractTextBody parses a raw RFC 2822 message and returns the best
// plain-text rendering of it.
func extractTextBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return StripHTML(string(raw))
	}
	defer mr.Close()

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody = string(body)
		}
	}

	if textBody != "" {
		return strings.TrimSpace(textBody)
	}
	return StripHTML(htmlBody)
}
