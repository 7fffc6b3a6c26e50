package mail

import (
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

// smtpSendMail is swapped out in tests.
var smtpSendMail = smtp.SendMail

// Message is a single HTML email.
type Message struct {
	// EnvelopeFrom is the SMTP MAIL FROM address. It defaults to the
	// client's configured sender.
	EnvelopeFrom string
	// HeaderFrom is the From header, optionally with a display name.
	HeaderFrom string
	ReplyTo    string
	To         string
	Subject    string
	HTML       string
}

// Sender delivers messages.
type Sender interface {
	SendMessage(msg Message) error
}

// SMTPClient wraps net/smtp to provide a simple interface for sending emails.
type SMTPClient struct {
	host string
	port int
	user string
	pass string
	from string
}

// NewSMTPClient creates a new SMTPClient with the given SMTP server configuration.
func NewSMTPClient(host string, port int, user, pass, from string) *SMTPClient {
	return &SMTPClient{
		host: host,
		port: port,
		user: user,
		pass: pass,
		from: from,
	}
}

// From returns the default sender address.
func (c *SMTPClient) From() string { return c.from }

// Send delivers an HTML email from the configured sender.
func (c *SMTPClient) Send(to, subject, body string) error {
	return c.SendMessage(Message{To: to, Subject: subject, HTML: body})
}

// SendFrom delivers an HTML email with a separate envelope sender and From
// header, so a display name can be shown.
func (c *SMTPClient) SendFrom(envelopeFrom, headerFrom, to, subject, body string) error {
	return c.SendMessage(Message{EnvelopeFrom: envelopeFrom, HeaderFrom: headerFrom, To: to, Subject: subject, HTML: body})
}

// SendMessage delivers msg. PlainAuth is used only when both a user and a
// password are configured.
func (c *SMTPClient) SendMessage(msg Message) error {
	auth, err := c.auth()
	if err != nil {
		return err
	}
	if c.host == "" {
		return errors.New("smtp host is not configured")
	}

	envelope := msg.EnvelopeFrom
	if envelope == "" {
		envelope = c.from
	}
	headerFrom := msg.HeaderFrom
	if headerFrom == "" {
		headerFrom = envelope
	}

	var b strings.Builder
	writeHeader(&b, "From", headerFrom)
	writeHeader(&b, "To", msg.To)
	if msg.ReplyTo != "" {
		writeHeader(&b, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&b, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	return smtpSendMail(addr, auth, envelope, []string{msg.To}, []byte(b.String()))
}

func (c *SMTPClient) auth() (smtp.Auth, error) {
	switch {
	case c.user == "" && c.pass == "":
		return nil, nil
	case c.user == "" || c.pass == "":
		return nil, errors.New("smtp credentials are incomplete: both user and password are required")
	default:
		return smtp.PlainAuth("", c.user, c.pass, c.host), nil
	}
}

// writeHeader drops CR and LF from v so user-supplied values cannot add
// headers.
func writeHeader(b *strings.Builder, k, v string) {
	v = strings.NewReplacer("\r", "", "\n", "").Replace(v)
	b.WriteString(k + ": " + v + "\r\n")
}
