package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gatekeeper/common"

	"github.com/resend/resend-go/v2"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"
)

const (
	TransportLog      = "log"
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"
	TransportResend   = "resend"
)

// Envelope is a fully rendered message.
type Envelope struct {
	FromAddress string
	FromName    string
	To          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

type Transport interface {
	Name() string
	Deliver(ctx context.Context, envelope *Envelope) error
}

type TransportConfig struct {
	Kind string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPStartTLS bool

	SendGridAPIKey string
	ResendAPIKey   string
}

func NewTransport(c TransportConfig) (Transport, error) {
	switch c.Kind {
	case "", TransportLog:
		return &LogTransport{}, nil
	case TransportSMTP:
		if c.SMTPHost == "" {
			return nil, errors.New("MAIL_SERVER is required for smtp transport")
		}
		return &SMTPTransport{Host: c.SMTPHost, Port: c.SMTPPort, Username: c.SMTPUsername,
			Password: c.SMTPPassword, StartTLS: c.SMTPStartTLS}, nil
	case TransportSendGrid:
		if c.SendGridAPIKey == "" {
			return nil, errors.New("SENDGRID_API_KEY is required for sendgrid transport")
		}
		return NewSendGridTransport(c.SendGridAPIKey, ""), nil
	case TransportResend:
		if c.ResendAPIKey == "" {
			return nil, errors.New("RESEND_API_KEY is required for resend transport")
		}
		return NewResendTransport(c.ResendAPIKey, "")
	default:
		return nil, fmt.Errorf("unsupported mail transport %s", c.Kind)
	}
}

// LogTransport only writes a log line, bodies are left out since they may
// carry reset links.
type LogTransport struct{}

func (t *LogTransport) Name() string {
	return TransportLog
}

func (t *LogTransport) Deliver(ctx context.Context, envelope *Envelope) error {
	logrus.WithContext(ctx).WithFields(logrus.Fields{
		"to": envelope.To, "subject": envelope.Subject, "attachments": len(envelope.Attachments),
	}).Info("mail transport disabled, message dropped")
	return nil
}

type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
	StartTLS bool

	Timeout time.Duration
}

func (t *SMTPTransport) Name() string {
	return TransportSMTP
}

func (t *SMTPTransport) Deliver(ctx context.Context, envelope *Envelope) error {
	msg, err := newSMTPMessage(envelope)
	if err != nil {
		return err
	}
	client, err := gomail.NewClient(t.Host, t.clientOptions()...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (t *SMTPTransport) clientOptions() []gomail.Option {
	port := t.Port
	if port == 0 {
		port = 587
	}
	timeout := t.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	policy := gomail.NoTLS
	if t.StartTLS {
		policy = gomail.TLSMandatory
	}
	options := []gomail.Option{gomail.WithPort(port), gomail.WithTimeout(timeout), gomail.WithTLSPolicy(policy)}
	if t.Username != "" {
		options = append(options, gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.Username), gomail.WithPassword(t.Password))
	}
	return options
}

// newSMTPMessage lays out the text and html bodies as alternatives, text
// first, followed by the attachments.
func newSMTPMessage(envelope *Envelope) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(envelope.FromName, envelope.FromAddress); err != nil {
		return nil, err
	}
	if err := msg.To(envelope.To...); err != nil {
		return nil, err
	}
	msg.Subject(envelope.Subject)
	msg.SetDate()
	msg.SetMessageID()

	switch {
	case envelope.Text != "" && envelope.HTML != "":
		msg.SetBodyString(gomail.TypeTextPlain, envelope.Text)
		msg.AddAlternativeString(gomail.TypeTextHTML, envelope.HTML)
	case envelope.Text != "":
		msg.SetBodyString(gomail.TypeTextPlain, envelope.Text)
	default:
		msg.SetBodyString(gomail.TypeTextHTML, envelope.HTML)
	}
	for _, a := range envelope.Attachments {
		err := msg.AttachReader(a.Filename, bytes.NewReader(a.Content),
			gomail.WithFileContentType(gomail.ContentType(contentTypeOf(a))))
		if err != nil {
			return nil, err
		}
	}
	return msg, nil
}

type SendGridTransport struct {
	client *sendgrid.Client
}

// NewSendGridTransport talks to the public API unless host is given.
func NewSendGridTransport(apiKey, host string) *SendGridTransport {
	client := sendgrid.NewSendClient(apiKey)
	if host != "" {
		client.BaseURL = host + "/v3/mail/send"
	}
	return &SendGridTransport{client: client}
}

func (t *SendGridTransport) Name() string {
	return TransportSendGrid
}

func (t *SendGridTransport) Deliver(ctx context.Context, envelope *Envelope) error {
	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(envelope.FromName, envelope.FromAddress))
	m.Subject = envelope.Subject

	p := sgmail.NewPersonalization()
	for _, to := range envelope.To {
		p.AddTos(sgmail.NewEmail("", to))
	}
	m.AddPersonalizations(p)

	// plain text must precede html
	if envelope.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", envelope.Text))
	}
	if envelope.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", envelope.HTML))
	}
	for _, a := range envelope.Attachments {
		attachment := sgmail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		attachment.SetType(contentTypeOf(a))
		attachment.SetFilename(a.Filename)
		attachment.SetDisposition("attachment")
		m.AddAttachment(attachment)
	}

	resp, err := t.client.SendWithContext(ctx, m)
	if err != nil {
		return err
	}
	if !common.HttpStatusIsSuccess(resp.StatusCode) {
		return &common.ErrUnexpectedStatus{Service: TransportSendGrid, StatusCode: resp.StatusCode, RespBody: resp.Body}
	}
	return nil
}

type ResendTransport struct {
	client *resend.Client
}

// NewResendTransport talks to the public API unless baseURL is given.
func NewResendTransport(apiKey, baseURL string) (*ResendTransport, error) {
	client := resend.NewClient(apiKey)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = u
	}
	return &ResendTransport{client: client}, nil
}

func (t *ResendTransport) Name() string {
	return TransportResend
}

func (t *ResendTransport) Deliver(ctx context.Context, envelope *Envelope) error {
	from := envelope.FromAddress
	if envelope.FromName != "" {
		from = envelope.FromName + " <" + envelope.FromAddress + ">"
	}
	req := &resend.SendEmailRequest{
		From:    from,
		To:      envelope.To,
		Subject: envelope.Subject,
		Html:    envelope.HTML,
		Text:    envelope.Text,
	}
	for _, a := range envelope.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Content: a.Content, Filename: a.Filename, ContentType: contentTypeOf(a),
		})
	}
	sent, err := t.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return err
	}
	logrus.WithContext(ctx).WithField("resendId", sent.Id).Debug("resend accepted message")
	return nil
}

func contentTypeOf(a Attachment) string {
	if a.ContentType != "" {
		return a.ContentType
	}
	return "application/octet-stream"
}
