package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"strings"

	"gatekeeper/bizerror"
	"gatekeeper/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	TemplatePasswordReset         = "password_reset.html"
	TemplatePasswordResetSuccess  = "password_reset_success.html"
	TemplatePasswordChangeSuccess = "password_change_success.html"
	TemplateEmail                 = "email.html"

	DefaultSubject = "Message from gatekeeper"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templates = template.Must(template.New("mail").Option("missingkey=error").ParseFS(templateFS, "templates/*.html"))

	templateSubjects = map[string]string{
		TemplatePasswordReset:         "Password Reset Request",
		TemplatePasswordResetSuccess:  "Password Reset Successful",
		TemplatePasswordChangeSuccess: "Password Changed Successfully",
	}
)

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is rendered from TemplateName when it is set, HTMLBody and
// TextBody are used as they are otherwise.
type Message struct {
	Recipients   []string
	Subject      string
	TemplateName string
	Variables    map[string]interface{}

	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ErrDeliveryFailure is reported when the transport could not hand the
// message over.
type ErrDeliveryFailure struct {
	Transport string
	Cause     error
}

func (e *ErrDeliveryFailure) Error() string {
	return "mail delivery via " + e.Transport + " failed: " + e.Cause.Error()
}

func (e *ErrDeliveryFailure) Unwrap() error {
	return e.Cause
}

func (e *ErrDeliveryFailure) Respond() *bizerror.BizErrorDetail {
	return bizerror.ErrMailDeliveryFail.Respond()
}

// TemplateName normalizes name to a registered template, accepting names
// without the .html suffix.
func TemplateName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, ".html") {
		name += ".html"
	}
	if templates.Lookup(name) == nil {
		return "", false
	}
	return name, true
}

// SubjectOf returns the fixed subject of a template.
func SubjectOf(templateName string) string {
	if subject, found := templateSubjects[templateName]; found {
		return subject
	}
	return DefaultSubject
}

type TemplateMailer struct {
	Transport   Transport
	FromAddress string
	FromName    string
}

func NewTemplateMailer(transport Transport, fromAddress, fromName string) *TemplateMailer {
	return &TemplateMailer{Transport: transport, FromAddress: fromAddress, FromName: fromName}
}

func (m *TemplateMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return &bizerror.ErrBadParam{Cause: errors.New("no recipients")}
	}
	envelope := &Envelope{
		FromAddress: m.FromAddress,
		FromName:    m.FromName,
		To:          msg.Recipients,
		Subject:     msg.Subject,
		HTML:        msg.HTMLBody,
		Text:        msg.TextBody,
		Attachments: msg.Attachments,
	}

	if msg.TemplateName != "" {
		name, found := TemplateName(msg.TemplateName)
		if !found {
			return bizerror.ErrUnknownTemplate
		}
		msg.TemplateName = name
		html, err := render(name, msg.Variables)
		if err != nil {
			return &bizerror.ErrBadParam{Cause: err}
		}
		envelope.HTML = html
		if envelope.Subject == "" {
			envelope.Subject = SubjectOf(name)
		}
	}
	if envelope.Subject == "" {
		envelope.Subject = DefaultSubject
	}

	entry := logrus.WithContext(ctx).WithFields(logrus.Fields{
		"transport": m.Transport.Name(), "subject": envelope.Subject, "recipients": len(envelope.To),
	})
	label := msg.TemplateName
	if label == "" {
		label = "none"
	}
	if err := m.Transport.Deliver(ctx, envelope); err != nil {
		metrics.RecordMailDelivery(label, metrics.OutcomeFailure)
		entry.WithError(err).Error("mail delivery failed")
		return &ErrDeliveryFailure{Transport: m.Transport.Name(), Cause: err}
	}
	metrics.RecordMailDelivery(label, metrics.OutcomeSuccess)
	entry.Info("mail delivered")
	return nil
}

func render(name string, variables map[string]interface{}) (string, error) {
	if variables == nil {
		variables = map[string]interface{}{}
	}
	buf := bytes.Buffer{}
	if err := templates.ExecuteTemplate(&buf, name, variables); err != nil {
		return "", err
	}
	return buf.String(), nil
}
