package mail

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"

	"gatekeeper/bizerror"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
)

var (
	PathMail = "/api/v1/mail"

	defaultHTMLBody       = "<p>Hi, thanks for using gatekeeper mail</p>"
	defaultBackgroundBody = "Simple background task"
	defaultAttachmentBody = "Email with attachment"
	defaultBulkBody       = "<p>Bulk email</p>"
)

type EmailSending struct {
	Email []string               `json:"email" binding:"required,min=1,dive,email"`
	Body  map[string]interface{} `json:"body"`
}

type TemplateEmailSending struct {
	Email        []string               `json:"email" binding:"required,min=1,dive,email"`
	TemplateName string                 `json:"template_name" binding:"required"`
	Body         map[string]interface{} `json:"body" binding:"required"`
}

type MultipartEmailSending struct {
	Email         []string `json:"email" binding:"required,min=1,dive,email"`
	Subject       string   `json:"subject" binding:"required"`
	HTMLBody      string   `json:"html_body" binding:"required"`
	PlainTextBody string   `json:"plain_text_body" binding:"required"`
}

type BulkEmailSending struct {
	Emails []EmailSending `json:"emails" binding:"required,min=1,dive"`
}

type AttachmentEmailSending struct {
	Email   []string `form:"email" binding:"required,min=1,dive,email"`
	Subject string   `form:"subject"`
	Body    string   `form:"body"`
}

// RegisterMailRestAPI expects middleWares to authenticate the caller and
// demand the send_email permission.
func RegisterMailRestAPI(r *gin.Engine, mailer Mailer, middleWares ...gin.HandlerFunc) {
	h := &mailHandler{mailer: mailer}
	g := r.Group(PathMail, middleWares...)
	g.POST("/email", h.handleSendEmail)
	g.POST("/email/background", h.handleSendEmailBackground)
	g.POST("/email/template", h.handleSendTemplateEmail)
	g.POST("/email/attachment", h.handleSendAttachmentEmail)
	g.POST("/email/multipart", h.handleSendMultipartEmail)
	g.POST("/email/bulk", h.handleSendBulkEmail)
}

type mailHandler struct {
	mailer Mailer
}

func (h *mailHandler) handleSendEmail(c *gin.Context) {
	payload := EmailSending{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := h.mailer.Send(c.Request.Context(), htmlMessage(payload, defaultHTMLBody)); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "email has been sent"})
}

func (h *mailHandler) handleSendEmailBackground(c *gin.Context) {
	payload := EmailSending{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	msg := Message{
		Recipients: payload.Email,
		Subject:    stringOf(payload.Body, "subject", DefaultSubject),
		TextBody:   stringOf(payload.Body, "text", defaultBackgroundBody),
	}
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if err := h.mailer.Send(ctx, msg); err != nil {
			logrus.WithContext(ctx).WithError(err).Warn("background mail failed")
		}
	}()
	c.JSON(http.StatusOK, gin.H{"message": "email has been sent"})
}

func (h *mailHandler) handleSendTemplateEmail(c *gin.Context) {
	payload := TemplateEmailSending{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	name, found := TemplateName(payload.TemplateName)
	if !found {
		panic(bizerror.ErrUnknownTemplate)
	}
	msg := Message{
		Recipients:   payload.Email,
		Subject:      stringOf(payload.Body, "subject", SubjectOf(name)),
		TemplateName: name,
		Variables:    payload.Body,
	}
	if err := h.mailer.Send(c.Request.Context(), msg); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "email has been sent"})
}

func (h *mailHandler) handleSendAttachmentEmail(c *gin.Context) {
	payload := AttachmentEmailSending{}
	if err := c.ShouldBindWith(&payload, binding.FormMultipart); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	form, err := c.MultipartForm()
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	files := form.File["files"]
	if len(files) == 0 {
		panic(&bizerror.ErrBadParam{Cause: errors.New("at least one file is required")})
	}

	attachments := make([]Attachment, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			panic(err)
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			panic(err)
		}
		attachments = append(attachments, Attachment{
			Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Content: content,
		})
	}

	body := payload.Body
	if body == "" {
		body = defaultAttachmentBody
	}
	msg := Message{
		Recipients:   payload.Email,
		Subject:      payload.Subject,
		TemplateName: TemplateEmail,
		Attachments:  attachments,
	}
	msg.Variables = wrapVariables(msg.Subject, template.HTMLEscapeString(body))
	if err := h.mailer.Send(c.Request.Context(), msg); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "email has been sent"})
}

func (h *mailHandler) handleSendMultipartEmail(c *gin.Context) {
	payload := MultipartEmailSending{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	msg := Message{
		Recipients: payload.Email,
		Subject:    payload.Subject,
		HTMLBody:   payload.HTMLBody,
		TextBody:   payload.PlainTextBody,
	}
	if err := h.mailer.Send(c.Request.Context(), msg); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "email has been sent"})
}

func (h *mailHandler) handleSendBulkEmail(c *gin.Context) {
	payload := BulkEmailSending{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	for _, item := range payload.Emails {
		if err := h.mailer.Send(c.Request.Context(), htmlMessage(item, defaultBulkBody)); err != nil {
			panic(err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "emails have been sent"})
}

// htmlMessage wraps the caller supplied html into the generic template.
func htmlMessage(payload EmailSending, defaultBody string) Message {
	subject := stringOf(payload.Body, "subject", DefaultSubject)
	return Message{
		Recipients:   payload.Email,
		Subject:      subject,
		TemplateName: TemplateEmail,
		Variables:    wrapVariables(subject, stringOf(payload.Body, "html", defaultBody)),
	}
}

func wrapVariables(subject, html string) map[string]interface{} {
	if subject == "" {
		subject = DefaultSubject
	}
	return map[string]interface{}{"subject": subject, "body": template.HTML(html)}
}

func stringOf(body map[string]interface{}, key, fallback string) string {
	if value, ok := body[key].(string); ok && value != "" {
		return value
	}
	return fallback
}
