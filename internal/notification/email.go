package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/shenikar/incident_dispatch/internal/models"
	gomail "github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var emailTemplate = template.Must(template.ParseFS(templateFS, "templates/notification.html"))

// ErrNoEmailAddress is a per-recipient failure for users without an address.
var ErrNoEmailAddress = errors.New("recipient has no email address")

type emailData struct {
	Title       string
	Body        string
	Name        string
	Label       string
	AccentColor string
	Reference   string
}

// EmailChannel renders the notification as HTML and sends it through MailSender.
type EmailChannel struct {
	sender MailSender
}

func NewEmailChannel(sender MailSender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Deliver(ctx context.Context, env models.NotificationEnvelope) error {
	if env.Recipient.Email == "" {
		return ErrNoEmailAddress
	}
	body, err := RenderEmail(env)
	if err != nil {
		return err
	}
	if err := c.sender.SendHTML(ctx, env.Recipient.Email, env.Title, body); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

// RenderEmail builds the HTML body for an envelope.
func RenderEmail(env models.NotificationEnvelope) (string, error) {
	data := emailData{
		Title: env.Title,
		Body:  env.Body,
		Name:  env.Recipient.Name,
	}
	switch env.Category {
	case models.CategoryIncident:
		data.Label, data.AccentColor = "Emergency alert", "#c0392b"
	case models.CategoryWarning:
		data.Label, data.AccentColor = "Attention required", "#d68910"
	default:
		data.Label, data.AccentColor = "Dispatch update", "#2471a3"
	}
	if env.CorrelationID != nil {
		data.Reference = env.CorrelationID.String()
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

// SMTPSender delivers mail over SMTP via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	timeout   time.Duration
}

func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
		timeout:   15 * time.Second,
	}
}

func (s *SMTPSender) SendHTML(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.timeout),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
