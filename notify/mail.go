package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mailClient is the part of *sendgrid.Client used by MailSink.
type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

var _ mailClient = (*sendgrid.Client)(nil)

const emailPlain = `
{{- .Message}}

--
Sent by medreminder.
`

var emailPlainTemplate = template.Must(template.New("email").Parse(emailPlain))

// MailSink sends each notification as a plain-text email through SendGrid.
type MailSink struct {
	client   mailClient
	fromName string
	from     string
	to       []string
}

func NewMailSink(client *sendgrid.Client, fromName, from string, to []string) *MailSink {
	return &MailSink{
		client:   client,
		fromName: fromName,
		from:     from,
		to:       to,
	}
}

func (s *MailSink) Send(ctx context.Context, title, message string) error {
	msg, err := s.buildMessage(title, message)
	if err != nil {
		return err
	}

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("while sending mail through SendGrid: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2XX response while sending mail through SendGrid: %d %s", resp.StatusCode, resp.Body)
	}

	return nil
}

func (s *MailSink) buildMessage(title, message string) (*mail.SGMailV3, error) {
	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail(s.fromName, s.from))
	msg.Subject = title

	personalization := mail.NewPersonalization()
	for _, addr := range s.to {
		personalization.AddTos(mail.NewEmail("", addr))
	}
	msg.AddPersonalizations(personalization)

	textContent := &bytes.Buffer{}
	if err := emailPlainTemplate.Execute(textContent, struct{ Message string }{message}); err != nil {
		return nil, fmt.Errorf("while templating plain-text email content: %w", err)
	}
	msg.AddContent(mail.NewContent("text/plain", textContent.String()))

	return msg, nil
}
