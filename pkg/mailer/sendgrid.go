package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers messages through the SendGrid v3 mail API.
type SendGridSender struct {
	client sendgridClient
	from   *sgmail.Email
}

// NewSendGridSender constructs a sender using the given API key and from identity.
func NewSendGridSender(apiKey, fromName, fromAddress string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, fromAddress),
	}
}

// Send posts the message and treats any 4xx/5xx status as a failure.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("sendgrid: recipient required")
	}
	res, err := s.client.SendWithContext(ctx, s.prepare(msg))
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	return m
}
