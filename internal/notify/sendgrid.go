package notify

import (
	"context"
	"fmt"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridConfig struct {
	FromEmail   string
	FromName    string
	TemplateID  string
	StaffEmails []string
}

// SendGridPublisher e-mails staff through a dynamic template; the template owns the wording.
type SendGridPublisher struct {
	client mailSender
	cfg    SendGridConfig
}

func NewSendGridClient(apiKey string) *sendgrid.Client {
	return sendgrid.NewSendClient(apiKey)
}

func NewSendGridPublisher(client mailSender, cfg SendGridConfig) *SendGridPublisher {
	return &SendGridPublisher{client: client, cfg: cfg}
}

func (p *SendGridPublisher) Publish(ctx context.Context, event domain.Event) error {
	if !forStaff(event.Type) || len(p.cfg.StaffEmails) == 0 {
		return nil
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(p.cfg.FromName, p.cfg.FromEmail))
	message.SetTemplateID(p.cfg.TemplateID)

	personalization := mail.NewPersonalization()
	for _, addr := range p.cfg.StaffEmails {
		personalization.AddTos(mail.NewEmail("", addr))
	}
	for key, value := range event.Attributes() {
		personalization.SetDynamicTemplateData(key, value)
	}
	message.AddPersonalizations(personalization)

	logger.ExternalServiceCall("sendgrid", "send", "type", event.Type, "bookingID", event.BookingID)
	response, err := p.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "send", err, "type", event.Type)
	if err != nil {
		return fmt.Errorf("failed to send staff email: %w", err)
	}
	return nil
}
