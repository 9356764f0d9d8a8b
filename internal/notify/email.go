package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/careops/clinic-scheduling/pkg/logging"
)

// EmailSender abstracts the outbound mail provider so the notification
// service can run against SendGrid in production and a recorder in tests.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// SendGridSender sends email via the SendGrid API.
type SendGridSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
	logger   *logging.Logger
}

type SendGridConfig struct {
	APIKey   string
	From     string
	FromName string
}

// NewSendGridSender returns nil when no API key is configured; callers treat
// a nil sender as "log only".
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(cfg.APIKey),
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected message", "status", response.StatusCode, "to", msg.To)
		return fmt.Errorf("notify: sendgrid status %d", response.StatusCode)
	}

	return nil
}
