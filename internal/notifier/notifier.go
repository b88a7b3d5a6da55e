// Package notifier sends roster change confirmations to students.
package notifier

import (
	"context"
	"fmt"

	commonaws "mergington-activities/internal/common/aws"
	"mergington-activities/internal/common/config"
	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Notifier is told about successful roster changes.
type Notifier interface {
	SignedUp(ctx context.Context, activity, email string) error
	Unregistered(ctx context.Context, activity, email string) error
}

// New returns an SES-backed notifier when email notifications are enabled
// and a no-op notifier otherwise.
func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (Notifier, error) {
	if !cfg.Email.Enabled {
		return Noop{}, nil
	}
	client, err := commonaws.NewSESClient(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("create ses client: %w", err)
	}
	return NewEmailNotifier(client, cfg.Email.FromEmail, log), nil
}

// Noop discards every notification.
type Noop struct{}

func (Noop) SignedUp(context.Context, string, string) error     { return nil }
func (Noop) Unregistered(context.Context, string, string) error { return nil }

// EmailNotifier sends plain-text confirmation emails through SES.
type EmailNotifier struct {
	client commonaws.SESAPI
	from   string
	logger logger.Logger
}

func NewEmailNotifier(client commonaws.SESAPI, from string, log logger.Logger) *EmailNotifier {
	return &EmailNotifier{
		client: client,
		from:   from,
		logger: log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

func (n *EmailNotifier) SignedUp(ctx context.Context, activity, email string) error {
	return n.send(ctx, email,
		fmt.Sprintf("You're signed up for %s", activity),
		fmt.Sprintf("You are now registered for %s at Mergington High School.", activity),
	)
}

func (n *EmailNotifier) Unregistered(ctx context.Context, activity, email string) error {
	return n.send(ctx, email,
		fmt.Sprintf("You've left %s", activity),
		fmt.Sprintf("You have been removed from %s at Mergington High School.", activity),
	)
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, body string) error {
	out, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return apperrors.NewNotificationFailedError(err)
	}

	n.logger.Debug("notification sent", map[string]interface{}{
		"to":        to,
		"messageId": aws.ToString(out.MessageId),
	})
	return nil
}
