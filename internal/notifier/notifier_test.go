package notifier

import (
	"context"
	"errors"
	"testing"

	"mergington-activities/internal/common/config"
	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

func TestEmailNotifier_SignedUp(t *testing.T) {
	var captured *ses.SendEmailInput
	mock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			captured = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
		},
	}

	n := NewEmailNotifier(mock, "activities@mergington.edu", logger.NewTestLogger(t))
	require.NoError(t, n.SignedUp(context.Background(), "Chess Club", "a@x.com"))

	require.NotNil(t, captured)
	assert.Equal(t, "activities@mergington.edu", aws.ToString(captured.Source))
	assert.Equal(t, []string{"a@x.com"}, captured.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(captured.Message.Subject.Data), "Chess Club")
	assert.Contains(t, aws.ToString(captured.Message.Body.Text.Data), "registered for Chess Club")
}

func TestEmailNotifier_Unregistered(t *testing.T) {
	var subject string
	mock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			subject = aws.ToString(params.Message.Subject.Data)
			return &ses.SendEmailOutput{}, nil
		},
	}

	n := NewEmailNotifier(mock, "activities@mergington.edu", logger.NewTestLogger(t))
	require.NoError(t, n.Unregistered(context.Background(), "Drama Club", "a@x.com"))
	assert.Equal(t, "You've left Drama Club", subject)
}

func TestEmailNotifier_SendFailure(t *testing.T) {
	mock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	n := NewEmailNotifier(mock, "activities@mergington.edu", logger.NewTestLogger(t))
	err := n.SignedUp(context.Background(), "Chess Club", "a@x.com")

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeNotificationFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestNew_DisabledReturnsNoop(t *testing.T) {
	n, err := New(context.Background(), config.NotificationConfig{}, logger.NewTestLogger(t))
	require.NoError(t, err)

	assert.IsType(t, Noop{}, n)
	assert.NoError(t, n.SignedUp(context.Background(), "Chess Club", "a@x.com"))
	assert.NoError(t, n.Unregistered(context.Background(), "Chess Club", "a@x.com"))
}
