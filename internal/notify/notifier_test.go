// internal/notify/notifier_test.go
package notify

import (
	"context"
	"testing"

	stderrors "errors"

	"helpdesk-triage/internal/common/config"
	apperrors "helpdesk-triage/internal/common/errors"
	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/engine/schema"
	"helpdesk-triage/internal/engine/sentiment"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeEmail struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeEmail) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{}, nil
}

type fakeSMS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSMS) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func escalationConfig(email, sms bool) config.EscalationConfig {
	var cfg config.EscalationConfig
	cfg.AWS.Region = "us-east-1"
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "triage@example.com"
	cfg.Email.ToEmail = "oncall@example.com"
	cfg.SMS.Enabled = sms
	cfg.SMS.Phone = "+15550100"
	return cfg
}

func modelDecision() schema.Decision {
	return schema.Decision{
		Category:         schema.CategoryBilling,
		Subcategory:      "refund",
		Summary:          "Customer was charged twice",
		Response:         "r",
		ConfidenceSource: "llama3.2:3b",
	}
}

func fallbackDecision() schema.Decision {
	d := modelDecision()
	d.ConfidenceSource = schema.SourceRuleFallback
	return d
}

// ==========================
// ShouldEscalate Tests
// ==========================

func TestShouldEscalate(t *testing.T) {
	n := NewNotifier(escalationConfig(true, true), nil, nil, logger.NewTestLogger(t))

	tests := []struct {
		name     string
		decision schema.Decision
		label    sentiment.Label
		want     bool
	}{
		{"model decision, neutral sentiment", modelDecision(), sentiment.Neutral, false},
		{"model decision, positive sentiment", modelDecision(), sentiment.Positive, false},
		{"model decision, negative sentiment", modelDecision(), sentiment.Negative, true},
		{"fallback decision, neutral sentiment", fallbackDecision(), sentiment.Neutral, true},
		{"fallback decision, negative sentiment", fallbackDecision(), sentiment.Negative, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.ShouldEscalate(tt.decision, tt.label))
		})
	}
}

// ==========================
// Escalate Tests
// ==========================

func TestEscalate_SendsEmail(t *testing.T) {
	email := &fakeEmail{}
	n := NewNotifier(escalationConfig(true, false), email, nil, logger.NewTestLogger(t))

	ticket := schema.TicketInput{ID: "42", Subject: "Refund please"}
	err := n.Escalate(context.Background(), ticket, fallbackDecision(), sentiment.Negative)

	require.NoError(t, err)
	require.Len(t, email.inputs, 1)

	input := email.inputs[0]
	assert.Equal(t, "triage@example.com", *input.Source)
	assert.Equal(t, []string{"oncall@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, "[Triage escalation] Ticket 42 (BILLING)", *input.Message.Subject.Data)

	body := *input.Message.Body.Text.Data
	assert.Contains(t, body, "Ticket: 42")
	assert.Contains(t, body, "Subject: Refund please")
	assert.Contains(t, body, "Category: BILLING / refund")
	assert.Contains(t, body, "Sentiment: NEGATIVE")
}

func TestEscalate_SendsSMS(t *testing.T) {
	sms := &fakeSMS{}
	n := NewNotifier(escalationConfig(false, true), nil, sms, logger.NewTestLogger(t))

	err := n.Escalate(context.Background(), schema.TicketInput{ID: "7"}, fallbackDecision(), sentiment.Neutral)

	require.NoError(t, err)
	require.Len(t, sms.inputs, 1)
	assert.Equal(t, "+15550100", *sms.inputs[0].PhoneNumber)
	assert.Contains(t, *sms.inputs[0].Message, "Ticket 7")
}

func TestEscalate_BothChannels(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	n := NewNotifier(escalationConfig(true, true), email, sms, logger.NewTestLogger(t))

	err := n.Escalate(context.Background(), schema.TicketInput{ID: "1"}, fallbackDecision(), sentiment.Neutral)

	require.NoError(t, err)
	assert.Len(t, email.inputs, 1)
	assert.Len(t, sms.inputs, 1)
}

func TestEscalate_DisabledChannelSkipped(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	n := NewNotifier(escalationConfig(true, false), email, sms, logger.NewTestLogger(t))

	require.NoError(t, n.Escalate(context.Background(), schema.TicketInput{ID: "1"}, fallbackDecision(), sentiment.Neutral))

	assert.Len(t, email.inputs, 1)
	assert.Empty(t, sms.inputs)
}

func TestEscalate_NilSenderSkipped(t *testing.T) {
	// Channel enabled in config but no client was constructed.
	n := NewNotifier(escalationConfig(true, true), nil, nil, logger.NewTestLogger(t))

	err := n.Escalate(context.Background(), schema.TicketInput{ID: "1"}, fallbackDecision(), sentiment.Neutral)
	assert.NoError(t, err)
}

func TestEscalate_PartialFailure(t *testing.T) {
	email := &fakeEmail{err: stderrors.New("ses throttled")}
	sms := &fakeSMS{}
	n := NewNotifier(escalationConfig(true, true), email, sms, logger.NewTestLogger(t))

	err := n.Escalate(context.Background(), schema.TicketInput{ID: "1"}, fallbackDecision(), sentiment.Neutral)

	require.Error(t, err)
	var stdErr *apperrors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeNotificationSendFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "email: ses throttled")

	// SMS still went out despite the email failure.
	assert.Len(t, sms.inputs, 1)
}
