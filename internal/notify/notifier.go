// Package notify escalates tickets that need human attention: decisions
// that fell through to the keyword rules, and tickets with negative
// sentiment.
package notify

import (
	"context"
	"fmt"
	"strings"

	"helpdesk-triage/internal/common/config"
	"helpdesk-triage/internal/common/errors"
	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/engine/schema"
	"helpdesk-triage/internal/engine/sentiment"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// EmailSender is the SES surface the notifier uses; satisfied by the aws
// package client and by test fakes.
type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SMSSender is the SNS surface the notifier uses.
type SMSSender interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Notifier sends escalation notifications over the channels enabled in
// configuration. A nil sender disables that channel regardless of config.
type Notifier struct {
	cfg    config.EscalationConfig
	email  EmailSender
	sms    SMSSender
	logger logger.Logger
}

func NewNotifier(cfg config.EscalationConfig, email EmailSender, sms SMSSender, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:   cfg,
		email: email,
		sms:   sms,
		logger: log.WithFields(map[string]interface{}{
			"component": "notifier",
		}),
	}
}

// ShouldEscalate reports whether the ticket needs human attention: the
// models never produced a valid decision, or the customer sounds upset.
func (n *Notifier) ShouldEscalate(decision schema.Decision, label sentiment.Label) bool {
	return decision.ConfidenceSource == schema.SourceRuleFallback || label == sentiment.Negative
}

// Escalate sends the notification over every enabled channel. Channel
// failures are collected; a partial send still reports the failed channels.
func (n *Notifier) Escalate(ctx context.Context, ticket schema.TicketInput, decision schema.Decision, label sentiment.Label) error {
	subject := fmt.Sprintf("[Triage escalation] Ticket %s (%s)", ticket.ID, decision.Category)
	body := n.buildBody(ticket, decision, label)

	var failures []string

	if n.cfg.Email.Enabled && n.email != nil {
		if err := n.sendEmail(ctx, subject, body); err != nil {
			failures = append(failures, "email: "+err.Error())
		}
	}

	if n.cfg.SMS.Enabled && n.sms != nil {
		if err := n.sendSMS(ctx, subject); err != nil {
			failures = append(failures, "sms: "+err.Error())
		}
	}

	if len(failures) > 0 {
		return errors.NewNotificationSendFailedError(fmt.Errorf("%s", strings.Join(failures, "; ")))
	}

	n.logger.Info("escalation sent", map[string]interface{}{
		"ticketId":  ticket.ID,
		"category":  decision.Category,
		"sentiment": label,
	})
	return nil
}

func (n *Notifier) buildBody(ticket schema.TicketInput, decision schema.Decision, label sentiment.Label) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket: %s\n", ticket.ID)
	fmt.Fprintf(&b, "Subject: %s\n", ticket.Subject)
	fmt.Fprintf(&b, "Category: %s / %s\n", decision.Category, decision.Subcategory)
	fmt.Fprintf(&b, "Source: %s\n", decision.ConfidenceSource)
	fmt.Fprintf(&b, "Sentiment: %s\n\n", label)
	fmt.Fprintf(&b, "Summary: %s\n", decision.Summary)
	return b.String()
}

func (n *Notifier) sendEmail(ctx context.Context, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(n.cfg.Email.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{n.cfg.Email.ToEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	}

	_, err := n.email.SendEmail(ctx, input)
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(n.cfg.SMS.Phone),
		Message:     aws.String(message),
	}

	_, err := n.sms.Publish(ctx, input)
	return err
}
