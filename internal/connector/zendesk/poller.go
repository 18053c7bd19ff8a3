package zendesk

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/common/metrics"
	"helpdesk-triage/internal/engine/schema"
	"helpdesk-triage/internal/engine/sentiment"
	"helpdesk-triage/internal/store"
)

// seenSetKey is the Redis set holding ticket IDs already processed.
const seenSetKey = "triage:zendesk:seen"

// Classifier is the engine surface the poller drives.
type Classifier interface {
	Classify(ctx context.Context, ticket schema.TicketInput) schema.Decision
}

// SeenSet deduplicates tickets across polls and restarts. Backed by Redis in
// production.
type SeenSet interface {
	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)
	SAdd(ctx context.Context, key string, members ...interface{}) error
}

// RecordSaver persists processed decisions.
type RecordSaver interface {
	SaveRecord(ctx context.Context, record *store.Record) error
}

// EventPublisher streams decision events. Optional.
type EventPublisher interface {
	Publish(ctx context.Context, event store.DecisionEvent) error
}

// Escalator routes tickets needing human attention. Optional.
type Escalator interface {
	ShouldEscalate(decision schema.Decision, label sentiment.Label) bool
	Escalate(ctx context.Context, ticket schema.TicketInput, decision schema.Decision, label sentiment.Label) error
}

// Poller fetches new tickets on an interval and runs each through the
// triage pipeline: classify, persist, post the response back, publish the
// decision event, escalate when needed.
type Poller struct {
	client      *Client
	classifier  Classifier
	detector    *sentiment.Detector
	seen        SeenSet
	records     RecordSaver
	events      EventPublisher
	escalator   Escalator
	interval    time.Duration
	publicReply bool
	logger      logger.Logger
}

type PollerOptions struct {
	Client      *Client
	Classifier  Classifier
	Detector    *sentiment.Detector
	Seen        SeenSet
	Records     RecordSaver
	Events      EventPublisher
	Escalator   Escalator
	Interval    time.Duration
	PublicReply bool
	Logger      logger.Logger
}

func NewPoller(opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	detector := opts.Detector
	if detector == nil {
		detector = sentiment.NewDetector()
	}

	return &Poller{
		client:      opts.Client,
		classifier:  opts.Classifier,
		detector:    detector,
		seen:        opts.Seen,
		records:     opts.Records,
		events:      opts.Events,
		escalator:   opts.Escalator,
		interval:    interval,
		publicReply: opts.PublicReply,
		logger: opts.Logger.WithFields(map[string]interface{}{
			"component": "zendesk-poller",
		}),
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", map[string]interface{}{
		"interval": p.interval.String(),
	})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", nil)
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches the latest tickets and processes the unseen ones. Errors
// on individual tickets are logged and do not stop the batch.
func (p *Poller) PollOnce(ctx context.Context) {
	tickets, err := p.client.ListRecent(ctx)
	if err != nil {
		p.logger.Error("ticket fetch failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for _, ticket := range tickets {
		if ctx.Err() != nil {
			return
		}

		seen, err := p.seen.SIsMember(ctx, seenSetKey, ticket.ID)
		if err != nil {
			p.logger.Warn("seen-set lookup failed, skipping ticket", map[string]interface{}{
				"ticketId": ticket.ID,
				"error":    err.Error(),
			})
			continue
		}
		if seen {
			continue
		}

		if err := p.process(ctx, ticket); err != nil {
			metrics.TicketsProcessed.WithLabelValues("error").Inc()
			p.logger.Error("ticket processing failed", map[string]interface{}{
				"ticketId": ticket.ID,
				"error":    err.Error(),
			})
			continue
		}

		metrics.TicketsProcessed.WithLabelValues("ok").Inc()

		// Marked seen only after successful processing so failed tickets
		// are retried on the next poll.
		if err := p.seen.SAdd(ctx, seenSetKey, ticket.ID); err != nil {
			p.logger.Warn("seen-set update failed", map[string]interface{}{
				"ticketId": ticket.ID,
				"error":    err.Error(),
			})
		}
	}
}

func (p *Poller) process(ctx context.Context, ticket Ticket) error {
	input := schema.TicketInput{
		ID:      strconv.FormatInt(ticket.ID, 10),
		Subject: ticket.Subject,
		Body:    ticket.Description,
	}

	decision := p.classifier.Classify(ctx, input)
	label := p.detector.Detect(input.Text())

	if p.records != nil {
		if err := p.records.SaveRecord(ctx, store.NewRecord(input, decision, label)); err != nil {
			return err
		}
	}

	comment := formatComment(decision, label)
	if err := p.client.AddComment(ctx, ticket.ID, comment, p.publicReply); err != nil {
		return err
	}

	if p.events != nil {
		event := store.DecisionEvent{
			TicketID:         input.ID,
			Category:         string(decision.Category),
			Subcategory:      decision.Subcategory,
			Summary:          decision.Summary,
			ConfidenceSource: decision.ConfidenceSource,
			Sentiment:        string(label),
		}
		if err := p.events.Publish(ctx, event); err != nil {
			// Events are advisory; the ticket is already handled.
			p.logger.Warn("decision event publish failed", map[string]interface{}{
				"ticketId": input.ID,
				"error":    err.Error(),
			})
		}
	}

	if p.escalator != nil && p.escalator.ShouldEscalate(decision, label) {
		if err := p.escalator.Escalate(ctx, input, decision, label); err != nil {
			p.logger.Warn("escalation failed", map[string]interface{}{
				"ticketId": input.ID,
				"error":    err.Error(),
			})
		}
	}

	return nil
}

// formatComment renders the triage outcome as an agent-readable comment.
func formatComment(decision schema.Decision, label sentiment.Label) string {
	return fmt.Sprintf(
		"Triage result\nCategory: %s / %s\nSentiment: %s\nSummary: %s\nSource: %s\n\nSuggested response:\n%s",
		decision.Category, decision.Subcategory, label, decision.Summary, decision.ConfidenceSource, decision.Response,
	)
}
