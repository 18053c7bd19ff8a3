// Package classify drives the retry and fallback policy across the model
// invoker, extractor, and validator. Classify never fails outward: every
// call terminates in a schema-valid decision, from a model or from the
// deterministic rule fallback.
package classify

import (
	"context"
	"errors"
	"time"

	"helpdesk-triage/internal/common/config"
	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/common/metrics"
	"helpdesk-triage/internal/engine/extract"
	"helpdesk-triage/internal/engine/invoke"
	"helpdesk-triage/internal/engine/retrieval"
	"helpdesk-triage/internal/engine/schema"
)

// Attempt records one model try for diagnostics. Attempts are surfaced
// through logging and metrics only; they never alter the returned decision.
type Attempt struct {
	Model      string `json:"model"`
	Repair     bool   `json:"repair"`
	Invocation string `json:"invocation,omitempty"`
	Extraction string `json:"extraction,omitempty"`
	Validation string `json:"validation,omitempty"`
	Accepted   bool   `json:"accepted"`
}

// Orchestrator holds the per-construction configuration: the explicit
// ordered model list, collaborators, and the concurrency bound. It has no
// mutable state; concurrent Classify calls are independent.
type Orchestrator struct {
	models    []config.ModelConfig
	completer invoke.Completer
	retriever retrieval.Retriever
	rules     *Rules
	sem       chan struct{}
	logger    logger.Logger
}

func New(
	models []config.ModelConfig,
	completer invoke.Completer,
	retriever retrieval.Retriever,
	rules *Rules,
	maxConcurrent int,
	log logger.Logger,
) *Orchestrator {
	if retriever == nil {
		retriever = retrieval.Noop{}
	}
	if rules == nil {
		rules = DefaultRules()
	}

	var sem chan struct{}
	if maxConcurrent > 0 {
		sem = make(chan struct{}, maxConcurrent)
	}

	return &Orchestrator{
		models:    models,
		completer: completer,
		retriever: retriever,
		rules:     rules,
		sem:       sem,
		logger: log.With(map[string]interface{}{
			"component": "classifier",
		}),
	}
}

// Classify produces a valid decision for the ticket. At most one repair
// re-invocation per model, then the next model, then the rule fallback; the
// total invocation count is bounded by twice the model list length.
func (o *Orchestrator) Classify(ctx context.Context, ticket schema.TicketInput) schema.Decision {
	start := time.Now()

	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-ctx.Done():
			// Caller abandoned the call while queued; the fallback still
			// honors the always-return-a-decision contract.
			return o.fallback(ticket, nil, start)
		}
	}

	metrics.ClassificationsActive.Inc()
	defer metrics.ClassificationsActive.Dec()

	contextText := o.retrieveContext(ctx, ticket)

	var attempts []Attempt
	for _, model := range o.models {
		if decision, ok := o.tryModel(ctx, model, ticket, contextText, &attempts); ok {
			return o.finish(ticket, decision, attempts, start)
		}
	}

	return o.fallback(ticket, attempts, start)
}

// fallback is the single exit for rule-based decisions so both the
// exhausted-models and abandoned-while-queued paths share the same metric
// accounting.
func (o *Orchestrator) fallback(ticket schema.TicketInput, attempts []Attempt, start time.Time) schema.Decision {
	metrics.FallbackTotal.Inc()
	return o.finish(ticket, o.rules.Decide(ticket), attempts, start)
}

// retrieveContext asks the retrieval collaborator for prompt context. Any
// failure means classification proceeds without context.
func (o *Orchestrator) retrieveContext(ctx context.Context, ticket schema.TicketInput) string {
	if ticket.Context != "" {
		return ticket.Context
	}

	contextText, err := o.retriever.Retrieve(ctx, ticket.Text())
	if err != nil {
		o.logger.Warn("context retrieval failed, proceeding without context", map[string]interface{}{
			"ticketId": ticket.ID,
			"error":    err.Error(),
		})
		return ""
	}
	return contextText
}

// tryModel runs the TryModel -> TryExtract -> TryValidate states for one
// model. Extraction and validation failures get a single repair
// re-invocation with the stricter prompt; an invocation failure advances to
// the next model immediately.
func (o *Orchestrator) tryModel(
	ctx context.Context,
	model config.ModelConfig,
	ticket schema.TicketInput,
	contextText string,
	attempts *[]Attempt,
) (schema.Decision, bool) {
	for _, repair := range []bool{false, true} {
		attempt := Attempt{Model: model.Name, Repair: repair}

		prompt := buildPrompt(ticket.Text(), contextText, ticket.History, repair)

		invokeCtx := ctx
		cancel := func() {}
		if timeout := config.GetDuration(model.Timeout); timeout > 0 {
			invokeCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		raw, err := o.completer.Complete(invokeCtx, model.Name, prompt)
		cancel()

		if err != nil {
			attempt.Invocation = invocationKind(err)
			*attempts = append(*attempts, attempt)
			metrics.ModelAttemptsTotal.WithLabelValues(model.Name, attempt.Invocation).Inc()
			o.logger.Warn("model invocation failed", map[string]interface{}{
				"ticketId": ticket.ID,
				"model":    model.Name,
				"kind":     attempt.Invocation,
			})
			return schema.Decision{}, false
		}

		candidate, xerr := extract.Extract(raw)
		if xerr != nil {
			attempt.Extraction = xerr.Stage
			*attempts = append(*attempts, attempt)
			metrics.ModelAttemptsTotal.WithLabelValues(model.Name, "extraction_failed").Inc()
			o.logger.Warn("extraction failed", map[string]interface{}{
				"ticketId": ticket.ID,
				"model":    model.Name,
				"stage":    xerr.Stage,
				"repair":   repair,
			})
			continue
		}

		decision, verr := schema.Validate(candidate)
		if verr != nil {
			attempt.Validation = verr.Error()
			*attempts = append(*attempts, attempt)
			metrics.ModelAttemptsTotal.WithLabelValues(model.Name, "validation_failed").Inc()
			o.logger.Warn("validation failed", map[string]interface{}{
				"ticketId": ticket.ID,
				"model":    model.Name,
				"fields":   verr.Fields,
				"repair":   repair,
			})
			continue
		}

		attempt.Accepted = true
		*attempts = append(*attempts, attempt)
		metrics.ModelAttemptsTotal.WithLabelValues(model.Name, "accepted").Inc()

		decision.ConfidenceSource = model.Name
		return *decision, true
	}

	return schema.Decision{}, false
}

func (o *Orchestrator) finish(ticket schema.TicketInput, decision schema.Decision, attempts []Attempt, start time.Time) schema.Decision {
	elapsed := time.Since(start)
	metrics.ClassificationDuration.Observe(elapsed.Seconds())
	metrics.ClassificationsTotal.WithLabelValues(decision.ConfidenceSource, string(decision.Category)).Inc()

	o.logger.Info("ticket classified", map[string]interface{}{
		"ticketId":   ticket.ID,
		"category":   decision.Category,
		"source":     decision.ConfidenceSource,
		"attempts":   len(attempts),
		"durationMs": elapsed.Milliseconds(),
	})

	return decision
}

func invocationKind(err error) string {
	switch {
	case errors.Is(err, invoke.ErrModelTimeout):
		return "timeout"
	case errors.Is(err, invoke.ErrEmptyOutput):
		return "empty_output"
	default:
		return "unavailable"
	}
}
