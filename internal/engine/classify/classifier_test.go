// internal/engine/classify/classifier_test.go
package classify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"helpdesk-triage/internal/common/config"
	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/common/metrics"
	"helpdesk-triage/internal/engine/invoke"
	"helpdesk-triage/internal/engine/schema"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const validOutput = `{"category": "BILLING", "subcategory": "refund", "summary": "Double charge", "response": "We'll refund you."}`

type completion struct {
	output string
	err    error
}

// scriptedCompleter replays a fixed sequence of completions and records the
// model and prompt of every call.
type scriptedCompleter struct {
	mu      sync.Mutex
	script  []completion
	models  []string
	prompts []string
}

func (c *scriptedCompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models = append(c.models, model)
	c.prompts = append(c.prompts, prompt)

	i := len(c.models) - 1
	if i >= len(c.script) {
		return "", invoke.ErrModelUnavailable
	}
	return c.script[i].output, c.script[i].err
}

func (c *scriptedCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}

type staticRetriever struct {
	context string
	err     error
}

func (r staticRetriever) Retrieve(ctx context.Context, text string) (string, error) {
	return r.context, r.err
}

func testModels(names ...string) []config.ModelConfig {
	models := make([]config.ModelConfig, 0, len(names))
	for _, n := range names {
		models = append(models, config.ModelConfig{Name: n, Timeout: 5000})
	}
	return models
}

func newTestOrchestrator(t *testing.T, completer invoke.Completer, models []config.ModelConfig) *Orchestrator {
	return New(models, completer, nil, DefaultRules(), 4, logger.NewTestLogger(t))
}

func testTicket() schema.TicketInput {
	return schema.TicketInput{ID: "1", Subject: "Refund", Body: "I was charged twice."}
}

// ==========================
// Happy Path Tests
// ==========================

func TestClassify_FirstModelSucceeds(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{{output: validOutput}}}
	o := newTestOrchestrator(t, completer, testModels("model-a", "model-b"))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, schema.CategoryBilling, decision.Category)
	assert.Equal(t, "model-a", decision.ConfidenceSource)
	assert.Equal(t, 1, completer.calls())
}

func TestClassify_RecoversWrappedOutput(t *testing.T) {
	wrapped := "Here you go:\n" + validOutput + "\nHope that helps!"
	completer := &scriptedCompleter{script: []completion{{output: wrapped}}}
	o := newTestOrchestrator(t, completer, testModels("model-a"))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, schema.CategoryBilling, decision.Category)
	assert.Equal(t, "model-a", decision.ConfidenceSource)
}

// ==========================
// Repair Path Tests
// ==========================

func TestClassify_RepairAfterExtractionFailure(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{
		{output: "I think this is a billing issue."},
		{output: validOutput},
	}}
	o := newTestOrchestrator(t, completer, testModels("model-a"))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, "model-a", decision.ConfidenceSource)
	require.Equal(t, 2, completer.calls())
	assert.Equal(t, []string{"model-a", "model-a"}, completer.models)

	// The re-invocation carries the stricter instruction; the first does not.
	assert.NotContains(t, completer.prompts[0], "not valid JSON")
	assert.Contains(t, completer.prompts[1], "not valid JSON")
}

func TestClassify_RepairAfterValidationFailure(t *testing.T) {
	missingResponse := `{"category": "BILLING", "subcategory": "refund", "summary": "s"}`
	completer := &scriptedCompleter{script: []completion{
		{output: missingResponse},
		{output: validOutput},
	}}
	o := newTestOrchestrator(t, completer, testModels("model-a"))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, schema.CategoryBilling, decision.Category)
	assert.Equal(t, "model-a", decision.ConfidenceSource)
	assert.Equal(t, 2, completer.calls())
}

func TestClassify_OneRepairPerModelThenNextModel(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{
		{output: "garbage"},
		{output: "still garbage"},
		{output: validOutput},
	}}
	o := newTestOrchestrator(t, completer, testModels("model-a", "model-b"))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, "model-b", decision.ConfidenceSource)
	require.Equal(t, 3, completer.calls())
	assert.Equal(t, []string{"model-a", "model-a", "model-b"}, completer.models)
}

// ==========================
// Invocation Failure Tests
// ==========================

func TestClassify_InvocationFailureSkipsRepair(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{
		{err: invoke.ErrModelUnavailable},
		{output: validOutput},
	}}
	o := newTestOrchestrator(t, completer, testModels("model-a", "model-b"))

	decision := o.Classify(context.Background(), testTicket())

	// No repair attempt against the unavailable model.
	assert.Equal(t, "model-b", decision.ConfidenceSource)
	assert.Equal(t, []string{"model-a", "model-b"}, completer.models)
}

func TestClassify_TimeoutAdvancesToNextModel(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{
		{err: invoke.ErrModelTimeout},
		{output: validOutput},
	}}
	o := newTestOrchestrator(t, completer, testModels("model-a", "model-b"))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, "model-b", decision.ConfidenceSource)
}

// ==========================
// Fallback Tests
// ==========================

func TestClassify_AllModelsFailFallsBack(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{
		{output: "garbage"},
		{output: "garbage"},
		{output: "garbage"},
		{output: "garbage"},
	}}
	o := newTestOrchestrator(t, completer, testModels("model-a", "model-b"))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, schema.SourceRuleFallback, decision.ConfidenceSource)
	assert.Equal(t, schema.CategoryBilling, decision.Category)
	assert.NotEmpty(t, decision.Summary)
	assert.NotEmpty(t, decision.Response)
}

func TestClassify_InvocationBound(t *testing.T) {
	// Worst case: every model fails extraction twice. The total invocation
	// count stays at twice the model list length.
	completer := &scriptedCompleter{script: []completion{
		{output: "x"}, {output: "x"}, {output: "x"},
		{output: "x"}, {output: "x"}, {output: "x"},
	}}
	models := testModels("model-a", "model-b", "model-c")
	o := newTestOrchestrator(t, completer, models)

	_ = o.Classify(context.Background(), testTicket())

	assert.Equal(t, 2*len(models), completer.calls())
}

func TestClassify_NoModelsConfigured(t *testing.T) {
	completer := &scriptedCompleter{}
	o := newTestOrchestrator(t, completer, nil)

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, schema.SourceRuleFallback, decision.ConfidenceSource)
	assert.Equal(t, 0, completer.calls())
}

// blockingCompleter signals when a call enters and holds it until released,
// so tests can pin the concurrency semaphore.
type blockingCompleter struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingCompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	close(c.entered)
	<-c.release
	return validOutput, nil
}

func TestClassify_AbandonedWhileQueuedCountsFallback(t *testing.T) {
	completer := &blockingCompleter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := New(testModels("model-a"), completer, nil, DefaultRules(), 1, logger.NewNoOpLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Classify(context.Background(), testTicket())
	}()
	<-completer.entered

	before := testutil.ToFloat64(metrics.FallbackTotal)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	decision := o.Classify(ctx, testTicket())

	assert.Equal(t, schema.SourceRuleFallback, decision.ConfidenceSource)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FallbackTotal))

	close(completer.release)
	wg.Wait()
}

// ==========================
// Retrieval Tests
// ==========================

func TestClassify_RetrievedContextReachesPrompt(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{{output: validOutput}}}
	retriever := staticRetriever{context: "- past refund => We refunded them"}
	o := New(testModels("model-a"), completer, retriever, DefaultRules(), 1, logger.NewTestLogger(t))

	_ = o.Classify(context.Background(), testTicket())

	require.Equal(t, 1, completer.calls())
	assert.Contains(t, completer.prompts[0], "past refund")
}

func TestClassify_RetrievalFailureIsNonFatal(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{{output: validOutput}}}
	retriever := staticRetriever{err: errors.New("search unreachable")}
	o := New(testModels("model-a"), completer, retriever, DefaultRules(), 1, logger.NewTestLogger(t))

	decision := o.Classify(context.Background(), testTicket())

	assert.Equal(t, "model-a", decision.ConfidenceSource)
	assert.NotContains(t, completer.prompts[0], "examples as context")
}

func TestClassify_CallerContextWinsOverRetrieval(t *testing.T) {
	completer := &scriptedCompleter{script: []completion{{output: validOutput}}}
	retriever := staticRetriever{context: "- retrieved line => ignored"}
	o := New(testModels("model-a"), completer, retriever, DefaultRules(), 1, logger.NewTestLogger(t))

	ticket := testTicket()
	ticket.Context = "- caller supplied => used"
	_ = o.Classify(context.Background(), ticket)

	assert.Contains(t, completer.prompts[0], "caller supplied")
	assert.NotContains(t, completer.prompts[0], "retrieved line")
}

// ==========================
// Concurrency Tests
// ==========================

func TestClassify_ConcurrentCallsAreIndependent(t *testing.T) {
	// Enough scripted outputs for every call to succeed on the first try.
	script := make([]completion, 32)
	for i := range script {
		script[i] = completion{output: validOutput}
	}
	completer := &scriptedCompleter{script: script}
	o := New(testModels("model-a"), completer, nil, DefaultRules(), 2, logger.NewNoOpLogger())

	var wg sync.WaitGroup
	results := make([]schema.Decision, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Classify(context.Background(), testTicket())
		}(i)
	}
	wg.Wait()

	for _, d := range results {
		assert.Equal(t, schema.CategoryBilling, d.Category)
		assert.False(t, strings.TrimSpace(d.Response) == "")
	}
}
