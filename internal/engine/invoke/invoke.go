// Package invoke talks to the inference backend. A single invocation either
// returns the model's raw text completion or fails with one of the sentinel
// errors below; retry and fallback sequencing live in the orchestrator so
// extraction and validation outcomes can drive them.
package invoke

import (
	"context"
	"errors"
)

var (
	ErrModelUnavailable = errors.New("MODEL_UNAVAILABLE")
	ErrModelTimeout     = errors.New("MODEL_TIMEOUT")
	ErrEmptyOutput      = errors.New("MODEL_EMPTY_OUTPUT")
)

// Completer is the swappable text-completion interface. Implementations
// must honor ctx cancellation and return plain text.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}
