// Package retrieval supplies optional contextual examples for the
// classification prompt. The engine treats retrievers as black boxes: a
// failure or empty result never fails classification.
package retrieval

import "context"

// Retriever returns prompt context for a ticket text.
type Retriever interface {
	Retrieve(ctx context.Context, text string) (string, error)
}

// Noop is the retriever used when retrieval is disabled.
type Noop struct{}

func (Noop) Retrieve(ctx context.Context, text string) (string, error) {
	return "", nil
}
