// Package llm provides the text-generation collaborator used by the
// extraction and briefing pipelines. Production use goes through the AWS
// Bedrock client; tests substitute the Invoker interface.
package llm

import (
	"context"
	"fmt"
)

// Invoker is a blocking text-generation call with a bounded output size.
// Implementations retry transient failures internally and return the model's
// raw output text; an error means the retry budget is exhausted and the
// caller's unit of work (one document or one briefing window) failed.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Invoke calls the wrapped function
func (f InvokerFunc) Invoke(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// Disabled returns an invoker that always fails, for processes that only
// read the ledger and must never call a model
func Disabled() Invoker {
	return InvokerFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", fmt.Errorf("text generation is disabled in this process")
	})
}
