package pipeline

import "context"

// LLMRequest is one rendered chat prompt.
type LLMRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	Model        string
}

type LLMResponse struct {
	RawText string
}

// BatchInvoker submits rendered prompts as one batch and returns one raw text per prompt, in order.
type BatchInvoker interface {
	InvokeBatch(ctx context.Context, requests []LLMRequest) ([]string, error)
}

// Record is one structured model answer decoded from raw text.
type Record map[string]any
