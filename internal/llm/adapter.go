package llm

import (
	"context"
	"strings"

	"github.com/temirov/llm-csv/internal/pipeline"
)

// Adapter adapts pipeline.LLMRequest to the concrete HTTP client.
type Adapter struct {
	Client              Client
	DefaultModel        string
	DefaultTemp         float64
	DefaultTokens       int
	SupportsTemperature bool
	// JSONMode requests a JSON object answer from the endpoint.
	JSONMode bool
}

func (a Adapter) Chat(ctx context.Context, req pipeline.LLMRequest) (pipeline.LLMResponse, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = a.DefaultModel
	}

	messages := make([]ChatMessage, 0, 2)
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: strings.TrimSpace(req.UserPrompt)})

	cr := ChatCompletionRequest{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: chooseInt(req.MaxTokens, a.DefaultTokens),
	}
	// Reasoning models reject any temperature other than the server default.
	if a.SupportsTemperature {
		resolvedTemp := chooseFloat(req.Temperature, a.DefaultTemp)
		cr.Temperature = &resolvedTemp
	}
	if a.JSONMode {
		cr.ResponseFormat = &ResponseFormat{Type: responseFormatJSONObject}
	}

	out, err := a.Client.CreateChatCompletion(ctx, cr)
	if err != nil {
		return pipeline.LLMResponse{}, err
	}
	return pipeline.LLMResponse{RawText: out}, nil
}

func chooseInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func chooseFloat(a, b float64) float64 {
	if a > 0 {
		return a
	}
	return b
}
