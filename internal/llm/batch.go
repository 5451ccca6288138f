package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/temirov/llm-csv/internal/config"
	"github.com/temirov/llm-csv/internal/pipeline"
)

const defaultBatchConcurrency = 4

// Chatter sends one rendered prompt to a model.
type Chatter interface {
	Chat(ctx context.Context, req pipeline.LLMRequest) (pipeline.LLMResponse, error)
}

// BatchInvoker fans a batch of prompts out to a Chatter and parses each answer.
type BatchInvoker struct {
	chatter     Chatter
	parser      pipeline.OutputParser
	concurrency int
}

// NewBatchInvoker composes chatter with the output parser named by parserKind.
func NewBatchInvoker(chatter Chatter, parserKind string, concurrency int) (*BatchInvoker, error) {
	parser, err := ResolveParser(parserKind)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &BatchInvoker{chatter: chatter, parser: parser, concurrency: concurrency}, nil
}

// InvokeBatch returns one parsed answer per request, in request order.
// Any failing request fails the whole call.
func (b *BatchInvoker) InvokeBatch(ctx context.Context, requests []pipeline.LLMRequest) ([]string, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	mapper := iter.Mapper[pipeline.LLMRequest, string]{MaxGoroutines: b.concurrency}
	return mapper.MapErr(requests, func(request *pipeline.LLMRequest) (string, error) {
		response, err := b.chatter.Chat(ctx, *request)
		if err != nil {
			return "", err
		}
		return b.parser(response.RawText)
	})
}

// ModelOptions configures NewModelInvoker.
type ModelOptions struct {
	Endpoint         string
	APIKey           string
	Timeout          time.Duration
	OutputParser     string
	BatchConcurrency int
}

// NewModelInvoker builds a BatchInvoker for a configured model. It fails fast on
// provider or parser kinds that cannot be served.
func NewModelInvoker(model config.Model, options ModelOptions) (*BatchInvoker, error) {
	if _, err := NormalizeProvider(model.Provider); err != nil {
		return nil, fmt.Errorf("model %q: %w", model.Name, err)
	}
	parserKind, err := NormalizeParser(options.OutputParser)
	if err != nil {
		return nil, err
	}
	adapter := Adapter{
		Client:              NewClient(options.Endpoint, options.APIKey, options.Timeout),
		DefaultModel:        model.ModelID,
		DefaultTemp:         model.DefaultTemperature,
		DefaultTokens:       model.MaxCompletionTokens,
		SupportsTemperature: model.SupportsTemperature,
		JSONMode:            model.JSONMode && parserKind == ParserJSON,
	}
	return NewBatchInvoker(adapter, parserKind, options.BatchConcurrency)
}
