package config_test

import (
	"strings"
	"testing"

	"github.com/temirov/llm-csv/internal/config"
)

const chainConfiguration = `
models:
  - name: mini
    provider: openai
    model_id: gpt-mini
    default: true
  - name: large
    provider: openai
    model_id: gpt-large
prompts:
  - name: score
    system: "score rows"
    user: "{title}"
    keys: [title]
chains:
  - name: scoring
    enabled: true
    prompt: score
    output_parser: json
  - name: pinned
    enabled: true
    prompt: score
    model: large
    output_parser: string
  - name: disabled
    enabled: false
    prompt: score
  - name: dangling
    enabled: true
    prompt: missing
`

func loadChainConfiguration(t *testing.T) config.Root {
	t.Helper()
	rootConfiguration, err := config.LoadRoot(config.RootConfigurationSource{Reference: "inline", Content: []byte(chainConfiguration)})
	if err != nil {
		t.Fatalf("load root: %v", err)
	}
	return rootConfiguration
}

func TestResolveChain(t *testing.T) {
	rootConfiguration := loadChainConfiguration(t)

	testCases := []struct {
		name          string
		chain         string
		modelOverride string
		expectedModel string
		expectedError string
	}{
		{name: "chain without model uses default", chain: "scoring", expectedModel: "gpt-mini"},
		{name: "chain model is honoured", chain: "pinned", expectedModel: "gpt-large"},
		{name: "override replaces chain model", chain: "pinned", modelOverride: "mini", expectedModel: "gpt-mini"},
		{name: "disabled chain rejected", chain: "disabled", expectedError: "unknown or disabled chain"},
		{name: "missing chain rejected", chain: "nope", expectedError: "unknown or disabled chain"},
		{name: "dangling prompt rejected", chain: "dangling", expectedError: "unknown prompt"},
		{name: "unknown override rejected", chain: "scoring", modelOverride: "ghost", expectedError: "unknown model"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resolved, err := rootConfiguration.ResolveChain(testCase.chain, testCase.modelOverride)
			if testCase.expectedError != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.expectedError) {
					t.Fatalf("expected error containing %q, got %v", testCase.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if resolved.Model.ModelID != testCase.expectedModel {
				t.Fatalf("expected model %s, got %s", testCase.expectedModel, resolved.Model.ModelID)
			}
			if resolved.Prompt.Name != "score" {
				t.Fatalf("expected prompt score, got %s", resolved.Prompt.Name)
			}
		})
	}
}

func TestLoadRootValidation(t *testing.T) {
	testCases := []struct {
		name          string
		content       string
		expectedError string
	}{
		{name: "empty content", content: "", expectedError: "is empty"},
		{name: "no models", content: "prompts: []\n", expectedError: "config.models is empty"},
		{name: "no default model", content: "models:\n  - name: a\n", expectedError: "no default model"},
		{name: "two default models", content: "models:\n  - name: a\n    default: true\n  - name: b\n    default: true\n", expectedError: "both marked default"},
		{name: "duplicate prompt", content: "models:\n  - name: a\n    default: true\nprompts:\n  - name: p\n  - name: p\n", expectedError: "duplicate prompt"},
		{name: "blank chain name", content: "models:\n  - name: a\n    default: true\nchains:\n  - prompt: p\n", expectedError: "blank name"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := config.LoadRoot(config.RootConfigurationSource{Reference: "inline", Content: []byte(testCase.content)})
			if err == nil || !strings.Contains(err.Error(), testCase.expectedError) {
				t.Fatalf("expected error containing %q, got %v", testCase.expectedError, err)
			}
		})
	}
}
