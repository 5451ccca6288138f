package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	emptyModelsErrorMessage                  = "config.models is empty"
	missingDefaultModelErrorMessage          = "no default model found (set models[].default: true)"
	multipleDefaultModelsErrorFormat         = "models %q and %q are both marked default"
	rootConfigurationEmptyContentErrorFormat = "root configuration %s is empty"
	rootConfigurationUnmarshalErrorFormat    = "unmarshal root configuration %s: %w"
	duplicateNameErrorFormat                 = "duplicate %s name %q"
	blankNameErrorFormat                     = "%s[%d] has a blank name"
	unknownChainErrorFormat                  = "unknown or disabled chain %q"
	unknownPromptErrorFormat                 = "chain %q references unknown prompt %q"
	unknownModelErrorFormat                  = "chain %q references unknown model %q"

	DefaultChunkSize        = 100
	DefaultBatchRetries     = 3
	DefaultItemRetries      = 3
	DefaultBaseDelay        = 2 * time.Second
	DefaultTimeout          = 120 * time.Second
	DefaultBatchConcurrency = 4
	DefaultInputExtension   = ".csv"
)

type Root struct {
	Common  Common   `yaml:"common"`
	Models  []Model  `yaml:"models"`
	Prompts []Prompt `yaml:"prompts"`
	Chains  []Chain  `yaml:"chains"`
}

type Common struct {
	API struct {
		Endpoint  string `yaml:"endpoint"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"api"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
	Secrets struct {
		KeyFile   string `yaml:"key_file"`
		StorePath string `yaml:"store_path"`
		DotEnv    string `yaml:"dotenv"`
	} `yaml:"secrets"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Defaults Defaults `yaml:"defaults"`
}

// Defaults holds the run policy applied when the command line does not override it.
type Defaults struct {
	ChunkSize          int           `yaml:"chunk_size"`
	BatchRetries       int           `yaml:"batch_retries"`
	ItemRetries        int           `yaml:"item_retries"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	RateLimitBaseDelay time.Duration `yaml:"rate_limit_base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	Pacing             time.Duration `yaml:"pacing"`
	TimeoutSeconds     int           `yaml:"timeout_seconds"`
	BatchConcurrency   int           `yaml:"batch_concurrency"`
	Extensions         []string      `yaml:"extensions"`
}

type Model struct {
	Name                string  `yaml:"name"`
	Provider            string  `yaml:"provider"`
	ModelID             string  `yaml:"model_id"`
	APIKeyName          string  `yaml:"api_key_name"`
	Default             bool    `yaml:"default"`
	SupportsTemperature bool    `yaml:"supports_temperature"`
	DefaultTemperature  float64 `yaml:"default_temperature"`
	MaxCompletionTokens int     `yaml:"max_completion_tokens"`
	// JSONMode asks the endpoint for a JSON object answer; prompts must then mention JSON.
	JSONMode bool `yaml:"json_mode"`
}

// Prompt is a named pair of chat templates. Keys lists the row columns the templates reference.
type Prompt struct {
	Name         string   `yaml:"name"`
	System       string   `yaml:"system"`
	User         string   `yaml:"user"`
	Keys         []string `yaml:"keys"`
	OutputFields []string `yaml:"output_fields"`
}

// Chain binds a prompt, a model and an output parser under one name.
type Chain struct {
	Name         string `yaml:"name"`
	Enabled      bool   `yaml:"enabled"`
	Prompt       string `yaml:"prompt"`
	Model        string `yaml:"model"`
	OutputParser string `yaml:"output_parser"`
}

// ResolvedChain is a chain with its prompt and model looked up.
type ResolvedChain struct {
	Chain  Chain
	Prompt Prompt
	Model  Model
}

// LoadRoot parses the provided configuration source and validates required fields.
func LoadRoot(source RootConfigurationSource) (Root, error) {
	if len(source.Content) == 0 {
		return Root{}, fmt.Errorf(rootConfigurationEmptyContentErrorFormat, source.Reference)
	}

	var rootConfiguration Root
	if err := yaml.Unmarshal(source.Content, &rootConfiguration); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationUnmarshalErrorFormat, source.Reference, err)
	}

	if len(rootConfiguration.Models) == 0 {
		return Root{}, errors.New(emptyModelsErrorMessage)
	}
	if err := rootConfiguration.validateDefaultModel(); err != nil {
		return Root{}, err
	}
	if err := rootConfiguration.validateNames(); err != nil {
		return Root{}, err
	}
	return rootConfiguration, nil
}

func (root Root) validateDefaultModel() error {
	var defaultName string
	for _, modelConfiguration := range root.Models {
		if !modelConfiguration.Default {
			continue
		}
		if defaultName != "" {
			return fmt.Errorf(multipleDefaultModelsErrorFormat, defaultName, modelConfiguration.Name)
		}
		defaultName = modelConfiguration.Name
	}
	if defaultName == "" {
		return errors.New(missingDefaultModelErrorMessage)
	}
	return nil
}

func (root Root) validateNames() error {
	checks := []struct {
		kind  string
		names []string
	}{
		{kind: "models", names: collectNames(root.Models, func(m Model) string { return m.Name })},
		{kind: "prompts", names: collectNames(root.Prompts, func(p Prompt) string { return p.Name })},
		{kind: "chains", names: collectNames(root.Chains, func(c Chain) string { return c.Name })},
	}
	for _, check := range checks {
		seen := make(map[string]struct{}, len(check.names))
		for index, name := range check.names {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf(blankNameErrorFormat, check.kind, index)
			}
			if _, exists := seen[name]; exists {
				return fmt.Errorf(duplicateNameErrorFormat, strings.TrimSuffix(check.kind, "s"), name)
			}
			seen[name] = struct{}{}
		}
	}
	return nil
}

func collectNames[T any](items []T, name func(T) string) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, name(item))
	}
	return names
}

func (root Root) DefaultModel() (Model, bool) {
	for _, modelConfiguration := range root.Models {
		if modelConfiguration.Default {
			return modelConfiguration, true
		}
	}
	return Model{}, false
}

func (root Root) FindModel(name string) (Model, bool) {
	for _, modelConfiguration := range root.Models {
		if modelConfiguration.Name == name {
			return modelConfiguration, true
		}
	}
	return Model{}, false
}

func (root Root) FindPrompt(name string) (Prompt, bool) {
	for _, promptConfiguration := range root.Prompts {
		if promptConfiguration.Name == name {
			return promptConfiguration, true
		}
	}
	return Prompt{}, false
}

func (root Root) FindChain(name string) (Chain, bool) {
	for _, chain := range root.Chains {
		if chain.Name == name {
			return chain, true
		}
	}
	return Chain{}, false
}

// ResolveChain looks up an enabled chain and its prompt and model. A non-empty
// modelOverride replaces the chain's model; a chain without a model uses the default one.
func (root Root) ResolveChain(name string, modelOverride string) (ResolvedChain, error) {
	chain, found := root.FindChain(name)
	if !found || !chain.Enabled {
		return ResolvedChain{}, fmt.Errorf(unknownChainErrorFormat, name)
	}
	promptConfiguration, found := root.FindPrompt(chain.Prompt)
	if !found {
		return ResolvedChain{}, fmt.Errorf(unknownPromptErrorFormat, chain.Name, chain.Prompt)
	}

	modelName := strings.TrimSpace(modelOverride)
	if modelName == "" {
		modelName = strings.TrimSpace(chain.Model)
	}
	var modelConfiguration Model
	if modelName == "" {
		modelConfiguration, _ = root.DefaultModel()
	} else {
		modelConfiguration, found = root.FindModel(modelName)
		if !found {
			return ResolvedChain{}, fmt.Errorf(unknownModelErrorFormat, chain.Name, modelName)
		}
	}
	return ResolvedChain{Chain: chain, Prompt: promptConfiguration, Model: modelConfiguration}, nil
}

// WithFallbacks fills zero-valued policy fields with the built-in defaults.
func (defaults Defaults) WithFallbacks() Defaults {
	resolved := defaults
	if resolved.ChunkSize <= 0 {
		resolved.ChunkSize = DefaultChunkSize
	}
	if resolved.BatchRetries <= 0 {
		resolved.BatchRetries = DefaultBatchRetries
	}
	if resolved.ItemRetries <= 0 {
		resolved.ItemRetries = DefaultItemRetries
	}
	if resolved.BaseDelay <= 0 {
		resolved.BaseDelay = DefaultBaseDelay
	}
	if resolved.RateLimitBaseDelay <= 0 {
		resolved.RateLimitBaseDelay = resolved.BaseDelay
	}
	if resolved.Pacing < 0 {
		resolved.Pacing = 0
	}
	if resolved.TimeoutSeconds <= 0 {
		resolved.TimeoutSeconds = int(DefaultTimeout / time.Second)
	}
	if resolved.BatchConcurrency <= 0 {
		resolved.BatchConcurrency = DefaultBatchConcurrency
	}
	if len(resolved.Extensions) == 0 {
		resolved.Extensions = []string{DefaultInputExtension}
	}
	return resolved
}

// Timeout returns the per-call model timeout.
func (defaults Defaults) Timeout() time.Duration {
	return time.Duration(defaults.TimeoutSeconds) * time.Second
}
