package llmcsv

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/temirov/llm-csv/internal/config"
	"github.com/temirov/llm-csv/internal/secrets"
)

// secretStore opens the encrypted key store configured under common.secrets.
func secretStore(fs afero.Fs, rootConfiguration config.Root) secrets.Store {
	keyFile := rootConfiguration.Common.Secrets.KeyFile
	if strings.TrimSpace(keyFile) == "" {
		keyFile = "secret.key"
	}
	storePath := rootConfiguration.Common.Secrets.StorePath
	if strings.TrimSpace(storePath) == "" {
		storePath = "data/api_keys.json"
	}
	return secrets.NewStore(fs, keyFile, storePath)
}

// secretProvider consults the encrypted store first, then the environment and .env file.
func secretProvider(fs afero.Fs, rootConfiguration config.Root) (secrets.Provider, error) {
	env, err := secrets.NewEnv(fs, rootConfiguration.Common.Secrets.DotEnv)
	if err != nil {
		return nil, err
	}
	return secrets.Chain{secretStore(fs, rootConfiguration), env}, nil
}

// resolveAPIKey finds the key of model. A model without api_key_name falls back to
// common.api.api_key_env, then to the "openai" key.
func resolveAPIKey(provider secrets.Provider, rootConfiguration config.Root, model config.Model) (string, error) {
	names := []string{model.APIKeyName, rootConfiguration.Common.API.APIKeyEnv, defaultAPIKeyName}
	var lastErr error
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		value, err := provider.Lookup(name)
		if err == nil {
			return value, nil
		}
		if lastErr == nil {
			lastErr = err
		}
	}
	return "", fmt.Errorf(apiKeyLookupErrorFormat, firstNonEmpty(names...), model.Name, lastErr)
}

func apiEndpoint(rootConfiguration config.Root) string {
	return firstNonEmpty(rootConfiguration.Common.API.Endpoint, defaultAPIEndpoint)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
