// Package secrets resolves provider API keys from an encrypted store, the process
// environment and a .env file.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

// ErrSecretNotFound reports that no provider knows the requested key.
var ErrSecretNotFound = errors.New("secret not found")

const envSuffix = "_API_KEY"

// Provider looks up a named secret.
type Provider interface {
	Lookup(name string) (string, error)
}

// EnvVarName maps a secret name such as "openai" to OPENAI_API_KEY.
func EnvVarName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	upper = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(upper)
	if strings.HasSuffix(upper, envSuffix) {
		return upper
	}
	return upper + envSuffix
}

// Env resolves secrets from environment variables, then from values loaded from a .env file.
type Env struct {
	Getenv func(string) string
	DotEnv map[string]string
}

// NewEnv reads dotEnvPath when it exists. A missing file is not an error.
func NewEnv(fs afero.Fs, dotEnvPath string) (Env, error) {
	env := Env{Getenv: os.Getenv}
	if strings.TrimSpace(dotEnvPath) == "" {
		return env, nil
	}
	file, err := fs.Open(dotEnvPath)
	if errors.Is(err, os.ErrNotExist) {
		return env, nil
	}
	if err != nil {
		return env, fmt.Errorf("open dotenv %s: %w", dotEnvPath, err)
	}
	defer func() { _ = file.Close() }()
	values, err := godotenv.Parse(file)
	if err != nil {
		return env, fmt.Errorf("parse dotenv %s: %w", dotEnvPath, err)
	}
	env.DotEnv = values
	return env, nil
}

func (e Env) Lookup(name string) (string, error) {
	candidates := []string{EnvVarName(name), strings.TrimSpace(name)}
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, candidate := range candidates {
		if value := strings.TrimSpace(getenv(candidate)); value != "" {
			return value, nil
		}
	}
	for _, candidate := range candidates {
		if value := strings.TrimSpace(e.DotEnv[candidate]); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %s (set %s)", ErrSecretNotFound, name, EnvVarName(name))
}

// Chain asks each provider in turn and returns the first hit.
type Chain []Provider

func (c Chain) Lookup(name string) (string, error) {
	var failures []error
	for _, provider := range c {
		value, err := provider.Lookup(name)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return "", errors.Join(append([]error{fmt.Errorf("%w: %s", ErrSecretNotFound, name)}, failures...)...)
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
