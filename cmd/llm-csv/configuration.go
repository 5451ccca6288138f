package llmcsv

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/temirov/llm-csv/internal/config"
)

func loadRootConfiguration(configurationPath string) (config.Root, error) {
	configurationLoader, loaderErr := config.NewDefaultRootConfigurationLoader()
	if loaderErr != nil {
		return config.Root{}, fmt.Errorf(configurationLoaderErrorFormat, loaderErr)
	}
	configurationSource, sourceErr := configurationLoader.Load(strings.TrimSpace(configurationPath))
	if sourceErr != nil {
		return config.Root{}, fmt.Errorf(configurationSourceErrorFormat, sourceErr)
	}
	rootConfiguration, loadErr := config.LoadRoot(configurationSource)
	if loadErr != nil {
		return config.Root{}, fmt.Errorf(rootConfigurationLoadErrorFormat, configurationSource.Reference, loadErr)
	}
	return rootConfiguration, nil
}

// commandSettings resolves flag values with LLMCSV_* environment fallbacks.
// Values that are neither passed nor exported fall through to config.yaml.
type commandSettings struct {
	values *viper.Viper
}

func newCommandSettings(command *cobra.Command) (commandSettings, error) {
	values := viper.New()
	values.SetEnvPrefix(environmentPrefix)
	values.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	values.AutomaticEnv()
	if err := values.BindPFlags(command.Flags()); err != nil {
		return commandSettings{}, fmt.Errorf("bind flags: %w", err)
	}
	return commandSettings{values: values}, nil
}

func (settings commandSettings) isSet(key string) bool { return settings.values.IsSet(key) }

func (settings commandSettings) String(key string) string {
	return strings.TrimSpace(settings.values.GetString(key))
}

func (settings commandSettings) intOr(key string, fallback int) int {
	if !settings.isSet(key) {
		return fallback
	}
	return settings.values.GetInt(key)
}

// positiveIntOr treats zero as "use the fallback".
func (settings commandSettings) positiveIntOr(key string, fallback int) int {
	if value := settings.intOr(key, fallback); value > 0 {
		return value
	}
	return fallback
}

func (settings commandSettings) durationOr(key string, fallback time.Duration) time.Duration {
	if !settings.isSet(key) {
		return fallback
	}
	return settings.values.GetDuration(key)
}

// applyRunOverrides layers command line and environment values over the configured defaults.
func (settings commandSettings) applyRunOverrides(defaults config.Defaults) config.Defaults {
	resolved := defaults.WithFallbacks()
	resolved.ChunkSize = settings.positiveIntOr(chunkSizeFlagName, resolved.ChunkSize)
	resolved.BatchRetries = settings.positiveIntOr(batchRetriesFlagName, resolved.BatchRetries)
	if itemRetries := settings.intOr(itemRetriesFlagName, resolved.ItemRetries); itemRetries >= 0 {
		resolved.ItemRetries = itemRetries
	}
	if pacing := settings.durationOr(pacingFlagName, resolved.Pacing); pacing >= 0 {
		resolved.Pacing = pacing
	}
	if timeout := settings.durationOr(timeoutFlagName, 0); timeout > 0 {
		resolved.TimeoutSeconds = int((timeout + time.Second - 1) / time.Second)
	}
	return resolved
}
