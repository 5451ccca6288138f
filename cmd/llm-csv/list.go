package llmcsv

import (
	"fmt"

	"github.com/spf13/cobra"
)

type listCommandOptions struct {
	includeDisabled bool
}

func newListCommand() *cobra.Command {
	options := &listCommandOptions{}

	command := &cobra.Command{
		Use:   listCommandUse,
		Short: listCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListCommand(cmd, *options)
		},
	}

	command.Flags().BoolVar(&options.includeDisabled, allFlagName, false, allFlagUsage)

	return command
}

func runListCommand(command *cobra.Command, options listCommandOptions) error {
	settings, err := newCommandSettings(command)
	if err != nil {
		return err
	}
	rootConfiguration, err := loadRootConfiguration(settings.String(configFlagName))
	if err != nil {
		return err
	}

	outputWriter := command.OutOrStdout()
	for _, chain := range rootConfiguration.Chains {
		if !options.includeDisabled && !chain.Enabled {
			continue
		}

		chainStateLabel := enabledStateLabel
		if !chain.Enabled {
			chainStateLabel = disabledStateLabel
		}

		modelName := chain.Model
		if modelName == "" {
			if defaultModel, ok := rootConfiguration.DefaultModel(); ok {
				modelName = defaultModel.Name
			}
		}
		_, writeErr := fmt.Fprintf(outputWriter, "%s\t(%s, prompt=%s, model=%s, parser=%s)\n",
			chain.Name, chainStateLabel, dashIfEmpty(chain.Prompt), dashIfEmpty(modelName), dashIfEmpty(chain.OutputParser))
		if writeErr != nil {
			return fmt.Errorf("write chain listing: %w", writeErr)
		}
	}

	return nil
}

func dashIfEmpty(value string) string {
	if value == "" {
		return dashPlaceholder
	}
	return value
}
