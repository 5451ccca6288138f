package llmcsv

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the llm-csv command tree.
func NewRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           applicationName,
		Short:         rootCommandShort,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().String(configFlagName, defaultConfigPath, configFlagUsage)
	rootCommand.AddCommand(newRunCommand(), newListCommand(), newKeysCommand())
	return rootCommand
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}
