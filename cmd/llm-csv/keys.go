package llmcsv

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newKeysCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   keysCommandUse,
		Short: keysCommandShort,
	}
	command.AddCommand(newKeysAddCommand(), newKeysListCommand())
	return command
}

func newKeysAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   keysAddCommandUse,
		Short: keysAddCommandShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := newCommandSettings(cmd)
			if err != nil {
				return err
			}
			rootConfiguration, err := loadRootConfiguration(settings.String(configFlagName))
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])

			scanner := bufio.NewScanner(cmd.InOrStdin())
			value := ""
			if scanner.Scan() {
				value = strings.TrimSpace(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read API key: %w", err)
			}
			if value == "" {
				return fmt.Errorf(emptySecretErrorFormat, name)
			}

			store := secretStore(afero.NewOsFs(), rootConfiguration)
			if err := store.Set(name, value); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored key %s in %s\n", name, store.StorePath)
			return err
		},
	}
}

func newKeysListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   keysListCommandUse,
		Short: keysListCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := newCommandSettings(cmd)
			if err != nil {
				return err
			}
			rootConfiguration, err := loadRootConfiguration(settings.String(configFlagName))
			if err != nil {
				return err
			}
			names, err := secretStore(afero.NewOsFs(), rootConfiguration).Names()
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
