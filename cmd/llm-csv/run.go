package llmcsv

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/llm-csv/internal/config"
	"github.com/temirov/llm-csv/internal/fsops"
	"github.com/temirov/llm-csv/internal/journal"
	"github.com/temirov/llm-csv/internal/llm"
	"github.com/temirov/llm-csv/internal/logging"
	"github.com/temirov/llm-csv/internal/pipeline"
	"github.com/temirov/llm-csv/internal/prompt"
	"github.com/temirov/llm-csv/tasks/csvbatch"
)

const observerBuffer = 64

func newRunCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   runCommandUse,
		Short: runCommandShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChainCommand(cmd, args[0])
		},
	}

	addRunFlags(command.Flags())
	return command
}

func addRunFlags(flags *pflag.FlagSet) {
	flags.String(inputFlagName, "", inputFlagUsage)
	flags.String(outputFlagName, "", outputFlagUsage)
	flags.Int(chunkSizeFlagName, 0, chunkSizeFlagUsage)
	flags.Int(batchRetriesFlagName, 0, batchRetriesFlagUsage)
	flags.Int(itemRetriesFlagName, config.DefaultItemRetries, itemRetriesFlagUsage)
	flags.Duration(pacingFlagName, 0, pacingFlagUsage)
	flags.Duration(timeoutFlagName, 0, timeoutFlagUsage)
	flags.String(modelFlagName, "", modelFlagUsage)
	flags.String(logLevelFlagName, "", logLevelFlagUsage)
	flags.String(journalFlagName, "", journalFlagUsage)
}

func runChainCommand(cmd *cobra.Command, chainName string) error {
	settings, err := newCommandSettings(cmd)
	if err != nil {
		return err
	}
	inputDir := settings.String(inputFlagName)
	if inputDir == "" {
		return fmt.Errorf(missingDirectoryFlagErrorFormat, inputFlagName)
	}
	outputDir := settings.String(outputFlagName)
	if outputDir == "" {
		return fmt.Errorf(missingDirectoryFlagErrorFormat, outputFlagName)
	}

	rootConfiguration, err := loadRootConfiguration(settings.String(configFlagName))
	if err != nil {
		return err
	}
	loggingConfiguration := rootConfiguration.Common.Logging
	logger, err := logging.New(
		firstNonEmpty(settings.String(logLevelFlagName), loggingConfiguration.Level),
		loggingConfiguration.Format,
		loggingConfiguration.File,
	)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder journal.Recorder = journal.Nop{}
	if journalPath := firstNonEmpty(settings.String(journalFlagName), rootConfiguration.Common.Journal.Path); journalPath != "" {
		store, openErr := journal.Open(journalPath, logger)
		if openErr != nil {
			return openErr
		}
		defer func() { _ = store.Close() }()
		recorder = store
	}

	runID := journal.NewRunID()
	logger = logger.With(zap.String("run_id", runID), zap.String("chain", chainName))
	defaults := settings.applyRunOverrides(rootConfiguration.Common.Defaults)
	modelOverride := settings.String(modelFlagName)

	setup := func(ctx context.Context) (*csvbatch.Runner, error) {
		resolved, resolveErr := rootConfiguration.ResolveChain(chainName, modelOverride)
		if resolveErr != nil {
			return nil, resolveErr
		}
		provider, providerErr := secretProvider(afero.NewOsFs(), rootConfiguration)
		if providerErr != nil {
			return nil, providerErr
		}
		apiKey, keyErr := resolveAPIKey(provider, rootConfiguration, resolved.Model)
		if keyErr != nil {
			return nil, keyErr
		}
		invoker, invokerErr := llm.NewModelInvoker(resolved.Model, llm.ModelOptions{
			Endpoint:         apiEndpoint(rootConfiguration),
			APIKey:           apiKey,
			Timeout:          defaults.Timeout(),
			OutputParser:     resolved.Chain.OutputParser,
			BatchConcurrency: defaults.BatchConcurrency,
		})
		if invokerErr != nil {
			return nil, invokerErr
		}
		decoder, decoderErr := pipeline.NewRecordDecoder(resolved.Prompt.OutputFields)
		if decoderErr != nil {
			return nil, decoderErr
		}
		logger.Info("run configured",
			zap.String("prompt", resolved.Prompt.Name),
			zap.String("model", resolved.Model.Name),
			zap.String("input", inputDir),
			zap.String("output", outputDir),
			zap.Int("chunk_size", defaults.ChunkSize))
		return &csvbatch.Runner{
			FS:       fsops.NewOS(),
			Template: prompt.FromConfig(resolved.Prompt),
			Controller: pipeline.Controller{
				Invoker: invoker,
				Decoder: decoder,
				Policy: pipeline.RetryPolicy{
					MaxBatchRetries:    defaults.BatchRetries,
					MaxItemRetries:     defaults.ItemRetries,
					BaseDelay:          defaults.BaseDelay,
					RateLimitBaseDelay: defaults.RateLimitBaseDelay,
					MaxDelay:           defaults.MaxDelay,
				},
				Logger: logger,
			},
			Config: csvbatch.Config{
				InputDir:     inputDir,
				OutputDir:    outputDir,
				ChunkSize:    defaults.ChunkSize,
				Extensions:   defaults.Extensions,
				Pacing:       defaults.Pacing,
				OutputFields: resolved.Prompt.OutputFields,
			},
			Logger:  logger,
			Journal: recorder,
			RunID:   runID,
		}, nil
	}

	observer := csvbatch.NewChannelObserver(observerBuffer)
	job := csvbatch.Start(ctx, setup, observer)
	printEvents(cmd.OutOrStdout(), observer)
	_, runErr := job.Wait()
	return runErr
}

// printEvents drains observer until the job completes.
func printEvents(out io.Writer, observer *csvbatch.ChannelObserver) {
	percent := 0
	for event := range observer.Events {
		switch event.Kind {
		case csvbatch.EventProgress:
			percent = event.Percent
		case csvbatch.EventLog:
			_, _ = fmt.Fprintf(out, progressLineFormat, percent, event.Message)
		}
	}
}
