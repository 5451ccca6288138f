package llmcsv

const (
	applicationName                  = "llm-csv"
	rootCommandShort                 = "Run LLM prompts over directories of CSV files, one batch per chunk"
	environmentPrefix                = "LLMCSV"
	defaultConfigPath                = ""
	runCommandUse                    = "run CHAIN"
	runCommandShort                  = "Process every CSV file of --input with a configured chain"
	listCommandUse                   = "list"
	listCommandShort                 = "List chains from config.yaml (enabled by default)"
	keysCommandUse                   = "keys"
	keysCommandShort                 = "Manage encrypted API keys"
	keysAddCommandUse                = "add NAME"
	keysAddCommandShort              = "Store an API key read from stdin"
	keysListCommandUse               = "list"
	keysListCommandShort             = "List stored API key names"
	configFlagName                   = "config"
	configFlagUsage                  = "Path to config.yaml (default: ./config.yaml, ~/.llm-csv/config.yaml, embedded)"
	allFlagName                      = "all"
	allFlagUsage                     = "Show disabled chains as well"
	inputFlagName                    = "input"
	inputFlagUsage                   = "Directory holding the input CSV files"
	outputFlagName                   = "output"
	outputFlagUsage                  = "Directory receiving one CSV file per processed chunk"
	chunkSizeFlagName                = "chunk-size"
	chunkSizeFlagUsage               = "Rows per chunk (0 = use defaults)"
	batchRetriesFlagName             = "batch-retries"
	batchRetriesFlagUsage            = "Attempts per chunk batch (0 = use defaults)"
	itemRetriesFlagName              = "item-retries"
	itemRetriesFlagUsage             = "Retries for a single unparseable row"
	pacingFlagName                   = "pacing"
	pacingFlagUsage                  = "Pause after each processed chunk (e.g. 2m)"
	timeoutFlagName                  = "timeout"
	timeoutFlagUsage                 = "Per-call model timeout (e.g. 45s; 0 = use defaults)"
	modelFlagName                    = "model"
	modelFlagUsage                   = "Override the chain's model by name (must exist in models[])"
	logLevelFlagName                 = "log-level"
	logLevelFlagUsage                = "Log level (debug, info, warn, error)"
	journalFlagName                  = "journal"
	journalFlagUsage                 = "SQLite run journal path (empty disables the journal)"
	enabledStateLabel                = "enabled"
	disabledStateLabel               = "disabled"
	dashPlaceholder                  = "-"
	defaultAPIEndpoint               = "https://api.openai.com/v1"
	defaultAPIKeyName                = "openai"
	progressLineFormat               = "[%3d%%] %s\n"
	configurationLoaderErrorFormat   = "initialize configuration loader: %w"
	configurationSourceErrorFormat   = "resolve configuration source: %w"
	rootConfigurationLoadErrorFormat = "load root configuration %s: %w"
	missingDirectoryFlagErrorFormat  = "--%s is required"
	apiKeyLookupErrorFormat          = "resolve API key %q for model %q: %w"
	emptySecretErrorFormat           = "no API key read from stdin for %q"
)
