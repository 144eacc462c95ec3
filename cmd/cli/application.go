package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
	"github.com/temirov/geodetect/internal/credentials"
	"github.com/temirov/geodetect/internal/utils"
	pathutils "github.com/temirov/geodetect/internal/utils/path"
)

const (
	applicationNameConstant                 = "geodetect"
	applicationShortDescriptionConstant     = "Command-line client for the geospatial detection service"
	applicationLongDescriptionConstant      = "geodetect uploads rasters and annotations, trains and runs detectors, and downloads detection results."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	outputFlagNameConstant                  = "output"
	outputFlagShorthandConstant             = "o"
	outputFlagUsageConstant                 = "Override the configured result format (json or yaml)."
	baseURLFlagNameConstant                 = "base-url"
	baseURLFlagUsageConstant                = "Override the configured API base URL."
	versionFlagNameConstant                 = "version"
	versionFlagUsageConstant                = "Print the geodetect version and exit."
	versionOutputTemplateConstant           = "%s version: %s\n"
	environmentPrefixConstant               = "GEODETECT"
	configurationSearchPathEnvironmentName  = environmentPrefixConstant + "_CONFIG_SEARCH_PATH"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	environmentFileNameConstant             = ".env"
	defaultConfigurationSearchPathConstant  = "."
	userConfigurationSearchPathConstant     = "~/.geodetect"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationEnvFilesFieldConstant      = "env_files"
	configurationBaseURLFieldConstant       = "base_url"
	configurationKeySourceFieldConstant     = "key_source"
	invocationIdentifierFieldConstant       = "invocation_id"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	outputFormatErrorTemplateConstant       = "invalid output format: %w"
	apiKeyResolutionErrorTemplateConstant   = "unable to resolve API key from %s: %w"
	keySourceErrorTemplateConstant          = "invalid api.key_source: %w"
	clientCreationErrorTemplateConstant     = "unable to configure API client: %w"
	rootCommandDebugMessageConstant         = "geodetect CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentsConstant               = "arguments"
	exitCodeSuccessConstant                 = 0
)

// Application wires the Cobra root command, configuration loader, credentials, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	homeExpander          *pathutils.HomeExpander
	keyResolver           *credentials.Resolver
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	outputFormat          utils.OutputFormat
	client                *apiclient.Client
	configurationFilePath string
	logLevelFlagValue     string
	logFormatFlagValue    string
	outputFlagValue       string
	baseURLFlagValue      string
	versionFlagValue      bool
	versionResolver       func(context.Context) string
	exitFunction          func(int)
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	homeExpander := pathutils.NewHomeExpander()

	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(homeExpander),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())
	configurationLoader.SetEnvironmentFiles(environmentFileNameConstant)

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		homeExpander:        homeExpander,
		keyResolver:         credentials.NewResolver(os.LookupEnv, os.ReadFile),
		logger:              zap.NewNop(),
		outputFormat:        utils.OutputFormatJSON,
		versionResolver:     resolveVersion,
		exitFunction:        os.Exit,
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			if application.versionFlagValue {
				application.printVersion(command)
				return nil
			}
			return application.initializeConfiguration(command, arguments)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	cobraCommand.SetContext(context.Background())
	persistentFlags := cobraCommand.PersistentFlags()
	persistentFlags.StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	persistentFlags.StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	persistentFlags.StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	persistentFlags.StringVarP(&application.outputFlagValue, outputFlagNameConstant, outputFlagShorthandConstant, "", outputFlagUsageConstant)
	persistentFlags.StringVar(&application.baseURLFlagValue, baseURLFlagNameConstant, "", baseURLFlagUsageConstant)
	cobraCommand.Flags().BoolVar(&application.versionFlagValue, versionFlagNameConstant, false, versionFlagUsageConstant)

	application.registerCommands(cobraCommand)
	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) printVersion(command *cobra.Command) {
	fmt.Fprintf(command.OutOrStdout(), versionOutputTemplateConstant, applicationNameConstant, application.versionResolver(command.Context()))
	application.exitFunction(exitCodeSuccessConstant)
}

func (application *Application) initializeConfiguration(command *cobra.Command, arguments []string) error {
	configurationFilePath := application.homeExpander.Expand(application.configurationFilePath)
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(configurationFilePath, DefaultConfigurationValues(), &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration
	application.client = nil

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}
	if application.persistentFlagChanged(command, outputFlagNameConstant) {
		application.configuration.Common.OutputFormat = application.outputFlagValue
	}
	if application.persistentFlagChanged(command, baseURLFlagNameConstant) {
		application.configuration.API.BaseURL = application.baseURLFlagValue
	}

	outputFormat, outputFormatError := utils.ParseOutputFormat(application.configuration.Common.OutputFormat)
	if outputFormatError != nil {
		return fmt.Errorf(outputFormatErrorTemplateConstant, outputFormatError)
	}
	application.outputFormat = outputFormat

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger.With(zap.String(invocationIdentifierFieldConstant, uuid.NewString()))

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.Strings(configurationEnvFilesFieldConstant, application.configurationMetadata.EnvironmentFilesLoaded),
		zap.String(configurationBaseURLFieldConstant, application.configuration.API.BaseURL),
		zap.String(configurationKeySourceFieldConstant, application.configuration.API.KeySource),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.String(logFieldCommandNameConstant, command.CommandPath()),
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	return nil
}

// apiClient builds the API client on first use so commands that fail validation never need credentials.
func (application *Application) apiClient(logger *zap.Logger) (*apiclient.Client, error) {
	if application.client != nil {
		return application.client, nil
	}

	keySource, keySourceError := credentials.ParseKeySource(application.configuration.API.KeySource)
	if keySourceError != nil {
		return nil, fmt.Errorf(keySourceErrorTemplateConstant, keySourceError)
	}

	apiKey, keyError := application.keyResolver.ResolveAPIKey(application.rootCommand.Context(), keySource)
	if keyError != nil {
		return nil, fmt.Errorf(apiKeyResolutionErrorTemplateConstant, keySource, keyError)
	}

	client, clientError := apiclient.NewClient(logger, application.configuration.clientConfiguration(apiKey))
	if clientError != nil {
		return nil, fmt.Errorf(clientCreationErrorTemplateConstant, clientError)
	}

	application.client = client
	return client, nil
}

func (application *Application) currentLogger() *zap.Logger {
	return application.logger
}

func (application *Application) currentOutputFormat() utils.OutputFormat {
	return application.outputFormat
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

// configurationSearchPaths honors GEODETECT_CONFIG_SEARCH_PATH before the working and user directories.
func configurationSearchPaths(homeExpander *pathutils.HomeExpander) []string {
	searchPaths := []string{}
	if overridePaths, overrideDefined := os.LookupEnv(configurationSearchPathEnvironmentName); overrideDefined {
		searchPaths = append(searchPaths, homeExpander.ExpandAll(strings.Split(overridePaths, string(filepath.ListSeparator)))...)
	}
	searchPaths = append(searchPaths, defaultConfigurationSearchPathConstant)
	searchPaths = append(searchPaths, homeExpander.ExpandAll([]string{userConfigurationSearchPathConstant})...)
	return searchPaths
}
