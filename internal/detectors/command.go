package detectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
	"github.com/temirov/geodetect/internal/utils"
	"github.com/temirov/geodetect/internal/utils/flags"
)

const (
	listCommandNameConstant               = "detectors"
	listCommandShortDescriptionConstant   = "List detectors"
	singleCommandNameConstant             = "detector"
	createCommandShortDescriptionConstant = "Create a detector"
	createCommandLongDescriptionConstant  = "detector creates a detector and optionally adds rasters to it as training data."
	editCommandShortDescriptionConstant   = "Edit detector attributes"
	deleteCommandShortDescriptionConstant = "Delete a detector"
	trainCommandNameConstant              = "train"
	trainCommandShortDescriptionConstant  = "Train a detector and wait for completion"
	detectCommandNameConstant             = "detect"
	detectCommandShortDescriptionConstant = "Run a detector on a raster and download the result"
	detectCommandLongDescriptionConstant  = "detect runs a trained detector on a raster, waits for the operation, and writes the GeoJSON result to output-path."
	downloadCommandNameConstant           = "download"
	downloadShortDescriptionConstant      = "Download the result of a detection operation"
	detectorArgumentNameConstant          = "detector"
	rasterArgumentNameConstant            = "raster"
	operationArgumentNameConstant         = "operation"
	outputPathArgumentNameConstant        = "output-path"
	nameFlagNameConstant                  = "name"
	nameFlagUsageConstant                 = "Detector name"
	detectionTypeFlagNameConstant         = "detection-type"
	detectionTypeFlagUsageConstant        = "Detection type"
	outputTypeFlagNameConstant            = "output-type"
	outputTypeFlagUsageConstant           = "Output geometry type"
	trainingStepsFlagNameConstant         = "training-steps"
	trainingStepsFlagUsageConstant        = "Number of training steps (500-40000)"
	rasterFlagNameConstant                = "raster"
	rasterFlagUsageConstant               = "Raster to add as training data (repeatable)"
	defaultDetectionTypeConstant          = string(DetectionTypeCount)
	defaultOutputTypeConstant             = string(OutputTypePolygon)
	defaultTrainingStepsConstant          = MinimumTrainingSteps
	serviceResolverMissingMessageConstant = "detector service not configured"
	commandFailureTemplateConstant        = "%s detector failed: %w"
	rasterLinkFailureTemplateConstant     = "unable to add raster %s to detector %s: %w"
	listVerbConstant                      = "list"
	createVerbConstant                    = "create"
	editVerbConstant                      = "edit"
	deleteVerbConstant                    = "delete"
	trainVerbConstant                     = "train"
	runVerbConstant                       = "run"
	downloadVerbConstant                  = "download result of"
	defaultOutputFormat                   = utils.OutputFormatJSON
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// OutputFormatProvider reports the configured result encoding.
type OutputFormatProvider func() utils.OutputFormat

// Operations describes the detector behaviors used by the commands.
type Operations interface {
	List(executionContext context.Context) ([]Detector, error)
	Create(executionContext context.Context, request CreateRequest) (apiclient.Identifier, error)
	Edit(executionContext context.Context, detectorID apiclient.Identifier, request EditRequest) error
	Delete(executionContext context.Context, detectorID apiclient.Identifier) error
	AddRaster(executionContext context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier) error
	Train(executionContext context.Context, detectorID apiclient.Identifier) (apiclient.Operation, error)
	Run(executionContext context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier) (apiclient.Identifier, error)
	DownloadResult(executionContext context.Context, operationID apiclient.Identifier, destination string) error
}

// ServiceProvider resolves detector operations for a command invocation.
type ServiceProvider func(logger *zap.Logger) (Operations, error)

// CommandBuilder assembles the detector commands.
type CommandBuilder struct {
	LoggerProvider       LoggerProvider
	ServiceProvider      ServiceProvider
	OutputFormatProvider OutputFormatProvider
}

// Commands groups the detector commands. List, Create, Edit and Delete attach to
// verb groups; Train, Detect and Download are top-level commands.
type Commands struct {
	List     *cobra.Command
	Create   *cobra.Command
	Edit     *cobra.Command
	Delete   *cobra.Command
	Train    *cobra.Command
	Detect   *cobra.Command
	Download *cobra.Command
}

// CreateResult is rendered after a successful create detector.
type CreateResult struct {
	DetectorID apiclient.Identifier   `json:"detector_id"`
	Rasters    []apiclient.Identifier `json:"rasters,omitempty"`
}

// DetectionResult is rendered after detect and download.
type DetectionResult struct {
	OperationID apiclient.Identifier `json:"operation_id"`
	OutputPath  string               `json:"output_path"`
}

// Build constructs the detector commands.
func (builder *CommandBuilder) Build() Commands {
	listCommand := &cobra.Command{
		Use:   listCommandNameConstant,
		Short: listCommandShortDescriptionConstant,
		Args:  flags.PositionalArguments(),
		RunE:  builder.runList,
	}

	createCommand := &cobra.Command{
		Use:   singleCommandNameConstant,
		Short: createCommandShortDescriptionConstant,
		Long:  createCommandLongDescriptionConstant,
		Args:  flags.PositionalArguments(),
		RunE:  builder.runCreate,
	}
	createCommand.Flags().String(nameFlagNameConstant, "", nameFlagUsageConstant)
	createCommand.Flags().String(detectionTypeFlagNameConstant, defaultDetectionTypeConstant, flags.FormatChoiceUsage(defaultDetectionTypeConstant, DetectionTypeChoices(), detectionTypeFlagUsageConstant))
	createCommand.Flags().String(outputTypeFlagNameConstant, defaultOutputTypeConstant, flags.FormatChoiceUsage(defaultOutputTypeConstant, OutputTypeChoices(), outputTypeFlagUsageConstant))
	createCommand.Flags().Int(trainingStepsFlagNameConstant, defaultTrainingStepsConstant, trainingStepsFlagUsageConstant)
	createCommand.Flags().StringSlice(rasterFlagNameConstant, nil, rasterFlagUsageConstant)

	editCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(singleCommandNameConstant, detectorArgumentNameConstant),
		Short: editCommandShortDescriptionConstant,
		Args:  flags.PositionalArguments(detectorArgumentNameConstant),
		RunE:  builder.runEdit,
	}
	editCommand.Flags().String(nameFlagNameConstant, "", nameFlagUsageConstant)
	editCommand.Flags().String(detectionTypeFlagNameConstant, "", flags.FormatChoiceUsage("", DetectionTypeChoices(), detectionTypeFlagUsageConstant))
	editCommand.Flags().String(outputTypeFlagNameConstant, "", flags.FormatChoiceUsage("", OutputTypeChoices(), outputTypeFlagUsageConstant))
	editCommand.Flags().Int(trainingStepsFlagNameConstant, 0, trainingStepsFlagUsageConstant)

	deleteCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(singleCommandNameConstant, detectorArgumentNameConstant),
		Short: deleteCommandShortDescriptionConstant,
		Args:  flags.PositionalArguments(detectorArgumentNameConstant),
		RunE:  builder.runDelete,
	}

	trainCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(trainCommandNameConstant, detectorArgumentNameConstant),
		Short: trainCommandShortDescriptionConstant,
		Args:  flags.PositionalArguments(detectorArgumentNameConstant),
		RunE:  builder.runTrain,
	}

	detectCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(detectCommandNameConstant, rasterArgumentNameConstant, detectorArgumentNameConstant, outputPathArgumentNameConstant),
		Short: detectCommandShortDescriptionConstant,
		Long:  detectCommandLongDescriptionConstant,
		Args:  flags.PositionalArguments(rasterArgumentNameConstant, detectorArgumentNameConstant, outputPathArgumentNameConstant),
		RunE:  builder.runDetect,
	}

	downloadCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(downloadCommandNameConstant, operationArgumentNameConstant, outputPathArgumentNameConstant),
		Short: downloadShortDescriptionConstant,
		Args:  flags.PositionalArguments(operationArgumentNameConstant, outputPathArgumentNameConstant),
		RunE:  builder.runDownload,
	}

	return Commands{
		List:     listCommand,
		Create:   createCommand,
		Edit:     editCommand,
		Delete:   deleteCommand,
		Train:    trainCommand,
		Detect:   detectCommand,
		Download: downloadCommand,
	}
}

func (builder *CommandBuilder) runList(command *cobra.Command, _ []string) error {
	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	detectors, listError := service.List(command.Context())
	if listError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, listVerbConstant, listError)
	}

	return builder.render(command, detectors)
}

func (builder *CommandBuilder) runCreate(command *cobra.Command, _ []string) error {
	createRequest, requestError := parseDetectorRequest(command)
	if requestError != nil {
		return requestError
	}

	rasterValues, rasterFlagError := command.Flags().GetStringSlice(rasterFlagNameConstant)
	if rasterFlagError != nil {
		return rasterFlagError
	}
	rasterIDs := parseIdentifiers(rasterValues)

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	detectorID, createError := service.Create(command.Context(), createRequest)
	if createError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, createVerbConstant, createError)
	}

	result := CreateResult{DetectorID: detectorID}
	for _, rasterID := range rasterIDs {
		if addError := service.AddRaster(command.Context(), detectorID, rasterID); addError != nil {
			return fmt.Errorf(rasterLinkFailureTemplateConstant, rasterID, detectorID, addError)
		}
		result.Rasters = append(result.Rasters, rasterID)
	}

	return builder.render(command, result)
}

func (builder *CommandBuilder) runEdit(command *cobra.Command, arguments []string) error {
	editRequest, requestError := parseDetectorRequest(command)
	if requestError != nil {
		return requestError
	}

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	if editError := service.Edit(command.Context(), identifierArgument(arguments[0]), editRequest); editError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, editVerbConstant, editError)
	}
	return nil
}

func (builder *CommandBuilder) runDelete(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	if deleteError := service.Delete(command.Context(), identifierArgument(arguments[0])); deleteError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, deleteVerbConstant, deleteError)
	}
	return nil
}

func (builder *CommandBuilder) runTrain(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	operation, trainError := service.Train(command.Context(), identifierArgument(arguments[0]))
	if trainError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, trainVerbConstant, trainError)
	}

	return builder.render(command, operation)
}

func (builder *CommandBuilder) runDetect(command *cobra.Command, arguments []string) error {
	rasterID := identifierArgument(arguments[0])
	detectorID := identifierArgument(arguments[1])
	outputPath := strings.TrimSpace(arguments[2])

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	operationID, runError := service.Run(command.Context(), detectorID, rasterID)
	if runError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, runVerbConstant, runError)
	}

	if downloadError := service.DownloadResult(command.Context(), operationID, outputPath); downloadError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, downloadVerbConstant, downloadError)
	}

	return builder.render(command, DetectionResult{OperationID: operationID, OutputPath: outputPath})
}

func (builder *CommandBuilder) runDownload(command *cobra.Command, arguments []string) error {
	operationID := identifierArgument(arguments[0])
	outputPath := strings.TrimSpace(arguments[1])

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	if downloadError := service.DownloadResult(command.Context(), operationID, outputPath); downloadError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, downloadVerbConstant, downloadError)
	}

	return builder.render(command, DetectionResult{OperationID: operationID, OutputPath: outputPath})
}

// parseDetectorRequest reads the configuration flags and rejects invalid values
// before a service is resolved.
func parseDetectorRequest(command *cobra.Command) (CreateRequest, error) {
	commandFlags := command.Flags()

	name, nameError := commandFlags.GetString(nameFlagNameConstant)
	if nameError != nil {
		return CreateRequest{}, nameError
	}
	detectionType, detectionTypeFlagError := commandFlags.GetString(detectionTypeFlagNameConstant)
	if detectionTypeFlagError != nil {
		return CreateRequest{}, detectionTypeFlagError
	}
	outputType, outputTypeFlagError := commandFlags.GetString(outputTypeFlagNameConstant)
	if outputTypeFlagError != nil {
		return CreateRequest{}, outputTypeFlagError
	}
	trainingSteps, trainingStepsFlagError := commandFlags.GetInt(trainingStepsFlagNameConstant)
	if trainingStepsFlagError != nil {
		return CreateRequest{}, trainingStepsFlagError
	}

	request := CreateRequest{
		Name:          name,
		DetectionType: detectionType,
		OutputType:    outputType,
		TrainingSteps: trainingSteps,
	}
	if _, validationError := request.buildPayload(); validationError != nil {
		return CreateRequest{}, validationError
	}
	return request, nil
}

func identifierArgument(argument string) apiclient.Identifier {
	return apiclient.Identifier(strings.TrimSpace(argument))
}

func parseIdentifiers(values []string) []apiclient.Identifier {
	identifiers := make([]apiclient.Identifier, 0, len(values))
	for _, value := range values {
		identifier := identifierArgument(value)
		if identifier.IsEmpty() {
			continue
		}
		identifiers = append(identifiers, identifier)
	}
	return identifiers
}

func (builder *CommandBuilder) render(command *cobra.Command, value any) error {
	outputFormat := defaultOutputFormat
	if builder.OutputFormatProvider != nil {
		outputFormat = builder.OutputFormatProvider()
	}
	return utils.NewOutputRenderer(command.OutOrStdout(), outputFormat).Render(value)
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveService() (Operations, error) {
	if builder.ServiceProvider == nil {
		return nil, errors.New(serviceResolverMissingMessageConstant)
	}
	return builder.ServiceProvider(builder.resolveLogger())
}
