package rasters

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
	listCommandNameConstant                 = "rasters"
	listCommandShortDescriptionConstant     = "List rasters"
	listCommandLongDescriptionConstant      = "rasters lists every raster in the account, optionally restricted to a folder."
	singleCommandNameConstant               = "raster"
	getCommandShortDescriptionConstant      = "Show a raster"
	createCommandShortDescriptionConstant   = "Upload a raster"
	createCommandLongDescriptionConstant    = "raster uploads an image file, waits for processing, and optionally adds it to detectors as training data."
	editCommandShortDescriptionConstant     = "Edit raster attributes"
	deleteCommandShortDescriptionConstant   = "Delete a raster"
	detectionAreaCommandNameConstant        = "detection_area"
	detectionAreaShortDescriptionConstant   = "Upload detection areas for a raster"
	detectionAreaLongDescriptionConstant    = "detection_area restricts where detectors run on a raster using a GeoJSON file."
	rasterArgumentNameConstant              = "raster"
	pathArgumentNameConstant                = "path"
	folderFlagNameConstant                  = "folder"
	folderFlagUsageConstant                 = "Folder identifier"
	nameFlagNameConstant                    = "name"
	nameFlagUsageConstant                   = "Raster name (defaults to the file name)"
	capturedAtFlagNameConstant              = "captured-at"
	capturedAtFlagUsageConstant             = "Capture timestamp in RFC 3339 format"
	identityKeyFlagNameConstant             = "identity-key"
	identityKeyFlagUsageConstant            = "Caller-defined key used to detect previously uploaded rasters"
	multispectralFlagNameConstant           = "multispectral"
	multispectralFlagUsageConstant          = "Mark the raster as multispectral"
	checkExistingFlagNameConstant           = "check-existing"
	checkExistingFlagUsageConstant          = "Scope searched for a raster with the same identity key"
	detectorFlagNameConstant                = "detector"
	detectorFlagUsageConstant               = "Detector to add the uploaded raster to (repeatable)"
	waitReadyFlagNameConstant               = "wait-ready"
	waitReadyFlagUsageConstant              = "Wait until the raster reports the ready status"
	serviceResolverMissingMessageConstant   = "raster service not configured"
	linkerResolverMissingMessageConstant    = "detector linker not configured"
	commandFailureTemplateConstant          = "%s raster failed: %w"
	detectorLinkFailureTemplateConstant     = "unable to add raster %s to detector %s: %w"
	listVerbConstant                        = "list"
	getVerbConstant                         = "get"
	createVerbConstant                      = "create"
	editVerbConstant                        = "edit"
	deleteVerbConstant                      = "delete"
	detectionAreaVerbConstant               = "create detection_area for"
	rasterLinkedLogMessageConstant          = "raster added to detector"
	detectorIdentifierLogFieldNameConstant  = "detector_id"
	defaultCloneCheckScopeValueConstant     = cloneCheckScopeAccountValueConstant
	outputFormatProviderMissingDefaultValue = utils.OutputFormatJSON
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// OutputFormatProvider reports the configured result encoding.
type OutputFormatProvider func() utils.OutputFormat

// Operations describes the raster behaviors used by the commands.
type Operations interface {
	List(executionContext context.Context, folderID string) ([]Raster, error)
	Get(executionContext context.Context, rasterID apiclient.Identifier) (Raster, error)
	Edit(executionContext context.Context, rasterID apiclient.Identifier, request EditRequest) error
	Delete(executionContext context.Context, rasterID apiclient.Identifier) error
	Upload(executionContext context.Context, request UploadRequest) (apiclient.Identifier, error)
	SetDetectionAreasFromFile(executionContext context.Context, rasterID apiclient.Identifier, filePath string) error
	WaitUntilReady(executionContext context.Context, rasterID apiclient.Identifier) (Raster, error)
}

// ServiceProvider resolves raster operations for a command invocation.
type ServiceProvider func(logger *zap.Logger) (Operations, error)

// DetectorLinker adds rasters to detectors as training data.
type DetectorLinker interface {
	AddRaster(executionContext context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier) error
}

// DetectorLinkerProvider resolves the linker used after uploads.
type DetectorLinkerProvider func(logger *zap.Logger) (DetectorLinker, error)

// CommandBuilder assembles the raster subcommands attached to the verb groups.
type CommandBuilder struct {
	LoggerProvider         LoggerProvider
	ServiceProvider        ServiceProvider
	DetectorLinkerProvider DetectorLinkerProvider
	OutputFormatProvider   OutputFormatProvider
}

// Commands groups the raster subcommands by the verb they belong to.
type Commands struct {
	List                *cobra.Command
	Get                 *cobra.Command
	Create              *cobra.Command
	Edit                *cobra.Command
	Delete              *cobra.Command
	CreateDetectionArea *cobra.Command
}

// UploadResult is rendered after a successful create raster.
type UploadResult struct {
	RasterID  apiclient.Identifier   `json:"raster_id"`
	Detectors []apiclient.Identifier `json:"detectors,omitempty"`
	Raster    *Raster                `json:"raster,omitempty"`
}

// Build constructs the raster subcommands.
func (builder *CommandBuilder) Build() Commands {
	listCommand := &cobra.Command{
		Use:   listCommandNameConstant,
		Short: listCommandShortDescriptionConstant,
		Long:  listCommandLongDescriptionConstant,
		Args:  flags.PositionalArguments(),
		RunE:  builder.runList,
	}
	listCommand.Flags().String(folderFlagNameConstant, "", folderFlagUsageConstant)

	getCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(singleCommandNameConstant, rasterArgumentNameConstant),
		Short: getCommandShortDescriptionConstant,
		Args:  flags.PositionalArguments(rasterArgumentNameConstant),
		RunE:  builder.runGet,
	}

	createCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(singleCommandNameConstant, pathArgumentNameConstant),
		Short: createCommandShortDescriptionConstant,
		Long:  createCommandLongDescriptionConstant,
		Args:  flags.PositionalArguments(pathArgumentNameConstant),
		RunE:  builder.runCreate,
	}
	createCommand.Flags().String(nameFlagNameConstant, "", nameFlagUsageConstant)
	createCommand.Flags().String(folderFlagNameConstant, "", folderFlagUsageConstant)
	createCommand.Flags().String(capturedAtFlagNameConstant, "", capturedAtFlagUsageConstant)
	createCommand.Flags().String(identityKeyFlagNameConstant, "", identityKeyFlagUsageConstant)
	createCommand.Flags().Bool(multispectralFlagNameConstant, false, multispectralFlagUsageConstant)
	createCommand.Flags().String(checkExistingFlagNameConstant, defaultCloneCheckScopeValueConstant, flags.FormatChoiceUsage(defaultCloneCheckScopeValueConstant, CloneCheckScopeChoices(), checkExistingFlagUsageConstant))
	createCommand.Flags().StringSlice(detectorFlagNameConstant, nil, detectorFlagUsageConstant)
	createCommand.Flags().Bool(waitReadyFlagNameConstant, false, waitReadyFlagUsageConstant)

	editCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(singleCommandNameConstant, rasterArgumentNameConstant),
		Short: editCommandShortDescriptionConstant,
		Args:  flags.PositionalArguments(rasterArgumentNameConstant),
		RunE:  builder.runEdit,
	}
	editCommand.Flags().String(nameFlagNameConstant, "", nameFlagUsageConstant)
	editCommand.Flags().String(folderFlagNameConstant, "", folderFlagUsageConstant)
	editCommand.Flags().String(capturedAtFlagNameConstant, "", capturedAtFlagUsageConstant)
	editCommand.Flags().String(identityKeyFlagNameConstant, "", identityKeyFlagUsageConstant)

	deleteCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(singleCommandNameConstant, rasterArgumentNameConstant),
		Short: deleteCommandShortDescriptionConstant,
		Args:  flags.PositionalArguments(rasterArgumentNameConstant),
		RunE:  builder.runDelete,
	}

	detectionAreaCommand := &cobra.Command{
		Use:   flags.ArgumentsUsage(detectionAreaCommandNameConstant, pathArgumentNameConstant, rasterArgumentNameConstant),
		Short: detectionAreaShortDescriptionConstant,
		Long:  detectionAreaLongDescriptionConstant,
		Args:  flags.PositionalArguments(pathArgumentNameConstant, rasterArgumentNameConstant),
		RunE:  builder.runCreateDetectionArea,
	}

	return Commands{
		List:                listCommand,
		Get:                 getCommand,
		Create:              createCommand,
		Edit:                editCommand,
		Delete:              deleteCommand,
		CreateDetectionArea: detectionAreaCommand,
	}
}

func (builder *CommandBuilder) runList(command *cobra.Command, _ []string) error {
	folderID, flagError := command.Flags().GetString(folderFlagNameConstant)
	if flagError != nil {
		return flagError
	}

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	rasters, listError := service.List(command.Context(), folderID)
	if listError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, listVerbConstant, listError)
	}

	return builder.render(command, rasters)
}

func (builder *CommandBuilder) runGet(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	raster, getError := service.Get(command.Context(), apiclient.Identifier(strings.TrimSpace(arguments[0])))
	if getError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, getVerbConstant, getError)
	}

	return builder.render(command, raster)
}

func (builder *CommandBuilder) runCreate(command *cobra.Command, arguments []string) error {
	uploadRequest, optionsError := parseUploadRequest(command, arguments[0])
	if optionsError != nil {
		return optionsError
	}

	detectorValues, detectorFlagError := command.Flags().GetStringSlice(detectorFlagNameConstant)
	if detectorFlagError != nil {
		return detectorFlagError
	}
	detectorIDs := parseIdentifiers(detectorValues)

	waitReady, waitFlagError := command.Flags().GetBool(waitReadyFlagNameConstant)
	if waitFlagError != nil {
		return waitFlagError
	}

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	var linker DetectorLinker
	if len(detectorIDs) > 0 {
		resolvedLinker, linkerError := builder.resolveLinker()
		if linkerError != nil {
			return linkerError
		}
		linker = resolvedLinker
	}

	rasterID, uploadError := service.Upload(command.Context(), uploadRequest)
	if uploadError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, createVerbConstant, uploadError)
	}

	result := UploadResult{RasterID: rasterID}
	logger := builder.resolveLogger()
	for _, detectorID := range detectorIDs {
		if linkError := linker.AddRaster(command.Context(), detectorID, rasterID); linkError != nil {
			return fmt.Errorf(detectorLinkFailureTemplateConstant, rasterID, detectorID, linkError)
		}
		logger.Info(
			rasterLinkedLogMessageConstant,
			zap.String(rasterIdentifierLogFieldNameConstant, rasterID.String()),
			zap.String(detectorIdentifierLogFieldNameConstant, detectorID.String()),
		)
		result.Detectors = append(result.Detectors, detectorID)
	}

	if waitReady {
		readyRaster, waitError := service.WaitUntilReady(command.Context(), rasterID)
		if waitError != nil {
			return fmt.Errorf(commandFailureTemplateConstant, createVerbConstant, waitError)
		}
		result.Raster = &readyRaster
	}

	return builder.render(command, result)
}

func (builder *CommandBuilder) runEdit(command *cobra.Command, arguments []string) error {
	var editRequest EditRequest
	editRequest.Name = changedStringFlag(command, nameFlagNameConstant)
	editRequest.FolderID = changedStringFlag(command, folderFlagNameConstant)
	editRequest.CapturedAt = changedStringFlag(command, capturedAtFlagNameConstant)
	editRequest.IdentityKey = changedStringFlag(command, identityKeyFlagNameConstant)

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	if editError := service.Edit(command.Context(), apiclient.Identifier(strings.TrimSpace(arguments[0])), editRequest); editError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, editVerbConstant, editError)
	}
	return nil
}

func (builder *CommandBuilder) runDelete(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	if deleteError := service.Delete(command.Context(), apiclient.Identifier(strings.TrimSpace(arguments[0]))); deleteError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, deleteVerbConstant, deleteError)
	}
	return nil
}

func (builder *CommandBuilder) runCreateDetectionArea(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	rasterID := apiclient.Identifier(strings.TrimSpace(arguments[1]))
	if setError := service.SetDetectionAreasFromFile(command.Context(), rasterID, arguments[0]); setError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, detectionAreaVerbConstant, setError)
	}
	return nil
}

func parseUploadRequest(command *cobra.Command, filePath string) (UploadRequest, error) {
	commandFlags := command.Flags()

	name, nameError := commandFlags.GetString(nameFlagNameConstant)
	if nameError != nil {
		return UploadRequest{}, nameError
	}
	folderID, folderError := commandFlags.GetString(folderFlagNameConstant)
	if folderError != nil {
		return UploadRequest{}, folderError
	}
	capturedAt, capturedAtError := commandFlags.GetString(capturedAtFlagNameConstant)
	if capturedAtError != nil {
		return UploadRequest{}, capturedAtError
	}
	identityKey, identityKeyError := commandFlags.GetString(identityKeyFlagNameConstant)
	if identityKeyError != nil {
		return UploadRequest{}, identityKeyError
	}
	multispectral, multispectralError := commandFlags.GetBool(multispectralFlagNameConstant)
	if multispectralError != nil {
		return UploadRequest{}, multispectralError
	}
	checkExisting, checkExistingError := commandFlags.GetString(checkExistingFlagNameConstant)
	if checkExistingError != nil {
		return UploadRequest{}, checkExistingError
	}
	checkScope, scopeError := ParseCloneCheckScope(checkExisting)
	if scopeError != nil {
		return UploadRequest{}, scopeError
	}

	return UploadRequest{
		FilePath:      strings.TrimSpace(filePath),
		Name:          name,
		FolderID:      folderID,
		CapturedAt:    capturedAt,
		IdentityKey:   identityKey,
		Multispectral: multispectral,
		CheckScope:    checkScope,
	}, nil
}

func changedStringFlag(command *cobra.Command, flagName string) *string {
	if !command.Flags().Changed(flagName) {
		return nil
	}
	flagValue, flagError := command.Flags().GetString(flagName)
	if flagError != nil {
		return nil
	}
	trimmedValue := strings.TrimSpace(flagValue)
	return &trimmedValue
}

func parseIdentifiers(values []string) []apiclient.Identifier {
	identifiers := make([]apiclient.Identifier, 0, len(values))
	for _, value := range values {
		identifier := apiclient.Identifier(strings.TrimSpace(value))
		if identifier.IsEmpty() {
			continue
		}
		identifiers = append(identifiers, identifier)
	}
	return identifiers
}

func (builder *CommandBuilder) render(command *cobra.Command, value any) error {
	outputFormat := outputFormatProviderMissingDefaultValue
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

func (builder *CommandBuilder) resolveLinker() (DetectorLinker, error) {
	if builder.DetectorLinkerProvider == nil {
		return nil, errors.New(linkerResolverMissingMessageConstant)
	}
	return builder.DetectorLinkerProvider(builder.resolveLogger())
}
