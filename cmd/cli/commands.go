package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/annotations"
	"github.com/temirov/geodetect/internal/detectors"
	"github.com/temirov/geodetect/internal/rasters"
)

const (
	listGroupUseConstant           = "list"
	listGroupShortDescription      = "List rasters or detectors"
	getGroupUseConstant            = "get"
	getGroupShortDescription       = "Show a single resource"
	createGroupUseConstant         = "create"
	createGroupShortDescription    = "Create rasters, detectors, detection areas, or annotations"
	editGroupUseConstant           = "edit"
	editGroupShortDescription      = "Edit rasters or detectors"
	deleteGroupUseConstant         = "delete"
	deleteGroupShortDescription    = "Delete rasters or detectors"
	commandGroupLongTemplateSuffix = " groups the resource subcommands sharing this verb."
)

// verbGroupBuilder assembles a verb command grouping resource subcommands.
type verbGroupBuilder struct {
	use              string
	shortDescription string
	subcommands      []*cobra.Command
}

// Build constructs the verb command hierarchy.
func (builder verbGroupBuilder) Build() *cobra.Command {
	command := &cobra.Command{
		Use:   builder.use,
		Short: builder.shortDescription,
		Long:  builder.use + commandGroupLongTemplateSuffix,
	}

	command.AddCommand(builder.subcommands...)

	return command
}

func (application *Application) registerCommands(rootCommand *cobra.Command) {
	rasterBuilder := rasters.CommandBuilder{
		LoggerProvider: application.currentLogger,
		ServiceProvider: func(logger *zap.Logger) (rasters.Operations, error) {
			client, clientError := application.apiClient(logger)
			if clientError != nil {
				return nil, clientError
			}
			return rasters.NewService(logger, client), nil
		},
		DetectorLinkerProvider: func(logger *zap.Logger) (rasters.DetectorLinker, error) {
			client, clientError := application.apiClient(logger)
			if clientError != nil {
				return nil, clientError
			}
			return detectors.NewService(logger, client), nil
		},
		OutputFormatProvider: application.currentOutputFormat,
	}
	rasterCommands := rasterBuilder.Build()

	detectorBuilder := detectors.CommandBuilder{
		LoggerProvider: application.currentLogger,
		ServiceProvider: func(logger *zap.Logger) (detectors.Operations, error) {
			client, clientError := application.apiClient(logger)
			if clientError != nil {
				return nil, clientError
			}
			return detectors.NewService(logger, client), nil
		},
		OutputFormatProvider: application.currentOutputFormat,
	}
	detectorCommands := detectorBuilder.Build()

	annotationBuilder := annotations.CommandBuilder{
		LoggerProvider: application.currentLogger,
		ServiceProvider: func(logger *zap.Logger) (annotations.Operations, error) {
			client, clientError := application.apiClient(logger)
			if clientError != nil {
				return nil, clientError
			}
			return annotations.NewService(logger, client), nil
		},
	}
	annotationCommand := annotationBuilder.Build()

	verbGroups := []verbGroupBuilder{
		{use: listGroupUseConstant, shortDescription: listGroupShortDescription, subcommands: []*cobra.Command{rasterCommands.List, detectorCommands.List}},
		{use: getGroupUseConstant, shortDescription: getGroupShortDescription, subcommands: []*cobra.Command{rasterCommands.Get}},
		{use: createGroupUseConstant, shortDescription: createGroupShortDescription, subcommands: []*cobra.Command{rasterCommands.Create, detectorCommands.Create, rasterCommands.CreateDetectionArea, annotationCommand}},
		{use: editGroupUseConstant, shortDescription: editGroupShortDescription, subcommands: []*cobra.Command{rasterCommands.Edit, detectorCommands.Edit}},
		{use: deleteGroupUseConstant, shortDescription: deleteGroupShortDescription, subcommands: []*cobra.Command{rasterCommands.Delete, detectorCommands.Delete}},
	}
	for _, verbGroup := range verbGroups {
		rootCommand.AddCommand(verbGroup.Build())
	}

	rootCommand.AddCommand(detectorCommands.Train, detectorCommands.Detect, detectorCommands.Download)
}
