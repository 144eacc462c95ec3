package annotations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
	"github.com/temirov/geodetect/internal/utils/flags"
)

const (
	createCommandNameConstant             = "annotation"
	createCommandShortDescriptionConstant = "Upload annotations for a training raster"
	createCommandLongDescriptionConstant  = "annotation replaces the annotations of the given type (outline, training_area, testing_area, validation_area) for a raster attached to a detector."
	pathArgumentNameConstant              = "path"
	rasterArgumentNameConstant            = "raster"
	detectorArgumentNameConstant          = "detector"
	typeArgumentNameConstant              = "type"
	serviceResolverMissingMessageConstant = "annotation service not configured"
	commandFailureTemplateConstant        = "create annotation failed: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// Operations describes the annotation behaviors used by the commands.
type Operations interface {
	Set(executionContext context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier, annotationType Type, document any) error
}

// ServiceProvider resolves annotation operations for a command invocation.
type ServiceProvider func(logger *zap.Logger) (Operations, error)

// CommandBuilder assembles the annotation subcommand.
type CommandBuilder struct {
	LoggerProvider  LoggerProvider
	ServiceProvider ServiceProvider
}

// Build constructs the create annotation subcommand.
func (builder *CommandBuilder) Build() *cobra.Command {
	return &cobra.Command{
		Use:   flags.ArgumentsUsage(createCommandNameConstant, pathArgumentNameConstant, rasterArgumentNameConstant, detectorArgumentNameConstant, typeArgumentNameConstant),
		Short: createCommandShortDescriptionConstant,
		Long:  createCommandLongDescriptionConstant,
		Args:  flags.PositionalArguments(pathArgumentNameConstant, rasterArgumentNameConstant, detectorArgumentNameConstant, typeArgumentNameConstant),
		RunE:  builder.run,
	}
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	annotationType, typeError := ParseType(arguments[3])
	if typeError != nil {
		return typeError
	}

	document, documentError := ReadDocument(arguments[0])
	if documentError != nil {
		return documentError
	}

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	rasterID := apiclient.Identifier(strings.TrimSpace(arguments[1]))
	detectorID := apiclient.Identifier(strings.TrimSpace(arguments[2]))
	if setError := service.Set(command.Context(), detectorID, rasterID, annotationType, document); setError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, setError)
	}
	return nil
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
