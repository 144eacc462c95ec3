package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	outputFormatJSONStringConstant          = "json"
	outputFormatYAMLStringConstant          = "yaml"
	jsonIndentConstant                      = "  "
	yamlIndentConstant                      = 2
	unsupportedOutputFormatTemplateConstant = "unsupported output format: %s"
	outputEncodingErrorTemplateConstant     = "unable to render %s output: %w"
)

// OutputFormat enumerates supported result encodings.
type OutputFormat string

// Output format enumerations.
const (
	OutputFormatJSON OutputFormat = OutputFormat(outputFormatJSONStringConstant)
	OutputFormatYAML OutputFormat = OutputFormat(outputFormatYAMLStringConstant)
)

// OutputFormatChoices lists the accepted output format names.
func OutputFormatChoices() []string {
	return []string{outputFormatJSONStringConstant, outputFormatYAMLStringConstant}
}

// ParseOutputFormat normalizes textual output format declarations, defaulting to JSON.
func ParseOutputFormat(formatValue string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(formatValue)) {
	case "", outputFormatJSONStringConstant:
		return OutputFormatJSON, nil
	case outputFormatYAMLStringConstant, "yml":
		return OutputFormatYAML, nil
	default:
		return "", fmt.Errorf(unsupportedOutputFormatTemplateConstant, formatValue)
	}
}

// OutputRenderer writes command results to a destination in the configured format.
type OutputRenderer struct {
	writer io.Writer
	format OutputFormat
}

// NewOutputRenderer constructs a renderer; an empty format selects JSON.
func NewOutputRenderer(writer io.Writer, format OutputFormat) *OutputRenderer {
	if len(format) == 0 {
		format = OutputFormatJSON
	}
	return &OutputRenderer{writer: writer, format: format}
}

// Render encodes value and writes it in a single write, flushing buffered writers afterwards.
// Nothing is written when encoding fails.
func (renderer *OutputRenderer) Render(value any) error {
	if renderer == nil || renderer.writer == nil {
		return nil
	}

	var renderedOutput bytes.Buffer
	if encodingError := renderer.encode(&renderedOutput, value); encodingError != nil {
		return encodingError
	}

	if _, writeError := renderer.writer.Write(renderedOutput.Bytes()); writeError != nil {
		return writeError
	}

	if flushableWriter, implementsFlush := renderer.writer.(interface{ Flush() error }); implementsFlush {
		return flushableWriter.Flush()
	}
	return nil
}

// encode derives YAML output from the JSON encoding so field names follow json tags.
func (renderer *OutputRenderer) encode(destination io.Writer, value any) error {
	switch renderer.format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(destination)
		encoder.SetIndent("", jsonIndentConstant)
		if encodingError := encoder.Encode(value); encodingError != nil {
			return fmt.Errorf(outputEncodingErrorTemplateConstant, renderer.format, encodingError)
		}
		return nil
	case OutputFormatYAML:
		jsonBytes, marshalError := json.Marshal(value)
		if marshalError != nil {
			return fmt.Errorf(outputEncodingErrorTemplateConstant, renderer.format, marshalError)
		}
		var genericValue any
		if decodingError := json.Unmarshal(jsonBytes, &genericValue); decodingError != nil {
			return fmt.Errorf(outputEncodingErrorTemplateConstant, renderer.format, decodingError)
		}
		encoder := yaml.NewEncoder(destination)
		encoder.SetIndent(yamlIndentConstant)
		if encodingError := encoder.Encode(genericValue); encodingError != nil {
			return fmt.Errorf(outputEncodingErrorTemplateConstant, renderer.format, encodingError)
		}
		return encoder.Close()
	default:
		return fmt.Errorf(unsupportedOutputFormatTemplateConstant, renderer.format)
	}
}
