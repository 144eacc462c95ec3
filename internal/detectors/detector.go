package detectors

import (
	"fmt"
	"strings"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	detectionTypeCountValueConstant        = "count"
	detectionTypeSegmentationValueConstant = "segmentation"
	outputTypePolygonValueConstant         = "polygon"
	outputTypeBoundingBoxValueConstant     = "bbox"
	detectionTypeFieldNameConstant         = "detection_type"
	outputTypeFieldNameConstant            = "output_type"
	trainingStepsFieldNameConstant         = "training_steps"
	unsupportedValueMessageTemplate        = "unsupported value %q (expected %s)"
	trainingStepsRangeMessageTemplate      = "%d outside the accepted range %d-%d"
	choiceSeparatorConstant                = " or "

	// MinimumTrainingSteps is the smallest accepted training step count.
	MinimumTrainingSteps = 500
	// MaximumTrainingSteps is the largest accepted training step count.
	MaximumTrainingSteps = 40000
)

// DetectionType selects what a detector produces.
type DetectionType string

// Detection type enumerations.
const (
	DetectionTypeCount        DetectionType = DetectionType(detectionTypeCountValueConstant)
	DetectionTypeSegmentation DetectionType = DetectionType(detectionTypeSegmentationValueConstant)
)

// OutputType selects the geometry of detection results.
type OutputType string

// Output type enumerations.
const (
	OutputTypePolygon     OutputType = OutputType(outputTypePolygonValueConstant)
	OutputTypeBoundingBox OutputType = OutputType(outputTypeBoundingBoxValueConstant)
)

// DetectionTypeChoices lists the accepted detection types.
func DetectionTypeChoices() []string {
	return []string{detectionTypeCountValueConstant, detectionTypeSegmentationValueConstant}
}

// OutputTypeChoices lists the accepted output types.
func OutputTypeChoices() []string {
	return []string{outputTypePolygonValueConstant, outputTypeBoundingBoxValueConstant}
}

// ParseDetectionType validates a detection type. An empty value means "not provided".
func ParseDetectionType(value string) (DetectionType, error) {
	normalizedValue, parseError := parseChoice(detectionTypeFieldNameConstant, value, DetectionTypeChoices())
	return DetectionType(normalizedValue), parseError
}

// ParseOutputType validates an output type. An empty value means "not provided".
func ParseOutputType(value string) (OutputType, error) {
	normalizedValue, parseError := parseChoice(outputTypeFieldNameConstant, value, OutputTypeChoices())
	return OutputType(normalizedValue), parseError
}

// Detector is a trained model resource as reported by the API.
type Detector struct {
	ID            apiclient.Identifier `json:"id"`
	Name          string               `json:"name,omitempty"`
	Type          string               `json:"type,omitempty"`
	Configuration *Configuration       `json:"configuration,omitempty"`
}

// Configuration holds the detector settings sent to the API. Zero values are omitted.
type Configuration struct {
	DetectionType DetectionType `json:"detection_type,omitempty"`
	OutputType    OutputType    `json:"output_type,omitempty"`
	TrainingSteps int           `json:"training_steps,omitempty"`
}

// CreateRequest describes a detector to create. Empty fields are left to server defaults.
type CreateRequest struct {
	Name          string
	DetectionType string
	OutputType    string
	TrainingSteps int
}

// EditRequest describes detector changes. Empty fields are left untouched.
type EditRequest = CreateRequest

type detectorPayload struct {
	Name          string        `json:"name,omitempty"`
	Configuration Configuration `json:"configuration"`
}

type createdDetector struct {
	ID apiclient.Identifier `json:"id"`
}

type trainingRasterPayload struct {
	RasterID apiclient.Identifier `json:"raster_id"`
}

type runPayload struct {
	RasterID apiclient.Identifier `json:"raster_id"`
}

// buildPayload validates every field before anything is sent.
func (request CreateRequest) buildPayload() (detectorPayload, error) {
	detectionType, detectionTypeError := ParseDetectionType(request.DetectionType)
	if detectionTypeError != nil {
		return detectorPayload{}, detectionTypeError
	}

	outputType, outputTypeError := ParseOutputType(request.OutputType)
	if outputTypeError != nil {
		return detectorPayload{}, outputTypeError
	}

	if request.TrainingSteps != 0 && (request.TrainingSteps < MinimumTrainingSteps || request.TrainingSteps > MaximumTrainingSteps) {
		return detectorPayload{}, apiclient.InvalidInputError{
			FieldName: trainingStepsFieldNameConstant,
			Message:   fmt.Sprintf(trainingStepsRangeMessageTemplate, request.TrainingSteps, MinimumTrainingSteps, MaximumTrainingSteps),
		}
	}

	return detectorPayload{
		Name: strings.TrimSpace(request.Name),
		Configuration: Configuration{
			DetectionType: detectionType,
			OutputType:    outputType,
			TrainingSteps: request.TrainingSteps,
		},
	}, nil
}

func parseChoice(fieldName string, value string, choices []string) (string, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(value))
	if len(normalizedValue) == 0 {
		return "", nil
	}
	for _, choice := range choices {
		if normalizedValue == choice {
			return normalizedValue, nil
		}
	}
	return "", apiclient.InvalidInputError{
		FieldName: fieldName,
		Message:   fmt.Sprintf(unsupportedValueMessageTemplate, value, strings.Join(choices, choiceSeparatorConstant)),
	}
}
