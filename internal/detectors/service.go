package detectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	detectorsResourceConstant               = "detectors"
	trainingRastersSegmentConstant          = "training_rasters"
	trainSegmentConstant                    = "train"
	runSegmentConstant                      = "run"
	listDetectorsOperationName              = apiclient.OperationName("ListDetectors")
	createDetectorOperationName             = apiclient.OperationName("CreateDetector")
	editDetectorOperationName               = apiclient.OperationName("EditDetector")
	deleteDetectorOperationName             = apiclient.OperationName("DeleteDetector")
	addTrainingRasterOperationName          = apiclient.OperationName("AddTrainingRaster")
	trainDetectorOperationName              = apiclient.OperationName("TrainDetector")
	runDetectorOperationName                = apiclient.OperationName("RunDetector")
	detectorIDFieldNameConstant             = "detector_id"
	rasterIDFieldNameConstant               = "raster_id"
	operationIDFieldNameConstant            = "operation_id"
	destinationFieldNameConstant            = "destination"
	valueRequiredMessageConstant            = "value required"
	createdIdentifierMissingMessageConstant = "created detector identifier missing"
	resultUnavailableMessageConstant        = "result url unavailable"
	resultUnavailableErrorTemplateConstant  = "operation %s: %w"
	detectorCreatedLogMessageConstant       = "detector created"
	detectorEditedLogMessageConstant        = "detector edited"
	detectorDeletedLogMessageConstant       = "detector deleted"
	trainingRasterAddedLogMessageConstant   = "raster added to detector"
	trainingStartedLogMessageConstant       = "detector training started"
	detectionStartedLogMessageConstant      = "detection run started"
	resultDownloadedLogMessageConstant      = "detection result downloaded"
	detectorIdentifierLogFieldNameConstant  = "detector_id"
	rasterIdentifierLogFieldNameConstant    = "raster_id"
	operationIdentifierLogFieldNameConstant = "operation_id"
	destinationLogFieldNameConstant         = "destination"
)

// ErrResultUnavailable indicates an operation that published no result URL.
var ErrResultUnavailable = errors.New(resultUnavailableMessageConstant)

// APIClient captures the transport operations the detector service relies on.
type APIClient interface {
	apiclient.Paginator
	PostJSON(executionContext context.Context, operation apiclient.OperationName, path string, payload any, target any) error
	PutJSON(executionContext context.Context, operation apiclient.OperationName, path string, payload any, target any) error
	Delete(executionContext context.Context, operation apiclient.OperationName, path string) error
	GetOperation(executionContext context.Context, operationID apiclient.Identifier) (apiclient.Operation, error)
	WaitForOperation(executionContext context.Context, handle apiclient.OperationHandle) (apiclient.Operation, error)
	DownloadFile(executionContext context.Context, downloadURL string, destination string) error
}

// Service performs detector operations against the API.
type Service struct {
	logger *zap.Logger
	client APIClient
}

// NewService constructs a detector Service.
func NewService(logger *zap.Logger, client APIClient) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, client: client}
}

// List returns every detector in the account.
func (service *Service) List(executionContext context.Context) ([]Detector, error) {
	return apiclient.CollectPages[Detector](executionContext, service.client, listDetectorsOperationName, apiclient.ResourcePath(detectorsResourceConstant), nil)
}

// Create validates the request and creates a detector, returning its identifier.
func (service *Service) Create(executionContext context.Context, request CreateRequest) (apiclient.Identifier, error) {
	payload, validationError := request.buildPayload()
	if validationError != nil {
		return "", validationError
	}

	var created createdDetector
	if createError := service.client.PostJSON(executionContext, createDetectorOperationName, apiclient.ResourcePath(detectorsResourceConstant), payload, &created); createError != nil {
		return "", createError
	}
	if created.ID.IsEmpty() {
		return "", apiclient.ResponseDecodingError{Operation: createDetectorOperationName, Cause: errors.New(createdIdentifierMissingMessageConstant)}
	}

	service.logger.Info(detectorCreatedLogMessageConstant, zap.String(detectorIdentifierLogFieldNameConstant, created.ID.String()))
	return created.ID, nil
}

// Edit validates the request and updates the detector.
func (service *Service) Edit(executionContext context.Context, detectorID apiclient.Identifier, request EditRequest) error {
	if detectorID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: detectorIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	payload, validationError := request.buildPayload()
	if validationError != nil {
		return validationError
	}

	if editError := service.client.PutJSON(executionContext, editDetectorOperationName, detectorPath(detectorID), payload, nil); editError != nil {
		return editError
	}

	service.logger.Info(detectorEditedLogMessageConstant, zap.String(detectorIdentifierLogFieldNameConstant, detectorID.String()))
	return nil
}

// Delete removes a detector.
func (service *Service) Delete(executionContext context.Context, detectorID apiclient.Identifier) error {
	if detectorID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: detectorIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	if deleteError := service.client.Delete(executionContext, deleteDetectorOperationName, detectorPath(detectorID)); deleteError != nil {
		return deleteError
	}

	service.logger.Info(detectorDeletedLogMessageConstant, zap.String(detectorIdentifierLogFieldNameConstant, detectorID.String()))
	return nil
}

// AddRaster registers a raster as training data for a detector.
func (service *Service) AddRaster(executionContext context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier) error {
	if validationError := requireIdentifiers(detectorID, rasterID); validationError != nil {
		return validationError
	}

	addPath := apiclient.ResourcePath(detectorsResourceConstant, detectorID.String(), trainingRastersSegmentConstant)
	if addError := service.client.PostJSON(executionContext, addTrainingRasterOperationName, addPath, trainingRasterPayload{RasterID: rasterID}, nil); addError != nil {
		return addError
	}

	service.logger.Info(
		trainingRasterAddedLogMessageConstant,
		zap.String(detectorIdentifierLogFieldNameConstant, detectorID.String()),
		zap.String(rasterIdentifierLogFieldNameConstant, rasterID.String()),
	)
	return nil
}

// Train starts detector training and waits for the operation to finish.
func (service *Service) Train(executionContext context.Context, detectorID apiclient.Identifier) (apiclient.Operation, error) {
	if detectorID.IsEmpty() {
		return apiclient.Operation{}, apiclient.InvalidInputError{FieldName: detectorIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	var handle apiclient.OperationHandle
	trainPath := apiclient.ResourcePath(detectorsResourceConstant, detectorID.String(), trainSegmentConstant)
	if trainError := service.client.PostJSON(executionContext, trainDetectorOperationName, trainPath, nil, &handle); trainError != nil {
		return apiclient.Operation{}, trainError
	}

	service.logger.Info(
		trainingStartedLogMessageConstant,
		zap.String(detectorIdentifierLogFieldNameConstant, detectorID.String()),
		zap.String(operationIdentifierLogFieldNameConstant, handle.OperationID.String()),
	)

	return service.client.WaitForOperation(executionContext, handle)
}

// Run starts detection on a raster, waits for completion, and returns the operation identifier.
func (service *Service) Run(executionContext context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier) (apiclient.Identifier, error) {
	if validationError := requireIdentifiers(detectorID, rasterID); validationError != nil {
		return "", validationError
	}

	var handle apiclient.OperationHandle
	runPath := apiclient.ResourcePath(detectorsResourceConstant, detectorID.String(), runSegmentConstant)
	if runError := service.client.PostJSON(executionContext, runDetectorOperationName, runPath, runPayload{RasterID: rasterID}, &handle); runError != nil {
		return "", runError
	}

	service.logger.Info(
		detectionStartedLogMessageConstant,
		zap.String(detectorIdentifierLogFieldNameConstant, detectorID.String()),
		zap.String(rasterIdentifierLogFieldNameConstant, rasterID.String()),
		zap.String(operationIdentifierLogFieldNameConstant, handle.OperationID.String()),
	)

	if _, waitError := service.client.WaitForOperation(executionContext, handle); waitError != nil {
		return "", waitError
	}
	return handle.OperationID, nil
}

// DownloadResult writes the GeoJSON result published by a detection operation to destination.
func (service *Service) DownloadResult(executionContext context.Context, operationID apiclient.Identifier, destination string) error {
	if operationID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: operationIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}
	if len(strings.TrimSpace(destination)) == 0 {
		return apiclient.InvalidInputError{FieldName: destinationFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	operation, fetchError := service.client.GetOperation(executionContext, operationID)
	if fetchError != nil {
		return fetchError
	}

	resultURL, available := operation.ResultURL()
	if !available {
		return fmt.Errorf(resultUnavailableErrorTemplateConstant, operationID, ErrResultUnavailable)
	}

	if downloadError := service.client.DownloadFile(executionContext, resultURL, destination); downloadError != nil {
		return downloadError
	}

	service.logger.Info(
		resultDownloadedLogMessageConstant,
		zap.String(operationIdentifierLogFieldNameConstant, operationID.String()),
		zap.String(destinationLogFieldNameConstant, destination),
	)
	return nil
}

func requireIdentifiers(detectorID apiclient.Identifier, rasterID apiclient.Identifier) error {
	if detectorID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: detectorIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}
	if rasterID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: rasterIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}
	return nil
}

func detectorPath(detectorID apiclient.Identifier) string {
	return apiclient.ResourcePath(detectorsResourceConstant, detectorID.String())
}
