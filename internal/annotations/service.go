package annotations

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	detectorsResourceConstant          = "detectors"
	trainingRastersSegmentConstant     = "training_rasters"
	uploadSegmentConstant              = "upload"
	bulkSegmentConstant                = "bulk"
	commitSegmentConstant              = "commit"
	startUploadOperationName           = apiclient.OperationName("StartAnnotationUpload")
	commitUploadOperationName          = apiclient.OperationName("CommitAnnotations")
	detectorIDFieldNameConstant        = "detector_id"
	rasterIDFieldNameConstant          = "raster_id"
	documentFieldNameConstant          = "document"
	filePathFieldNameConstant          = "path"
	valueRequiredMessageConstant       = "value required"
	uploadIDFieldNameConstant          = "upload_id"
	fieldMissingErrorTemplateConstant  = "%s missing"
	invalidJSONMessageTemplate         = "%s does not contain valid JSON"
	readFileErrorTemplateConstant      = "unable to read %s: %w"
	annotationsSetLogMessageConstant   = "annotations uploaded"
	detectorIdentifierLogFieldConstant = "detector_id"
	rasterIdentifierLogFieldConstant   = "raster_id"
	annotationTypeLogFieldConstant     = "annotation_type"
	uploadIdentifierLogFieldConstant   = "upload_id"
	annotationUploadStartedLogMessage  = "annotation upload started"
)

// APIClient captures the transport operations the annotation service relies on.
type APIClient interface {
	PostJSON(executionContext context.Context, operation apiclient.OperationName, path string, payload any, target any) error
	UploadJSON(executionContext context.Context, uploadURL string, payload any) error
	WaitForOperation(executionContext context.Context, handle apiclient.OperationHandle) (apiclient.Operation, error)
}

// Service uploads annotation documents.
type Service struct {
	logger *zap.Logger
	client APIClient
}

// NewService constructs an annotation Service.
func NewService(logger *zap.Logger, client APIClient) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, client: client}
}

// Set replaces the annotations of the given type for a training raster.
func (service *Service) Set(executionContext context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier, annotationType Type, document any) error {
	parsedType, typeError := ParseType(string(annotationType))
	if typeError != nil {
		return typeError
	}
	if detectorID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: detectorIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}
	if rasterID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: rasterIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}
	if document == nil {
		return apiclient.InvalidInputError{FieldName: documentFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	bulkPath := []string{detectorsResourceConstant, detectorID.String(), trainingRastersSegmentConstant, rasterID.String(), string(parsedType), uploadSegmentConstant, bulkSegmentConstant}

	var ticket bulkUploadTicket
	if startError := service.client.PostJSON(executionContext, startUploadOperationName, apiclient.ResourcePath(bulkPath...), nil, &ticket); startError != nil {
		return startError
	}
	if ticket.UploadID.IsEmpty() {
		return apiclient.ResponseDecodingError{Operation: startUploadOperationName, Cause: fmt.Errorf(fieldMissingErrorTemplateConstant, uploadIDFieldNameConstant)}
	}

	service.logger.Debug(
		annotationUploadStartedLogMessage,
		zap.String(detectorIdentifierLogFieldConstant, detectorID.String()),
		zap.String(rasterIdentifierLogFieldConstant, rasterID.String()),
		zap.String(uploadIdentifierLogFieldConstant, ticket.UploadID.String()),
	)

	if uploadError := service.client.UploadJSON(executionContext, ticket.UploadURL, document); uploadError != nil {
		return uploadError
	}

	var handle apiclient.OperationHandle
	commitPath := apiclient.ResourcePath(append(bulkPath, ticket.UploadID.String(), commitSegmentConstant)...)
	if commitError := service.client.PostJSON(executionContext, commitUploadOperationName, commitPath, nil, &handle); commitError != nil {
		return commitError
	}

	if _, waitError := service.client.WaitForOperation(executionContext, handle); waitError != nil {
		return waitError
	}

	service.logger.Info(
		annotationsSetLogMessageConstant,
		zap.String(detectorIdentifierLogFieldConstant, detectorID.String()),
		zap.String(rasterIdentifierLogFieldConstant, rasterID.String()),
		zap.String(annotationTypeLogFieldConstant, string(parsedType)),
	)
	return nil
}

// ReadDocument loads a JSON document from disk, rejecting content that is not valid JSON.
func ReadDocument(filePath string) (json.RawMessage, error) {
	trimmedFilePath := strings.TrimSpace(filePath)
	if len(trimmedFilePath) == 0 {
		return nil, apiclient.InvalidInputError{FieldName: filePathFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	content, readError := os.ReadFile(trimmedFilePath)
	if readError != nil {
		return nil, fmt.Errorf(readFileErrorTemplateConstant, trimmedFilePath, readError)
	}
	if !json.Valid(content) {
		return nil, apiclient.InvalidInputError{
			FieldName: filePathFieldNameConstant,
			Message:   fmt.Sprintf(invalidJSONMessageTemplate, trimmedFilePath),
		}
	}

	return json.RawMessage(content), nil
}
