package rasters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	listRastersOperationName                 = apiclient.OperationName("ListRasters")
	getRasterOperationName                   = apiclient.OperationName("GetRaster")
	editRasterOperationName                  = apiclient.OperationName("EditRaster")
	deleteRasterOperationName                = apiclient.OperationName("DeleteRaster")
	startRasterUploadOperationName           = apiclient.OperationName("StartRasterUpload")
	commitRasterOperationName                = apiclient.OperationName("CommitRaster")
	startDetectionAreaUploadOperationName    = apiclient.OperationName("StartDetectionAreaUpload")
	commitDetectionAreaOperationName         = apiclient.OperationName("CommitDetectionArea")
	uploadSegmentConstant                    = "upload"
	fileSegmentConstant                      = "file"
	commitSegmentConstant                    = "commit"
	detectionAreasSegmentConstant            = "detection_areas"
	folderQueryParameterConstant             = "folder"
	rasterIDFieldNameConstant                = "raster_id"
	uploadIDFieldNameConstant                = "upload_id"
	filePathFieldNameConstant                = "file_path"
	folderIDFieldNameConstant                = "folder_id"
	capturedAtFieldNameConstant              = "captured_at"
	editRequestFieldNameConstant             = "edit"
	valueRequiredMessageConstant             = "value required"
	fieldMissingErrorTemplateConstant        = "%s missing"
	directoryNotFileMessageConstant          = "must reference a file, not a directory"
	folderRequiredForScopeMessageConstant    = "required when checking for duplicates within a folder"
	capturedAtInvalidMessageConstant         = "must be an RFC 3339 timestamp"
	editRequestEmptyMessageConstant          = "at least one attribute must be provided"
	fileInspectErrorTemplateConstant         = "unable to inspect %s: %w"
	imageMediaTypePrefixConstant             = "image/"
	jsonMediaTypeConstant                    = "application/json"
	rasterMediaTypeLogMessageConstant        = "raster media type detected"
	rasterNotImageLogMessageConstant         = "raster content is not a recognized image format"
	detectionAreaMediaTypeLogMessageConstant = "detection area media type detected"
	detectionAreaNotJSONLogMessageConstant   = "detection area content is not recognized as JSON or GeoJSON"
	cloneCheckLogMessageConstant             = "checking for previously uploaded raster"
	rasterUploadStartedLogMessageConstant    = "raster upload started"
	rasterUploadCompletedLogMessageConstant  = "raster upload completed"
	rasterDeletedLogMessageConstant          = "raster deleted"
	rasterEditedLogMessageConstant           = "raster edited"
	detectionAreasSetLogMessageConstant      = "detection areas uploaded"
)

// APIClient captures the transport operations the raster service relies on.
type APIClient interface {
	apiclient.Paginator
	GetJSON(executionContext context.Context, operation apiclient.OperationName, path string, query map[string]string, target any) error
	PostJSON(executionContext context.Context, operation apiclient.OperationName, path string, payload any, target any) error
	PutJSON(executionContext context.Context, operation apiclient.OperationName, path string, payload any, target any) error
	Delete(executionContext context.Context, operation apiclient.OperationName, path string) error
	UploadFile(executionContext context.Context, uploadURL string, filePath string) error
	WaitForOperation(executionContext context.Context, handle apiclient.OperationHandle) (apiclient.Operation, error)
	Poll(executionContext context.Context, initialInterval time.Duration, check apiclient.PollCheck) error
}

// Service performs raster operations against the API.
type Service struct {
	logger *zap.Logger
	client APIClient
}

// NewService constructs a raster Service.
func NewService(logger *zap.Logger, client APIClient) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, client: client}
}

// List returns every raster, optionally restricted to a folder.
func (service *Service) List(executionContext context.Context, folderID string) ([]Raster, error) {
	query := map[string]string{folderQueryParameterConstant: strings.TrimSpace(folderID)}
	return apiclient.CollectPages[Raster](executionContext, service.client, listRastersOperationName, apiclient.ResourcePath(rastersResourceConstant), query)
}

// Get retrieves a single raster.
func (service *Service) Get(executionContext context.Context, rasterID apiclient.Identifier) (Raster, error) {
	if rasterID.IsEmpty() {
		return Raster{}, apiclient.InvalidInputError{FieldName: rasterIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	var raster Raster
	if fetchError := service.client.GetJSON(executionContext, getRasterOperationName, rasterPath(rasterID), nil, &raster); fetchError != nil {
		return Raster{}, fetchError
	}
	if raster.ID.IsEmpty() {
		raster.ID = rasterID
	}
	return raster, nil
}

// Edit updates the provided raster attributes.
func (service *Service) Edit(executionContext context.Context, rasterID apiclient.Identifier, request EditRequest) error {
	if rasterID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: rasterIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}
	if request.isEmpty() {
		return apiclient.InvalidInputError{FieldName: editRequestFieldNameConstant, Message: editRequestEmptyMessageConstant}
	}
	if request.CapturedAt != nil {
		if validationError := validateCapturedAt(*request.CapturedAt); validationError != nil {
			return validationError
		}
	}

	if editError := service.client.PutJSON(executionContext, editRasterOperationName, rasterPath(rasterID), request, nil); editError != nil {
		return editError
	}

	service.logger.Info(rasterEditedLogMessageConstant, zap.String(rasterIdentifierLogFieldNameConstant, rasterID.String()))
	return nil
}

// Delete removes a raster.
func (service *Service) Delete(executionContext context.Context, rasterID apiclient.Identifier) error {
	if rasterID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: rasterIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	if deleteError := service.client.Delete(executionContext, deleteRasterOperationName, rasterPath(rasterID)); deleteError != nil {
		return deleteError
	}

	service.logger.Info(rasterDeletedLogMessageConstant, zap.String(rasterIdentifierLogFieldNameConstant, rasterID.String()))
	return nil
}

// Upload sends a local image through the presigned upload flow and waits for the commit to finish.
func (service *Service) Upload(executionContext context.Context, request UploadRequest) (apiclient.Identifier, error) {
	checkScope, scopeError := ParseCloneCheckScope(string(request.CheckScope))
	if scopeError != nil {
		return "", scopeError
	}

	folderID := strings.TrimSpace(request.FolderID)
	if checkScope == CloneCheckScopeFolder && len(folderID) == 0 {
		return "", apiclient.InvalidInputError{FieldName: folderIDFieldNameConstant, Message: folderRequiredForScopeMessageConstant}
	}

	capturedAt := strings.TrimSpace(request.CapturedAt)
	if len(capturedAt) > 0 {
		if validationError := validateCapturedAt(capturedAt); validationError != nil {
			return "", validationError
		}
	}

	filePath := strings.TrimSpace(request.FilePath)
	if inspectionError := service.inspectRasterFile(filePath); inspectionError != nil {
		return "", inspectionError
	}

	identityKey := strings.TrimSpace(request.IdentityKey)
	if len(identityKey) > 0 {
		if duplicateError := service.ensureNotUploaded(executionContext, identityKey, checkScope, folderID); duplicateError != nil {
			return "", duplicateError
		}
	}

	rasterName := strings.TrimSpace(request.Name)
	if len(rasterName) == 0 {
		rasterName = filepath.Base(filePath)
	}

	payload := uploadPayload{
		Name:          rasterName,
		FolderID:      folderID,
		CapturedAt:    capturedAt,
		IdentityKey:   identityKey,
		Multispectral: request.Multispectral,
	}

	var ticket rasterUploadTicket
	startPath := apiclient.ResourcePath(rastersResourceConstant, uploadSegmentConstant, fileSegmentConstant)
	if startError := service.client.PostJSON(executionContext, startRasterUploadOperationName, startPath, payload, &ticket); startError != nil {
		return "", startError
	}
	if ticket.RasterID.IsEmpty() {
		return "", apiclient.ResponseDecodingError{Operation: startRasterUploadOperationName, Cause: fmt.Errorf(fieldMissingErrorTemplateConstant, rasterIDFieldNameConstant)}
	}

	service.logger.Info(
		rasterUploadStartedLogMessageConstant,
		zap.String(rasterIdentifierLogFieldNameConstant, ticket.RasterID.String()),
		zap.String(pathLogFieldNameConstant, filePath),
	)

	if uploadError := service.client.UploadFile(executionContext, ticket.UploadURL, filePath); uploadError != nil {
		return "", uploadError
	}

	var handle apiclient.OperationHandle
	commitPath := apiclient.ResourcePath(rastersResourceConstant, ticket.RasterID.String(), commitSegmentConstant)
	if commitError := service.client.PostJSON(executionContext, commitRasterOperationName, commitPath, nil, &handle); commitError != nil {
		return "", commitError
	}

	if _, waitError := service.client.WaitForOperation(executionContext, handle); waitError != nil {
		return "", waitError
	}

	service.logger.Info(rasterUploadCompletedLogMessageConstant, zap.String(rasterIdentifierLogFieldNameConstant, ticket.RasterID.String()))
	return ticket.RasterID, nil
}

// SetDetectionAreasFromFile uploads a GeoJSON document restricting where detection runs on a raster.
func (service *Service) SetDetectionAreasFromFile(executionContext context.Context, rasterID apiclient.Identifier, filePath string) error {
	if rasterID.IsEmpty() {
		return apiclient.InvalidInputError{FieldName: rasterIDFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	trimmedFilePath := strings.TrimSpace(filePath)
	if inspectionError := service.inspectDetectionAreaFile(trimmedFilePath); inspectionError != nil {
		return inspectionError
	}

	var ticket detectionAreaUploadTicket
	startPath := apiclient.ResourcePath(rastersResourceConstant, rasterID.String(), detectionAreasSegmentConstant, uploadSegmentConstant, fileSegmentConstant)
	if startError := service.client.PostJSON(executionContext, startDetectionAreaUploadOperationName, startPath, nil, &ticket); startError != nil {
		return startError
	}
	if ticket.UploadID.IsEmpty() {
		return apiclient.ResponseDecodingError{Operation: startDetectionAreaUploadOperationName, Cause: fmt.Errorf(fieldMissingErrorTemplateConstant, uploadIDFieldNameConstant)}
	}

	if uploadError := service.client.UploadFile(executionContext, ticket.UploadURL, trimmedFilePath); uploadError != nil {
		return uploadError
	}

	var handle apiclient.OperationHandle
	commitPath := apiclient.ResourcePath(rastersResourceConstant, rasterID.String(), detectionAreasSegmentConstant, uploadSegmentConstant, ticket.UploadID.String(), commitSegmentConstant)
	if commitError := service.client.PostJSON(executionContext, commitDetectionAreaOperationName, commitPath, nil, &handle); commitError != nil {
		return commitError
	}

	if _, waitError := service.client.WaitForOperation(executionContext, handle); waitError != nil {
		return waitError
	}

	service.logger.Info(detectionAreasSetLogMessageConstant, zap.String(rasterIdentifierLogFieldNameConstant, rasterID.String()))
	return nil
}

// WaitUntilReady polls the raster until processing finishes.
func (service *Service) WaitUntilReady(executionContext context.Context, rasterID apiclient.Identifier) (Raster, error) {
	var readyRaster Raster
	pollError := service.client.Poll(executionContext, 0, func(pollContext context.Context) (bool, error) {
		raster, fetchError := service.Get(pollContext, rasterID)
		if fetchError != nil {
			return false, fetchError
		}

		switch raster.Status {
		case StatusReady:
			readyRaster = raster
			return true, nil
		case StatusFailed:
			return false, RasterFailedError{RasterID: rasterID}
		default:
			service.logger.Debug(
				rasterStatusPendingMessageConstant,
				zap.String(rasterIdentifierLogFieldNameConstant, rasterID.String()),
				zap.String(rasterStatusLogFieldNameConstant, string(raster.Status)),
			)
			return false, nil
		}
	})
	if pollError != nil {
		var failedError RasterFailedError
		if errors.As(pollError, &failedError) {
			return Raster{}, pollError
		}
		return Raster{}, fmt.Errorf(rasterNotReadyErrorTemplateConstant, rasterID, pollError)
	}
	return readyRaster, nil
}

func (service *Service) ensureNotUploaded(executionContext context.Context, identityKey string, checkScope CloneCheckScope, folderID string) error {
	listFolder := ""
	if checkScope == CloneCheckScopeFolder {
		listFolder = folderID
	}

	service.logger.Debug(
		cloneCheckLogMessageConstant,
		zap.String(identityKeyLogFieldNameConstant, identityKey),
		zap.String(checkScopeLogFieldNameConstant, string(checkScope)),
		zap.String(folderIdentifierLogFieldNameConstant, listFolder),
	)

	existingRasters, listError := service.List(executionContext, listFolder)
	if listError != nil {
		return listError
	}

	for _, existingRaster := range existingRasters {
		if existingRaster.IdentityKey == identityKey {
			return DuplicateRasterError{IdentityKey: identityKey, ExistingRasterID: existingRaster.ID}
		}
	}
	return nil
}

func (service *Service) inspectRasterFile(filePath string) error {
	detectedType, detectionError := detectFileType(filePath)
	if detectionError != nil {
		return detectionError
	}

	service.logger.Info(
		rasterMediaTypeLogMessageConstant,
		zap.String(pathLogFieldNameConstant, filePath),
		zap.String(mediaTypeLogFieldNameConstant, detectedType.String()),
	)
	if !isImageMediaType(detectedType) {
		service.logger.Warn(
			rasterNotImageLogMessageConstant,
			zap.String(pathLogFieldNameConstant, filePath),
			zap.String(mediaTypeLogFieldNameConstant, detectedType.String()),
		)
	}
	return nil
}

// inspectDetectionAreaFile logs the sniffed media type. Empty files and JSON
// preceded by a byte order mark sniff as text, so a mismatch only warns.
func (service *Service) inspectDetectionAreaFile(filePath string) error {
	detectedType, detectionError := detectFileType(filePath)
	if detectionError != nil {
		return detectionError
	}

	service.logger.Debug(
		detectionAreaMediaTypeLogMessageConstant,
		zap.String(pathLogFieldNameConstant, filePath),
		zap.String(mediaTypeLogFieldNameConstant, detectedType.String()),
	)
	if !matchesMediaType(detectedType, jsonMediaTypeConstant) {
		service.logger.Warn(
			detectionAreaNotJSONLogMessageConstant,
			zap.String(pathLogFieldNameConstant, filePath),
			zap.String(mediaTypeLogFieldNameConstant, detectedType.String()),
		)
	}
	return nil
}

func detectFileType(filePath string) (*mimetype.MIME, error) {
	if len(filePath) == 0 {
		return nil, apiclient.InvalidInputError{FieldName: filePathFieldNameConstant, Message: valueRequiredMessageConstant}
	}

	fileInfo, statError := os.Stat(filePath)
	if statError != nil {
		return nil, fmt.Errorf(fileInspectErrorTemplateConstant, filePath, statError)
	}
	if fileInfo.IsDir() {
		return nil, apiclient.InvalidInputError{FieldName: filePathFieldNameConstant, Message: directoryNotFileMessageConstant}
	}

	detectedType, detectionError := mimetype.DetectFile(filePath)
	if detectionError != nil {
		return nil, fmt.Errorf(fileInspectErrorTemplateConstant, filePath, detectionError)
	}
	return detectedType, nil
}

func isImageMediaType(detectedType *mimetype.MIME) bool {
	for candidate := detectedType; candidate != nil; candidate = candidate.Parent() {
		if strings.HasPrefix(candidate.String(), imageMediaTypePrefixConstant) {
			return true
		}
	}
	return false
}

func matchesMediaType(detectedType *mimetype.MIME, mediaType string) bool {
	for candidate := detectedType; candidate != nil; candidate = candidate.Parent() {
		if candidate.Is(mediaType) {
			return true
		}
	}
	return false
}

func validateCapturedAt(capturedAt string) error {
	if _, parseError := time.Parse(time.RFC3339Nano, strings.TrimSpace(capturedAt)); parseError != nil {
		return apiclient.InvalidInputError{FieldName: capturedAtFieldNameConstant, Message: capturedAtInvalidMessageConstant}
	}
	return nil
}

func rasterPath(rasterID apiclient.Identifier) string {
	return apiclient.ResourcePath(rastersResourceConstant, rasterID.String())
}
