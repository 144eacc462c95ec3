package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	uploadURLFieldNameConstant             = "upload_url"
	downloadURLFieldNameConstant           = "download_url"
	filePathFieldNameConstant              = "file_path"
	destinationFieldNameConstant           = "destination"
	uploadFileOperationNameConstant        = OperationName("UploadFile")
	uploadJSONOperationNameConstant        = OperationName("UploadJSON")
	downloadFileOperationNameConstant      = OperationName("DownloadFile")
	errorBodyReadLimitConstant             = 4096
	progressReportStepsConstant            = 10
	uploadProgressLogMessageConstant       = "upload progress"
	uploadCompletedLogMessageConstant      = "upload completed"
	downloadCompletedLogMessageConstant    = "download completed"
	fileOpenErrorTemplateConstant          = "unable to open %s: %w"
	fileStatErrorTemplateConstant          = "unable to inspect %s: %w"
	destinationCreateErrorTemplateConstant = "unable to create %s: %w"
	destinationWriteErrorTemplateConstant  = "unable to write %s: %w"
	directoryPermissionsConstant           = 0o755
	invalidJSONDocumentMessageConstant     = "payload is not a valid JSON document"
)

var errInvalidJSONDocument = errors.New(invalidJSONDocumentMessageConstant)

// UploadFile streams a local file to a presigned storage URL with an explicit Content-Length.
func (client *Client) UploadFile(executionContext context.Context, uploadURL string, filePath string) error {
	trimmedUploadURL := strings.TrimSpace(uploadURL)
	if len(trimmedUploadURL) == 0 {
		return InvalidInputError{FieldName: uploadURLFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(filePath)) == 0 {
		return InvalidInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	file, openError := os.Open(filePath)
	if openError != nil {
		return fmt.Errorf(fileOpenErrorTemplateConstant, filePath, openError)
	}
	defer file.Close()

	fileInfo, statError := file.Stat()
	if statError != nil {
		return fmt.Errorf(fileStatErrorTemplateConstant, filePath, statError)
	}

	var requestBody io.Reader = http.NoBody
	if fileInfo.Size() > 0 {
		requestBody = newProgressReader(file, fileInfo.Size(), client.logger.With(zap.String(logFieldPathConstant, filePath)))
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodPut, trimmedUploadURL, requestBody)
	if requestError != nil {
		return OperationError{Operation: uploadFileOperationNameConstant, Cause: requestError}
	}
	request.ContentLength = fileInfo.Size()
	request.Header.Set(userAgentHeaderNameConstant, client.configuration.UserAgent)

	response, responseError := client.storageClient.GetClient().Do(request)
	if responseError != nil {
		return OperationError{Operation: uploadFileOperationNameConstant, Cause: responseError}
	}
	defer response.Body.Close()

	if statusError := checkStorageResponse(uploadFileOperationNameConstant, response); statusError != nil {
		return statusError
	}
	_, _ = io.Copy(io.Discard, response.Body)

	client.logger.Info(
		uploadCompletedLogMessageConstant,
		zap.String(logFieldPathConstant, filePath),
		zap.Int64(logFieldTotalBytesConstant, fileInfo.Size()),
	)

	return nil
}

// UploadJSON encodes payload and PUTs it to a presigned storage URL.
func (client *Client) UploadJSON(executionContext context.Context, uploadURL string, payload any) error {
	trimmedUploadURL := strings.TrimSpace(uploadURL)
	if len(trimmedUploadURL) == 0 {
		return InvalidInputError{FieldName: uploadURLFieldNameConstant, Message: requiredValueMessageConstant}
	}

	payloadBytes, encodingError := encodeJSONPayload(payload)
	if encodingError != nil {
		return PayloadEncodingError{Operation: uploadJSONOperationNameConstant, Cause: encodingError}
	}

	response, requestError := client.storageClient.R().
		SetContext(executionContext).
		SetHeader(contentTypeHeaderNameConstant, jsonContentTypeConstant).
		SetBody(payloadBytes).
		Put(trimmedUploadURL)
	if requestError != nil {
		return OperationError{Operation: uploadJSONOperationNameConstant, Cause: requestError}
	}

	if response.IsError() {
		return ResponseStatusError{
			Operation:  uploadJSONOperationNameConstant,
			StatusCode: response.StatusCode(),
			Body:       strings.TrimSpace(response.String()),
		}
	}

	client.logger.Info(uploadCompletedLogMessageConstant, zap.Int(logFieldTotalBytesConstant, len(payloadBytes)))

	return nil
}

// DownloadFile streams a storage object into destination, removing partial files on failure.
func (client *Client) DownloadFile(executionContext context.Context, downloadURL string, destination string) error {
	trimmedDownloadURL := strings.TrimSpace(downloadURL)
	if len(trimmedDownloadURL) == 0 {
		return InvalidInputError{FieldName: downloadURLFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedDestination := strings.TrimSpace(destination)
	if len(trimmedDestination) == 0 {
		return InvalidInputError{FieldName: destinationFieldNameConstant, Message: requiredValueMessageConstant}
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, trimmedDownloadURL, nil)
	if requestError != nil {
		return OperationError{Operation: downloadFileOperationNameConstant, Cause: requestError}
	}
	request.Header.Set(userAgentHeaderNameConstant, client.configuration.UserAgent)

	// Streamed through the underlying http.Client: resty retries would leave unread raw bodies open.
	response, responseError := client.storageClient.GetClient().Do(request)
	if responseError != nil {
		return OperationError{Operation: downloadFileOperationNameConstant, Cause: responseError}
	}
	defer response.Body.Close()

	if statusError := checkStorageResponse(downloadFileOperationNameConstant, response); statusError != nil {
		return statusError
	}

	if directory := filepath.Dir(trimmedDestination); len(directory) > 0 {
		if directoryError := os.MkdirAll(directory, directoryPermissionsConstant); directoryError != nil {
			return fmt.Errorf(destinationCreateErrorTemplateConstant, trimmedDestination, directoryError)
		}
	}

	destinationFile, createError := os.Create(trimmedDestination)
	if createError != nil {
		return fmt.Errorf(destinationCreateErrorTemplateConstant, trimmedDestination, createError)
	}

	bytesWritten, copyError := io.Copy(destinationFile, response.Body)
	closeError := destinationFile.Close()
	if copyError == nil {
		copyError = closeError
	}
	if copyError != nil {
		_ = os.Remove(trimmedDestination)
		return fmt.Errorf(destinationWriteErrorTemplateConstant, trimmedDestination, copyError)
	}

	client.logger.Info(
		downloadCompletedLogMessageConstant,
		zap.String(logFieldPathConstant, trimmedDestination),
		zap.Int64(logFieldBytesConstant, bytesWritten),
	)

	return nil
}

func encodeJSONPayload(payload any) ([]byte, error) {
	switch typedPayload := payload.(type) {
	case json.RawMessage:
		if !json.Valid(typedPayload) {
			return nil, errInvalidJSONDocument
		}
		return typedPayload, nil
	case []byte:
		if !json.Valid(typedPayload) {
			return nil, errInvalidJSONDocument
		}
		return typedPayload, nil
	default:
		return json.Marshal(payload)
	}
}

func checkStorageResponse(operation OperationName, response *http.Response) error {
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(response.Body, errorBodyReadLimitConstant))
	return ResponseStatusError{
		Operation:  operation,
		StatusCode: response.StatusCode,
		Body:       strings.TrimSpace(string(errorBody)),
	}
}

type progressReader struct {
	reader        io.Reader
	totalBytes    int64
	readBytes     int64
	reportedSteps int64
	logger        *zap.Logger
}

func newProgressReader(reader io.Reader, totalBytes int64, logger *zap.Logger) *progressReader {
	return &progressReader{reader: reader, totalBytes: totalBytes, logger: logger}
}

func (reader *progressReader) Read(buffer []byte) (int, error) {
	bytesRead, readError := reader.reader.Read(buffer)
	reader.readBytes += int64(bytesRead)

	if reader.totalBytes > 0 {
		completedSteps := reader.readBytes * progressReportStepsConstant / reader.totalBytes
		if completedSteps > reader.reportedSteps {
			reader.reportedSteps = completedSteps
			reader.logger.Debug(
				uploadProgressLogMessageConstant,
				zap.Int64(logFieldBytesConstant, reader.readBytes),
				zap.Int64(logFieldTotalBytesConstant, reader.totalBytes),
			)
		}
	}

	return bytesRead, readError
}
