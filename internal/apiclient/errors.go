package apiclient

import (
	"errors"
	"fmt"
	"time"
)

const (
	requiredValueMessageConstant                 = "value required"
	apiKeyMissingMessageConstant                 = "api key not configured"
	operationErrorMessageTemplateConstant        = "%s operation failed"
	operationErrorWithCauseTemplateConstant      = "%s operation failed: %s"
	responseStatusErrorTemplateConstant          = "%s returned HTTP %d"
	responseStatusErrorWithBodyTemplateConstant  = "%s returned HTTP %d: %s"
	responseDecodingErrorTemplateConstant        = "%s response decoding failed: %s"
	payloadEncodingErrorTemplateConstant         = "%s payload encoding failed: %s"
	invalidInputErrorTemplateConstant            = "%s: %s"
	operationFailedErrorTemplateConstant         = "operation %s (%s) failed"
	operationFailedWithDetailsTemplateConstant   = "operation %s (%s) failed: %s"
	operationTimeoutErrorTemplateConstant        = "operation %s did not complete within %s"
	paginationLoopErrorTemplateConstant          = "%s pagination revisited %s"
	responseBodyPreviewLimitConstant             = 512
	responseBodyPreviewTruncationSuffixConstant  = "..."
	operationTypeUnknownPlaceholderValueConstant = "unknown"
)

// OperationName describes a named API call made by the client.
type OperationName string

var (
	// ErrAPIKeyMissing indicates the client was constructed without credentials.
	ErrAPIKeyMissing = errors.New(apiKeyMissingMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps transport issues for API calls.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseStatusError reports a non-successful HTTP status returned by the API or storage.
type ResponseStatusError struct {
	Operation  OperationName
	StatusCode int
	Body       string
}

// Error describes the rejected request.
func (statusError ResponseStatusError) Error() string {
	if len(statusError.Body) == 0 {
		return fmt.Sprintf(responseStatusErrorTemplateConstant, statusError.Operation, statusError.StatusCode)
	}
	return fmt.Sprintf(responseStatusErrorWithBodyTemplateConstant, statusError.Operation, statusError.StatusCode, previewBody(statusError.Body))
}

// ResponseDecodingError indicates JSON decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// PayloadEncodingError indicates JSON encoding issues.
type PayloadEncodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the encoding failure.
func (encodingError PayloadEncodingError) Error() string {
	return fmt.Sprintf(payloadEncodingErrorTemplateConstant, encodingError.Operation, encodingError.Cause)
}

// Unwrap exposes the underlying error.
func (encodingError PayloadEncodingError) Unwrap() error {
	return encodingError.Cause
}

// OperationFailedError reports an asynchronous operation that reached the failed status.
type OperationFailedError struct {
	OperationID   Identifier
	OperationType string
	Details       string
}

// Error describes the failed operation.
func (failedError OperationFailedError) Error() string {
	operationType := failedError.OperationType
	if len(operationType) == 0 {
		operationType = operationTypeUnknownPlaceholderValueConstant
	}
	if len(failedError.Details) == 0 {
		return fmt.Sprintf(operationFailedErrorTemplateConstant, failedError.OperationID, operationType)
	}
	return fmt.Sprintf(operationFailedWithDetailsTemplateConstant, failedError.OperationID, operationType, previewBody(failedError.Details))
}

// OperationTimeoutError reports an operation that stayed pending beyond the polling timeout.
type OperationTimeoutError struct {
	OperationID Identifier
	Timeout     time.Duration
	LastStatus  string
}

// Error describes the timeout.
func (timeoutError OperationTimeoutError) Error() string {
	return fmt.Sprintf(operationTimeoutErrorTemplateConstant, timeoutError.OperationID, timeoutError.Timeout)
}

// PaginationLoopError reports a next link that points at an already visited page.
type PaginationLoopError struct {
	Operation OperationName
	URL       string
}

// Error describes the loop.
func (loopError PaginationLoopError) Error() string {
	return fmt.Sprintf(paginationLoopErrorTemplateConstant, loopError.Operation, loopError.URL)
}

func previewBody(body string) string {
	if len(body) <= responseBodyPreviewLimitConstant {
		return body
	}
	return body[:responseBodyPreviewLimitConstant] + responseBodyPreviewTruncationSuffixConstant
}
