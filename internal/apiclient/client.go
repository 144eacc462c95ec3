package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	apiKeyHeaderNameConstant           = "X-Api-Key"
	requestIDHeaderNameConstant        = "X-Request-Id"
	userAgentHeaderNameConstant        = "User-Agent"
	acceptHeaderNameConstant           = "Accept"
	contentTypeHeaderNameConstant      = "Content-Type"
	jsonContentTypeConstant            = "application/json"
	emptyResponseBodyMessageConstant   = "empty response body"
	responseReceivedLogMessageConstant = "api response received"
	logFieldMethodConstant             = "method"
	logFieldURLConstant                = "url"
	logFieldStatusConstant             = "status"
	logFieldDurationConstant           = "duration"
	logFieldRequestIDConstant          = "request_id"
	logFieldOperationConstant          = "operation"
	logFieldOperationIDConstant        = "operation_id"
	logFieldOperationTypeConstant      = "operation_type"
	logFieldOperationStatusConstant    = "operation_status"
	logFieldNextWaitConstant           = "next_wait"
	logFieldPathConstant               = "path"
	logFieldBytesConstant              = "bytes"
	logFieldTotalBytesConstant         = "total_bytes"
	logFieldPageConstant               = "page"
	logFieldCountConstant              = "count"
	requestPathFieldNameConstant       = "path"
	emptyPathSegmentMessageConstant    = "contains an empty segment"
)

var (
	errEmptyResponseBody = errors.New(emptyResponseBodyMessageConstant)

	retryableStatusCodes = map[int]struct{}{
		http.StatusTooManyRequests:    {},
		http.StatusBadGateway:         {},
		http.StatusServiceUnavailable: {},
		http.StatusGatewayTimeout:     {},
	}

	idempotentMethods = map[string]struct{}{
		http.MethodGet:    {},
		http.MethodHead:   {},
		http.MethodPut:    {},
		http.MethodDelete: {},
	}
)

// Client issues authenticated API requests and credential-free storage transfers.
type Client struct {
	logger        *zap.Logger
	configuration Configuration
	apiClient     *resty.Client
	storageClient *resty.Client
}

// NewClient validates the configuration and constructs a Client.
func NewClient(logger *zap.Logger, configuration Configuration) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sanitizedConfiguration := configuration.sanitize()
	if validationError := sanitizedConfiguration.validate(); validationError != nil {
		return nil, validationError
	}

	client := &Client{
		logger:        logger,
		configuration: sanitizedConfiguration,
	}

	client.apiClient = resty.New().
		SetLogger(logger.Sugar()).
		SetBaseURL(sanitizedConfiguration.BaseURL).
		SetTimeout(sanitizedConfiguration.Timeout).
		SetHeader(apiKeyHeaderNameConstant, sanitizedConfiguration.APIKey).
		SetHeader(userAgentHeaderNameConstant, sanitizedConfiguration.UserAgent).
		SetHeader(acceptHeaderNameConstant, jsonContentTypeConstant).
		SetRetryCount(sanitizedConfiguration.MaxRetries).
		SetRetryWaitTime(sanitizedConfiguration.RetryWait).
		SetRetryMaxWaitTime(sanitizedConfiguration.RetryMaxWait).
		AddRetryCondition(shouldRetryRequest).
		OnBeforeRequest(attachRequestIdentifier).
		OnAfterResponse(client.logResponse)

	// Storage transfers are bounded by the caller's context only: raster uploads outlive any fixed timeout.
	client.storageClient = resty.New().
		SetLogger(logger.Sugar()).
		SetHeader(userAgentHeaderNameConstant, sanitizedConfiguration.UserAgent).
		SetRetryCount(sanitizedConfiguration.MaxRetries).
		SetRetryWaitTime(sanitizedConfiguration.RetryWait).
		SetRetryMaxWaitTime(sanitizedConfiguration.RetryMaxWait).
		AddRetryCondition(shouldRetryRequest)

	return client, nil
}

// Configuration returns the sanitized configuration in use.
func (client *Client) Configuration() Configuration {
	return client.configuration
}

// GetJSON issues a GET request and decodes the JSON response into target.
func (client *Client) GetJSON(executionContext context.Context, operation OperationName, path string, query map[string]string, target any) error {
	return client.execute(executionContext, operation, http.MethodGet, path, query, nil, target)
}

// PostJSON issues a POST request with an optional JSON payload and decodes the response into target when provided.
func (client *Client) PostJSON(executionContext context.Context, operation OperationName, path string, payload any, target any) error {
	return client.execute(executionContext, operation, http.MethodPost, path, nil, payload, target)
}

// PutJSON issues a PUT request with a JSON payload and decodes the response into target when provided.
func (client *Client) PutJSON(executionContext context.Context, operation OperationName, path string, payload any, target any) error {
	return client.execute(executionContext, operation, http.MethodPut, path, nil, payload, target)
}

// Delete issues a DELETE request.
func (client *Client) Delete(executionContext context.Context, operation OperationName, path string) error {
	return client.execute(executionContext, operation, http.MethodDelete, path, nil, nil, nil)
}

func (client *Client) execute(executionContext context.Context, operation OperationName, method string, path string, query map[string]string, payload any, target any) error {
	if hasEmptyPathSegment(path) {
		return InvalidInputError{FieldName: requestPathFieldNameConstant, Message: emptyPathSegmentMessageConstant}
	}

	request := client.apiClient.R().SetContext(executionContext)
	if len(query) > 0 {
		request.SetQueryParams(query)
	}

	if payload != nil {
		payloadBytes, encodingError := json.Marshal(payload)
		if encodingError != nil {
			return PayloadEncodingError{Operation: operation, Cause: encodingError}
		}
		request.SetHeader(contentTypeHeaderNameConstant, jsonContentTypeConstant).SetBody(payloadBytes)
	}

	response, requestError := request.Execute(method, path)
	if requestError != nil {
		return OperationError{Operation: operation, Cause: requestError}
	}

	if response.IsError() {
		return ResponseStatusError{
			Operation:  operation,
			StatusCode: response.StatusCode(),
			Body:       strings.TrimSpace(response.String()),
		}
	}

	if target == nil {
		return nil
	}

	responseBody := bytes.TrimSpace(response.Body())
	if len(responseBody) == 0 {
		return ResponseDecodingError{Operation: operation, Cause: errEmptyResponseBody}
	}

	if decodingError := json.Unmarshal(responseBody, target); decodingError != nil {
		return ResponseDecodingError{Operation: operation, Cause: decodingError}
	}

	return nil
}

func (client *Client) logResponse(_ *resty.Client, response *resty.Response) error {
	if response == nil || response.Request == nil {
		return nil
	}

	client.logger.Debug(
		responseReceivedLogMessageConstant,
		zap.String(logFieldMethodConstant, response.Request.Method),
		zap.String(logFieldURLConstant, response.Request.URL),
		zap.Int(logFieldStatusConstant, response.StatusCode()),
		zap.Duration(logFieldDurationConstant, response.Time()),
		zap.String(logFieldRequestIDConstant, response.Request.Header.Get(requestIDHeaderNameConstant)),
	)

	return nil
}

func attachRequestIdentifier(_ *resty.Client, request *resty.Request) error {
	if len(request.Header.Get(requestIDHeaderNameConstant)) == 0 {
		request.SetHeader(requestIDHeaderNameConstant, uuid.NewString())
	}
	return nil
}

func shouldRetryRequest(response *resty.Response, requestError error) bool {
	if errors.Is(requestError, context.Canceled) || errors.Is(requestError, context.DeadlineExceeded) {
		return false
	}

	if response == nil || response.Request == nil {
		return requestError != nil
	}

	if _, idempotent := idempotentMethods[response.Request.Method]; !idempotent {
		return false
	}

	if requestError != nil {
		return true
	}

	_, retryable := retryableStatusCodes[response.StatusCode()]
	return retryable
}
