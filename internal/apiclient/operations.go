package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	operationsResourceConstant           = "operations"
	operationIDFieldNameConstant         = "operation_id"
	getOperationOperationNameConstant    = OperationName("GetOperation")
	pollingTimedOutMessageConstant       = "polling timed out"
	pollingPendingMessageConstant        = "poll pending"
	operationPendingLogMessageConstant   = "operation pending"
	operationCompletedLogMessageConstant = "operation completed"
	operationFailedLogMessageConstant    = "operation failed"
	resultURLFieldNameConstant           = "url"
)

// OperationStatus describes the lifecycle state reported for an asynchronous operation.
type OperationStatus string

// Operation status enumerations. Any other value is treated as still running.
const (
	OperationStatusRunning OperationStatus = OperationStatus("running")
	OperationStatusSuccess OperationStatus = OperationStatus("success")
	OperationStatusFailed  OperationStatus = OperationStatus("failed")
)

var (
	// ErrPollingTimedOut indicates the polling timeout elapsed before the check completed.
	ErrPollingTimedOut = errors.New(pollingTimedOutMessageConstant)

	errPollPending = errors.New(pollingPendingMessageConstant)
)

// OperationHandle is returned by endpoints that start asynchronous work.
type OperationHandle struct {
	OperationID  Identifier `json:"operation_id"`
	PollInterval float64    `json:"poll_interval"`
}

// Interval converts the server-suggested poll interval into a duration.
func (handle OperationHandle) Interval() time.Duration {
	if handle.PollInterval <= 0 {
		return 0
	}
	return time.Duration(handle.PollInterval * float64(time.Second))
}

// Operation is the state of an asynchronous server-side job.
type Operation struct {
	ID      Identifier      `json:"id,omitempty"`
	Type    string          `json:"type,omitempty"`
	Status  OperationStatus `json:"status,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
}

// ResultURL returns the results.url value published by detection runs.
func (operation Operation) ResultURL() (string, bool) {
	if len(operation.Results) == 0 {
		return "", false
	}

	var results map[string]json.RawMessage
	if decodingError := json.Unmarshal(operation.Results, &results); decodingError != nil {
		return "", false
	}

	var resultURL string
	if decodingError := json.Unmarshal(results[resultURLFieldNameConstant], &resultURL); decodingError != nil {
		return "", false
	}

	return resultURL, len(resultURL) > 0
}

// PollCheck reports whether the awaited condition holds. Errors stop polling immediately.
type PollCheck func(executionContext context.Context) (bool, error)

// GetOperation retrieves the current state of an operation.
func (client *Client) GetOperation(executionContext context.Context, operationID Identifier) (Operation, error) {
	if operationID.IsEmpty() {
		return Operation{}, InvalidInputError{FieldName: operationIDFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var operation Operation
	fetchError := client.GetJSON(executionContext, getOperationOperationNameConstant, ResourcePath(operationsResourceConstant, operationID.String()), nil, &operation)
	if fetchError != nil {
		return Operation{}, fetchError
	}
	if operation.ID.IsEmpty() {
		operation.ID = operationID
	}

	return operation, nil
}

// WaitForOperation polls the operation until it succeeds, fails, or the polling timeout elapses.
func (client *Client) WaitForOperation(executionContext context.Context, handle OperationHandle) (Operation, error) {
	if handle.OperationID.IsEmpty() {
		return Operation{}, InvalidInputError{FieldName: operationIDFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var completedOperation Operation
	var lastStatus OperationStatus

	pollError := client.Poll(executionContext, handle.Interval(), func(pollContext context.Context) (bool, error) {
		operation, fetchError := client.GetOperation(pollContext, handle.OperationID)
		if fetchError != nil {
			return false, fetchError
		}

		lastStatus = operation.Status
		switch operation.Status {
		case OperationStatusSuccess:
			completedOperation = operation
			return true, nil
		case OperationStatusFailed:
			client.logger.Warn(
				operationFailedLogMessageConstant,
				zap.String(logFieldOperationIDConstant, handle.OperationID.String()),
				zap.String(logFieldOperationTypeConstant, operation.Type),
			)
			return false, OperationFailedError{
				OperationID:   handle.OperationID,
				OperationType: operation.Type,
				Details:       string(operation.Results),
			}
		default:
			return false, nil
		}
	})

	if errors.Is(pollError, ErrPollingTimedOut) {
		return Operation{}, OperationTimeoutError{
			OperationID: handle.OperationID,
			Timeout:     client.configuration.Polling.Timeout,
			LastStatus:  string(lastStatus),
		}
	}
	if pollError != nil {
		return Operation{}, pollError
	}

	client.logger.Info(
		operationCompletedLogMessageConstant,
		zap.String(logFieldOperationIDConstant, handle.OperationID.String()),
		zap.String(logFieldOperationTypeConstant, completedOperation.Type),
	)

	return completedOperation, nil
}

// Poll runs check immediately and then with exponentially growing waits, starting at
// initialInterval (or the configured default), until it reports completion.
func (client *Client) Poll(executionContext context.Context, initialInterval time.Duration, check PollCheck) error {
	pollingBackOff := client.newPollingBackOff(initialInterval)

	_, retryError := backoff.Retry(
		executionContext,
		func() (struct{}, error) {
			completed, checkError := check(executionContext)
			if checkError != nil {
				return struct{}{}, backoff.Permanent(checkError)
			}
			if !completed {
				return struct{}{}, errPollPending
			}
			return struct{}{}, nil
		},
		backoff.WithBackOff(pollingBackOff),
		backoff.WithMaxElapsedTime(client.configuration.Polling.Timeout),
		backoff.WithNotify(func(_ error, nextWait time.Duration) {
			client.logger.Debug(operationPendingLogMessageConstant, zap.Duration(logFieldNextWaitConstant, nextWait))
		}),
	)

	if errors.Is(retryError, errPollPending) {
		return ErrPollingTimedOut
	}

	return retryError
}

func (client *Client) newPollingBackOff(initialInterval time.Duration) *backoff.ExponentialBackOff {
	pollingConfiguration := client.configuration.Polling

	if initialInterval <= 0 {
		initialInterval = pollingConfiguration.DefaultInterval
	}

	maximumInterval := pollingConfiguration.MaxInterval
	if maximumInterval < initialInterval {
		maximumInterval = initialInterval
	}

	pollingBackOff := backoff.NewExponentialBackOff()
	pollingBackOff.InitialInterval = initialInterval
	pollingBackOff.Multiplier = pollingConfiguration.Multiplier
	pollingBackOff.MaxInterval = maximumInterval
	pollingBackOff.RandomizationFactor = pollingConfiguration.RandomizationFactor
	pollingBackOff.Reset()

	return pollingBackOff
}
