package apitest

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	fastRetryWaitConstant       = time.Millisecond
	fastPollingIntervalConstant = 5 * time.Millisecond
	fastPollingTimeoutConstant  = 5 * time.Second
	requestTimeoutConstant      = 5 * time.Second
	maxRetriesConstant          = 2
)

// ClientConfiguration returns a client configuration pointed at the fake with short waits.
func (server *Server) ClientConfiguration() apiclient.Configuration {
	return apiclient.Configuration{
		BaseURL:      server.BaseURL(),
		APIKey:       APIKey,
		Timeout:      requestTimeoutConstant,
		MaxRetries:   maxRetriesConstant,
		RetryWait:    fastRetryWaitConstant,
		RetryMaxWait: fastRetryWaitConstant,
		Polling: apiclient.PollingConfiguration{
			DefaultInterval: fastPollingIntervalConstant,
			Multiplier:      1,
			MaxInterval:     fastPollingIntervalConstant,
			Timeout:         fastPollingTimeoutConstant,
		},
	}
}

// NewClient builds an apiclient.Client bound to the fake.
func (server *Server) NewClient(testInstance testing.TB, logger *zap.Logger) *apiclient.Client {
	testInstance.Helper()

	client, clientError := apiclient.NewClient(logger, server.ClientConfiguration())
	if clientError != nil {
		testInstance.Fatalf("construct client: %v", clientError)
	}
	return client
}

// OperationHandle builds the JSON body returned by endpoints that start operations.
func OperationHandle(operationID string) map[string]any {
	return map[string]any{"operation_id": operationID, "poll_interval": 0.001}
}

// RegisterOperation queues the given statuses for an operation, the last one repeating.
func (server *Server) RegisterOperation(operationID string, operationType string, statuses ...string) {
	for _, status := range statuses {
		server.RegisterAPI(http.MethodGet, "operations/"+operationID+"/", Response{JSON: map[string]any{
			"type":   operationType,
			"status": status,
		}})
	}
}

// RegisterOperationResult queues a successful operation carrying results.
func (server *Server) RegisterOperationResult(operationID string, operationType string, results map[string]any) {
	server.RegisterAPI(http.MethodGet, "operations/"+operationID+"/", Response{JSON: map[string]any{
		"type":    operationType,
		"status":  "success",
		"results": results,
	}})
}
