package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/geodetect/internal/apiclient"
	"github.com/temirov/geodetect/internal/apiclient/apitest"
)

const (
	rasterResourcePathConstant  = "rasters/abc/"
	testOperationNameConstant   = apiclient.OperationName("TestOperation")
	userAgentHeaderConstant     = "User-Agent"
	apiKeyHeaderConstant        = "X-Api-Key"
	requestIDHeaderConstant     = "X-Request-Id"
	contentTypeHeaderConstant   = "Content-Type"
	jsonContentTypeConstant     = "application/json"
	customUserAgentConstant     = "geodetect-test/1.0"
	responseReceivedLogConstant = "api response received"
)

func TestNewClientValidatesConfiguration(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name          string
		configuration apiclient.Configuration
		expectedError error
		expectedField string
	}{
		{
			name:          "missing_base_url",
			configuration: apiclient.Configuration{APIKey: apitest.APIKey},
			expectedField: "base_url",
		},
		{
			name:          "relative_base_url",
			configuration: apiclient.Configuration{BaseURL: "public/api/v2", APIKey: apitest.APIKey},
			expectedField: "base_url",
		},
		{
			name:          "unsupported_scheme",
			configuration: apiclient.Configuration{BaseURL: "ftp://example.com/api/", APIKey: apitest.APIKey},
			expectedField: "base_url",
		},
		{
			name:          "missing_api_key",
			configuration: apiclient.Configuration{BaseURL: "https://example.com/public/api/v2/"},
			expectedError: apiclient.ErrAPIKeyMissing,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			client, clientError := apiclient.NewClient(zap.NewNop(), testCase.configuration)
			require.Error(subTest, clientError)
			require.Nil(subTest, client)

			if testCase.expectedError != nil {
				require.ErrorIs(subTest, clientError, testCase.expectedError)
				return
			}

			var inputError apiclient.InvalidInputError
			require.ErrorAs(subTest, clientError, &inputError)
			require.Equal(subTest, testCase.expectedField, inputError.FieldName)
		})
	}
}

func TestNewClientAppliesDefaults(testInstance *testing.T) {
	testInstance.Parallel()

	client, clientError := apiclient.NewClient(nil, apiclient.Configuration{
		BaseURL: " https://example.com/public/api/v2 ",
		APIKey:  " key ",
	})
	require.NoError(testInstance, clientError)

	configuration := client.Configuration()
	defaults := apiclient.DefaultConfiguration()
	require.Equal(testInstance, "https://example.com/public/api/v2/", configuration.BaseURL)
	require.Equal(testInstance, "key", configuration.APIKey)
	require.Equal(testInstance, defaults.Timeout, configuration.Timeout)
	require.Equal(testInstance, defaults.UserAgent, configuration.UserAgent)
	require.Equal(testInstance, defaults.Polling.DefaultInterval, configuration.Polling.DefaultInterval)
	require.Equal(testInstance, defaults.Polling.Timeout, configuration.Polling.Timeout)
	require.Equal(testInstance, 1.0, configuration.Polling.Multiplier)
}

func TestClientSendsIdentifyingHeaders(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	server.RegisterAPI(http.MethodGet, rasterResourcePathConstant, apitest.Response{JSON: map[string]any{"id": "abc"}})

	configuration := server.ClientConfiguration()
	configuration.UserAgent = customUserAgentConstant
	client, clientError := apiclient.NewClient(zap.NewNop(), configuration)
	require.NoError(testInstance, clientError)

	for attempt := 0; attempt < 2; attempt++ {
		var record map[string]any
		require.NoError(testInstance, client.GetJSON(context.Background(), testOperationNameConstant, rasterResourcePathConstant, nil, &record))
		require.Equal(testInstance, "abc", record["id"])
	}

	recordedRequests := server.APIRequests(http.MethodGet, rasterResourcePathConstant)
	require.Len(testInstance, recordedRequests, 2)
	for _, recordedRequest := range recordedRequests {
		require.Equal(testInstance, apitest.APIKey, recordedRequest.Header.Get(apiKeyHeaderConstant))
		require.Equal(testInstance, customUserAgentConstant, recordedRequest.Header.Get(userAgentHeaderConstant))
		require.NotEmpty(testInstance, recordedRequest.Header.Get(requestIDHeaderConstant))
	}
	require.NotEqual(testInstance,
		recordedRequests[0].Header.Get(requestIDHeaderConstant),
		recordedRequests[1].Header.Get(requestIDHeaderConstant),
	)
}

func TestClientLogsResponsesAtDebug(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	server.RegisterAPI(http.MethodDelete, rasterResourcePathConstant, apitest.Response{StatusCode: http.StatusNoContent})

	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	client := server.NewClient(testInstance, zap.New(observedCore))

	require.NoError(testInstance, client.Delete(context.Background(), testOperationNameConstant, rasterResourcePathConstant))

	responseLogs := observedLogs.FilterMessage(responseReceivedLogConstant).All()
	require.Len(testInstance, responseLogs, 1)
	require.Equal(testInstance, zapcore.DebugLevel, responseLogs[0].Level)
	require.Equal(testInstance, int64(http.StatusNoContent), responseLogs[0].ContextMap()["status"])
	require.Equal(testInstance, http.MethodDelete, responseLogs[0].ContextMap()["method"])
}

func TestClientPostsJSONPayload(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	server.RegisterAPI(http.MethodPost, "detectors/", apitest.Response{StatusCode: http.StatusCreated, JSON: map[string]any{"id": 17}})

	client := server.NewClient(testInstance, zap.NewNop())

	var created struct {
		ID apiclient.Identifier `json:"id"`
	}
	payload := map[string]any{"name": "trees"}
	require.NoError(testInstance, client.PostJSON(context.Background(), testOperationNameConstant, "detectors/", payload, &created))
	require.Equal(testInstance, apiclient.Identifier("17"), created.ID)

	recordedRequests := server.APIRequests(http.MethodPost, "detectors/")
	require.Len(testInstance, recordedRequests, 1)
	require.Equal(testInstance, jsonContentTypeConstant, recordedRequests[0].Header.Get(contentTypeHeaderConstant))

	var sentPayload map[string]any
	recordedRequests[0].DecodeJSON(testInstance, &sentPayload)
	require.Equal(testInstance, payload, sentPayload)
}

func TestClientErrorClassification(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name           string
		response       apitest.Response
		assertionCheck func(*testing.T, error)
	}{
		{
			name:     "status_error",
			response: apitest.Response{StatusCode: http.StatusNotFound, Body: `{"detail":"Not found."}`},
			assertionCheck: func(subTest *testing.T, operationError error) {
				var statusError apiclient.ResponseStatusError
				require.ErrorAs(subTest, operationError, &statusError)
				require.Equal(subTest, http.StatusNotFound, statusError.StatusCode)
				require.Equal(subTest, testOperationNameConstant, statusError.Operation)
				require.Contains(subTest, statusError.Error(), "Not found.")
			},
		},
		{
			name:     "malformed_json",
			response: apitest.Response{Body: `{"id":`},
			assertionCheck: func(subTest *testing.T, operationError error) {
				var decodingError apiclient.ResponseDecodingError
				require.ErrorAs(subTest, operationError, &decodingError)
			},
		},
		{
			name:     "empty_body",
			response: apitest.Response{},
			assertionCheck: func(subTest *testing.T, operationError error) {
				var decodingError apiclient.ResponseDecodingError
				require.ErrorAs(subTest, operationError, &decodingError)
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			server.RegisterAPI(http.MethodGet, rasterResourcePathConstant, testCase.response)
			client := server.NewClient(subTest, zap.NewNop())

			var record map[string]any
			operationError := client.GetJSON(context.Background(), testOperationNameConstant, rasterResourcePathConstant, nil, &record)
			require.Error(subTest, operationError)
			testCase.assertionCheck(subTest, operationError)
		})
	}
}

func TestClientRejectsUnencodablePayload(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	client := server.NewClient(testInstance, zap.NewNop())

	operationError := client.PostJSON(context.Background(), testOperationNameConstant, "detectors/", map[string]any{"bad": make(chan int)}, nil)

	var encodingError apiclient.PayloadEncodingError
	require.ErrorAs(testInstance, operationError, &encodingError)
	require.Empty(testInstance, server.APIRequests(http.MethodPost, "detectors/"))
}

func TestClientRetryPolicy(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name             string
		method           string
		responses        []apitest.Response
		expectedRequests int
		expectSuccess    bool
	}{
		{
			name:             "get_retries_unavailable",
			method:           http.MethodGet,
			responses:        []apitest.Response{{StatusCode: http.StatusServiceUnavailable}, {JSON: map[string]any{"id": "abc"}}},
			expectedRequests: 2,
			expectSuccess:    true,
		},
		{
			name:             "get_retries_rate_limit",
			method:           http.MethodGet,
			responses:        []apitest.Response{{StatusCode: http.StatusTooManyRequests}, {StatusCode: http.StatusBadGateway}, {JSON: map[string]any{"id": "abc"}}},
			expectedRequests: 3,
			expectSuccess:    true,
		},
		{
			name:             "get_gives_up_after_max_retries",
			method:           http.MethodGet,
			responses:        []apitest.Response{{StatusCode: http.StatusGatewayTimeout}},
			expectedRequests: 3,
		},
		{
			name:             "get_does_not_retry_client_errors",
			method:           http.MethodGet,
			responses:        []apitest.Response{{StatusCode: http.StatusBadRequest}},
			expectedRequests: 1,
		},
		{
			name:             "post_is_not_retried",
			method:           http.MethodPost,
			responses:        []apitest.Response{{StatusCode: http.StatusServiceUnavailable}, {JSON: map[string]any{"id": "abc"}}},
			expectedRequests: 1,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			for _, response := range testCase.responses {
				server.RegisterAPI(testCase.method, rasterResourcePathConstant, response)
			}
			client := server.NewClient(subTest, zap.NewNop())

			var record map[string]any
			var operationError error
			if testCase.method == http.MethodGet {
				operationError = client.GetJSON(context.Background(), testOperationNameConstant, rasterResourcePathConstant, nil, &record)
			} else {
				operationError = client.PostJSON(context.Background(), testOperationNameConstant, rasterResourcePathConstant, nil, &record)
			}

			require.Len(subTest, server.APIRequests(testCase.method, rasterResourcePathConstant), testCase.expectedRequests)
			if testCase.expectSuccess {
				require.NoError(subTest, operationError)
				require.Equal(subTest, "abc", record["id"])
				return
			}

			var statusError apiclient.ResponseStatusError
			require.ErrorAs(subTest, operationError, &statusError)
		})
	}
}

func TestClientRejectsPathsWithEmptySegments(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name          string
		path          string
		absolute      bool
		expectInvalid bool
	}{
		{name: "blank_identifier", path: apiclient.ResourcePath("rasters", "1", "upload", "", "commit"), expectInvalid: true},
		{name: "blank_leading_segment", path: apiclient.ResourcePath("", "rasters"), expectInvalid: true},
		{name: "empty_path", path: "", expectInvalid: true},
		{name: "resource_path", path: apiclient.ResourcePath("rasters", "1", "commit"), expectInvalid: false},
		{name: "absolute_next_link", path: "rasters/1/commit/", absolute: true, expectInvalid: false},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			requestPath := testCase.path
			if testCase.absolute {
				requestPath = server.APIURL(testCase.path)
			}
			if !testCase.expectInvalid {
				server.RegisterAPI(http.MethodPost, "rasters/1/commit/", apitest.Response{JSON: map[string]any{"id": "1"}})
			}
			client := server.NewClient(subTest, zap.NewNop())

			var record map[string]any
			operationError := client.PostJSON(context.Background(), testOperationNameConstant, requestPath, nil, &record)

			if !testCase.expectInvalid {
				require.NoError(subTest, operationError)
				require.Len(subTest, server.APIRequests(http.MethodPost, "rasters/1/commit/"), 1)
				return
			}

			var inputError apiclient.InvalidInputError
			require.ErrorAs(subTest, operationError, &inputError)
			require.Equal(subTest, "path", inputError.FieldName)
			require.Empty(subTest, server.APIRequests(http.MethodPost, "rasters/1/upload//commit/"))
			require.Empty(subTest, server.APIRequests(http.MethodPost, "rasters/1/upload/commit/"))
		})
	}
}

func TestClientHonorsCanceledContext(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	client := server.NewClient(testInstance, zap.NewNop())

	canceledContext, cancel := context.WithCancel(context.Background())
	cancel()

	operationError := client.GetJSON(canceledContext, testOperationNameConstant, rasterResourcePathConstant, nil, nil)
	require.Error(testInstance, operationError)
	require.True(testInstance, errors.Is(operationError, context.Canceled))

	var transportError apiclient.OperationError
	require.ErrorAs(testInstance, operationError, &transportError)
}
