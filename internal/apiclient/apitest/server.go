// Package apitest provides an in-process fake of the detection service API and
// its storage endpoints. Responses are registered per method and URL and are
// served in registration order; the last registered response repeats.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

const (
	// APIBasePath is the path prefix under which API routes are registered.
	APIBasePath = "/public/api/v2/"
	// StoragePath is the path prefix of presigned storage URLs.
	StoragePath = "/storage/"
	// APIKey is the credential expected by the fake.
	APIKey = "1234"

	apiKeyHeaderNameConstant      = "X-Api-Key"
	contentTypeHeaderNameConstant = "Content-Type"
	jsonContentTypeConstant       = "application/json"
	routeKeySeparatorConstant     = " "
	querySeparatorConstant        = "?"
	unregisteredRouteTemplate     = "unexpected request %s"
	unauthorizedRouteTemplate     = "request %s missing api key"
	unregisteredRouteBody         = "no route registered"
)

// Response describes a canned reply.
type Response struct {
	StatusCode int
	JSON       any
	Body       string
}

// RecordedRequest captures a request received by the fake.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Header        http.Header
	Body          []byte
	ContentLength int64
}

// DecodeJSON unmarshals the recorded body into target.
func (request RecordedRequest) DecodeJSON(testInstance testing.TB, target any) {
	testInstance.Helper()
	if decodingError := json.Unmarshal(request.Body, target); decodingError != nil {
		testInstance.Fatalf("decode recorded body %q: %v", string(request.Body), decodingError)
	}
}

// Server is an httptest-backed fake of the API and storage endpoints.
type Server struct {
	testInstance testing.TB
	httpServer   *httptest.Server
	mutex        sync.Mutex
	routes       map[string][]Response
	requests     map[string][]RecordedRequest
}

// NewServer starts a fake server that is closed when the test finishes.
func NewServer(testInstance testing.TB) *Server {
	testInstance.Helper()

	server := &Server{
		testInstance: testInstance,
		routes:       map[string][]Response{},
		requests:     map[string][]RecordedRequest{},
	}
	server.httpServer = httptest.NewServer(http.HandlerFunc(server.serveHTTP))
	testInstance.Cleanup(server.httpServer.Close)

	return server
}

// BaseURL returns the API base URL, with trailing slash.
func (server *Server) BaseURL() string {
	return server.httpServer.URL + APIBasePath
}

// APIURL returns the absolute URL of an API resource path such as "rasters/?page_number=2".
func (server *Server) APIURL(resourcePath string) string {
	return server.BaseURL() + strings.TrimPrefix(resourcePath, "/")
}

// StorageURL returns an absolute presigned-style storage URL.
func (server *Server) StorageURL(objectPath string) string {
	return server.httpServer.URL + StoragePath + strings.TrimPrefix(objectPath, "/")
}

// RegisterAPI queues a response for an API resource path, optionally with a query string.
func (server *Server) RegisterAPI(method string, resourcePath string, response Response) {
	server.register(method, APIBasePath+strings.TrimPrefix(resourcePath, "/"), response)
}

// RegisterStorage queues a response for a storage object path.
func (server *Server) RegisterStorage(method string, objectPath string, response Response) {
	server.register(method, StoragePath+strings.TrimPrefix(objectPath, "/"), response)
}

// APIRequests returns the requests received for an API resource path.
func (server *Server) APIRequests(method string, resourcePath string) []RecordedRequest {
	return server.recorded(method, APIBasePath+strings.TrimPrefix(resourcePath, "/"))
}

// StorageRequests returns the requests received for a storage object path.
func (server *Server) StorageRequests(method string, objectPath string) []RecordedRequest {
	return server.recorded(method, StoragePath+strings.TrimPrefix(objectPath, "/"))
}

func (server *Server) register(method string, target string, response Response) {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	key := routeKey(method, target)
	server.routes[key] = append(server.routes[key], response)
}

func (server *Server) recorded(method string, target string) []RecordedRequest {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	recordedRequests := server.requests[routeKey(method, target)]
	return append([]RecordedRequest(nil), recordedRequests...)
}

func (server *Server) serveHTTP(responseWriter http.ResponseWriter, request *http.Request) {
	requestBody, _ := io.ReadAll(request.Body)
	target := request.URL.Path
	if len(request.URL.RawQuery) > 0 {
		target += querySeparatorConstant + request.URL.RawQuery
	}
	key := routeKey(request.Method, target)

	server.mutex.Lock()
	server.requests[key] = append(server.requests[key], RecordedRequest{
		Method:        request.Method,
		Path:          request.URL.Path,
		Query:         request.URL.Query(),
		Header:        request.Header.Clone(),
		Body:          requestBody,
		ContentLength: request.ContentLength,
	})
	queuedResponses := server.routes[key]
	var response Response
	responseFound := len(queuedResponses) > 0
	if responseFound {
		response = queuedResponses[0]
		if len(queuedResponses) > 1 {
			server.routes[key] = queuedResponses[1:]
		}
	}
	server.mutex.Unlock()

	if !responseFound {
		server.testInstance.Errorf(unregisteredRouteTemplate, key)
		http.Error(responseWriter, unregisteredRouteBody, http.StatusNotImplemented)
		return
	}

	if strings.HasPrefix(request.URL.Path, APIBasePath) && request.Header.Get(apiKeyHeaderNameConstant) != APIKey {
		server.testInstance.Errorf(unauthorizedRouteTemplate, key)
	}

	statusCode := response.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	if response.JSON != nil {
		encodedBody, encodingError := json.Marshal(response.JSON)
		if encodingError != nil {
			server.testInstance.Errorf("encode response for %s: %v", key, encodingError)
		}
		responseWriter.Header().Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
		responseWriter.WriteHeader(statusCode)
		_, _ = responseWriter.Write(encodedBody)
		return
	}

	responseWriter.WriteHeader(statusCode)
	_, _ = io.WriteString(responseWriter, response.Body)
}

func routeKey(method string, target string) string {
	path, rawQuery, _ := strings.Cut(target, querySeparatorConstant)
	if len(rawQuery) == 0 {
		return method + routeKeySeparatorConstant + path
	}
	parsedQuery, parseError := url.ParseQuery(rawQuery)
	if parseError != nil {
		return method + routeKeySeparatorConstant + target
	}
	return method + routeKeySeparatorConstant + path + querySeparatorConstant + parsedQuery.Encode()
}
