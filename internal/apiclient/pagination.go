package apiclient

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	pageNumberQueryParameterConstant = "page_number"
	firstPageNumberConstant          = 1
	pageFetchedLogMessageConstant    = "page fetched"
)

// PageConsumer receives the raw results array of each fetched page.
type PageConsumer func(results json.RawMessage) error

type pageEnvelope struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	PageSize int             `json:"page_size"`
	Results  json.RawMessage `json:"results"`
}

// Paginate fetches the first page of a list endpoint and follows next links until the
// API reports no further pages, passing each page's results to consume.
func (client *Client) Paginate(executionContext context.Context, operation OperationName, path string, query map[string]string, consume PageConsumer) error {
	requestQuery := make(map[string]string, len(query)+1)
	for queryKey, queryValue := range query {
		if len(strings.TrimSpace(queryValue)) == 0 {
			continue
		}
		requestQuery[queryKey] = queryValue
	}
	requestQuery[pageNumberQueryParameterConstant] = strconv.Itoa(firstPageNumberConstant)

	requestPath := path
	visitedPages := map[string]struct{}{}

	for pageIndex := firstPageNumberConstant; ; pageIndex++ {
		var envelope pageEnvelope
		if fetchError := client.GetJSON(executionContext, operation, requestPath, requestQuery, &envelope); fetchError != nil {
			return fetchError
		}

		client.logger.Debug(
			pageFetchedLogMessageConstant,
			zap.String(logFieldOperationConstant, string(operation)),
			zap.Int(logFieldPageConstant, pageIndex),
			zap.Int(logFieldCountConstant, envelope.Count),
		)

		if consume != nil && len(envelope.Results) > 0 {
			if consumeError := consume(envelope.Results); consumeError != nil {
				return consumeError
			}
		}

		if envelope.Next == nil {
			return nil
		}

		nextPage := strings.TrimSpace(*envelope.Next)
		if len(nextPage) == 0 {
			return nil
		}

		if _, visited := visitedPages[nextPage]; visited {
			return PaginationLoopError{Operation: operation, URL: nextPage}
		}
		visitedPages[nextPage] = struct{}{}

		requestPath = nextPage
		requestQuery = nil
	}
}

// CollectPages decodes every page of a list endpoint into a single slice.
func CollectPages[Record any](executionContext context.Context, paginator Paginator, operation OperationName, path string, query map[string]string) ([]Record, error) {
	records := make([]Record, 0)
	consumeError := paginator.Paginate(executionContext, operation, path, query, func(results json.RawMessage) error {
		var pageRecords []Record
		if decodingError := json.Unmarshal(results, &pageRecords); decodingError != nil {
			return ResponseDecodingError{Operation: operation, Cause: decodingError}
		}
		records = append(records, pageRecords...)
		return nil
	})
	if consumeError != nil {
		return nil, consumeError
	}
	return records, nil
}

// Paginator is the minimal interface required to walk list endpoints.
type Paginator interface {
	Paginate(executionContext context.Context, operation OperationName, path string, query map[string]string, consume PageConsumer) error
}
