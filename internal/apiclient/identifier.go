package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	jsonNullLiteralConstant              = "null"
	identifierDecodingErrorTemplate      = "identifier must be a JSON string or number: %s"
	resourcePathSegmentSeparatorConstant = "/"
)

// Identifier is an opaque resource identifier. The API emits identifiers as
// JSON strings or numbers depending on the resource.
type Identifier string

// String returns the identifier text.
func (identifier Identifier) String() string {
	return string(identifier)
}

// IsEmpty reports whether the identifier carries no value.
func (identifier Identifier) IsEmpty() bool {
	return len(strings.TrimSpace(string(identifier))) == 0
}

// UnmarshalJSON accepts quoted strings, bare numbers, and null.
func (identifier *Identifier) UnmarshalJSON(data []byte) error {
	trimmedData := bytes.TrimSpace(data)
	if len(trimmedData) == 0 || string(trimmedData) == jsonNullLiteralConstant {
		*identifier = ""
		return nil
	}

	if trimmedData[0] == '"' {
		var textValue string
		if decodingError := json.Unmarshal(trimmedData, &textValue); decodingError != nil {
			return decodingError
		}
		*identifier = Identifier(textValue)
		return nil
	}

	var numericValue json.Number
	if decodingError := json.Unmarshal(trimmedData, &numericValue); decodingError != nil {
		return fmt.Errorf(identifierDecodingErrorTemplate, string(trimmedData))
	}
	*identifier = Identifier(numericValue.String())
	return nil
}

// ResourcePath joins escaped path segments into an API path with the trailing slash the API requires.
// Blank segments are kept so that requests against the resulting path fail validation.
func ResourcePath(segments ...string) string {
	escapedSegments := make([]string, 0, len(segments))
	for _, segment := range segments {
		trimmedSegment := strings.Trim(strings.TrimSpace(segment), resourcePathSegmentSeparatorConstant)
		escapedSegments = append(escapedSegments, url.PathEscape(trimmedSegment))
	}
	return strings.Join(escapedSegments, resourcePathSegmentSeparatorConstant) + resourcePathSegmentSeparatorConstant
}

// hasEmptyPathSegment reports relative API paths with a blank segment. Absolute
// URLs come from the API itself (pagination links) and are not inspected.
func hasEmptyPathSegment(path string) bool {
	parsedPath, parseError := url.Parse(path)
	if parseError != nil || parsedPath.IsAbs() {
		return false
	}

	trimmedPath := strings.TrimSuffix(parsedPath.Path, resourcePathSegmentSeparatorConstant)
	for _, segment := range strings.Split(trimmedPath, resourcePathSegmentSeparatorConstant) {
		if len(segment) == 0 {
			return true
		}
	}
	return false
}
