package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	pathutils "github.com/temirov/geodetect/internal/utils/path"
)

const (
	keySourceSeparatorConstant                 = ":"
	environmentKeySourceTypeValueConstant      = "env"
	fileKeySourceTypeValueConstant             = "file"
	keySourceMissingErrorMessageConstant       = "api key source must be provided"
	environmentNameMissingErrorMessageConstant = "environment variable name must be provided"
	filePathMissingErrorMessageConstant        = "api key file path must be provided"
	environmentKeyMissingTemplateConstant      = "environment variable %s is not set"
	fileReadErrorTemplateConstant              = "unable to read api key file %s: %w"
	fileKeyEmptyErrorTemplateConstant          = "api key file %s is empty"
	unsupportedKeySourceTemplateConstant       = "unsupported api key source type %q"
	keySourceDescriptionTemplateConstant       = "%s:%s"

	// DefaultKeySource names the environment variable consulted when nothing else is configured.
	DefaultKeySource = "env:GEODETECT_API_KEY"
)

// KeySourceType enumerates the supported API key retrieval mechanisms.
type KeySourceType string

// Key source type enumerations.
const (
	KeySourceTypeEnvironment KeySourceType = KeySourceType(environmentKeySourceTypeValueConstant)
	KeySourceTypeFile        KeySourceType = KeySourceType(fileKeySourceTypeValueConstant)
)

// ErrKeySourceMissing indicates an empty key source declaration.
var ErrKeySourceMissing = errors.New(keySourceMissingErrorMessageConstant)

// KeySource specifies where the API key lives.
type KeySource struct {
	Type      KeySourceType
	Reference string
}

// String renders the source in its declarative form.
func (source KeySource) String() string {
	return fmt.Sprintf(keySourceDescriptionTemplateConstant, source.Type, source.Reference)
}

// ParseKeySource interprets textual key source declarations. A bare value names an environment variable.
func ParseKeySource(sourceValue string) (KeySource, error) {
	trimmedValue := strings.TrimSpace(sourceValue)
	if len(trimmedValue) == 0 {
		return KeySource{}, ErrKeySourceMissing
	}

	sourceType, reference, hasSeparator := strings.Cut(trimmedValue, keySourceSeparatorConstant)
	if !hasSeparator {
		return KeySource{Type: KeySourceTypeEnvironment, Reference: trimmedValue}, nil
	}

	reference = strings.TrimSpace(reference)
	switch strings.ToLower(strings.TrimSpace(sourceType)) {
	case environmentKeySourceTypeValueConstant:
		if len(reference) == 0 {
			return KeySource{}, errors.New(environmentNameMissingErrorMessageConstant)
		}
		return KeySource{Type: KeySourceTypeEnvironment, Reference: reference}, nil
	case fileKeySourceTypeValueConstant:
		if len(reference) == 0 {
			return KeySource{}, errors.New(filePathMissingErrorMessageConstant)
		}
		return KeySource{Type: KeySourceTypeFile, Reference: reference}, nil
	default:
		return KeySource{}, fmt.Errorf(unsupportedKeySourceTemplateConstant, sourceType)
	}
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FileReader reads the contents of a file path.
type FileReader func(path string) ([]byte, error)

// Resolver retrieves API keys from configured sources.
type Resolver struct {
	environmentLookup EnvironmentLookup
	fileReader        FileReader
	homeExpander      *pathutils.HomeExpander
}

// NewResolver creates a resolver; nil dependencies fall back to the operating system.
func NewResolver(environmentLookup EnvironmentLookup, fileReader FileReader) *Resolver {
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	if fileReader == nil {
		fileReader = os.ReadFile
	}
	return &Resolver{
		environmentLookup: environmentLookup,
		fileReader:        fileReader,
		homeExpander:      pathutils.NewHomeExpanderWithProviders(nil, pathutils.EnvironmentLookup(environmentLookup)),
	}
}

// ResolveAPIKey returns the trimmed key found at source.
func (resolver *Resolver) ResolveAPIKey(_ context.Context, source KeySource) (string, error) {
	switch source.Type {
	case KeySourceTypeEnvironment:
		value, found := resolver.environmentLookup(source.Reference)
		trimmedValue := strings.TrimSpace(value)
		if !found || len(trimmedValue) == 0 {
			return "", fmt.Errorf(environmentKeyMissingTemplateConstant, source.Reference)
		}
		return trimmedValue, nil
	case KeySourceTypeFile:
		keyPath := resolver.homeExpander.Expand(source.Reference)
		contents, readError := resolver.fileReader(keyPath)
		if readError != nil {
			return "", fmt.Errorf(fileReadErrorTemplateConstant, keyPath, readError)
		}
		trimmedValue := strings.TrimSpace(string(contents))
		if len(trimmedValue) == 0 {
			return "", fmt.Errorf(fileKeyEmptyErrorTemplateConstant, keyPath)
		}
		return trimmedValue, nil
	default:
		return "", fmt.Errorf(unsupportedKeySourceTemplateConstant, source.Type)
	}
}
