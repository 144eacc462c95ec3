package apiclient

import (
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeoutConstant                = 30 * time.Second
	defaultMaxRetriesConstant             = 3
	defaultRetryWaitConstant              = time.Second
	defaultRetryMaxWaitConstant           = 30 * time.Second
	defaultUserAgentConstant              = "geodetect"
	defaultPollingIntervalConstant        = 5 * time.Second
	defaultPollingMultiplierConstant      = 1.5
	defaultPollingMaxIntervalConstant     = time.Minute
	defaultPollingTimeoutConstant         = 2 * time.Hour
	baseURLFieldNameConstant              = "base_url"
	baseURLInvalidMessageConstant         = "must be an absolute http(s) URL"
	pathSeparatorConstant                 = "/"
	httpSchemeConstant                    = "http"
	httpsSchemeConstant                   = "https"
	minimumPollingMultiplierValueConstant = 1.0
)

// Configuration describes how the client reaches the API.
type Configuration struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
	Polling      PollingConfiguration
}

// PollingConfiguration controls how long-running operations are polled.
type PollingConfiguration struct {
	DefaultInterval     time.Duration
	Multiplier          float64
	MaxInterval         time.Duration
	Timeout             time.Duration
	RandomizationFactor float64
}

// DefaultConfiguration returns baseline transport settings without credentials.
func DefaultConfiguration() Configuration {
	return Configuration{
		Timeout:      defaultTimeoutConstant,
		MaxRetries:   defaultMaxRetriesConstant,
		RetryWait:    defaultRetryWaitConstant,
		RetryMaxWait: defaultRetryMaxWaitConstant,
		UserAgent:    defaultUserAgentConstant,
		Polling:      DefaultPollingConfiguration(),
	}
}

// DefaultPollingConfiguration returns baseline polling settings.
func DefaultPollingConfiguration() PollingConfiguration {
	return PollingConfiguration{
		DefaultInterval: defaultPollingIntervalConstant,
		Multiplier:      defaultPollingMultiplierConstant,
		MaxInterval:     defaultPollingMaxIntervalConstant,
		Timeout:         defaultPollingTimeoutConstant,
	}
}

// sanitize trims values and replaces unusable settings with defaults.
func (configuration Configuration) sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.BaseURL = normalizeBaseURL(configuration.BaseURL)
	sanitized.APIKey = strings.TrimSpace(configuration.APIKey)
	sanitized.UserAgent = strings.TrimSpace(configuration.UserAgent)
	if len(sanitized.UserAgent) == 0 {
		sanitized.UserAgent = defaults.UserAgent
	}
	if sanitized.Timeout <= 0 {
		sanitized.Timeout = defaults.Timeout
	}
	if sanitized.MaxRetries < 0 {
		sanitized.MaxRetries = 0
	}
	if sanitized.RetryWait <= 0 {
		sanitized.RetryWait = defaults.RetryWait
	}
	if sanitized.RetryMaxWait < sanitized.RetryWait {
		sanitized.RetryMaxWait = sanitized.RetryWait
	}
	sanitized.Polling = configuration.Polling.sanitize()

	return sanitized
}

func (configuration PollingConfiguration) sanitize() PollingConfiguration {
	defaults := DefaultPollingConfiguration()
	sanitized := configuration

	if sanitized.DefaultInterval <= 0 {
		sanitized.DefaultInterval = defaults.DefaultInterval
	}
	if sanitized.Multiplier < minimumPollingMultiplierValueConstant {
		sanitized.Multiplier = minimumPollingMultiplierValueConstant
	}
	if sanitized.MaxInterval <= 0 {
		sanitized.MaxInterval = defaults.MaxInterval
	}
	if sanitized.Timeout <= 0 {
		sanitized.Timeout = defaults.Timeout
	}
	if sanitized.RandomizationFactor < 0 || sanitized.RandomizationFactor >= 1 {
		sanitized.RandomizationFactor = 0
	}

	return sanitized
}

func (configuration Configuration) validate() error {
	if len(configuration.BaseURL) == 0 {
		return InvalidInputError{FieldName: baseURLFieldNameConstant, Message: requiredValueMessageConstant}
	}

	parsedURL, parseError := url.Parse(configuration.BaseURL)
	if parseError != nil || !parsedURL.IsAbs() || len(parsedURL.Host) == 0 {
		return InvalidInputError{FieldName: baseURLFieldNameConstant, Message: baseURLInvalidMessageConstant}
	}
	if parsedURL.Scheme != httpSchemeConstant && parsedURL.Scheme != httpsSchemeConstant {
		return InvalidInputError{FieldName: baseURLFieldNameConstant, Message: baseURLInvalidMessageConstant}
	}

	if len(configuration.APIKey) == 0 {
		return ErrAPIKeyMissing
	}

	return nil
}

func normalizeBaseURL(rawBaseURL string) string {
	trimmedBaseURL := strings.TrimSpace(rawBaseURL)
	if len(trimmedBaseURL) == 0 {
		return ""
	}
	if !strings.HasSuffix(trimmedBaseURL, pathSeparatorConstant) {
		trimmedBaseURL += pathSeparatorConstant
	}
	return trimmedBaseURL
}
