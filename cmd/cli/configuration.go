package cli

import (
	"strings"
	"time"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	commonConfigurationKeyConstant          = "common"
	apiConfigurationKeyConstant             = "api"
	pollingConfigurationKeyConstant         = "polling"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	commonOutputFormatConfigKeyConstant     = commonConfigurationKeyConstant + ".output_format"
	apiBaseURLConfigKeyConstant             = apiConfigurationKeyConstant + ".base_url"
	apiKeySourceConfigKeyConstant           = apiConfigurationKeyConstant + ".key_source"
	apiTimeoutConfigKeyConstant             = apiConfigurationKeyConstant + ".timeout"
	apiMaxRetriesConfigKeyConstant          = apiConfigurationKeyConstant + ".max_retries"
	apiRetryWaitConfigKeyConstant           = apiConfigurationKeyConstant + ".retry_wait"
	apiRetryMaxWaitConfigKeyConstant        = apiConfigurationKeyConstant + ".retry_max_wait"
	apiUserAgentConfigKeyConstant           = apiConfigurationKeyConstant + ".user_agent"
	pollingDefaultIntervalConfigKeyConstant = pollingConfigurationKeyConstant + ".default_interval"
	pollingMultiplierConfigKeyConstant      = pollingConfigurationKeyConstant + ".multiplier"
	pollingMaxIntervalConfigKeyConstant     = pollingConfigurationKeyConstant + ".max_interval"
	pollingTimeoutConfigKeyConstant         = pollingConfigurationKeyConstant + ".timeout"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common  ApplicationCommonConfiguration  `mapstructure:"common"`
	API     ApplicationAPIConfiguration     `mapstructure:"api"`
	Polling ApplicationPollingConfiguration `mapstructure:"polling"`
}

// ApplicationCommonConfiguration stores logging and output settings shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	OutputFormat string `mapstructure:"output_format"`
}

// ApplicationAPIConfiguration describes how the service API is reached.
type ApplicationAPIConfiguration struct {
	BaseURL      string        `mapstructure:"base_url"`
	KeySource    string        `mapstructure:"key_source"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryWait    time.Duration `mapstructure:"retry_wait"`
	RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// ApplicationPollingConfiguration controls how long-running operations are awaited.
type ApplicationPollingConfiguration struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// clientConfiguration converts the persisted settings into an apiclient configuration.
func (configuration ApplicationConfiguration) clientConfiguration(apiKey string) apiclient.Configuration {
	return apiclient.Configuration{
		BaseURL:      strings.TrimSpace(configuration.API.BaseURL),
		APIKey:       apiKey,
		Timeout:      configuration.API.Timeout,
		MaxRetries:   configuration.API.MaxRetries,
		RetryWait:    configuration.API.RetryWait,
		RetryMaxWait: configuration.API.RetryMaxWait,
		UserAgent:    configuration.API.UserAgent,
		Polling: apiclient.PollingConfiguration{
			DefaultInterval: configuration.Polling.DefaultInterval,
			Multiplier:      configuration.Polling.Multiplier,
			MaxInterval:     configuration.Polling.MaxInterval,
			Timeout:         configuration.Polling.Timeout,
		},
	}
}
