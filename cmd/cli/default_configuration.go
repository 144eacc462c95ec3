package cli

import (
	_ "embed"

	"github.com/temirov/geodetect/internal/apiclient"
	"github.com/temirov/geodetect/internal/credentials"
	"github.com/temirov/geodetect/internal/utils"
)

//go:embed default_config.yaml
var embeddedDefaultConfigurationContent []byte

// EmbeddedDefaultConfiguration returns the embedded default configuration data and type identifier.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	duplicatedContent := make([]byte, len(embeddedDefaultConfigurationContent))
	copy(duplicatedContent, embeddedDefaultConfigurationContent)
	return duplicatedContent, configurationTypeConstant
}

// DefaultConfigurationValues returns defaults for every configuration key so environment overrides resolve
// even when no configuration file mentions the key.
func DefaultConfigurationValues() map[string]any {
	clientDefaults := apiclient.DefaultConfiguration()
	return map[string]any{
		commonLogLevelConfigKeyConstant:         string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:        string(utils.LogFormatStructured),
		commonOutputFormatConfigKeyConstant:     string(utils.OutputFormatJSON),
		apiBaseURLConfigKeyConstant:             "",
		apiKeySourceConfigKeyConstant:           credentials.DefaultKeySource,
		apiTimeoutConfigKeyConstant:             clientDefaults.Timeout,
		apiMaxRetriesConfigKeyConstant:          clientDefaults.MaxRetries,
		apiRetryWaitConfigKeyConstant:           clientDefaults.RetryWait,
		apiRetryMaxWaitConfigKeyConstant:        clientDefaults.RetryMaxWait,
		apiUserAgentConfigKeyConstant:           clientDefaults.UserAgent,
		pollingDefaultIntervalConfigKeyConstant: clientDefaults.Polling.DefaultInterval,
		pollingMultiplierConfigKeyConstant:      clientDefaults.Polling.Multiplier,
		pollingMaxIntervalConfigKeyConstant:     clientDefaults.Polling.MaxInterval,
		pollingTimeoutConfigKeyConstant:         clientDefaults.Polling.Timeout,
	}
}
