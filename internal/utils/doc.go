// Package utils exposes reusable helpers consumed by multiple commands.
//
// It houses the ConfigurationLoader (Viper with dotenv files and decode hooks),
// the LoggerFactory that builds zap loggers, and the OutputRenderer that writes
// command results as JSON or YAML.
package utils
