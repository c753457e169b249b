package config

import "fmt"

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	FilePath string // empty when the value came from the environment or defaults
	Field    string
	Message  string
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	if ce.FilePath != "" {
		return fmt.Sprintf("invalid configuration in %s: %s: %s", ce.FilePath, ce.Field, ce.Message)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", ce.Field, ce.Message)
}
