// Package component defines the contract shared by external component
// configurations (Redis, Ollama).
package component

import "github.com/spf13/pflag"

// ConfigOptions defines the standard interface for all component options.
// Component configuration types must implement this interface to ensure
// consistent behavior across the system:
//   - Completing configuration with default values
//   - Validating configuration parameters
//   - Adding command-line flags
type ConfigOptions interface {
	// Complete fills in any fields not set that are required to have valid data.
	// Returns an error if completion fails.
	Complete() error

	// Validate validates the options and returns an error if any option is
	// invalid. Validate should be called after Complete() so that all fields
	// are properly set.
	Validate() error

	// AddFlags adds flags for the options to the specified FlagSet.
	// The namePrefix parameter is prepended to flag names to avoid conflicts
	// (e.g., "redis." results in flags like "--redis.host", "--redis.port").
	AddFlags(fs *pflag.FlagSet, namePrefix string)
}
