package app

import "github.com/spf13/pflag"

// CliOptions abstracts configuration options for reading parameters
// from the command line.
type CliOptions interface {
	// AddFlags adds flags to the specified FlagSet.
	AddFlags(fs *pflag.FlagSet)
	// Validate checks the options values.
	Validate() error
	// Complete fills in any fields not set that are required to have valid data.
	Complete() error
}
