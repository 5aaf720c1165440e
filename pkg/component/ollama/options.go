package ollama

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options defines configuration options for the Ollama client.
type Options struct {
	BaseURL    string        `json:"base-url" mapstructure:"base-url"`
	EmbedModel string        `json:"embed-model" mapstructure:"embed-model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}

// Complete fills in any fields not set that are required to have valid data.
func (o *Options) Complete() error {
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.BaseURL == "" {
		return fmt.Errorf("ollama base-url cannot be empty")
	}
	if o.EmbedModel == "" {
		return fmt.Errorf("ollama embed-model cannot be empty")
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("ollama max-retries cannot be negative: %d", o.MaxRetries)
	}
	return nil
}

// AddFlags adds flags for Ollama options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.BaseURL, namePrefix+"base-url", o.BaseURL, "Ollama server base URL")
	fs.StringVar(&o.EmbedModel, namePrefix+"embed-model", o.EmbedModel, "Ollama embedding model name")
	fs.DurationVar(&o.Timeout, namePrefix+"timeout", o.Timeout, "Ollama request timeout")
	fs.IntVar(&o.MaxRetries, namePrefix+"max-retries", o.MaxRetries, "Ollama request max retries")
}
