package redis

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, "127.0.0.1", opts.Host)
	assert.Equal(t, 6379, opts.Port)
	assert.Equal(t, 0, opts.Database)
	assert.Equal(t, 3, opts.MaxRetries)
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	require.NoError(t, opts.Validate())

	opts.Port = 0
	assert.Error(t, opts.Validate())

	opts.Port = 70000
	assert.Error(t, opts.Validate())
}

func TestOptionsPasswordRedaction(t *testing.T) {
	opts := NewOptions()
	opts.Password = "secret-password"

	// String() must never leak the password
	s := opts.String()
	assert.NotContains(t, s, "secret-password")
	assert.Contains(t, s, redactedPassword)

	// Neither must JSON output
	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "secret-password"))
	assert.Contains(t, string(data), redactedPassword)
}

func TestOptionsEmptyPasswordNotRedacted(t *testing.T) {
	opts := NewOptions()

	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.NotContains(t, string(data), redactedPassword)
}

func TestNewWithNilOptions(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
