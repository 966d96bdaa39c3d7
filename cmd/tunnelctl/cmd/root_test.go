package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "tunnelctl", rootCmd.Use)
}

func TestRootCommandFlags(t *testing.T) {
	for _, name := range []string{"server", "output", "config"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, name, flag.Name)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	commands := []string{"stats", "predictions", "progress", "request", "cache"}

	for _, cmdName := range commands {
		cmd, _, err := rootCmd.Find([]string{cmdName})
		require.NoError(t, err, "Command %s should be registered", cmdName)
		assert.Equal(t, cmdName, cmd.Name())
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
	}{
		{"yaml", OutputFormatYAML},
		{"y", OutputFormatYAML},
		{"JSON", OutputFormatJSON},
		{"j", OutputFormatJSON},
		{"table", OutputFormatTable},
		{"", OutputFormatTable},
		{"invalid", OutputFormatTable},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseOutputFormat(tt.input))
		})
	}
}
