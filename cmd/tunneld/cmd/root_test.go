package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "agent"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestAgentRequiresExternalNATS(t *testing.T) {
	t.Setenv("TUNNEL_DISPATCH_NATSURLS", "")
	agentNATS = ""

	rootCmd.SetArgs([]string{"agent", "--user", "1", "--printer", "2"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external NATS")
}

func TestAgentRejectsBadTarget(t *testing.T) {
	rootCmd.SetArgs([]string{"agent", "--user", "1", "--printer", "2", "--nats", "nats://127.0.0.1:1", "--transport", "a.b"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}
