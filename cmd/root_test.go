package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")

	var out bytes.Buffer
	versionCmd := newVersionCmd()
	versionCmd.SetOut(&out)

	require.NoError(t, versionCmd.Execute())
	assert.Equal(t, "toolpod version 1.2.3\n", out.String())
}

func TestServeCommandRegistered(t *testing.T) {
	command, _, err := rootCmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", command.Name())

	flag := command.Flags().Lookup("catalog-path")
	require.NotNil(t, flag)
	assert.Equal(t, "catalog", flag.DefValue)
}
