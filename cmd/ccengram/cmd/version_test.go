package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/pkg/version"
)

func TestVersionCmdDefaultOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), version.Version)
}

func TestVersionCmdJSONOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	require.NoError(t, cmd.Execute())

	var info map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &info))
	assert.Equal(t, version.Version, info["version"])
}

func TestVersionCmdAddedToRoot(t *testing.T) {
	rootCmd := NewRootCmd()
	found, _, err := rootCmd.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", found.Name())
}

func TestRootCmdListsEveryTopLevelCommand(t *testing.T) {
	rootCmd := NewRootCmd()
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"init", "index", "search", "remember", "sessions", "status", "doctor", "serve", "daemon", "stats", "version"} {
		assert.Contains(t, joined, want)
	}
}
