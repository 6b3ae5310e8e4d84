package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{
		"import", "download", "enhance", "extract", "run", "reports",
		"sync", "export", "clean-states", "migrate", "serve",
	}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sitrep-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestStageCommands_SelectionFlags(t *testing.T) {
	for _, c := range []string{"enhance", "extract", "run", "download", "sync"} {
		cmd, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		require.Equal(t, c, cmd.Name())

		for _, name := range []string{"year", "limit", "id"} {
			assert.NotNil(t, cmd.Flags().Lookup(name), "%s should have --%s", c, name)
		}
		assert.Equal(t, "0", cmd.Flags().Lookup("limit").DefValue)
	}
}

func TestStageCommands_QuietFlag(t *testing.T) {
	for _, c := range []string{"enhance", "extract", "run", "download"} {
		cmd, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		flag := cmd.Flags().ShorthandLookup("q")
		require.NotNil(t, flag, "%s should have -q", c)
		assert.Equal(t, "quiet", flag.Name)
	}
}

func TestImportCommand_RequiresCatalog(t *testing.T) {
	flag := importCmd.Flags().Lookup("catalog")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestDownloadCommand_Flags(t *testing.T) {
	rate := downloadCmd.Flags().Lookup("rate")
	require.NotNil(t, rate)
	assert.Equal(t, "1", rate.DefValue)

	timeout := downloadCmd.Flags().Lookup("timeout")
	require.NotNil(t, timeout)
	assert.Equal(t, "1m0s", timeout.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	for _, name := range []string{"dir", "year", "xlsx"} {
		assert.NotNil(t, exportCmd.Flags().Lookup(name), "export should have --%s", name)
	}
	assert.Equal(t, "false", exportCmd.Flags().Lookup("xlsx").DefValue)
}

func TestReportsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range reportsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "check", "status"} {
		assert.True(t, names[name], "expected reports subcommand %q", name)
	}

	status := reportsListCmd.Flags().Lookup("status")
	require.NotNil(t, status)
	assert.Equal(t, "", status.DefValue)
}
