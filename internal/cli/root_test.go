package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "arbor", cmd.Use)
	assert.Contains(t, cmd.Long, "search index")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "load", "reindex", "query", "status", "run", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestReindexCommandFlags(t *testing.T) {
	reindexCmd := findCommand(t, "reindex")

	for _, tt := range []struct {
		name, short, def string
	}{
		{"workspace", "w", ""},
		{"path", "p", ""},
		{"depth", "d", "0"},
		{"system", "", "false"},
		{"include-system", "", "false"},
		{"if-empty", "", "false"},
		{"async", "", "false"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			flag := reindexCmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.short, flag.Shorthand)
			assert.Equal(t, tt.def, flag.DefValue)
		})
	}
}

func TestQueryCommandFlags(t *testing.T) {
	queryCmd := findCommand(t, "query")

	docFlag := queryCmd.Flags().Lookup("documents")
	require.NotNil(t, docFlag)
	assert.Equal(t, "d", docFlag.Shorthand)

	require.NotNil(t, queryCmd.Flags().Lookup("var"))
	require.NotNil(t, queryCmd.Flags().Lookup("workspace"))

	explainFlag := queryCmd.Flags().Lookup("explain")
	require.NotNil(t, explainFlag)
	assert.Equal(t, "false", explainFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	runCmd := findCommand(t, "run")

	timeoutFlag := runCmd.Flags().Lookup("shutdown-timeout")
	require.NotNil(t, timeoutFlag)
	assert.Equal(t, "30s", timeoutFlag.DefValue)

	metricsFlag := runCmd.Flags().Lookup("metrics-addr")
	require.NotNil(t, metricsFlag)
	assert.Equal(t, "", metricsFlag.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	testCmd := findCommand(t, "test")

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestLoadCommandFlags(t *testing.T) {
	loadCmd := findCommand(t, "load")

	reindexFlag := loadCmd.Flags().Lookup("reindex")
	require.NotNil(t, reindexFlag)
	assert.Equal(t, "false", reindexFlag.DefValue)
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(t, "--format", "invalid", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
