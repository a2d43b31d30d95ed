package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rankedScenario = `name: ranked
description: "Published posts ordered by rank"
fixture: content.yaml
documents: [blog.cue]
steps:
  - reindex: {}
  - query:
      name: ranked
      expect:
        columns: [title, score]
        values:
          - ['"Beta"', "5"]
          - ['"Alpha"', "3"]
assertions:
  - type: index_count
    count: 5
  - type: not_indexed
    workspace: default
    paths: [/drafts, /drafts/delta]
`

// newScenarioDir writes the blog fixture, document and one scenario.
func newScenarioDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content.yaml"), []byte(blogContent), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog.cue"), []byte(blogDocument), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ranked.yaml"), []byte(rankedScenario), 0644))
	return dir
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandPasses(t *testing.T) {
	dir := newScenarioDir(t)

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ ranked")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := newScenarioDir(t)
	failing := `name: wrong-count
description: "Expects too many rows"
fixture: content.yaml
documents: [blog.cue]
steps:
  - reindex: {}
  - query:
      name: ranked
      expect: {rows: 3}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong-count.yaml"), []byte(failing), 0644))

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range result.Scenarios {
		byName[s.Name] = s
	}
	assert.True(t, byName["ranked"].Pass)
	require.False(t, byName["wrong-count"].Pass)
	assert.Contains(t, byName["wrong-count"].Errors[0], "expected 3 rows, got 2")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := newScenarioDir(t)

	out, err := runTestCommand(t, "text", "--update", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ ranked (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "ranked.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"ranked"`)

	out, err = runTestCommand(t, "text", dir)
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"ranked","trace":[]}`), 0644))
	out, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Golden file mismatch")
}

func TestTestCommandFilter(t *testing.T) {
	dir := newScenarioDir(t)

	out, err := runTestCommand(t, "text", "--filter", "other-*", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestHelpText(t *testing.T) {
	out, err := runTestCommand(t, "text", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "harness scenarios")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "scenarios-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte("steps: []\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte("steps: []\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))
	// Fixtures have no steps key
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "content.yaml"), []byte(blogContent), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(tmpDir, "test1.yaml"),
		filepath.Join(tmpDir, "test2.yml"),
	}, files)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	for _, name := range []string{"blog-ranked.yaml", "blog-remove.yaml", "system.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte("steps: []\n"), 0644))
	}

	files, err := findScenarioFiles(tmpDir, "blog-*")
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Regexp(t, `blog-[a-z]+\.yaml$`, f)
	}

	_, err = findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte("steps: []\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte("steps: []\n"), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesUnparsable(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "broken.yaml"), []byte("steps: [\n"), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 1, "unparsable YAML is left for LoadScenario to report")
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		result := goldenFilePath(tc.input)
		assert.Equal(t, tc.expected, result)
	}
}
