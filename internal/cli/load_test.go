package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFixture(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := execute(t, "--format", "json", "--config", repo.Config, "load", repo.Fixture)
	require.NoError(t, err)

	var result LoadResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 6, result.Nodes)
	assert.Equal(t, []string{"default"}, result.Workspaces)
	assert.Zero(t, result.Indexed)
}

func TestLoadFixtureWithReindex(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := execute(t, "--config", repo.Config, "load", "--reindex", repo.Fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Loaded 6 node(s) into [default]")
	// root, /posts and three posts; /drafts is not queryable
	assert.Contains(t, out, "✓ Index holds 5 document(s)")
}

func TestLoadPersistsAcrossRuns(t *testing.T) {
	repo := newTestRepo(t)

	_, _, err := execute(t, "--config", repo.Config, "load", repo.Fixture)
	require.NoError(t, err)

	out, _, err := execute(t, "--format", "json", "--config", repo.Config, "status")
	require.NoError(t, err)
	var status StatusResult
	decodeData(t, out, &status)
	assert.GreaterOrEqual(t, status.Nodes, 6)
}

func TestLoadMissingFixture(t *testing.T) {
	out, _, err := execute(t, "load", "/nonexistent/content.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestLoadInvalidFixture(t *testing.T) {
	dir := t.TempDir()
	path := writeDocument(t, dir, "bad.yaml", "workspaces:\n  default:\n    - name: x\n      colour: red\n")

	out, _, err := execute(t, "load", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeStore)
}
