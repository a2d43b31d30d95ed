package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/compiler"
)

func writeDocument(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateValidDocuments(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := execute(t, "validate", repo.Document)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 document(s) valid: 1 node type(s), 2 query(ies)")
}

func TestValidateValidDocumentsJSON(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := execute(t, "--format", "json", "validate", "--config", repo.Config, repo.Dir)
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, repo.Config, result.Config)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.NodeTypes)
	assert.Equal(t, []string{"min-rank", "ranked"}, result.Queries)
}

func TestValidateNothingToValidate(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "nothing to validate")
}

func TestValidateNonExistentPath(t *testing.T) {
	out, _, err := execute(t, "validate", "/nonexistent/blog.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, _, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeDocument(t, dir, "repository.yaml", "name: test\nindexing:\n  backend:\n    type: solr\n")

	out, _, err := execute(t, "validate", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeConfig)
}

func TestValidateUnknownSupertype(t *testing.T) {
	dir := t.TempDir()
	path := writeDocument(t, dir, "bad.cue", `
nodeTypes: "blog:post": {
	supertypes: ["blog:missing"]
	properties: title: string
}
`)

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownSupertype)
	assert.Contains(t, out, `unknown supertype "blog:missing"`)
}

func TestValidateUnknownSupertypeJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeDocument(t, dir, "bad.cue", `
nodeTypes: "blog:post": {
	supertypes: ["blog:missing"]
}
`)

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnknownSupertype, resp.Error.Code)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, path+": nodeTypes.blog:post.supertypes", result.Errors[0].Field)
}

func TestValidateLaterDocumentSeesEarlierTypes(t *testing.T) {
	dir := t.TempDir()
	writeDocument(t, dir, "a.cue", `nodeTypes: "blog:post": supertypes: ["nt:hierarchyNode"]`)
	writeDocument(t, dir, "b.cue", `nodeTypes: "blog:page": supertypes: ["blog:post"]`)

	out, _, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 document(s) valid: 2 node type(s)")
}

func TestValidateFloatRejection(t *testing.T) {
	dir := t.TempDir()
	path := writeDocument(t, dir, "float.cue", `
nodeTypes: "blog:post": properties: score: float
`)

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeBuildFailed)
	assert.Contains(t, out, "float types are forbidden")
}

func TestValidateDuplicateQueryAcrossDocuments(t *testing.T) {
	repo := newTestRepo(t)
	writeDocument(t, repo.Dir, "more.cue", `
query: ranked: {
	from: {type: "nt:base", as: "n"}
}
`)

	out, _, err := execute(t, "validate", repo.Dir)
	require.Error(t, err)
	assert.Contains(t, out, compiler.ErrQueryNameDupe)
	assert.Contains(t, out, `query "ranked" defined twice`)
}
