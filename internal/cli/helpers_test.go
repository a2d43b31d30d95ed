package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const blogDocument = `
nodeTypes: {
	"blog:post": {
		supertypes: ["nt:hierarchyNode"]
		properties: {
			title: string
			rank:  int
			draft: bool
		}
	}
}

query: ranked: {
	from: {type: "blog:post", as: "p"}
	where: compare: {property: "p.draft", op: "=", value: false}
	columns: ["p.title", "p.rank AS score"]
	orderBy: [{property: "p.rank", order: "desc"}]
}

query: "min-rank": {
	from: {type: "blog:post", as: "p"}
	where: compare: {property: "p.rank", op: ">=", variable: "min"}
	columns: ["p.title"]
	orderBy: [{property: "p.title"}]
	variables: min: 1
}
`

const blogContent = `
workspaces:
  default:
    - name: posts
      type: nt:folder
      children:
        - name: alpha
          type: blog:post
          properties: {title: Alpha, rank: 3, draft: false}
        - name: beta
          type: blog:post
          properties: {title: Beta, rank: 5, draft: false}
        - name: gamma
          type: blog:post
          properties: {title: Gamma, rank: 1, draft: true}
    - name: drafts
      type: nt:unstructured
      properties: {mode:queryable: false}
      children:
        - name: delta
          type: blog:post
          properties: {title: Delta, rank: 9, draft: false}
`

// testRepo is a temp directory holding a sqlite-backed repository config,
// a content fixture and a CUE document.
type testRepo struct {
	Dir      string
	Config   string
	Fixture  string
	Document string
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	r := &testRepo{
		Dir:      dir,
		Config:   filepath.Join(dir, "repository.yaml"),
		Fixture:  filepath.Join(dir, "content.yaml"),
		Document: filepath.Join(dir, "blog.cue"),
	}
	cfg := "name: test\nworkspaces: [default]\nstorage:\n  path: " + filepath.Join(dir, "content.db") + "\n"
	require.NoError(t, os.WriteFile(r.Config, []byte(cfg), 0644))
	require.NoError(t, os.WriteFile(r.Fixture, []byte(blogContent), 0644))
	require.NoError(t, os.WriteFile(r.Document, []byte(blogDocument), 0644))
	return r
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// decodeData decodes a JSON CLIResponse and unmarshals its data into v.
func decodeData(t *testing.T, output string, v any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &raw), "output: %s", output)
	if v != nil {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return raw.CLIResponse
}

func findCommand(t *testing.T, name string) *cobra.Command {
	t.Helper()
	sub, _, err := NewRootCommand().Find([]string{name})
	require.NoError(t, err)
	return sub
}
