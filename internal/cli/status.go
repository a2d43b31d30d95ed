package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StatusResult describes the configured repository.
type StatusResult struct {
	Name            string   `json:"name"`
	Storage         string   `json:"storage"`
	Backend         string   `json:"backend"`
	SystemWorkspace string   `json:"system_workspace"`
	Workspaces      []string `json:"workspaces"`
	Nodes           int      `json:"nodes"`
	Documents       int      `json:"documents"`
	Reindex         string   `json:"reindex"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show repository, content and index counts",
		Long: `Open the configured repository without reindexing and report its
workspaces, the number of stored nodes and the number of index documents.

Example:
  arbor status --config repository.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepository(opts, nil, formatter.GetErrWriter())
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err, ErrCodeStore), err)
	}
	defer repo.Close(ctx)

	result := StatusResult{
		Name:            repo.Config.Name,
		Storage:         repo.Config.Storage.Path,
		Backend:         repo.Config.Indexing.Backend.Type,
		SystemWorkspace: repo.Store.SystemWorkspaceName(),
		Reindex:         repo.Manager.ReindexState().String(),
	}
	if result.Storage == "" {
		result.Storage = ":memory:"
	}

	if result.Workspaces, err = repo.Store.WorkspaceNames(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	if result.Nodes, err = repo.Store.Len(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	idx, err := repo.Manager.Indexes()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if result.Documents, err = idx.Count(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	formatter.Table([]string{"FIELD", "VALUE"}, [][]string{
		{"name", result.Name},
		{"storage", result.Storage},
		{"index backend", result.Backend},
		{"system workspace", result.SystemWorkspace},
		{"workspaces", fmt.Sprint(result.Workspaces)},
		{"nodes", fmt.Sprint(result.Nodes)},
		{"documents", fmt.Sprint(result.Documents)},
		{"reindex", result.Reindex},
	})
	return nil
}
