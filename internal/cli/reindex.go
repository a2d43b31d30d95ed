package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/reindex"
)

// ReindexOptions holds flags for the reindex command.
type ReindexOptions struct {
	*RootOptions
	Workspace     string
	Path          string
	Depth         int
	System        bool
	IncludeSystem bool
	IfEmpty       bool
	Async         bool
}

// ReindexResult reports a finished reindex.
type ReindexResult struct {
	Scope     string `json:"scope"`
	Job       string `json:"job,omitempty"`
	Documents int    `json:"documents"`
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReindexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild index documents from the content graph",
		Long: `Crawl the content graph breadth-first and resubmit every queryable node
to the index.

Without flags the whole repository is reindexed. --workspace limits the
crawl to one workspace, --path to one subtree of it, and --depth to that
many levels below the starting node (1 = the node alone, 0 = unbounded).
--system reindexes /jcr:system and its children.

With --async the crawl runs in the reindex pool; the command waits for the
job and reports its ID.

Examples:
  arbor reindex --config repository.yaml
  arbor reindex --workspace default --path /posts --depth 2
  arbor reindex --system`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "", "workspace to reindex")
	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "subtree path within --workspace")
	cmd.Flags().IntVarP(&opts.Depth, "depth", "d", 0, "levels to crawl below the start node (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.System, "system", false, "reindex the system content only")
	cmd.Flags().BoolVar(&opts.IncludeSystem, "include-system", false, "include system content in a full reindex")
	cmd.Flags().BoolVar(&opts.IfEmpty, "if-empty", false, "skip a full reindex when the index already holds documents")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "run in the reindex pool and wait for the job")

	return cmd
}

// scope describes what the options select, for output.
func (o *ReindexOptions) scope() string {
	switch {
	case o.System:
		return "system"
	case o.Path != "":
		return fmt.Sprintf("%s:%s", o.Workspace, o.Path)
	case o.Workspace != "":
		return o.Workspace
	}
	return "repository"
}

func (o *ReindexOptions) check() error {
	if o.Path != "" && o.Workspace == "" {
		return fmt.Errorf("--path requires --workspace")
	}
	if o.Depth < 0 {
		return fmt.Errorf("--depth must be non-negative")
	}
	if o.System && (o.Workspace != "" || o.IncludeSystem || o.IfEmpty) {
		return fmt.Errorf("--system cannot be combined with --workspace, --include-system or --if-empty")
	}
	if o.Workspace != "" && (o.IncludeSystem || o.IfEmpty) {
		return fmt.Errorf("--include-system and --if-empty apply to a full reindex only")
	}
	return nil
}

func runReindex(opts *ReindexOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if err := opts.check(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	var path graph.Path
	if opts.Path != "" {
		p, err := graph.ParsePath(opts.Path)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
		path = p
	}

	repo, err := OpenRepository(opts.RootOptions, nil, formatter.GetErrWriter())
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err, ErrCodeStore), err)
	}
	defer repo.Close(ctx)

	job, err := startReindex(ctx, repo, opts, path)
	if err == nil && job != nil {
		formatter.VerboseLog("Waiting for reindex job %s", job.ID())
		err = job.Wait(ctx)
	}
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeReindex, err)
	}

	idx, err := repo.Manager.Indexes()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeReindex, err)
	}
	result := ReindexResult{Scope: opts.scope()}
	if job != nil {
		result.Job = job.ID()
	}
	if result.Documents, err = idx.Count(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeReindex, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Reindexed %s, index holds %d document(s)\n", result.Scope, result.Documents)
	return nil
}

// startReindex runs the selected crawl. The returned job is nil unless
// the crawl was submitted asynchronously.
func startReindex(ctx context.Context, repo *Repository, opts *ReindexOptions, path graph.Path) (*reindex.Job, error) {
	m := repo.Manager
	depth := opts.Depth
	if depth == 0 {
		depth = reindex.Unbounded
	}

	switch {
	case opts.System:
		return m.ReindexSystemContent(ctx, opts.Async)
	case opts.Path != "" && opts.Async:
		return m.ReindexPathAsync(opts.Workspace, path, depth)
	case opts.Path != "":
		return nil, m.ReindexPath(ctx, opts.Workspace, path, depth)
	case opts.Workspace != "" && opts.Async:
		return m.ReindexWorkspaceAsync(opts.Workspace)
	case opts.Workspace != "":
		return nil, m.ReindexWorkspace(ctx, opts.Workspace)
	}
	return m.ReindexContent(ctx, opts.IncludeSystem, opts.Async, opts.IfEmpty)
}
