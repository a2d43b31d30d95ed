package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/arbor/internal/engine"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/plan"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Documents  []string
	Variables  []string // name=value, value parsed as YAML
	Workspaces []string
	Explain    bool
}

// QueryResult is the output of the query command.
type QueryResult struct {
	Query       string     `json:"query"`
	ID          string     `json:"id"`
	Fingerprint string     `json:"fingerprint"`
	Columns     []string   `json:"columns"`
	Rows        [][]string `json:"rows"`
	Plan        string     `json:"plan,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <name>",
		Short: "Run a named query from CUE documents",
		Long: `Compile a named query from the given CUE documents, optimize it and run
it against the index.

The index is prepared first according to indexing.rebuildOnStartup, so an
in-memory repository is reindexed before the query runs. Variables default
to those declared with the query; --var overrides them, with values parsed
as YAML scalars (--var min=3, --var title=Alpha).

Examples:
  arbor query top-posts -d blog.cue
  arbor query by-author -d ./queries --var author=bob --explain`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Documents, "documents", "d", nil, "CUE documents or directories (required)")
	cmd.Flags().StringArrayVar(&opts.Variables, "var", nil, "bind variable as name=value (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.Workspaces, "workspace", "w", nil, "workspaces to search (default: the query's, else all configured)")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "print the optimized plan")
	_ = cmd.MarkFlagRequired("documents")

	return cmd
}

// parseVariables turns name=value pairs into bind variables.
func parseVariables(pairs []string) (map[string]ir.Value, error) {
	vars := make(map[string]ir.Value, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", pair)
		}
		var decoded any
		if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("--var %s: %w", name, err)
		}
		v, err := ir.FromAny(decoded)
		if err != nil {
			return nil, fmt.Errorf("--var %s: %w", name, err)
		}
		vars[name] = v
	}
	return vars, nil
}

func runQuery(opts *QueryOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	docs, err := LoadDocuments(opts.Documents)
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err, ErrCodeBuildFailed), err)
	}
	if errs := docs.Validate(); len(errs) > 0 {
		return formatter.Fail(ExitFailure, errs[0].Code, errs[0])
	}
	named, ok := docs.Queries[name]
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Errorf("query %q not found (have %v)", name, docs.QueryNames()))
	}

	overrides, err := parseVariables(opts.Variables)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	vars := make(map[string]ir.Value, len(named.Variables)+len(overrides))
	for k, v := range named.Variables {
		vars[k] = v
	}
	for k, v := range overrides {
		vars[k] = v
	}

	repo, err := OpenRepository(opts.RootOptions, docs, formatter.GetErrWriter())
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err, ErrCodeStore), err)
	}
	defer repo.Close(ctx)

	if err := prepareIndex(ctx, repo); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeReindex, err)
	}

	workspaces := opts.Workspaces
	if len(workspaces) == 0 {
		workspaces = named.Workspaces
	}
	if len(workspaces) == 0 {
		workspaces = repo.Config.Workspaces
	}

	cq, err := repo.Manager.Query(ctx, engine.Request{
		Workspaces: workspaces,
		Command:    named.Command,
		Variables:  vars,
		Hints:      plan.Hints{ShowPlan: opts.Explain && opts.Verbose},
	})
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeQuery, err)
	}
	res, err := cq.Execute(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeQuery, err)
	}

	result := QueryResult{
		Query:       name,
		ID:          cq.ID(),
		Fingerprint: cq.Fingerprint(),
		Columns:     res.ColumnNames(),
		Rows:        make([][]string, len(res.Rows)),
	}
	for i, row := range res.Rows {
		cells := make([]string, len(row.Values))
		for j, v := range row.Values {
			cells[j] = ir.Format(v)
		}
		result.Rows[i] = cells
	}
	if opts.Explain {
		result.Plan = cq.Explain()
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if opts.Explain {
		fmt.Fprintln(formatter.Writer, result.Plan)
	}
	formatter.Table(result.Columns, result.Rows)
	fmt.Fprintf(formatter.Writer, "(%d row(s))\n", len(result.Rows))
	return nil
}

// prepareIndex applies the startup rebuild policy and waits for an
// asynchronous rebuild to finish.
func prepareIndex(ctx context.Context, repo *Repository) error {
	job, err := repo.Manager.Initialize(ctx)
	if err != nil || job == nil {
		return err
	}
	return job.Wait(ctx)
}
