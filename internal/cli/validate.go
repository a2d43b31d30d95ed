package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/arbor/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Config    string                     `json:"config,omitempty"`
	Documents int                        `json:"documents"`
	NodeTypes int                        `json:"node_types"`
	Queries   []string                   `json:"queries,omitempty"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [documents...]",
		Short: "Validate the repository config and CUE documents",
		Long: `Validate the repository configuration (--config) and CUE documents of
node types and named queries.

Documents are .cue files or directories of them. Each document is checked
against the node types of the documents before it: supertypes must exist
and must not form cycles, property types must be known, and every query
must reference declared types, selectors and variables.

Examples:
  arbor validate ./queries
  arbor validate --config repository.yaml blog.cue`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if opts.Config == "" && len(paths) == 0 {
		return outputValidateError(formatter, ErrCodeNotFound, "nothing to validate: pass --config or documents", nil)
	}

	result := ValidationResult{Valid: true}

	if opts.Config != "" {
		if _, err := loadConfig(opts); err != nil {
			return outputValidateError(formatter, loadErrorCode(err, ErrCodeConfig), err.Error(), nil)
		}
		result.Config = opts.Config
		formatter.VerboseLog("Config %s is valid", opts.Config)
	}

	if len(paths) > 0 {
		docs, err := LoadDocuments(paths)
		if err != nil {
			var loadErr *LoadError
			if errors.As(err, &loadErr) {
				return outputValidateError(formatter, loadErr.Code, loadErr.Error(), nil)
			}
			return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
		}
		formatter.VerboseLog("Compiled %d CUE file(s)", len(docs.Files))

		result.Documents = len(docs.Files)
		result.NodeTypes = len(docs.NodeTypes)
		result.Queries = docs.QueryNames()
		result.Errors = docs.Validate()
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if result.Config != "" {
		fmt.Fprintf(formatter.Writer, "✓ Config %s valid\n", result.Config)
	}
	if result.Documents > 0 {
		fmt.Fprintf(formatter.Writer, "✓ %d document(s) valid: %d node type(s), %d query(ies)\n",
			result.Documents, result.NodeTypes, len(result.Queries))
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
