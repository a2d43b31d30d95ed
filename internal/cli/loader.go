package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/token"

	"github.com/roach88/arbor/internal/compiler"
	"github.com/roach88/arbor/internal/config"
	"github.com/roach88/arbor/internal/queryir"
	"github.com/roach88/arbor/internal/repository"
	"github.com/roach88/arbor/internal/store"
)

// Documents is the merged result of compiling one or more CUE documents.
type Documents struct {
	Files     []string
	NodeTypes []queryir.NodeType
	Queries   map[string]*compiler.Query

	docs []*compiler.Document
}

// LoadError represents an error that occurred while loading documents,
// configuration or the content store.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDocuments compiles every path: a .cue file, or a directory whose
// .cue files are loaded in lexical order. Fails on the first error.
func LoadDocuments(paths []string) (*Documents, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("document not found: %s", p)}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", p, err)}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := FindCUEFiles(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(found) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", p)}
		}
		files = append(files, found...)
	}

	docs := &Documents{Files: files, Queries: make(map[string]*compiler.Query)}
	for _, f := range files {
		doc, err := compiler.CompileFile(f)
		if err != nil {
			return nil, convertCompileError(err, f)
		}
		docs.docs = append(docs.docs, doc)
		docs.NodeTypes = append(docs.NodeTypes, doc.NodeTypes...)
		for _, q := range doc.Queries {
			if _, dup := docs.Queries[q.Name]; dup {
				return nil, &LoadError{Code: compiler.ErrQueryNameDupe, Message: fmt.Sprintf("%s: query %q defined twice", f, q.Name)}
			}
			docs.Queries[q.Name] = q
		}
	}
	return docs, nil
}

// Schemata returns the default node types extended by every document.
func (d *Documents) Schemata() *queryir.Schemata {
	s := queryir.DefaultSchemata()
	if d == nil {
		return s
	}
	for _, doc := range d.docs {
		s = doc.Schemata(s)
	}
	return s
}

// Validate checks each document against the types of those before it.
func (d *Documents) Validate() []compiler.ValidationError {
	var errs []compiler.ValidationError
	s := queryir.DefaultSchemata()
	for i, doc := range d.docs {
		for _, e := range doc.Validate(s) {
			e.Field = d.Files[i] + ": " + e.Field
			errs = append(errs, e)
		}
		s = doc.Schemata(s)
	}
	return errs
}

// QueryNames returns the query names in sorted order.
func (d *Documents) QueryNames() []string {
	names := make([]string, 0, len(d.Queries))
	for name := range d.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, file string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeBuildFailed,
			Message: compileErr.Field + ": " + compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeBuildFailed,
		Message: fmt.Sprintf("%s: %v", file, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeConfig      = "E004" // Configuration invalid
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE compile failed
	ErrCodeStore       = "E007" // Content store error
	ErrCodeQuery       = "E008" // Query failed
	ErrCodeReindex     = "E009" // Reindex failed
)

// Repository is an opened content store with its manager.
type Repository struct {
	Config  *config.Config
	Store   *store.Store
	Manager *repository.Manager
	Logger  *slog.Logger
}

// loadConfig reads --config, or returns the in-memory default.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}
	return cfg, nil
}

// newLogger logs to w at info level, debug with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OpenRepository opens the configured store, creates the configured
// workspaces, and builds a manager whose schemata include docs. docs may
// be nil; extra options are applied after the defaults.
func OpenRepository(opts *RootOptions, docs *Documents, logw io.Writer, extra ...repository.Option) (*Repository, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts, logw)

	path := cfg.Storage.Path
	if path == "" {
		path = ":memory:"
	}
	st, err := store.Open(path, store.WithSystemWorkspace(cfg.SystemWorkspace))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	for _, ws := range cfg.Workspaces {
		if _, err := st.CreateWorkspace(context.Background(), ws); err != nil {
			st.Close()
			return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
		}
	}

	mopts := append([]repository.Option{
		repository.WithLogger(logger),
		repository.WithSchemata(docs.Schemata()),
	}, extra...)
	mgr, err := repository.NewManager(st, cfg, mopts...)
	if err != nil {
		st.Close()
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}

	logger.Debug("repository opened", "name", cfg.Name, "storage", path)
	return &Repository{Config: cfg, Store: st, Manager: mgr, Logger: logger}, nil
}

// Close shuts the manager down and closes the store.
func (r *Repository) Close(ctx context.Context) error {
	return errors.Join(r.Manager.Shutdown(ctx), r.Store.Close())
}

// loadErrorCode returns the code of a LoadError, or fallback.
func loadErrorCode(err error, fallback string) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return fallback
}
