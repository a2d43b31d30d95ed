package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial content graph schema
const currentSchemaVersion = 1

// Store is a content graph persisted in SQLite. It implements
// graph.RepositoryCache, so the crawler and the query engine read it
// directly.
//
// Every workspace root carries a jcr:system child reference to the single
// /jcr:system node owned by the system workspace, as in
// graph.MemoryRepository.
type Store struct {
	db              *sql.DB
	source          string
	systemWorkspace string
}

// Option configures a Store.
type Option func(*Store)

// WithSource sets the source component of every node key. Default: "arbor".
func WithSource(source string) Option {
	return func(s *Store) {
		s.source = source
	}
}

// WithSystemWorkspace sets the system workspace name.
// Default: graph.DefaultSystemWorkspace.
func WithSystemWorkspace(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.systemWorkspace = name
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically, and creates the
// system workspace with its /jcr:system node on first open.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		source:          "arbor",
		systemWorkspace: graph.DefaultSystemWorkspace,
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db
	if err := s.bootstrap(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create system workspace: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// bootstrap creates the system workspace root and /jcr:system once.
func (s *Store) bootstrap(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := workspaceExists(ctx, tx, s.systemWorkspace)
		if err != nil || exists {
			return err
		}
		root, err := s.createRootTx(ctx, tx, s.systemWorkspace)
		if err != nil {
			return err
		}
		system := s.SystemKey()
		if err := insertNode(ctx, tx, system, root, graph.SystemName, 1, graph.SystemType, nil, nil); err != nil {
			return err
		}
		return appendChild(ctx, tx, root, graph.SystemName, 1, system)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

var _ graph.RepositoryCache = (*Store)(nil)

// emptyProps avoids storing "null" for nodes created without properties.
func emptyProps(props map[graph.Name]ir.Value) map[graph.Name]ir.Value {
	if props == nil {
		return map[graph.Name]ir.Value{}
	}
	return props
}
