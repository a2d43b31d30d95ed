package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

// BadgerConfig holds configuration for a Badger-backed index.
type BadgerConfig struct {
	// Path is the directory for Badger files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives Badger's internal log output and deferred-write errors.
	// If nil, Badger's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns defaults for a persistent index at path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns configuration for tests: no disk I/O, no GC.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Key layout:
//
//	d\x00<workspace>\x00<node key>          → JSON storedDocument
//	t\x00<type>\x00<workspace>\x00<node key> → empty (type posting)
const sep = "\x00"

func docKey(workspace string, key graph.NodeKey) []byte {
	return []byte("d" + sep + workspace + sep + key.String())
}

func typeKey(nodeType, workspace string, key graph.NodeKey) []byte {
	return []byte("t" + sep + nodeType + sep + workspace + sep + key.String())
}

func typePrefix(nodeType, workspace string) []byte {
	return []byte("t" + sep + nodeType + sep + workspace + sep)
}

var docPrefix = []byte("d" + sep)

type storedDocument struct {
	Workspace   string    `json:"workspace"`
	Key         string    `json:"key"`
	Path        string    `json:"path"`
	PrimaryType string    `json:"primary_type"`
	Mixins      []string  `json:"mixins"`
	Types       []string  `json:"types"`
	Properties  ir.Object `json:"properties"`
	Fingerprint string    `json:"fingerprint"`
}

func toStored(d Document) storedDocument {
	return storedDocument{
		Workspace:   d.Workspace,
		Key:         d.Key.String(),
		Path:        d.Path.String(),
		PrimaryType: d.PrimaryType,
		Mixins:      d.Mixins,
		Types:       d.Types,
		Properties:  d.Properties,
		Fingerprint: d.Fingerprint,
	}
}

func (s storedDocument) document() (Document, error) {
	key, err := graph.ParseNodeKey(s.Key)
	if err != nil {
		return Document{}, err
	}
	path, err := graph.ParsePath(s.Path)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Workspace:   s.Workspace,
		Key:         key,
		Path:        path,
		PrimaryType: s.PrimaryType,
		Mixins:      s.Mixins,
		Types:       s.Types,
		Properties:  s.Properties,
		Fingerprint: s.Fingerprint,
	}, nil
}

// BadgerIndex is a persistent Indexing backed by Badger.
//
// Each update compares the new document's fingerprint with the stored one
// and skips the write when nothing changed, so repeated full reindexes of
// an unchanged repository cost only reads.
type BadgerIndex struct {
	db     *badger.DB
	logger *slog.Logger

	closeOnce sync.Once
	stopGC    chan struct{}
	gcDone    chan struct{}

	mu      sync.Mutex
	skipped int
}

// OpenBadger opens (creating if needed) a Badger index.
func OpenBadger(cfg BadgerConfig) (*BadgerIndex, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent index")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create index directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger index: %w", err)
	}

	idx := &BadgerIndex{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		idx.stopGC = make(chan struct{})
		idx.gcDone = make(chan struct{})
		go idx.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return idx, nil
}

func (b *BadgerIndex) runGC(interval time.Duration, ratio float64) {
	defer close(b.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed.
			if err := b.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// UpdateIndex implements Indexing.
func (b *BadgerIndex) UpdateIndex(ctx context.Context, workspace string, key graph.NodeKey, path graph.Path,
	primaryType graph.Name, mixins []graph.Name, props map[graph.Name]ir.Value,
	schemata *queryir.Schemata, txn TransactionContext) error {

	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := NewDocument(workspace, key, path, primaryType, mixins, props, schemata)
	if err != nil {
		return err
	}
	return applyOrDefer(txn, b.logger, "update", func() error {
		return b.write(doc)
	})
}

func (b *BadgerIndex) write(doc Document) error {
	return b.db.Update(func(txn *badger.Txn) error {
		previous, found, err := readDocument(txn, docKey(doc.Workspace, doc.Key))
		if err != nil {
			return err
		}
		if found && previous.Fingerprint == doc.Fingerprint {
			b.mu.Lock()
			b.skipped++
			b.mu.Unlock()
			return nil
		}
		if found {
			for _, t := range previous.Types {
				if slices.Contains(doc.Types, t) {
					continue
				}
				if err := txn.Delete(typeKey(t, doc.Workspace, doc.Key)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(toStored(doc))
		if err != nil {
			return fmt.Errorf("encode document %s: %w", doc.Key, err)
		}
		if err := txn.Set(docKey(doc.Workspace, doc.Key), data); err != nil {
			return err
		}
		for _, t := range doc.Types {
			if err := txn.Set(typeKey(t, doc.Workspace, doc.Key), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func readDocument(txn *badger.Txn, key []byte) (storedDocument, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storedDocument{}, false, nil
	}
	if err != nil {
		return storedDocument{}, false, err
	}
	var stored storedDocument
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	})
	if err != nil {
		return storedDocument{}, false, fmt.Errorf("decode document: %w", err)
	}
	return stored, true, nil
}

// RemoveFromIndex implements Indexing.
func (b *BadgerIndex) RemoveFromIndex(ctx context.Context, workspace string, key graph.NodeKey, txn TransactionContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return applyOrDefer(txn, b.logger, "remove", func() error {
		return b.db.Update(func(txn *badger.Txn) error {
			previous, found, err := readDocument(txn, docKey(workspace, key))
			if err != nil || !found {
				return err
			}
			for _, t := range previous.Types {
				if err := txn.Delete(typeKey(t, workspace, key)); err != nil {
					return err
				}
			}
			return txn.Delete(docKey(workspace, key))
		})
	})
}

// InitializedIndexes implements Indexing.
func (b *BadgerIndex) InitializedIndexes() (bool, error) {
	empty := true
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(docPrefix)
		empty = !it.ValidForPrefix(docPrefix)
		return nil
	})
	return empty, err
}

// Search implements Indexing.
func (b *BadgerIndex) Search(ctx context.Context, workspaces []string, nodeType string) ([]Document, error) {
	var out []Document
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		for _, ws := range workspaces {
			prefix := typePrefix(nodeType, ws)
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				nodeKey := string(it.Item().Key()[len(prefix):])
				key, err := graph.ParseNodeKey(nodeKey)
				if err != nil {
					it.Close()
					return err
				}
				stored, found, err := readDocument(txn, docKey(ws, key))
				if err != nil {
					it.Close()
					return err
				}
				if !found {
					continue
				}
				doc, err := stored.document()
				if err != nil {
					it.Close()
					return err
				}
				out = append(out, doc)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortDocuments(out)
	return out, nil
}

// Count implements Indexing.
func (b *BadgerIndex) Count(ctx context.Context) (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(docPrefix); it.ValidForPrefix(docPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Skipped reports how many updates were skipped because the stored
// document was unchanged.
func (b *BadgerIndex) Skipped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipped
}

// Close stops GC and closes the database. Safe to call multiple times.
func (b *BadgerIndex) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopGC != nil {
			close(b.stopGC)
			<-b.gcDone
		}
		err = b.db.Close()
	})
	return err
}
