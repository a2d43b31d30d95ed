package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/queryir"
)

// Listener applies feed records to an index.
//
// Records are applied in fetch order outside any transaction. A record that
// cannot be decoded is logged and dropped; an index error stops the
// listener without committing the batch, so the batch is redelivered.
type Listener struct {
	poller   Poller
	indexes  index.Indexing
	schemata *queryir.Schemata
	logger   *slog.Logger
	metrics  *Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithSchemata sets the schemata recorded with updated documents.
func WithSchemata(s *queryir.Schemata) ListenerOption {
	return func(l *Listener) {
		l.schemata = s
	}
}

// WithLogger sets the listener logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) ListenerOption {
	return func(l *Listener) {
		l.metrics = m
	}
}

// NewListener binds poller to indexes.
func NewListener(poller Poller, indexes index.Indexing, opts ...ListenerOption) *Listener {
	l := &Listener{
		poller:   poller,
		indexes:  indexes,
		schemata: queryir.DefaultSchemata(),
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Start runs the listener in the background until Stop. Starting a running
// listener is a no-op.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.group != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.Run(gctx)
	})
	l.cancel = cancel
	l.group = g
}

// Stop cancels a started listener, waits for it and closes the poller.
// It returns the error that ended the listener, if not the cancellation.
func (l *Listener) Stop() error {
	l.mu.Lock()
	cancel, g := l.cancel, l.group
	l.cancel, l.group = nil, nil
	l.mu.Unlock()

	if g == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	l.poller.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Run polls and applies records until ctx ends or applying fails.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("index feed starting")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("index feed stopping")
			return ctx.Err()
		default:
		}

		fetches := l.poller.Poll(ctx)
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				l.logger.Warn("fetch error", "topic", topic, "partition", partition, "error", err)
			}
		})
		if err := l.apply(ctx, fetches); err != nil {
			return fmt.Errorf("apply feed batch: %w", err)
		}
	}
}

func (l *Listener) apply(ctx context.Context, fetches kgo.Fetches) error {
	if fetches.Empty() {
		return nil
	}

	for iter := fetches.RecordIter(); !iter.Done(); {
		rec := iter.Next()

		r, err := DecodeRecord(rec.Value)
		if err != nil {
			l.logger.Error("dropping feed record", "partition", rec.Partition, "offset", rec.Offset, "error", err)
			if l.metrics != nil {
				l.metrics.RecordsDropped.Inc()
			}
			continue
		}
		if err := l.Apply(ctx, r); err != nil {
			return err
		}
		if l.metrics != nil {
			l.metrics.Offset.WithLabelValues(strconv.Itoa(int(rec.Partition))).Set(float64(rec.Offset))
		}
	}

	if err := l.poller.CommitOffsets(ctx); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}

// Apply writes one record to the index.
func (l *Listener) Apply(ctx context.Context, r Record) error {
	key, path, mixins, props, err := r.node()
	if err != nil {
		return fmt.Errorf("record %s: %w", r.Key, err)
	}

	switch r.Op {
	case OpUpdate:
		err = l.indexes.UpdateIndex(ctx, r.Workspace, key, path, graph.Name(r.PrimaryType), mixins, props,
			l.schemata, index.NoTransaction)
	case OpRemove:
		err = l.indexes.RemoveFromIndex(ctx, r.Workspace, key, index.NoTransaction)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.Op, key, err)
	}

	if l.metrics != nil {
		l.metrics.RecordsApplied.WithLabelValues(r.Op).Inc()
	}
	l.logger.Debug("feed record applied", "op", r.Op, "workspace", r.Workspace, "key", r.Key)
	return nil
}
