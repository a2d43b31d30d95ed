package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/testutil"
)

// fakePoller hands out queued batches, then blocks until ctx ends.
type fakePoller struct {
	mu      sync.Mutex
	batches []kgo.Fetches
	commits int
	closed  bool
}

func (p *fakePoller) push(records ...[]byte) {
	recs := make([]*kgo.Record, len(records))
	for i, v := range records {
		recs[i] = &kgo.Record{Topic: "arbor-index", Partition: 0, Offset: int64(i), Value: v}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      "arbor-index",
		Partitions: []kgo.FetchPartition{{Partition: 0, Records: recs}},
	}}}})
}

func (p *fakePoller) Poll(ctx context.Context) kgo.Fetches {
	p.mu.Lock()
	if len(p.batches) > 0 {
		next := p.batches[0]
		p.batches = p.batches[1:]
		p.mu.Unlock()
		return next
	}
	p.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (p *fakePoller) CommitOffsets(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commits++
	return nil
}

func (p *fakePoller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePoller) state() (commits int, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commits, p.closed
}

func encode(t *testing.T, r Record) []byte {
	t.Helper()
	data, err := r.Encode()
	require.NoError(t, err)
	return data
}

func update(path, key string) Record {
	return Record{
		Op:          OpUpdate,
		Workspace:   "default",
		Key:         key,
		Path:        path,
		PrimaryType: "nt:unstructured",
		Properties:  ir.Object{"title": ir.String("Hello")},
	}
}

func TestListener_AppliesBatchesAndCommits(t *testing.T) {
	poller := &fakePoller{}
	poller.push(
		encode(t, update("/a", "src:default:a")),
		encode(t, update("/b", "src:default:b")),
	)
	poller.push(
		[]byte(`{"op":`),
		encode(t, Record{Op: OpRemove, Workspace: "default", Key: "src:default:a"}),
	)

	idx := testutil.NewRecordingIndex()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	l := NewListener(poller, idx, WithLogger(testutil.QuietLogger()), WithMetrics(metrics))

	l.Start(context.Background())
	require.Eventually(t, func() bool {
		commits, _ := poller.state()
		return commits == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, l.Stop())

	assert.Equal(t, []string{"/a", "/b"}, idx.Paths())
	assert.Equal(t, []graph.NodeKey{{Source: "src", Workspace: "default", Identifier: "a"}}, idx.Removes())

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, closed := poller.state()
	assert.True(t, closed)
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.RecordsApplied.WithLabelValues(OpUpdate)))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.RecordsApplied.WithLabelValues(OpRemove)))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.RecordsDropped))
}

func TestListener_IndexErrorStopsWithoutCommit(t *testing.T) {
	poller := &fakePoller{}
	poller.push(encode(t, update("/a", "src:default:a")))

	idx := testutil.NewRecordingIndex()
	require.NoError(t, idx.Close())
	l := NewListener(poller, idx, WithLogger(testutil.QuietLogger()))

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, index.ErrClosed)

	commits, _ := poller.state()
	assert.Zero(t, commits)
}

func TestListener_RunReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewListener(&fakePoller{}, testutil.NewRecordingIndex(), WithLogger(testutil.QuietLogger()))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_StopWithoutStart(t *testing.T) {
	poller := &fakePoller{}
	l := NewListener(poller, testutil.NewRecordingIndex())
	assert.NoError(t, l.Stop())
	_, closed := poller.state()
	assert.False(t, closed)
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		errorMsg string
	}{
		{"update", `{"op":"update","workspace":"default","key":"s:default:n1","path":"/a","primaryType":"nt:base"}`, ""},
		{"remove", `{"op":"remove","workspace":"default","key":"s:default:n1"}`, ""},
		{"bad json", `{`, "decode record"},
		{"unknown op", `{"op":"move","workspace":"w","key":"s:w:n"}`, "unknown record op"},
		{"update without path", `{"op":"update","workspace":"w","key":"s:w:n","primaryType":"nt:base"}`, "needs path"},
		{"missing key", `{"op":"remove","workspace":"w"}`, "needs workspace and key"},
		{"malformed key", `{"op":"remove","workspace":"w","key":"nope"}`, "invalid node key"},
		{"relative path", `{"op":"update","workspace":"w","key":"s:w:n","path":"a/b","primaryType":"nt:base"}`, "decode record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tt.data))
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestRecordEncodeRejectsInvalid(t *testing.T) {
	_, err := Record{Op: OpUpdate, Workspace: "w", Key: "s:w:n"}.Encode()
	assert.ErrorContains(t, err, "needs path")
}
