package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerofox/zerofox/pkg/finding"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// memStore records batches. failURL, when set, is never written.
type memStore struct {
	mu      sync.Mutex
	batches [][]string
	failURL string
}

func (m *memStore) Persist(_ context.Context, batch []*finding.Finding) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		urls []string
		err  error
	)
	for _, f := range batch {
		if f.ProbeURL == m.failURL {
			err = errors.New("disk full")
			continue
		}
		urls = append(urls, f.ProbeURL)
	}
	m.batches = append(m.batches, urls)
	return len(urls), err
}

func (m *memStore) artifacts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

type recordingSink struct {
	mu  sync.Mutex
	got []*finding.Finding
}

func (r *recordingSink) OnFinding(_ context.Context, f *finding.Finding) {
	r.mu.Lock()
	r.got = append(r.got, f)
	r.mu.Unlock()
}

func mk(url string, stage finding.Stage) *finding.Finding {
	return finding.New(url, "<x>", "<x>", "http://t/?q=1", stage)
}

func run(t *testing.T, p *Pipeline, producers int, emit func(i int)) {
	t.Helper()
	p.Start(context.Background())
	p.Add(producers)
	p.Seal()
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer p.Done()
			emit(i)
		}(i)
	}
	wg.Wait()
	p.Wait()
}

func TestPipeline_Dedup(t *testing.T) {
	store := &memStore{}
	sink := &recordingSink{}
	p := New(Config{Store: store, Sinks: []Sink{sink}, Logger: quiet})

	run(t, p, 10, func(int) { p.Emit(mk("http://t/?q=%3Cx%3E", finding.StageSmoke)) })

	assert.Len(t, sink.got, 1)
	assert.Equal(t, 1, store.artifacts())
	st := p.Stats()
	assert.Equal(t, int64(10), st.Received)
	assert.Equal(t, int64(1), st.Unique)
	assert.Equal(t, int64(9), st.Duplicates)
	assert.Equal(t, []string{"http://t/?q=%3Cx%3E"}, p.Hits())
}

func TestPipeline_BatchesAndFinalFlush(t *testing.T) {
	store := &memStore{}
	p := New(Config{Store: store, BatchSize: 3, Logger: quiet})

	run(t, p, 1, func(int) {
		for i := 0; i < 7; i++ {
			p.Emit(mk(fmt.Sprintf("http://t/?q=%d", i), finding.StageSmoke))
		}
	})

	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 3)
	assert.Len(t, store.batches[1], 3)
	assert.Len(t, store.batches[2], 1, "partial batch must be flushed at shutdown")
	assert.Equal(t, int64(7), p.Stats().Persisted)
	assert.Equal(t, int64(3), p.Stats().Flushes)
}

func TestPipeline_PersistFailureIsNotFatal(t *testing.T) {
	store := &memStore{failURL: "http://t/?q=1"}
	sink := &recordingSink{}
	p := New(Config{Store: store, Sinks: []Sink{sink}, Logger: quiet})

	run(t, p, 1, func(int) {
		p.Emit(mk("http://t/?q=1", finding.StageSmoke))
		p.Emit(mk("http://t/?q=2", finding.StageSmoke))
	})

	st := p.Stats()
	assert.Equal(t, int64(1), st.Persisted)
	assert.Equal(t, int64(1), st.PersistFailures)
	assert.Len(t, sink.got, 2, "reporting continues despite persistence errors")
}

func TestPipeline_StageEventsBeforeCollapse(t *testing.T) {
	store := &memStore{}
	sink := &recordingSink{}
	p := New(Config{Store: store, Sinks: []Sink{sink}, Logger: quiet})

	run(t, p, 1, func(int) {
		p.Emit(mk("http://t/search?q=%3Cx%3E", finding.StageSmoke))
		p.Emit(mk("http://t/search?q=%3Cx%3E", finding.StageFull))
	})

	st := p.Stats()
	assert.Equal(t, int64(2), st.Received)
	assert.Equal(t, int64(1), st.SmokeEvents)
	assert.Equal(t, int64(1), st.FullEvents)
	assert.Equal(t, 1, store.artifacts())
	require.Len(t, sink.got, 1)
	assert.Equal(t, finding.StageSmoke, sink.got[0].Stage, "first event wins")
}

type fakeVerifier struct {
	results map[string]bool
	err     error
}

func (v fakeVerifier) Verify(_ context.Context, probeURL, _ string) (bool, error) {
	return v.results[probeURL], v.err
}

func TestPipeline_Verifier(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{
		Sinks:    []Sink{sink},
		Verifier: fakeVerifier{results: map[string]bool{"http://t/?q=a": true}},
		Logger:   quiet,
	})

	run(t, p, 1, func(int) {
		p.Emit(mk("http://t/?q=a", finding.StageSmoke))
		p.Emit(mk("http://t/?q=b", finding.StageSmoke))
	})

	require.Len(t, sink.got, 2)
	assert.Equal(t, finding.Verified, sink.got[0].Verification(), "sinks see the verified status")
	assert.Equal(t, finding.Suspect, sink.got[1].Verification())
	assert.Equal(t, int64(1), p.Stats().Verified)
	assert.Equal(t, int64(1), p.Stats().Suspect)
}

func TestPipeline_VerifierErrorLeavesUnverified(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{Sinks: []Sink{sink}, Verifier: fakeVerifier{err: errors.New("no chrome")}, Logger: quiet})

	run(t, p, 1, func(int) { p.Emit(mk("http://t/?q=a", finding.StageSmoke)) })

	require.Len(t, sink.got, 1)
	assert.Equal(t, finding.Unverified, sink.got[0].Verification())
	assert.Equal(t, int64(1), p.Stats().VerifyErrors)
}

func TestPipeline_CancelledStillFlushes(t *testing.T) {
	store := &memStore{}
	p := New(Config{Store: store, Verifier: fakeVerifier{}, Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	p.Add(1)
	p.Seal()
	cancel()
	p.Emit(mk("http://t/?q=a", finding.StageSmoke))
	p.Done()

	p.Wait()
	assert.Equal(t, 1, store.artifacts())
	assert.Zero(t, p.Stats().Suspect, "verification is skipped after cancellation")
}

func TestPipeline_NoProducers(t *testing.T) {
	p := New(Config{Logger: quiet})
	p.Start(context.Background())
	p.Seal()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not terminate with zero producers")
	}
	assert.Empty(t, p.Hits())
}

func TestPipeline_WaitsForLateProducers(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{Sinks: []Sink{sink}, Logger: quiet})
	p.Start(context.Background())
	p.Add(1)
	p.Seal()

	go func() {
		defer p.Done()
		time.Sleep(30 * time.Millisecond)
		p.Emit(mk("http://t/?q=late", finding.StageFull))
	}()

	p.Wait()
	assert.Len(t, sink.got, 1, "consumer must not exit while a producer is in flight")
}
