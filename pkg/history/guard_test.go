package history

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedFetcher blocks the n-th call until gate(n) receives an outcome.
type gatedFetcher struct {
	calls   atomic.Int32
	started chan int
	gates   [4]chan Outcome
}

func newGatedFetcher() *gatedFetcher {
	f := &gatedFetcher{started: make(chan int, 8)}
	for i := range f.gates {
		f.gates[i] = make(chan Outcome, 1)
	}
	return f
}

func (f *gatedFetcher) gate(n int) chan<- Outcome {
	return f.gates[n-1]
}

func (f *gatedFetcher) History(ctx context.Context) ([]transfer.HistoryEntry, error) {
	n := int(f.calls.Add(1))
	f.started <- n
	out := <-f.gates[n-1]
	return out.Entries, out.Err
}

type recorder struct {
	mu  sync.Mutex
	got []Outcome
	ch  chan Outcome
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Outcome, 8)}
}

func (r *recorder) deliver(out Outcome) {
	r.mu.Lock()
	r.got = append(r.got, out)
	r.mu.Unlock()
	r.ch <- out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func waitStarted(t *testing.T, f *gatedFetcher) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not start")
	}
}

func waitDelivered(t *testing.T, r *recorder) Outcome {
	t.Helper()
	select {
	case out := <-r.ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("outcome not delivered")
	}
	return Outcome{}
}

var entries = []transfer.HistoryEntry{{ID: "1", Filename: "a.png", ResultURL: "http://svc/a.png"}}

func TestGuard_TriggerTwiceFetchesOnce(t *testing.T) {
	f := newGatedFetcher()
	r := newRecorder()
	g := NewGuard(f, r.deliver)
	defer g.Close()

	g.Activate()
	assert.True(t, g.Trigger(context.Background()))
	assert.False(t, g.Trigger(context.Background()))
	waitStarted(t, f)
	assert.True(t, g.Pending())

	f.gate(1) <- Outcome{Entries: entries}
	out := waitDelivered(t, r)
	assert.Equal(t, entries, out.Entries)
	assert.False(t, g.Pending())

	// Already completed within this activation: still a no-op.
	g.Activate()
	assert.False(t, g.Trigger(context.Background()))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestGuard_TriggerWithoutActivation(t *testing.T) {
	f := newGatedFetcher()
	g := NewGuard(f, nil)
	defer g.Close()

	assert.False(t, g.Trigger(context.Background()))
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestGuard_DeactivateDropsDelivery(t *testing.T) {
	f := newGatedFetcher()
	r := newRecorder()
	g := NewGuard(f, r.deliver)

	g.Activate()
	require.True(t, g.Trigger(context.Background()))
	waitStarted(t, f)

	g.Deactivate()
	f.gate(1) <- Outcome{Entries: entries}
	g.Close()

	assert.Equal(t, 0, r.count())
}

func TestGuard_ReactivationRearms(t *testing.T) {
	f := newGatedFetcher()
	r := newRecorder()
	g := NewGuard(f, r.deliver)
	defer g.Close()

	g.Activate()
	require.True(t, g.Trigger(context.Background()))
	waitStarted(t, f)

	// Close the view before the first read returns, then reopen it.
	g.Deactivate()
	g.Activate()
	require.True(t, g.Trigger(context.Background()))
	waitStarted(t, f)

	// The first read returns late: it belongs to a stale activation.
	f.gate(1) <- Outcome{Entries: []transfer.HistoryEntry{{ID: "stale"}}}
	f.gate(2) <- Outcome{Entries: entries}

	out := waitDelivered(t, r)
	assert.Equal(t, entries, out.Entries)

	select {
	case extra := <-r.ch:
		t.Fatalf("unexpected extra delivery: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestGuard_DeliversFailure(t *testing.T) {
	f := newGatedFetcher()
	r := newRecorder()
	g := NewGuard(f, r.deliver)
	defer g.Close()

	g.Activate()
	require.True(t, g.Trigger(context.Background()))
	waitStarted(t, f)
	f.gate(1) <- Outcome{Err: errors.New(errors.KindServer, "failed to load history (500)")}

	out := waitDelivered(t, r)
	assert.Equal(t, errors.KindServer, errors.KindOf(out.Err))
	assert.Nil(t, out.Entries)
}

func TestGuard_SwallowsCancelled(t *testing.T) {
	f := newGatedFetcher()
	r := newRecorder()
	g := NewGuard(f, r.deliver)

	g.Activate()
	require.True(t, g.Trigger(context.Background()))
	waitStarted(t, f)
	f.gate(1) <- Outcome{Err: errors.New(errors.KindCancelled, "History request cancelled.")}
	g.Close()

	assert.Equal(t, 0, r.count())
}
