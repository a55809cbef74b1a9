package orchestrator

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/locator"
	"github.com/colorlens/colorlens/pkg/media"
	"github.com/colorlens/colorlens/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	res *transfer.Result
	err error
}

// call is one Colorize invocation held open until the test finishes it.
type call struct {
	ctx      context.Context
	file     *media.SelectedFile
	progress transfer.ProgressFunc
	done     chan outcome
}

func (c *call) finish(res *transfer.Result, err error) {
	c.done <- outcome{res: res, err: err}
}

type fakeUploader struct {
	calls chan *call
	count atomic.Int32
	// honorCancel makes a call return a cancelled error as soon as its
	// context is done.
	honorCancel bool
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{calls: make(chan *call, 8)}
}

func (u *fakeUploader) Colorize(ctx context.Context, f *media.SelectedFile, onProgress transfer.ProgressFunc) (*transfer.Result, error) {
	c := &call{ctx: ctx, file: f, progress: onProgress, done: make(chan outcome, 1)}
	u.count.Add(1)
	u.calls <- c

	if u.honorCancel {
		select {
		case o := <-c.done:
			return o.res, o.err
		case <-ctx.Done():
			return nil, errors.WithCause(errors.KindCancelled, "Upload cancelled.", ctx.Err())
		}
	}
	o := <-c.done
	return o.res, o.err
}

func (u *fakeUploader) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-u.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("uploader was not called")
	}
	return nil
}

func jpeg(size int) media.Candidate {
	return media.Candidate{Name: "photo.jpg", MediaType: media.TypeJPEG, Size: int64(size), Data: make([]byte, size)}
}

func png(size int) media.Candidate {
	return media.Candidate{Name: "photo.png", MediaType: media.TypePNG, Size: int64(size), Data: make([]byte, size)}
}

func waitPhase(t *testing.T, m *Machine, phase Phase) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.WaitFor(ctx, func(s State) bool { return s.Phase == phase })
	require.NoError(t, err, "waiting for %s, have %s", phase, s.Phase)
	return s
}

// phaseLog records every state the machine publishes.
type phaseLog struct {
	mu     sync.Mutex
	states []State
}

func (l *phaseLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *phaseLog) phases() []Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Phase, 0, len(l.states))
	for _, s := range l.states {
		out = append(out, s.Phase)
	}
	return out
}

func (l *phaseLog) progress() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []int
	for _, s := range l.states {
		if s.Phase == PhaseUploading || s.Phase == PhaseProcessing {
			out = append(out, s.Progress)
		}
	}
	return out
}

func TestSuccessfulTransferNormalizesLocator(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	log := &phaseLog{}
	m.Watch(log.record)

	require.NoError(t, m.SelectFile(jpeg(2*1024*1024)))
	assert.Equal(t, PhaseValidated, m.Snapshot().Phase)

	require.True(t, m.StartTransfer(context.Background()))
	c := u.next(t)

	c.progress(10)
	c.progress(45)
	assert.Equal(t, 45, m.Snapshot().Progress)
	assert.True(t, m.Snapshot().InFlight())

	c.progress(100)
	s := waitPhase(t, m, PhaseProcessing)
	assert.True(t, s.Processing)
	assert.True(t, s.InFlight())

	c.finish(&transfer.Result{ID: "x", ResultURL: locator.Resolve("http://svc:8000", "/static/results/x.png")}, nil)
	s = waitPhase(t, m, PhaseSucceeded)

	assert.Equal(t, "http://svc:8000/static/results/x.png", s.ResultURL())
	assert.False(t, s.Processing)
	assert.False(t, s.InFlight())
	assert.NoError(t, s.Err)
	assert.Equal(t, []int{0, 10, 45, 100}, log.progress())
	assert.Equal(t, []Phase{PhaseValidated, PhaseUploading, PhaseUploading, PhaseUploading, PhaseProcessing, PhaseSucceeded}, log.phases())
}

func TestOversizeFileNeverUploads(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	log := &phaseLog{}
	m.Watch(log.record)

	err := m.SelectFile(png(12 * 1024 * 1024))
	require.Error(t, err)

	s := m.Snapshot()
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Nil(t, s.File)
	assert.Equal(t, errors.KindValidation, s.FailureKind())
	assert.Equal(t, "File is 12.0 MB. Max 10 MB.", s.FailureMessage())

	// No file: neither start nor retry can reach the network.
	assert.False(t, m.StartTransfer(context.Background()))
	assert.False(t, m.Retry(context.Background()))
	assert.Equal(t, int32(0), u.count.Load())
	assert.NotContains(t, log.phases(), PhaseUploading)
}

func TestUnsupportedTypeNeverUploads(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	for _, mt := range []string{"image/gif", "application/pdf", "text/plain", ""} {
		err := m.SelectFile(media.Candidate{Name: "f", MediaType: mt, Size: 10, Data: make([]byte, 10)})
		require.Error(t, err, mt)
		assert.Equal(t, errors.KindValidation, errors.KindOf(err))
		assert.False(t, m.StartTransfer(context.Background()))
	}
	assert.Equal(t, int32(0), u.count.Load())
}

func TestServerFailureThenRetry(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	require.NoError(t, m.SelectFile(png(1024)))
	require.True(t, m.StartTransfer(context.Background()))
	c := u.next(t)
	c.progress(60)
	c.finish(nil, &errors.Error{Kind: errors.KindServer, Message: "model unavailable", Status: 500})

	s := waitPhase(t, m, PhaseFailed)
	assert.Equal(t, errors.KindServer, s.FailureKind())
	assert.Equal(t, "model unavailable", s.FailureMessage())
	assert.Equal(t, 0, s.Progress)
	assert.NotNil(t, s.File)

	require.True(t, m.Retry(context.Background()))
	s = m.Snapshot()
	assert.Equal(t, PhaseUploading, s.Phase)
	assert.Equal(t, 0, s.Progress)
	assert.NoError(t, s.Err, "retry clears the prior error")
	assert.Equal(t, uint64(2), s.Attempt)

	c = u.next(t)
	assert.Equal(t, s.File.ID, c.file.ID)
	c.finish(&transfer.Result{ResultURL: "http://svc/r.png"}, nil)
	waitPhase(t, m, PhaseSucceeded)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	assert.False(t, m.Retry(context.Background()), "idle")
	require.NoError(t, m.SelectFile(png(16)))
	assert.False(t, m.Retry(context.Background()), "validated")

	require.True(t, m.StartTransfer(context.Background()))
	u.next(t).finish(&transfer.Result{ResultURL: "http://svc/r.png"}, nil)
	waitPhase(t, m, PhaseSucceeded)
	assert.False(t, m.Retry(context.Background()), "succeeded")

	// Re-running a succeeded file goes through StartTransfer.
	require.True(t, m.StartTransfer(context.Background()))
	u.next(t).finish(&transfer.Result{ResultURL: "http://svc/r2.png"}, nil)
	s := waitPhase(t, m, PhaseSucceeded)
	assert.Equal(t, "http://svc/r2.png", s.ResultURL())
}

func TestSecondStartIsNoop(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	require.NoError(t, m.SelectFile(png(16)))
	require.True(t, m.StartTransfer(context.Background()))
	assert.False(t, m.StartTransfer(context.Background()))

	c := u.next(t)
	c.progress(100)
	waitPhase(t, m, PhaseProcessing)
	assert.False(t, m.StartTransfer(context.Background()))
	assert.False(t, m.Retry(context.Background()))

	c.finish(&transfer.Result{ResultURL: "http://svc/r.png"}, nil)
	waitPhase(t, m, PhaseSucceeded)
	assert.Equal(t, int32(1), u.count.Load())
}

func TestSuccessBeforeFullProgress(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	require.NoError(t, m.SelectFile(png(16)))
	require.True(t, m.StartTransfer(context.Background()))
	c := u.next(t)
	c.progress(30)
	c.finish(&transfer.Result{ResultURL: "http://svc/r.png"}, nil)

	s := waitPhase(t, m, PhaseSucceeded)
	assert.Equal(t, 100, s.Progress)
	assert.False(t, s.Processing)
}

func TestProgressIsMonotonic(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	log := &phaseLog{}
	m.Watch(log.record)

	require.NoError(t, m.SelectFile(png(16)))
	require.True(t, m.StartTransfer(context.Background()))
	c := u.next(t)
	for _, p := range []int{20, 10, 20, 70, 50, 100, 90} {
		c.progress(p)
	}
	c.finish(&transfer.Result{ResultURL: "http://svc/r.png"}, nil)
	waitPhase(t, m, PhaseSucceeded)

	assert.Equal(t, []int{0, 20, 70, 100}, log.progress())
}

func TestClearWhileInFlightIgnoresLateOutcome(t *testing.T) {
	for _, tc := range []struct {
		name string
		res  *transfer.Result
		err  error
	}{
		{name: "late success", res: &transfer.Result{ResultURL: "http://svc/late.png"}},
		{name: "late failure", err: errors.New(errors.KindServer, "boom")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			u := newFakeUploader()
			m := New(u)

			require.NoError(t, m.SelectFile(png(16)))
			require.True(t, m.StartTransfer(context.Background()))
			c := u.next(t)
			c.progress(40)

			m.Clear()
			assert.Equal(t, State{Phase: PhaseIdle}, m.Snapshot())
			assert.Error(t, c.ctx.Err(), "abandoned attempt is cancelled")

			c.progress(100)
			c.finish(tc.res, tc.err)
			require.NoError(t, m.Close())

			assert.Equal(t, State{Phase: PhaseIdle}, m.Snapshot())
		})
	}
}

func TestNewSelectionSupersedesInFlightAttempt(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	require.NoError(t, m.SelectFile(png(16)))
	require.True(t, m.StartTransfer(context.Background()))
	old := u.next(t)
	old.progress(50)

	require.NoError(t, m.SelectFile(jpeg(32)))
	s := m.Snapshot()
	assert.Equal(t, PhaseValidated, s.Phase)
	assert.Equal(t, "photo.jpg", s.File.Name)
	assert.Equal(t, 0, s.Progress)

	require.True(t, m.StartTransfer(context.Background()))
	cur := u.next(t)
	assert.Equal(t, s.File.ID, cur.file.ID)

	old.progress(100)
	old.finish(&transfer.Result{ResultURL: "http://svc/old.png"}, nil)

	// The old outcome must not have moved the new attempt.
	time.Sleep(20 * time.Millisecond)
	s = m.Snapshot()
	assert.Equal(t, PhaseUploading, s.Phase)
	assert.Equal(t, 0, s.Progress)

	cur.finish(&transfer.Result{ResultURL: "http://svc/new.png"}, nil)
	s = waitPhase(t, m, PhaseSucceeded)
	assert.Equal(t, "http://svc/new.png", s.ResultURL())
}

func TestSameBytesReselectedIsNewIdentity(t *testing.T) {
	u := newFakeUploader()
	m := New(u)
	defer m.Close()

	c := png(16)
	require.NoError(t, m.SelectFile(c))
	require.True(t, m.StartTransfer(context.Background()))
	old := u.next(t)

	require.NoError(t, m.SelectFile(c))
	require.True(t, m.StartTransfer(context.Background()))
	cur := u.next(t)
	assert.NotEqual(t, old.file.ID, cur.file.ID)

	old.finish(nil, errors.New(errors.KindNetwork, "offline"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, PhaseUploading, m.Snapshot().Phase)
	cur.finish(&transfer.Result{ResultURL: "http://svc/r.png"}, nil)
	waitPhase(t, m, PhaseSucceeded)
}

func TestCancelledOutcomeIsSwallowed(t *testing.T) {
	u := newFakeUploader()
	u.honorCancel = true
	m := New(u)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.SelectFile(png(16)))
	require.True(t, m.StartTransfer(ctx))
	u.next(t)

	cancel()
	s := waitPhase(t, m, PhaseValidated)
	assert.NoError(t, s.Err)
	assert.NotNil(t, s.File)
	assert.Equal(t, 0, s.Progress)
}

func TestValidationFailureClearsPriorSelection(t *testing.T) {
	u := newFakeUploader()
	m := New(u, WithPreviews(media.TempPreviewer{Dir: t.TempDir()}))
	defer m.Close()

	require.NoError(t, m.SelectFile(png(16)))
	path := m.Snapshot().PreviewPath
	require.FileExists(t, path)

	require.Error(t, m.SelectFile(media.Candidate{Name: "a.gif", MediaType: "image/gif", Size: 4, Data: []byte("GIF8")}))
	s := m.Snapshot()
	assert.Nil(t, s.File)
	assert.Empty(t, s.PreviewPath)
	assert.NoFileExists(t, path)
}

func TestPreviewReleasedOnEveryExit(t *testing.T) {
	dir := t.TempDir()
	u := newFakeUploader()
	u.honorCancel = true
	m := New(u, WithPreviews(media.TempPreviewer{Dir: dir}))

	require.NoError(t, m.SelectFile(png(16)))
	first := m.Snapshot().PreviewPath
	require.FileExists(t, first)

	require.NoError(t, m.SelectFile(jpeg(16)))
	second := m.Snapshot().PreviewPath
	assert.NoFileExists(t, first, "replaced")
	require.FileExists(t, second)

	m.Clear()
	assert.NoFileExists(t, second, "cleared")

	require.NoError(t, m.SelectFile(png(16)))
	third := m.Snapshot().PreviewPath
	require.True(t, m.StartTransfer(context.Background()))
	u.next(t)
	require.NoError(t, m.Close())
	assert.NoFileExists(t, third, "closed while in flight")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClosedMachineRejectsActions(t *testing.T) {
	m := New(newFakeUploader())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Error(t, m.SelectFile(png(16)))
	assert.False(t, m.StartTransfer(context.Background()))
	assert.Equal(t, PhaseIdle, m.Snapshot().Phase)
}

func TestWaitHonorsContext(t *testing.T) {
	u := newFakeUploader()
	m := New(u)

	require.NoError(t, m.SelectFile(png(16)))
	require.True(t, m.StartTransfer(context.Background()))
	c := u.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s, err := m.Wait(ctx)
	assert.Error(t, err)
	assert.Equal(t, PhaseUploading, s.Phase)

	c.finish(&transfer.Result{ResultURL: "http://svc/r.png"}, nil)
	s, err = m.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseSucceeded, s.Phase)
	require.NoError(t, m.Close())
}

func TestWatchUnsubscribe(t *testing.T) {
	m := New(newFakeUploader())
	defer m.Close()

	var n atomic.Int32
	stop := m.Watch(func(State) { n.Add(1) })
	require.NoError(t, m.SelectFile(png(16)))
	stop()
	m.Clear()
	assert.Equal(t, int32(1), n.Load())
}
