// Package orchestrator owns the lifecycle of one colorization upload: file
// selection, the transfer, and its result, error or retry.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/media"
	"github.com/colorlens/colorlens/pkg/transfer"
)

// Uploader performs one upload-and-await-result cycle. *transfer.Client
// satisfies it.
type Uploader interface {
	Colorize(ctx context.Context, f *media.SelectedFile, onProgress transfer.ProgressFunc) (*transfer.Result, error)
}

// Validator turns a candidate into an accepted file.
type Validator interface {
	Validate(c media.Candidate) (*media.SelectedFile, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithValidator replaces media.DefaultValidator.
func WithValidator(v Validator) Option {
	return func(m *Machine) {
		m.validator = v
	}
}

// WithPreviews opens a preview for every accepted file.
func WithPreviews(p media.PreviewOpener) Option {
	return func(m *Machine) {
		m.previews = p
	}
}

// attempt identifies one transfer. Events carry the attempt they belong to
// and are applied only while it is still the machine's current attempt for
// the same file.
type attempt struct {
	fileID string
	seq    uint64
	cancel context.CancelFunc
}

// Machine is the single owner of the orchestration State. All transitions
// happen under its lock. Watch callbacks run under the same lock and must not
// call back into the Machine.
type Machine struct {
	uploader  Uploader
	validator Validator
	previews  media.PreviewOpener

	mu       sync.Mutex
	state    State
	current  *attempt
	seq      uint64
	preview  media.Preview
	changed  chan struct{}
	watchers map[int]func(State)
	nextID   int
	closed   bool

	wg sync.WaitGroup
}

// New creates an idle machine that uploads through u.
func New(u Uploader, opts ...Option) *Machine {
	m := &Machine{
		uploader:  u,
		validator: media.DefaultValidator(),
		state:     State{Phase: PhaseIdle},
		changed:   make(chan struct{}),
		watchers:  make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch registers fn to be called with every new state. The returned func
// unregisters it.
func (m *Machine) Watch(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}
}

// WaitFor blocks until cond holds for the current state or ctx is done.
func (m *Machine) WaitFor(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		m.mu.Lock()
		s, ch := m.state, m.changed
		m.mu.Unlock()

		if cond(s) {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, errors.Wrap(ctx.Err(), "wait for state")
		}
	}
}

// Wait blocks until no operation is in flight.
func (m *Machine) Wait(ctx context.Context) (State, error) {
	return m.WaitFor(ctx, func(s State) bool { return !s.InFlight() })
}

// SelectFile validates c and makes it the current file, replacing any prior
// selection, outcome and in-flight attempt. A rejected candidate leaves the
// machine Failed with no file and returns the validation error.
func (m *Machine) SelectFile(c media.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New(errors.KindValidation, "orchestrator is closed")
	}

	m.abandonLocked("superseded")
	m.releasePreviewLocked()

	f, err := m.validator.Validate(c)
	if err != nil {
		m.setLocked(State{Phase: PhaseFailed, Err: err})
		return err
	}

	next := State{Phase: PhaseValidated, File: f}
	if m.previews != nil {
		p, perr := m.previews.Open(f)
		if perr != nil {
			slog.Warn("orchestrator_preview_failed", "file_id", f.ID, "error", perr)
		} else {
			m.preview = p
			next.PreviewPath = p.Path()
		}
	}
	m.setLocked(next)
	return nil
}

// StartTransfer uploads the current file. It is legal from Validated, Failed
// or Succeeded with a file present and only while nothing is in flight;
// otherwise it does nothing and returns false.
func (m *Machine) StartTransfer(ctx context.Context) bool {
	return m.start(ctx, false)
}

// Retry re-runs the transfer after a failure. It returns false unless the
// machine is Failed with a file present.
func (m *Machine) Retry(ctx context.Context) bool {
	return m.start(ctx, true)
}

func (m *Machine) start(ctx context.Context, retry bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if m.closed || s.File == nil || s.InFlight() {
		return false
	}
	switch s.Phase {
	case PhaseFailed:
	case PhaseValidated, PhaseSucceeded:
		if retry {
			return false
		}
	default:
		return false
	}

	m.seq++
	actx, cancel := context.WithCancel(ctx)
	a := &attempt{fileID: s.File.ID, seq: m.seq, cancel: cancel}
	m.current = a

	m.setLocked(State{
		Phase:       PhaseUploading,
		File:        s.File,
		PreviewPath: s.PreviewPath,
		Attempt:     s.Attempt + 1,
	})
	slog.Info("orchestrator_transfer_started", "file_id", a.fileID, "attempt", a.seq, "retry", retry)

	f := s.File
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		res, err := m.uploader.Colorize(actx, f, func(pct int) {
			m.onProgress(a, pct)
		})
		if err != nil {
			m.onFailure(a, err)
			return
		}
		m.onSuccess(a, res)
	}()
	return true
}

// liveLocked reports whether a is still the attempt the state belongs to.
func (m *Machine) liveLocked(a *attempt) bool {
	return m.current == a && m.state.File != nil && m.state.File.ID == a.fileID
}

func (m *Machine) onProgress(a *attempt, pct int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveLocked(a) || m.state.Phase != PhaseUploading {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= m.state.Progress {
		return
	}

	next := m.state
	next.Progress = pct
	if pct == 100 {
		next.Phase = PhaseProcessing
		next.Processing = true
	}
	m.setLocked(next)
}

func (m *Machine) onSuccess(a *attempt, res *transfer.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveLocked(a) {
		slog.Info("orchestrator_stale_outcome_dropped", "file_id", a.fileID, "attempt", a.seq)
		return
	}
	m.current = nil

	next := m.state
	next.Phase = PhaseSucceeded
	next.Progress = 100
	next.Processing = false
	next.Result = res
	next.Err = nil
	m.setLocked(next)
	slog.Info("orchestrator_transfer_succeeded", "file_id", a.fileID, "attempt", a.seq, "result_url", res.ResultURL)
}

func (m *Machine) onFailure(a *attempt, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveLocked(a) {
		slog.Info("orchestrator_stale_outcome_dropped", "file_id", a.fileID, "attempt", a.seq, "error", err)
		return
	}
	m.current = nil

	next := m.state
	next.Progress = 0
	next.Processing = false
	next.Result = nil

	// A cancelled attempt is never surfaced; the file stays selected.
	if errors.KindOf(err) == errors.KindCancelled {
		next.Phase = PhaseValidated
		next.Err = nil
		m.setLocked(next)
		slog.Info("orchestrator_transfer_cancelled", "file_id", a.fileID, "attempt", a.seq)
		return
	}

	next.Phase = PhaseFailed
	next.Err = err
	m.setLocked(next)
	slog.Warn("orchestrator_transfer_failed", "file_id", a.fileID, "attempt", a.seq,
		"kind", errors.KindOf(err), "error", errors.MessageOf(err))
}

// Clear returns to Idle, abandoning any in-flight attempt.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.abandonLocked("cleared")
	m.releasePreviewLocked()
	m.setLocked(State{Phase: PhaseIdle})
}

// Close clears the machine, waits for abandoned transfers to return and
// rejects further actions.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.abandonLocked("closed")
	m.releasePreviewLocked()
	m.setLocked(State{Phase: PhaseIdle})
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func (m *Machine) abandonLocked(reason string) {
	if m.current == nil {
		return
	}
	slog.Info("orchestrator_attempt_abandoned", "file_id", m.current.fileID, "attempt", m.current.seq, "reason", reason)
	m.current.cancel()
	m.current = nil
}

func (m *Machine) releasePreviewLocked() {
	if m.preview == nil {
		return
	}
	if err := m.preview.Close(); err != nil {
		slog.Warn("orchestrator_preview_release_failed", "error", err)
	}
	m.preview = nil
}

func (m *Machine) setLocked(next State) {
	prev := m.state.Phase
	m.state = next
	close(m.changed)
	m.changed = make(chan struct{})

	if prev != next.Phase {
		attrs := []any{"from", prev, "to", next.Phase}
		if next.File != nil {
			attrs = append(attrs, "file_id", next.File.ID)
		}
		slog.Debug("orchestrator_transition", attrs...)
	}
	for _, fn := range m.watchers {
		fn(next)
	}
}
