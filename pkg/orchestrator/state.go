package orchestrator

import (
	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/media"
	"github.com/colorlens/colorlens/pkg/transfer"
)

// Phase is the lifecycle position of the current upload.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidated  Phase = "validated"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// State is the aggregate a renderer reads. Values returned by the Machine are
// copies; mutating them has no effect on the machine.
type State struct {
	Phase Phase
	// File is the current selection, nil when nothing is selected.
	File *media.SelectedFile
	// Progress is the upload percent of the current attempt, 0 when idle.
	Progress int
	// Processing is set once the upload leg reached 100 and cleared on a
	// terminal outcome.
	Processing bool
	Result     *transfer.Result
	// Err is the failure of the most recent attempt or selection.
	Err error
	// PreviewPath is the local preview of File, empty if none.
	PreviewPath string
	// Attempt counts transfers started for File.
	Attempt uint64
}

// InFlight reports whether an operation is running for the current file.
func (s State) InFlight() bool {
	return s.Phase == PhaseUploading || s.Phase == PhaseProcessing
}

// ResultURL is the absolute result locator, empty unless succeeded.
func (s State) ResultURL() string {
	if s.Result == nil {
		return ""
	}
	return s.Result.ResultURL
}

// FailureKind is the error kind of Err, empty if there is none.
func (s State) FailureKind() errors.Kind {
	return errors.KindOf(s.Err)
}

// FailureMessage is the user-facing message of Err.
func (s State) FailureMessage() string {
	return errors.MessageOf(s.Err)
}

// Terminal reports whether the state is a settled outcome of an attempt.
func (s State) Terminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}
