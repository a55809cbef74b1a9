// Package fsm implements the colorize workflow on top of superfly/fsm.
// It loads a file, drives the orchestrator through the upload and any
// requested retries, records every terminal attempt in the ledger and
// optionally downloads the result.
package fsm

import (
	"context"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/superfly/fsm"
)

// Register registers the colorize FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ColorizeRequest, ColorizeResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ColorizeRequest, ColorizeResponse](manager, "colorize").
		Start(StateLoad, m.handleLoad).
		To(StateUpload, m.handleUpload).
		To(StateRecord, m.handleRecord).
		To(StateComplete, m.handleComplete).
		End(StateDone).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
