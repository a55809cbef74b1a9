package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/colorlens/colorlens/pkg/db"
	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/media"
	"github.com/colorlens/colorlens/pkg/orchestrator"
	"github.com/colorlens/colorlens/pkg/storage"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	orch       *orchestrator.Machine
	repo       *db.Repository
	downloader *storage.Client
	workDir    string
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies. downloader may be
// nil when results are never downloaded.
func NewMachine(
	orch *orchestrator.Machine,
	repo *db.Repository,
	downloader *storage.Client,
	workDir string,
	maxRetries int,
) *Machine {
	return &Machine{
		orch:       orch,
		repo:       repo,
		downloader: downloader,
		workDir:    workDir,
		maxRetries: maxRetries,
	}
}

func (m *Machine) checkRetries(ctx context.Context, state, path string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "state", state, "path", path, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// handleLoad reads the file from disk and hands it to the orchestrator
func (m *Machine) handleLoad(ctx context.Context, req *fsm.Request[ColorizeRequest, ColorizeResponse]) (*fsm.Response[ColorizeResponse], error) {
	slog.Info("fsm_state_load", "path", req.Msg.Path)

	if err := m.checkRetries(ctx, StateLoad, req.Msg.Path); err != nil {
		return nil, err
	}

	c, err := media.LoadCandidate(req.Msg.Path, media.MaxFileSize)
	if err != nil {
		slog.Error("load_failed", "path", req.Msg.Path, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "failed to load file"))
	}

	// Validation failures are local and final.
	if err := m.orch.SelectFile(c); err != nil {
		return nil, fsm.Abort(err)
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &ColorizeResponse{}
	}
	s := m.orch.Snapshot()
	resp.FileID = s.File.ID
	resp.Filename = s.File.Name
	resp.MediaType = s.File.MediaType
	resp.Size = s.File.Size

	slog.Info("file_selected", "path", req.Msg.Path, "file_id", resp.FileID, "media_type", resp.MediaType, "size", resp.Size)
	return fsm.NewResponse(resp), nil
}

// handleUpload runs the transfer, re-running it on failure up to the
// requested number of retries
func (m *Machine) handleUpload(ctx context.Context, req *fsm.Request[ColorizeRequest, ColorizeResponse]) (*fsm.Response[ColorizeResponse], error) {
	slog.Info("fsm_state_upload", "path", req.Msg.Path)

	if err := m.checkRetries(ctx, StateUpload, req.Msg.Path); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil || resp.FileID == "" {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if !m.orch.StartTransfer(ctx) {
		return nil, fsm.Abort(fmt.Errorf("transfer could not start from %s", m.orch.Snapshot().Phase))
	}

	for {
		s, err := m.orch.Wait(ctx)
		if err != nil {
			slog.Error("upload_wait_failed", "file_id", resp.FileID, "error", err)
			return nil, fsm.Abort(err)
		}
		if !s.Terminal() {
			// Cancelled attempts fall back to Validated and are not outcomes.
			return nil, fsm.Abort(errors.New(errors.KindCancelled, "Upload cancelled."))
		}

		resp.Outcomes = append(resp.Outcomes, outcomeOf(s))
		if s.Phase == orchestrator.PhaseSucceeded {
			resp.ResultURL = s.ResultURL()
			break
		}
		if len(resp.Outcomes) > req.Msg.Retries {
			break
		}

		slog.Info("upload_retry", "file_id", resp.FileID, "attempt", s.Attempt+1, "previous_error", s.FailureMessage())
		if !m.orch.Retry(ctx) {
			return nil, fsm.Abort(fmt.Errorf("retry could not start from %s", m.orch.Snapshot().Phase))
		}
	}

	return fsm.NewResponse(resp), nil
}

func outcomeOf(s orchestrator.State) AttemptOutcome {
	o := AttemptOutcome{Attempt: s.Attempt}
	if s.Phase == orchestrator.PhaseSucceeded {
		o.Status = db.StatusSucceeded
		o.ResultURL = s.ResultURL()
		return o
	}
	o.Status = db.StatusFailed
	o.ErrorKind = string(s.FailureKind())
	o.ErrorMessage = s.FailureMessage()
	return o
}

// handleRecord writes every terminal attempt to the ledger, then fails the
// workflow if the last attempt failed
func (m *Machine) handleRecord(ctx context.Context, req *fsm.Request[ColorizeRequest, ColorizeResponse]) (*fsm.Response[ColorizeResponse], error) {
	slog.Info("fsm_state_record", "path", req.Msg.Path)

	if err := m.checkRetries(ctx, StateRecord, req.Msg.Path); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil || len(resp.Outcomes) == 0 {
		return nil, fsm.Abort(fmt.Errorf("no attempts to record"))
	}

	// A resumed run may have recorded some outcomes already.
	for i := len(resp.LedgerIDs); i < len(resp.Outcomes); i++ {
		o := resp.Outcomes[i]
		a := &db.Attempt{
			FileID:       resp.FileID,
			Filename:     resp.Filename,
			MediaType:    resp.MediaType,
			Size:         resp.Size,
			Status:       o.Status,
			ResultURL:    o.ResultURL,
			ErrorKind:    o.ErrorKind,
			ErrorMessage: o.ErrorMessage,
		}
		if err := m.repo.Create(a); err != nil {
			slog.Error("record_attempt_failed", "file_id", resp.FileID, "attempt", o.Attempt, "error", err)
			return nil, errors.Wrap(err, "failed to record attempt")
		}
		resp.LedgerIDs = append(resp.LedgerIDs, a.ID)
	}

	last := resp.Outcomes[len(resp.Outcomes)-1]
	if last.Status == db.StatusFailed {
		resp.Status = db.StatusFailed
		slog.Warn("colorize_failed", "file_id", resp.FileID, "attempts", len(resp.Outcomes), "kind", last.ErrorKind, "error", last.ErrorMessage)
		return nil, fsm.Abort(&errors.Error{Kind: errors.Kind(last.ErrorKind), Message: last.ErrorMessage})
	}

	return fsm.NewResponse(resp), nil
}

// handleComplete downloads the result if asked and marks the run succeeded
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[ColorizeRequest, ColorizeResponse]) (*fsm.Response[ColorizeResponse], error) {
	slog.Info("fsm_state_complete", "path", req.Msg.Path)

	if err := m.checkRetries(ctx, StateComplete, req.Msg.Path); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil || resp.ResultURL == "" {
		return nil, fsm.Abort(fmt.Errorf("no result to complete"))
	}

	if req.Msg.Download && resp.DownloadPath == "" {
		if m.downloader == nil {
			return nil, fsm.Abort(fmt.Errorf("download requested without a downloader"))
		}
		res, err := m.downloader.Download(ctx, resp.ResultURL, m.workDir)
		if err != nil {
			// The result exists remotely; a failed download is retried by the FSM.
			slog.Error("result_download_failed", "file_id", resp.FileID, "result_url", resp.ResultURL, "error", err)
			return nil, errors.Wrap(err, "failed to download result")
		}
		resp.DownloadPath = res.LocalPath
	}

	resp.Status = db.StatusSucceeded
	slog.Info("fsm_complete", "file_id", resp.FileID, "result_url", resp.ResultURL, "download_path", resp.DownloadPath)

	return fsm.NewResponse(resp), nil
}
