// Package transfer talks to the remote colorization service: one multipart
// upload per call with fractional progress, plus the read-only history list.
// Every failure is returned as a classified *errors.Error; the client never
// retries on its own.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/locator"
	"github.com/colorlens/colorlens/pkg/media"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Client performs requests against one service origin.
type Client struct {
	origin     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each request, upload and processing included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a client for origin, e.g. "http://localhost:8000".
// An empty origin means "same origin as the client".
func NewClient(origin string, opts ...Option) *Client {
	c := &Client{
		origin:     strings.TrimRight(origin, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	slog.Info("transfer_client_init", "origin", c.origin)
	return c
}

// Origin returns the normalized service origin.
func (c *Client) Origin() string {
	return c.origin
}

// Colorize uploads f and waits for the service's result. onProgress may be
// nil; it is never called after Colorize returns.
func (c *Client) Colorize(ctx context.Context, f *media.SelectedFile, onProgress ProgressFunc) (*Result, error) {
	endpoint := c.origin + UploadPath
	logger := slog.With("file_id", f.ID, "endpoint", endpoint)

	body, contentType, err := encodeMultipart(f)
	if err != nil {
		logger.Error("transfer_encode_failed", "error", err)
		return nil, errors.WithCause(errors.KindProtocol, "could not encode upload", err)
	}

	rep := newProgressReporter(int64(body.Len()), onProgress)
	defer rep.stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &progressReader{r: body, rep: rep})
	if err != nil {
		logger.Error("transfer_request_invalid", "error", err)
		return nil, errors.WithCause(errors.KindNetwork, "invalid service origin", err)
	}
	req.ContentLength = int64(body.Len())
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	logger.Info("transfer_upload_started", "name", f.Name, "size", f.Size, "body_size", req.ContentLength)
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, logger, err, "Upload cancelled.")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, logger, err, "Upload cancelled.")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(data, fmt.Sprintf("server error %d", resp.StatusCode))
		logger.Warn("transfer_server_error", "status", resp.StatusCode, "message", msg)
		return nil, &errors.Error{Kind: errors.KindServer, Message: msg, Status: resp.StatusCode}
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Error("transfer_response_invalid", "status", resp.StatusCode, "error", err)
		return nil, errors.WithCause(errors.KindProtocol, "invalid response", err)
	}
	if result.ResultURL == "" {
		logger.Error("transfer_response_invalid", "status", resp.StatusCode, "reason", "missing_result_url")
		return nil, errors.New(errors.KindProtocol, "invalid response")
	}
	result.ResultURL = locator.Resolve(c.origin, result.ResultURL)

	logger.Info("transfer_upload_complete",
		"result_url", result.ResultURL,
		"duration", time.Since(started).String(),
	)
	return &result, nil
}

// History reads the list of past colorizations. Result locators are
// normalized the same way as Colorize's.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	endpoint := c.origin + HistoryPath
	logger := slog.With("endpoint", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		logger.Error("transfer_request_invalid", "error", err)
		return nil, errors.WithCause(errors.KindNetwork, "invalid service origin", err)
	}
	req.Header.Set("Accept", "application/json")

	logger.Info("transfer_history_started")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, logger, err, "History request cancelled.")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, logger, err, "History request cancelled.")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(data, fmt.Sprintf("failed to load history (%d)", resp.StatusCode))
		logger.Warn("transfer_history_server_error", "status", resp.StatusCode, "message", msg)
		return nil, &errors.Error{Kind: errors.KindServer, Message: msg, Status: resp.StatusCode}
	}

	var wire []historyWire
	if err := json.Unmarshal(data, &wire); err != nil {
		logger.Error("transfer_history_invalid", "error", err)
		return nil, errors.WithCause(errors.KindProtocol, "invalid response", err)
	}

	entries := make([]HistoryEntry, 0, len(wire))
	for _, w := range wire {
		name := w.Filename
		if name == "" {
			name = w.OriginalFilename
		}
		entries = append(entries, HistoryEntry{
			ID:        w.ID,
			Filename:  name,
			CreatedAt: w.CreatedAt,
			ResultURL: locator.Resolve(c.origin, w.ResultURL),
		})
	}

	logger.Info("transfer_history_complete", "entry_count", len(entries))
	return entries, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeMultipart builds the full request body up front so its length is
// known and progress is length-computable.
func encodeMultipart(f *media.SelectedFile) (*bytes.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FormField, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", f.MediaType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f.Reader()); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return bytes.NewReader(buf.Bytes()), mw.FormDataContentType(), nil
}

// transportError classifies failures that happen below HTTP.
func transportError(ctx context.Context, logger *slog.Logger, err error, cancelledMsg string) error {
	if ctx.Err() != nil {
		logger.Info("transfer_cancelled", "error", ctx.Err())
		return errors.WithCause(errors.KindCancelled, cancelledMsg, ctx.Err())
	}
	logger.Error("transfer_network_error", "error", err)
	return errors.WithCause(errors.KindNetwork, "Network error: check your connection or service origin.", err)
}

// errorMessage extracts the service's message from a JSON error body.
func errorMessage(body []byte, fallback string) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return fallback
	}
	for _, key := range []string{"error", "message", "detail"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
