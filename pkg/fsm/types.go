package fsm

// ColorizeRequest is the FSM input
type ColorizeRequest struct {
	Path string
	// Retries is how many times a failed attempt is re-run before the
	// workflow gives up.
	Retries int
	// Download saves the result into the work dir on success.
	Download bool
}

// AttemptOutcome is one terminal transfer attempt.
type AttemptOutcome struct {
	Attempt      uint64
	Status       string
	ResultURL    string
	ErrorKind    string
	ErrorMessage string
}

// ColorizeResponse is the FSM output (accumulated across transitions)
type ColorizeResponse struct {
	// From Load
	FileID    string
	Filename  string
	MediaType string
	Size      int64

	// From Upload
	Outcomes []AttemptOutcome

	// From Record
	LedgerIDs []string

	// From Complete
	ResultURL    string
	DownloadPath string
	Status       string
}

// State names
const (
	StateLoad     = "load"
	StateUpload   = "upload"
	StateRecord   = "record"
	StateComplete = "complete"
	StateDone     = "done"
)
