package db

// Schema defines the SQLite schema for the local attempt ledger.
// One row per terminal transfer attempt.
const Schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    file_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    media_type TEXT NOT NULL,
    size INTEGER NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('succeeded', 'failed')),
    result_url TEXT,
    error_kind TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attempts_file_id ON attempts(file_id);
CREATE INDEX IF NOT EXISTS idx_attempts_status ON attempts(status);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);
`

// Status constants
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Attempt is a terminal transfer attempt record
type Attempt struct {
	ID           string `json:"id" yaml:"id"`
	FileID       string `json:"fileId" yaml:"file_id"`
	Filename     string `json:"filename" yaml:"filename"`
	MediaType    string `json:"mediaType" yaml:"media_type"`
	Size         int64  `json:"size" yaml:"size"`
	Status       string `json:"status" yaml:"status"`
	ResultURL    string `json:"resultUrl,omitempty" yaml:"result_url,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"error_message,omitempty"`
	CreatedAt    string `json:"createdAt" yaml:"created_at"`
}
