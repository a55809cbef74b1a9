// Package media holds the user's candidate image, the rules that turn a
// candidate into an accepted SelectedFile, and the preview handle derived
// from an accepted file.
package media

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
)

// Accepted media types.
const (
	TypePNG  = "image/png"
	TypeJPEG = "image/jpeg"
	TypeWEBP = "image/webp"
)

// MaxFileSize is the largest payload the service accepts.
const MaxFileSize int64 = 10 * 1024 * 1024

// Candidate is a file the user picked, before validation.
type Candidate struct {
	Name      string
	MediaType string
	Size      int64
	Data      []byte
}

// SelectedFile is an accepted candidate. It is never mutated after
// validation; a new selection replaces it wholesale.
type SelectedFile struct {
	// ID identifies this selection. Two selections of the same bytes get
	// different IDs.
	ID        string
	Name      string
	MediaType string
	Size      int64
	Data      []byte
}

// Reader returns a fresh reader over the payload.
func (f *SelectedFile) Reader() io.Reader {
	return bytes.NewReader(f.Data)
}

// LoadCandidate builds a Candidate from a file on disk. The media type is
// detected from content, not from the extension. Files larger than maxSize
// are not read into memory; their candidate carries only metadata so
// validation can reject them.
func LoadCandidate(path string, maxSize int64) (Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Candidate{}, errors.Wrap(err, "stat candidate")
	}
	if info.IsDir() {
		return Candidate{}, errors.New(errors.KindValidation, "Not a file: "+path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Candidate{}, errors.Wrap(err, "detect media type")
	}

	c := Candidate{
		Name:      filepath.Base(path),
		MediaType: mt.String(),
		Size:      info.Size(),
	}

	slog.Info("media_candidate_loaded", "name", c.Name, "media_type", c.MediaType, "size", c.Size)

	if c.Size > maxSize {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Candidate{}, errors.Wrap(err, "read candidate")
	}
	c.Data = data
	c.Size = int64(len(data))
	return c, nil
}
