package media

import (
	"log/slog"
	"os"
	"sync"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
)

// Preview is a client-local resource derived from a SelectedFile. It must be
// closed when the file is replaced or cleared.
type Preview interface {
	Path() string
	Close() error
}

// PreviewOpener creates previews for accepted files.
type PreviewOpener interface {
	Open(f *SelectedFile) (Preview, error)
}

// TempPreviewer spools each accepted file into a temporary file.
type TempPreviewer struct {
	// Dir is passed to os.CreateTemp; empty means the OS temp dir.
	Dir string
}

// Open writes f's payload to a new temp file.
func (p TempPreviewer) Open(f *SelectedFile) (Preview, error) {
	ext := ""
	if mt := mimetype.Lookup(f.MediaType); mt != nil {
		ext = mt.Extension()
	}

	tmp, err := os.CreateTemp(p.Dir, "colorlens-preview-*"+ext)
	if err != nil {
		return nil, errors.Wrap(err, "create preview")
	}
	if _, err := tmp.Write(f.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, "write preview")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, "close preview")
	}

	slog.Debug("media_preview_opened", "file_id", f.ID, "path", tmp.Name())
	return &tempPreview{path: tmp.Name()}, nil
}

type tempPreview struct {
	path string
	once sync.Once
	err  error
}

func (t *tempPreview) Path() string {
	return t.path
}

// Close removes the temp file. Safe to call more than once.
func (t *tempPreview) Close() error {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
			t.err = errors.Wrap(err, "remove preview")
			return
		}
		slog.Debug("media_preview_released", "path", t.path)
	})
	return t.err
}
