package media

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/google/uuid"
)

// Validator decides whether a candidate may be uploaded.
type Validator struct {
	maxFileSize int64
	accepted    []string
}

// NewValidator creates a validator with the given limits.
func NewValidator(maxFileSize int64, accepted ...string) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
		accepted:    accepted,
	}
}

// DefaultValidator accepts PNG, JPEG and WEBP up to MaxFileSize.
func DefaultValidator() *Validator {
	return NewValidator(MaxFileSize, TypePNG, TypeJPEG, TypeWEBP)
}

// Validate turns a candidate into a SelectedFile or returns a validation
// error. It never touches the network.
func (v *Validator) Validate(c Candidate) (*SelectedFile, error) {
	if !slices.Contains(v.accepted, c.MediaType) {
		slog.Warn("media_validation_failed", "name", c.Name, "media_type", c.MediaType, "reason", "unsupported_type")
		return nil, errors.New(errors.KindValidation, "Unsupported format. Use PNG, JPG, or WEBP.")
	}

	if c.Size > v.maxFileSize {
		slog.Warn("media_validation_failed", "name", c.Name, "size", c.Size, "max_size", v.maxFileSize, "reason", "too_large")
		return nil, errors.New(errors.KindValidation, fmt.Sprintf("File is %.1f MB. Max %d MB.",
			float64(c.Size)/1024/1024, v.maxFileSize/1024/1024))
	}

	if c.Size <= 0 || len(c.Data) == 0 {
		slog.Warn("media_validation_failed", "name", c.Name, "reason", "empty")
		return nil, errors.New(errors.KindValidation, "File is empty.")
	}

	return &SelectedFile{
		ID:        uuid.NewString(),
		Name:      c.Name,
		MediaType: c.MediaType,
		Size:      c.Size,
		Data:      c.Data,
	}, nil
}
