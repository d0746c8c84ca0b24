package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoImagesProcessed is returned when a run finishes without a single
// successfully split image.
var ErrNoImagesProcessed = errors.New("no images were processed successfully")

// ConfigError reports an invalid setting. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError with a formatted reason
func NewConfigError(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MissingInputError reports an annotation or image file that is absent or unreadable.
// The offending image is skipped and the run continues.
type MissingInputError struct {
	Path string
	Err  error
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input %s: %v", e.Path, e.Err)
}

func (e *MissingInputError) Unwrap() error { return e.Err }

// OutputWriteError reports a patch or label file that could not be written.
// It fails the image being processed, never its siblings.
type OutputWriteError struct {
	Path string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error { return e.Err }

// IsConfigError reports whether err wraps a *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsMissingInput reports whether err wraps a *MissingInputError
func IsMissingInput(err error) bool {
	var me *MissingInputError
	return errors.As(err, &me)
}

// IsOutputWrite reports whether err wraps a *OutputWriteError
func IsOutputWrite(err error) bool {
	var oe *OutputWriteError
	return errors.As(err, &oe)
}
