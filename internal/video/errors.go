package video

import (
	"errors"
	"fmt"
	"strings"
)

// Error markers. Every failure surfaced by the job core wraps exactly one of
// these so callers can classify it with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrNotReady        = errors.New("not ready")
	ErrConflict        = errors.New("conflict")
	ErrSynthesis       = errors.New("speech synthesis failed")
	ErrAudioProcessing = errors.New("audio processing failed")
	ErrCaption         = errors.New("caption alignment failed")
	ErrFootageNotFound = errors.New("footage not found")
	ErrRender          = errors.New("render failed")
)

var kinds = []struct {
	marker error
	name   string
}{
	{ErrValidation, "ValidationError"},
	{ErrNotFound, "NotFoundError"},
	{ErrNotReady, "NotReadyError"},
	{ErrConflict, "ConflictError"},
	{ErrSynthesis, "SynthesisError"},
	{ErrAudioProcessing, "AudioProcessingError"},
	{ErrCaption, "CaptionError"},
	{ErrFootageNotFound, "FootageNotFoundError"},
	{ErrRender, "RenderError"},
}

// Wrap attaches a marker and stage context to err. The result matches both
// the marker and err under errors.Is.
func Wrap(marker error, stage, operation, message string, err error) error {
	parts := make([]string, 0, 3)
	for _, p := range []string{stage, operation, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	details := strings.Join(parts, ": ")

	switch {
	case err != nil && details != "":
		return fmt.Errorf("%w: %s: %w", marker, details, err)
	case err != nil:
		return fmt.Errorf("%w: %w", marker, err)
	case details != "":
		return fmt.Errorf("%w: %s", marker, details)
	default:
		return marker
	}
}

// Kind returns the taxonomy name for err, or "InternalError" when err carries
// no known marker.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	return "InternalError"
}

// HasKind reports whether err already carries one of the taxonomy markers.
func HasKind(err error) bool {
	return err != nil && Kind(err) != "InternalError"
}

// FieldError describes one rejected submission field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned by submission validation. It unwraps to
// ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
