package recording

import (
	"context"
	"errors"
	"fmt"
)

// Reason classifies why a capture attempt or a recorder failed.
type Reason string

const (
	ReasonPermissionDenied         Reason = "permission_denied"
	ReasonNotSupported             Reason = "not_supported"
	ReasonNoSourceAvailable        Reason = "no_source_available"
	ReasonUserCancelled            Reason = "user_cancelled"
	ReasonHardwareError            Reason = "hardware_error"
	ReasonConstraintsUnsatisfiable Reason = "constraints_unsatisfiable"
	ReasonRecorderFault            Reason = "recorder_fault"
	ReasonUnknown                  Reason = "unknown"
)

// Capture backends wrap these so Classify can map them to a Reason.
var (
	ErrPermissionDenied         = errors.New("capture permission denied")
	ErrNotSupported             = errors.New("capture not supported")
	ErrNoSourceAvailable        = errors.New("no capture source available")
	ErrUserCancelled            = errors.New("capture cancelled by user")
	ErrHardware                 = errors.New("capture hardware error")
	ErrConstraintsUnsatisfiable = errors.New("capture constraints unsatisfiable")
	ErrRecorderFault            = errors.New("recorder fault")
)

var (
	// ErrSessionActive is returned when a start is requested while a
	// recording is already being acquired, recorded or processed.
	ErrSessionActive = errors.New("a recording is already in progress")

	// ErrNotRecording is returned for operations that need an open recorder.
	ErrNotRecording = errors.New("no active recording")

	// ErrEmptyChunk reports that a zero-length chunk was dropped.
	ErrEmptyChunk = errors.New("empty chunk dropped")

	// ErrSettingsLocked is returned when settings change outside Idle or Ready.
	ErrSettingsLocked = errors.New("settings cannot change while a recording is active")

	// ErrInvalidState is returned when an operation is not defined for the
	// current state.
	ErrInvalidState = errors.New("operation not valid in current state")

	// ErrNoArtifact is returned when no finished recording is available.
	ErrNoArtifact = errors.New("no recording available")

	ErrUnknownQuality = errors.New("unknown quality profile")
)

var reasonErrors = []struct {
	err    error
	reason Reason
}{
	{ErrPermissionDenied, ReasonPermissionDenied},
	{ErrNotSupported, ReasonNotSupported},
	{ErrNoSourceAvailable, ReasonNoSourceAvailable},
	{ErrUserCancelled, ReasonUserCancelled},
	{context.Canceled, ReasonUserCancelled},
	{ErrHardware, ReasonHardwareError},
	{ErrConstraintsUnsatisfiable, ReasonConstraintsUnsatisfiable},
	{ErrRecorderFault, ReasonRecorderFault},
}

// CaptureError is the classified failure recorded on a session in Error.
type CaptureError struct {
	Reason Reason
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Classify maps err onto the failure taxonomy. Errors that match none of the
// sentinels are Unknown and keep the original message.
func Classify(err error) *CaptureError {
	if err == nil {
		return nil
	}
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	for _, re := range reasonErrors {
		if errors.Is(err, re.err) {
			return &CaptureError{Reason: re.reason, Err: err}
		}
	}
	return &CaptureError{Reason: ReasonUnknown, Err: err}
}
