package mediarecorder

import (
	"errors"
	"fmt"
)

var (
	ErrRecorderClosed           = errors.New("mediarecorder: recorder is closed")
	ErrConstraintsRequired      = errors.New("mediarecorder: media stream constraints are required")
	ErrNoStreamSource           = errors.New("mediarecorder: no stream source provided")
	ErrNoEncoderFactory         = errors.New("mediarecorder: no encoder factory provided")
	ErrScreenCaptureUnsupported = errors.New("mediarecorder: stream source can't capture the display")
	ErrNoRecordedData           = errors.New("mediarecorder: recording produced no data")
	ErrInvalidTimeslice         = errors.New("mediarecorder: timeslice must not be negative")
)

type ErrorKind string

const (
	ErrorKindAcquisition ErrorKind = "acquisition"
	ErrorKindEncoder     ErrorKind = "encoder"
	ErrorKindSetup       ErrorKind = "setup"
)

// Error is the normalized form of every failure stored on the recorder.
// Host errors are wrapped at the capability boundary with the kind that
// tells the caller which operation to retry.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mediarecorder: %s error: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newAcquisitionError(err error) *Error {
	return &Error{Kind: ErrorKindAcquisition, Err: err}
}

func newEncoderError(err error) *Error {
	return &Error{Kind: ErrorKindEncoder, Err: err}
}
