package mediarecorder

import "time"

type EncoderState string

const (
	EncoderStateInactive  EncoderState = "inactive"
	EncoderStateRecording EncoderState = "recording"
	EncoderStatePaused    EncoderState = "paused"
)

// DataChunk is one unit of encoded media delivered by an encoder. Chunks are
// delivered in encode order; empty chunks are possible and are passed through
// to the caller but never accumulated.
type DataChunk struct {
	Data     []byte
	MimeType string
}

// EncoderOptions are passed opaquely to the encoder factory. Zero values
// leave the choice to the host encoder.
type EncoderOptions struct {
	MimeType           string
	AudioBitsPerSecond uint32
	VideoBitsPerSecond uint32
}

// Encoder is the host capability that consumes a live stream and emits
// encoded chunks. Start/Pause/Resume/Stop are synchronous commands; results
// arrive later through the registered listeners. The stop event is always
// the last event of a session. Passing nil to a listener setter deregisters
// it.
type Encoder interface {
	Start(timeslice time.Duration) error
	Pause() error
	Resume() error
	Stop() error
	State() EncoderState
	OnDataAvailable(fn func(chunk DataChunk))
	OnStop(fn func())
	OnError(fn func(err error))
}

// EncoderFactory creates one Encoder per recording session. Encoders are
// never reused across sessions.
type EncoderFactory interface {
	NewEncoder(stream MediaStream, opts EncoderOptions) (Encoder, error)
	IsMimeTypeSupported(mimeType string) bool
}
