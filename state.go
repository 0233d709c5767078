package mediarecorder

// Status is the lifecycle state of a Recorder. It uniquely determines which
// operations are legal at any moment.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusAcquiringMedia Status = "acquiring_media"
	StatusReady          Status = "ready"
	StatusRecording      Status = "recording"
	StatusPaused         Status = "paused"
	StatusStopping       Status = "stopping"
	StatusStopped        Status = "stopped"
	StatusFailed         Status = "failed"
)

// State is a point-in-time snapshot of the recorder, safe to hold after the
// recorder has moved on.
type State struct {
	Status       Status
	Err          error
	Blob         *Blob
	IsAudioMuted bool
	HasStream    bool
	SessionID    string
}

// canAcquire reports whether GetMediaStream may run from this status.
func (s Status) canAcquire() bool {
	switch s {
	case StatusIdle, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// canStartRecording reports whether StartRecording may create a session from
// this status.
func (s Status) canStartRecording() bool {
	switch s {
	case StatusIdle, StatusReady, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}
