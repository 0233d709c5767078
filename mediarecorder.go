package mediarecorder

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Recorder mediates between a caller and two host capabilities: a
// StreamSource that produces live media and an EncoderFactory that turns it
// into chunked encoded data. It owns the lifecycle status, the active stream
// and session, the accumulated output, the last error, and the audio mute
// flag. All mutations go through its own operations.
type Recorder struct {
	id       string
	source   StreamSource
	encoders EncoderFactory
	opts     Options
	log      logging.LeveledLogger

	mu         sync.Mutex
	status     Status
	stream     MediaStream
	sess       *session
	blob       *Blob
	lastErr    error
	audioMuted bool
	// generation invalidates in-flight acquisitions when the stream is
	// cleared or the recorder closed mid-acquire.
	generation uint64
	closed     bool

	onChangeCallbacks []func(state State)
}

// New validates the configuration once and returns a recorder in the idle
// state. Missing host capabilities are fatal here; unsupported constraint
// keys and mime types only log warnings through opts.Logger.
func New(source StreamSource, encoders EncoderFactory, opts Options) (*Recorder, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewDefaultLoggerFactory().NewLogger("mediarecorder")
	}

	if err := opts.validate(source, encoders); err != nil {
		return nil, &Error{Kind: ErrorKindSetup, Err: err}
	}

	return &Recorder{
		id:                uuid.New().String(),
		source:            source,
		encoders:          encoders,
		opts:              opts,
		log:               opts.Logger,
		status:            StatusIdle,
		onChangeCallbacks: make([]func(state State), 0),
	}, nil
}

func (r *Recorder) ID() string {
	return r.id
}

// GetMediaStream acquires a live stream from the configured source and moves
// the recorder to ready. A configured CustomMediaStream binds immediately
// without acquisition. Legal from idle, failed and stopped; a no-op from any
// other status.
func (r *Recorder) GetMediaStream(ctx context.Context) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}

	if !r.status.canAcquire() {
		r.mu.Unlock()
		return nil
	}

	err := r.acquireStreamLocked(ctx)
	r.mu.Unlock()

	r.notifyChanged()

	return err
}

// acquireStreamLocked runs one acquisition. The lock is held on entry and
// exit but released around the blocking host call; the generation counter
// decides whether the result is still wanted when it resolves.
func (r *Recorder) acquireStreamLocked(ctx context.Context) error {
	r.lastErr = nil

	if custom := r.opts.CustomMediaStream; custom != nil {
		r.bindStreamLocked(custom)
		return nil
	}

	r.releaseStreamLocked()
	r.status = StatusAcquiringMedia

	gen := r.generation
	source := r.source
	constraints := r.opts.MediaStreamConstraints
	recordScreen := r.opts.RecordScreen

	r.mu.Unlock()
	r.notifyChanged()

	stream, err := acquireStream(ctx, source, constraints, recordScreen)

	r.mu.Lock()

	if r.closed || gen != r.generation {
		// The recorder was torn down or the stream cleared while the host
		// was still acquiring. Discard the late result.
		if stream != nil {
			stopTracks(stream)
			r.log.Infof("discarding media stream acquired after teardown")
		}

		return nil
	}

	if err != nil {
		r.stream = nil
		r.failLocked(newAcquisitionError(err))

		return r.lastErr
	}

	r.bindStreamLocked(stream)

	return nil
}

// acquireStream performs the host acquisition, composing display capture
// with a separate microphone capture when screen recording requests audio.
func acquireStream(ctx context.Context, source StreamSource, constraints MediaStreamConstraints, recordScreen bool) (MediaStream, error) {
	if !recordScreen {
		return source.GetUserMedia(ctx, constraints)
	}

	display := source.(DisplaySource)

	displayStream, err := display.GetDisplayMedia(ctx, MediaStreamConstraints{Video: constraints.Video})
	if err != nil {
		return nil, err
	}

	if constraints.Audio == nil {
		return displayStream, nil
	}

	micStream, err := display.GetUserMedia(ctx, MediaStreamConstraints{Audio: constraints.Audio})
	if err != nil {
		stopTracks(displayStream)
		return nil, err
	}

	return NewMediaStream(append(displayStream.GetTracks(), micStream.GetAudioTracks()...)...), nil
}

func (r *Recorder) bindStreamLocked(stream MediaStream) {
	r.stream = stream
	r.status = StatusReady

	// Keep the mute flag truthful across reacquisition.
	for _, track := range stream.GetAudioTracks() {
		track.SetEnabled(!r.audioMuted)
	}
}

// StartRecording creates a fresh session on the held stream, acquiring one
// first when none is held. A no-op while a session already exists, so
// calling it twice can never start the encoder twice. timeslice > 0 asks
// the encoder to flush a chunk at that interval.
func (r *Recorder) StartRecording(ctx context.Context, timeslice time.Duration) error {
	if timeslice < 0 {
		return ErrInvalidTimeslice
	}

	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}

	if r.sess != nil || !r.status.canStartRecording() {
		r.mu.Unlock()
		return nil
	}

	if r.stream == nil {
		if err := r.acquireStreamLocked(ctx); err != nil {
			r.mu.Unlock()
			r.notifyChanged()

			return err
		}

		if r.stream == nil {
			// Acquisition was invalidated mid-flight.
			r.mu.Unlock()
			return nil
		}
	}

	r.lastErr = nil

	sess, err := newSession(r.encoders, r.stream, r.opts.EncoderOptions)
	if err != nil {
		wrapped := newEncoderError(err)
		r.failLocked(wrapped)
		onError := r.opts.OnError
		r.mu.Unlock()

		r.notifyChanged()

		if onError != nil {
			onError(wrapped)
		}

		return wrapped
	}

	r.sess = sess
	sess.register(
		func(chunk DataChunk) { r.handleChunk(sess, chunk) },
		func() { r.handleStop(sess) },
		func(err error) { r.failSession(sess, newEncoderError(err)) },
	)
	onStart := r.opts.OnStart
	r.mu.Unlock()

	if err := sess.start(timeslice); err != nil {
		wrapped := newEncoderError(err)
		r.failSession(sess, wrapped)

		return wrapped
	}

	r.mu.Lock()
	if r.sess != sess {
		// Torn down while starting.
		r.mu.Unlock()
		return nil
	}

	r.status = StatusRecording
	r.mu.Unlock()

	r.notifyChanged()

	if onStart != nil {
		onStart()
	}

	return nil
}

// PauseRecording pauses the active session. A no-op unless the encoder is
// currently recording.
func (r *Recorder) PauseRecording() error {
	return r.changeSessionState(EncoderStateRecording, StatusPaused, Encoder.Pause)
}

// ResumeRecording resumes a paused session. A no-op unless the encoder is
// currently paused.
func (r *Recorder) ResumeRecording() error {
	return r.changeSessionState(EncoderStatePaused, StatusRecording, Encoder.Resume)
}

func (r *Recorder) changeSessionState(required EncoderState, next Status, op func(Encoder) error) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}

	sess := r.sess
	if sess == nil || sess.encoder.State() != required {
		r.mu.Unlock()
		return nil
	}

	r.mu.Unlock()

	if err := op(sess.encoder); err != nil {
		wrapped := newEncoderError(err)
		r.failSession(sess, wrapped)

		return wrapped
	}

	r.mu.Lock()
	if r.sess != sess {
		r.mu.Unlock()
		return nil
	}

	r.status = next
	r.mu.Unlock()

	r.notifyChanged()

	return nil
}

// StopRecording stops the active session's encoder and releases the stream.
// The blob is finalized when the encoder delivers its stop event, which is
// always the last event of the session. A no-op without an active session.
func (r *Recorder) StopRecording() error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}

	sess := r.sess
	if sess == nil || (r.status != StatusRecording && r.status != StatusPaused) {
		r.mu.Unlock()
		return nil
	}

	r.status = StatusStopping
	r.mu.Unlock()

	r.notifyChanged()

	if err := sess.encoder.Stop(); err != nil {
		wrapped := newEncoderError(err)
		r.failSession(sess, wrapped)

		return wrapped
	}

	r.mu.Lock()
	r.releaseStreamLocked()
	r.mu.Unlock()

	r.notifyChanged()

	return nil
}

// handleChunk runs on every dataavailable event. The raw chunk always
// reaches the caller's OnDataAvailable; only non-empty chunks accumulate.
func (r *Recorder) handleChunk(sess *session, chunk DataChunk) {
	r.mu.Lock()

	if r.closed || r.sess != sess {
		r.mu.Unlock()
		return
	}

	onData := r.opts.OnDataAvailable
	r.mu.Unlock()

	sess.addChunk(chunk)

	if onData != nil {
		onData(chunk)
	}
}

// handleStop finalizes the session when the encoder reports it has stopped.
func (r *Recorder) handleStop(sess *session) {
	r.mu.Lock()

	if r.closed || r.sess != sess {
		r.mu.Unlock()
		return
	}

	r.sess = nil

	blob, err := buildBlob(sess.takeChunks(), r.opts.blobMimeType())
	if err != nil {
		wrapped := newEncoderError(err)
		r.failLocked(wrapped)
		onError := r.opts.OnError
		r.mu.Unlock()

		sess.teardown()
		r.notifyChanged()

		if onError != nil {
			onError(wrapped)
		}

		return
	}

	r.blob = blob
	r.status = StatusStopped
	onStop := r.opts.OnStop
	r.mu.Unlock()

	sess.teardown()
	r.notifyChanged()

	if onStop != nil {
		onStop(blob)
	}
}

// failSession ends a session with an error: listeners are detached, the
// error is stored, and the caller's OnError fires.
func (r *Recorder) failSession(sess *session, wrapped *Error) {
	r.mu.Lock()

	if r.closed || r.sess != sess {
		r.mu.Unlock()
		sess.teardown()

		return
	}

	r.sess = nil
	r.failLocked(wrapped)
	onError := r.opts.OnError
	r.mu.Unlock()

	sess.teardown()
	r.notifyChanged()

	if onError != nil {
		onError(wrapped)
	}
}

func (r *Recorder) failLocked(err error) {
	r.status = StatusFailed
	r.lastErr = err
}

// MuteAudio disables every audio track of the held stream and remembers the
// flag for streams acquired later. Independent of the recording status.
func (r *Recorder) MuteAudio() {
	r.setAudioMuted(true)
}

// UnmuteAudio re-enables every audio track of the held stream.
func (r *Recorder) UnmuteAudio() {
	r.setAudioMuted(false)
}

func (r *Recorder) setAudioMuted(muted bool) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	r.audioMuted = muted

	var tracks []MediaTrack
	if r.stream != nil {
		tracks = r.stream.GetAudioTracks()
	}

	r.mu.Unlock()

	for _, track := range tracks {
		track.SetEnabled(!muted)
	}

	r.notifyChanged()
}

// IsAudioMuted reports the mute flag, not the per-track enabled state.
func (r *Recorder) IsAudioMuted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.audioMuted
}

// ClearMediaStream stops every track of the held stream and discards it.
// Ready (or a still-running acquisition) returns to idle; an active
// recording is not stopped, that stays the caller's responsibility. Calling
// it again without a stream is a no-op.
func (r *Recorder) ClearMediaStream() {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	changed := r.stream != nil || r.status == StatusAcquiringMedia
	r.releaseStreamLocked()

	if r.status == StatusReady || r.status == StatusAcquiringMedia {
		r.status = StatusIdle
	}

	r.mu.Unlock()

	if changed {
		r.notifyChanged()
	}
}

// releaseStreamLocked stops the held tracks exactly once and invalidates any
// in-flight acquisition.
func (r *Recorder) releaseStreamLocked() {
	r.generation++

	if r.stream == nil {
		return
	}

	stopTracks(r.stream)
	r.stream = nil
}

func stopTracks(stream MediaStream) {
	for _, track := range stream.GetTracks() {
		track.Stop()
	}
}

// ClearMediaBlob discards the stored blob without touching the stream or an
// active recording.
func (r *Recorder) ClearMediaBlob() {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	r.blob = nil
	r.mu.Unlock()

	r.notifyChanged()
}

// MediaBlob returns the finalized output of the last completed session, or
// nil.
func (r *Recorder) MediaBlob() *Blob {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.blob
}

// LiveStream returns a muted preview of the held stream, rebuilt from the
// video tracks on every call so displaying it can never feed audio back.
// Nil when no stream is held.
func (r *Recorder) LiveStream() MediaStream {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream == nil {
		return nil
	}

	return NewMediaStream(r.stream.GetVideoTracks()...)
}

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastErr
}

// State returns a point-in-time snapshot of the recorder.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

func (r *Recorder) snapshotLocked() State {
	state := State{
		Status:       r.status,
		Err:          r.lastErr,
		Blob:         r.blob,
		IsAudioMuted: r.audioMuted,
		HasStream:    r.stream != nil,
	}

	if r.sess != nil {
		state.SessionID = r.sess.id
	}

	return state
}

// OnStateChanged subscribes to state snapshots until ctx is done.
func (r *Recorder) OnStateChanged(ctx context.Context, f func(state State)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nextIdx := len(r.onChangeCallbacks)
	r.onChangeCallbacks = append(r.onChangeCallbacks, f)

	go func() {
		<-ctx.Done()

		r.mu.Lock()
		defer r.mu.Unlock()

		for i := range r.onChangeCallbacks {
			if nextIdx == i {
				r.onChangeCallbacks = append(r.onChangeCallbacks[:i], r.onChangeCallbacks[i+1:]...)
				return
			}
		}
	}()
}

func (r *Recorder) notifyChanged() {
	r.mu.Lock()
	state := r.snapshotLocked()
	callbacks := make([]func(state State), len(r.onChangeCallbacks))
	copy(callbacks, r.onChangeCallbacks)
	r.mu.Unlock()

	for _, f := range callbacks {
		f(state)
	}
}

// Close tears the recorder down: the session's listeners are detached before
// its encoder is stopped so no event can arrive afterwards, held tracks are
// stopped, and every further operation reports ErrRecorderClosed.
func (r *Recorder) Close() error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return nil
	}

	r.closed = true
	sess := r.sess
	r.sess = nil
	r.releaseStreamLocked()
	r.status = StatusIdle
	r.mu.Unlock()

	if sess != nil {
		sess.teardown()

		if err := sess.encoder.Stop(); err != nil {
			glog.Warningf("mediarecorder: stopping encoder on close: %v", err)
		}
	}

	return nil
}
