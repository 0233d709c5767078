// Package testhelper provides in-memory stand-ins for the host capture and
// encoding capabilities so recorder behavior can be tested without devices.
package testhelper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/inlivedev/mediarecorder"
)

// Track is a fake MediaTrack that counts how often it was stopped.
type Track struct {
	mu        sync.Mutex
	id        string
	kind      webrtc.RTPCodecType
	enabled   bool
	stopCount int
}

func NewTrack(kind webrtc.RTPCodecType) *Track {
	return &Track{
		id:      uuid.New().String(),
		kind:    kind,
		enabled: true,
	}
}

func (t *Track) ID() string {
	return t.id
}

func (t *Track) Kind() webrtc.RTPCodecType {
	return t.kind
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopCount++
}

func (t *Track) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopCount
}

// Source is a fake StreamSource. Every successful acquisition produces one
// fresh track per requested kind.
type Source struct {
	mu sync.Mutex

	// AcquireErr makes every acquisition fail with this error.
	AcquireErr error
	// Supported is the advertised constraint key set.
	Supported []string
	// BeforeAcquire, when set, runs while the acquisition is in flight,
	// before the result is produced. Used to race teardown against a slow
	// host.
	BeforeAcquire func()

	userMediaCalls int
	streams        []mediarecorder.MediaStream
	tracks         []*Track
}

func NewSource() *Source {
	return &Source{
		Supported: defaultSupportedConstraints(),
	}
}

func defaultSupportedConstraints() []string {
	return []string{"deviceId", "width", "height", "frameRate", "sampleRate", "channelCount", "echoCancellation"}
}

func (s *Source) GetUserMedia(_ context.Context, constraints mediarecorder.MediaStreamConstraints) (mediarecorder.MediaStream, error) {
	if s.BeforeAcquire != nil {
		s.BeforeAcquire()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.userMediaCalls++

	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}

	return s.buildStreamLocked(constraints), nil
}

func (s *Source) SupportedConstraints() []string {
	return s.Supported
}

func (s *Source) buildStreamLocked(constraints mediarecorder.MediaStreamConstraints) mediarecorder.MediaStream {
	tracks := make([]mediarecorder.MediaTrack, 0, 2)

	if constraints.Audio != nil {
		track := NewTrack(webrtc.RTPCodecTypeAudio)
		s.tracks = append(s.tracks, track)
		tracks = append(tracks, track)
	}

	if constraints.Video != nil {
		track := NewTrack(webrtc.RTPCodecTypeVideo)
		s.tracks = append(s.tracks, track)
		tracks = append(tracks, track)
	}

	stream := mediarecorder.NewMediaStream(tracks...)
	s.streams = append(s.streams, stream)

	return stream
}

// UserMediaCalls reports how many times GetUserMedia ran.
func (s *Source) UserMediaCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userMediaCalls
}

// Tracks returns every track the source ever produced.
func (s *Source) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracks := make([]*Track, len(s.tracks))
	copy(tracks, s.tracks)

	return tracks
}

// DisplaySource is a fake source that can also capture the display.
type DisplaySource struct {
	Source

	displayMediaCalls int
}

func NewDisplaySource() *DisplaySource {
	return &DisplaySource{
		Source: Source{
			Supported: defaultSupportedConstraints(),
		},
	}
}

func (s *DisplaySource) GetDisplayMedia(_ context.Context, constraints mediarecorder.MediaStreamConstraints) (mediarecorder.MediaStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.displayMediaCalls++

	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}

	return s.buildStreamLocked(constraints), nil
}

func (s *DisplaySource) DisplayMediaCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.displayMediaCalls
}

// Encoder is a fake encoder whose events are driven by the test. Stop
// delivers the stop event synchronously, matching a host that flushes and
// finalizes on stop.
type Encoder struct {
	mu sync.Mutex

	// StartErr / PauseErr / ResumeErr / StopErr make the matching command
	// fail synchronously.
	StartErr  error
	PauseErr  error
	ResumeErr error
	StopErr   error

	state     mediarecorder.EncoderState
	timeslice time.Duration

	startCalls  int
	pauseCalls  int
	resumeCalls int
	stopCalls   int

	onData func(chunk mediarecorder.DataChunk)
	onStop func()
	onErr  func(err error)
}

func NewEncoder() *Encoder {
	return &Encoder{state: mediarecorder.EncoderStateInactive}
}

func (e *Encoder) Start(timeslice time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.startCalls++

	if e.StartErr != nil {
		return e.StartErr
	}

	e.state = mediarecorder.EncoderStateRecording
	e.timeslice = timeslice

	return nil
}

func (e *Encoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pauseCalls++

	if e.PauseErr != nil {
		return e.PauseErr
	}

	e.state = mediarecorder.EncoderStatePaused

	return nil
}

func (e *Encoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resumeCalls++

	if e.ResumeErr != nil {
		return e.ResumeErr
	}

	e.state = mediarecorder.EncoderStateRecording

	return nil
}

func (e *Encoder) Stop() error {
	e.mu.Lock()
	e.stopCalls++

	if e.StopErr != nil {
		e.mu.Unlock()
		return e.StopErr
	}

	e.state = mediarecorder.EncoderStateInactive
	onStop := e.onStop
	e.mu.Unlock()

	if onStop != nil {
		onStop()
	}

	return nil
}

func (e *Encoder) State() mediarecorder.EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *Encoder) OnDataAvailable(fn func(chunk mediarecorder.DataChunk)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.onData = fn
}

func (e *Encoder) OnStop(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.onStop = fn
}

func (e *Encoder) OnError(fn func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.onErr = fn
}

// EmitChunk delivers a dataavailable event to the registered listener.
func (e *Encoder) EmitChunk(data []byte, mimeType string) {
	e.mu.Lock()
	onData := e.onData
	e.mu.Unlock()

	if onData != nil {
		onData(mediarecorder.DataChunk{Data: data, MimeType: mimeType})
	}
}

// EmitStop delivers a stop event without going through Stop.
func (e *Encoder) EmitStop() {
	e.mu.Lock()
	e.state = mediarecorder.EncoderStateInactive
	onStop := e.onStop
	e.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

// EmitError delivers an asynchronous error event.
func (e *Encoder) EmitError(err error) {
	e.mu.Lock()
	onErr := e.onErr
	e.mu.Unlock()

	if onErr != nil {
		onErr(err)
	}
}

// Listening reports whether any listener is still registered, to assert
// teardown detached the session.
func (e *Encoder) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.onData != nil || e.onStop != nil || e.onErr != nil
}

func (e *Encoder) StartCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.startCalls
}

func (e *Encoder) StopCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stopCalls
}

func (e *Encoder) Timeslice() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.timeslice
}

// EncoderFactory is a fake EncoderFactory handing out one fresh Encoder per
// session.
type EncoderFactory struct {
	mu sync.Mutex

	// NewEncoderErr makes encoder creation fail synchronously.
	NewEncoderErr error
	// SupportedMimeTypes is the advertised mime type set.
	SupportedMimeTypes []string

	encoders []*Encoder
	options  []mediarecorder.EncoderOptions
}

func NewEncoderFactory() *EncoderFactory {
	return &EncoderFactory{
		SupportedMimeTypes: []string{"video/webm", "audio/webm", "audio/ogg"},
	}
}

func (f *EncoderFactory) NewEncoder(stream mediarecorder.MediaStream, opts mediarecorder.EncoderOptions) (mediarecorder.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.NewEncoderErr != nil {
		return nil, f.NewEncoderErr
	}

	if stream == nil {
		return nil, fmt.Errorf("testhelper: encoder needs a stream")
	}

	encoder := NewEncoder()
	f.encoders = append(f.encoders, encoder)
	f.options = append(f.options, opts)

	return encoder, nil
}

func (f *EncoderFactory) IsMimeTypeSupported(mimeType string) bool {
	for _, m := range f.SupportedMimeTypes {
		if m == mimeType {
			return true
		}
	}

	return false
}

// Encoders returns every encoder the factory created, in creation order.
func (f *EncoderFactory) Encoders() []*Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()

	encoders := make([]*Encoder, len(f.encoders))
	copy(encoders, f.encoders)

	return encoders
}

// LastEncoder returns the most recently created encoder, or nil.
func (f *EncoderFactory) LastEncoder() *Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.encoders) == 0 {
		return nil
	}

	return f.encoders[len(f.encoders)-1]
}

// Options returns the encoder options seen per creation, in order.
func (f *EncoderFactory) Options() []mediarecorder.EncoderOptions {
	f.mu.Lock()
	defer f.mu.Unlock()

	options := make([]mediarecorder.EncoderOptions, len(f.options))
	copy(options, f.options)

	return options
}
