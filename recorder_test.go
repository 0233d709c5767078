package mediarecorder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/inlivedev/mediarecorder"
	"github.com/inlivedev/mediarecorder/testhelper"
)

func newRecorder(t *testing.T, opts mediarecorder.Options) (*mediarecorder.Recorder, *testhelper.Source, *testhelper.EncoderFactory) {
	t.Helper()

	source := testhelper.NewSource()
	factory := testhelper.NewEncoderFactory()

	opts.Logger = TestLogger

	rec, err := mediarecorder.New(source, factory, opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = rec.Close()
	})

	return rec, source, factory
}

func TestInitialState(t *testing.T) {
	t.Parallel()

	rec, _, _ := newRecorder(t, mediarecorder.DefaultOptions())

	require.Equal(t, mediarecorder.StatusIdle, rec.Status())
	require.NoError(t, rec.Err())
	require.Nil(t, rec.MediaBlob())
	require.False(t, rec.IsAudioMuted())
	require.Nil(t, rec.LiveStream())
}

func TestGetMediaStream(t *testing.T) {
	t.Parallel()

	rec, source, _ := newRecorder(t, mediarecorder.DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var statuses []mediarecorder.Status
	rec.OnStateChanged(ctx, func(state mediarecorder.State) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, state.Status)
	})

	require.NoError(t, rec.GetMediaStream(ctx))
	require.Equal(t, mediarecorder.StatusReady, rec.Status())
	require.NotNil(t, rec.LiveStream())
	require.Equal(t, 1, source.UserMediaCalls())

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, statuses, mediarecorder.StatusAcquiringMedia)
	require.Equal(t, mediarecorder.StatusReady, statuses[len(statuses)-1])
}

func TestGetMediaStreamFailure(t *testing.T) {
	t.Parallel()

	rec, source, _ := newRecorder(t, mediarecorder.DefaultOptions())
	source.AcquireErr = errors.New("permission denied")

	err := rec.GetMediaStream(context.Background())
	require.Error(t, err)
	require.Equal(t, mediarecorder.StatusFailed, rec.Status())
	require.Error(t, rec.Err())
	require.Nil(t, rec.LiveStream())

	var recErr *mediarecorder.Error
	require.ErrorAs(t, err, &recErr)
	require.Equal(t, mediarecorder.ErrorKindAcquisition, recErr.Kind)

	// Acquisition failures are recoverable by asking again.
	source.AcquireErr = nil
	require.NoError(t, rec.GetMediaStream(context.Background()))
	require.Equal(t, mediarecorder.StatusReady, rec.Status())
	require.NoError(t, rec.Err())
}

func TestStartRecordingAcquiresStream(t *testing.T) {
	t.Parallel()

	var startCalls int
	opts := mediarecorder.DefaultOptions()
	opts.OnStart = func() { startCalls++ }

	rec, source, factory := newRecorder(t, opts)

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	require.Equal(t, mediarecorder.StatusRecording, rec.Status())
	require.Equal(t, 1, source.UserMediaCalls())
	require.Len(t, factory.Encoders(), 1)
	require.Equal(t, 1, factory.LastEncoder().StartCalls())
	require.Equal(t, 1, startCalls)
}

func TestStartRecordingIdempotent(t *testing.T) {
	t.Parallel()

	rec, _, factory := newRecorder(t, mediarecorder.DefaultOptions())

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	require.NoError(t, rec.StartRecording(context.Background(), 0))

	require.Len(t, factory.Encoders(), 1)
	require.Equal(t, 1, factory.LastEncoder().StartCalls())
}

func TestStartRecordingTimeslice(t *testing.T) {
	t.Parallel()

	rec, _, factory := newRecorder(t, mediarecorder.DefaultOptions())

	require.ErrorIs(t, rec.StartRecording(context.Background(), -time.Second), mediarecorder.ErrInvalidTimeslice)

	require.NoError(t, rec.StartRecording(context.Background(), 500*time.Millisecond))
	require.Equal(t, 500*time.Millisecond, factory.LastEncoder().Timeslice())
}

func TestRecordingLifecycle(t *testing.T) {
	t.Parallel()

	var stopCalls int
	var blob *mediarecorder.Blob

	opts := mediarecorder.Options{
		MediaStreamConstraints: mediarecorder.MediaStreamConstraints{
			Audio: mediarecorder.TrackConstraints{},
		},
		OnStop: func(b *mediarecorder.Blob) {
			stopCalls++
			blob = b
		},
	}

	rec, _, factory := newRecorder(t, opts)

	ctx := context.Background()

	require.NoError(t, rec.GetMediaStream(ctx))
	require.Equal(t, mediarecorder.StatusReady, rec.Status())

	require.NoError(t, rec.StartRecording(ctx, 0))
	require.Equal(t, mediarecorder.StatusRecording, rec.Status())

	encoder := factory.LastEncoder()
	require.Equal(t, 1, encoder.StartCalls())

	require.NoError(t, rec.PauseRecording())
	require.Equal(t, mediarecorder.StatusPaused, rec.Status())

	require.NoError(t, rec.ResumeRecording())
	require.Equal(t, mediarecorder.StatusRecording, rec.Status())

	encoder.EmitChunk([]byte("audio-data"), "audio/webm")

	require.NoError(t, rec.StopRecording())
	require.Equal(t, 1, encoder.StopCalls())
	require.Equal(t, mediarecorder.StatusStopped, rec.Status())

	require.Equal(t, 1, stopCalls)
	require.NotNil(t, blob)
	require.Equal(t, []byte("audio-data"), blob.Data)
	require.Equal(t, "audio/webm", blob.MimeType)
	require.Equal(t, blob, rec.MediaBlob())
}

func TestPauseResumeGuards(t *testing.T) {
	t.Parallel()

	rec, _, factory := newRecorder(t, mediarecorder.DefaultOptions())

	// Nothing to pause or resume before a session exists.
	require.NoError(t, rec.PauseRecording())
	require.NoError(t, rec.ResumeRecording())
	require.Equal(t, mediarecorder.StatusIdle, rec.Status())

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	encoder := factory.LastEncoder()

	// Resume while recording must not reach the encoder.
	require.NoError(t, rec.ResumeRecording())
	require.Equal(t, mediarecorder.EncoderStateRecording, encoder.State())
	require.Equal(t, mediarecorder.StatusRecording, rec.Status())

	require.NoError(t, rec.PauseRecording())
	require.NoError(t, rec.PauseRecording())
	require.Equal(t, mediarecorder.StatusPaused, rec.Status())
}

func TestChunkAccumulation(t *testing.T) {
	t.Parallel()

	var delivered []mediarecorder.DataChunk
	var blob *mediarecorder.Blob

	opts := mediarecorder.DefaultOptions()
	opts.OnDataAvailable = func(chunk mediarecorder.DataChunk) {
		delivered = append(delivered, chunk)
	}
	opts.OnStop = func(b *mediarecorder.Blob) {
		blob = b
	}

	rec, _, factory := newRecorder(t, opts)

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	encoder := factory.LastEncoder()

	encoder.EmitChunk([]byte("abcd"), "video/webm")
	encoder.EmitChunk(nil, "video/webm")
	encoder.EmitChunk([]byte("0123456789"), "video/webm")

	require.NoError(t, rec.StopRecording())

	// Every chunk reaches the caller, empty ones included.
	require.Len(t, delivered, 3)
	require.Empty(t, delivered[1].Data)

	// The blob only contains the non-empty chunks, in delivery order.
	require.NotNil(t, blob)
	require.Equal(t, []byte("abcd0123456789"), blob.Data)
	require.Equal(t, "video/webm", blob.MimeType)
}

func TestBlobMimeTypeOverride(t *testing.T) {
	t.Parallel()

	opts := mediarecorder.DefaultOptions()
	opts.BlobOptions = &mediarecorder.BlobOptions{MimeType: "video/webm"}

	rec, _, factory := newRecorder(t, opts)

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	factory.LastEncoder().EmitChunk([]byte("x"), "video/x-matroska")
	require.NoError(t, rec.StopRecording())

	require.Equal(t, "video/webm", rec.MediaBlob().MimeType)
}

func TestStopIsNoopWithoutSession(t *testing.T) {
	t.Parallel()

	var stopCalls int

	opts := mediarecorder.DefaultOptions()
	opts.OnStop = func(*mediarecorder.Blob) { stopCalls++ }

	rec, _, factory := newRecorder(t, opts)

	require.NoError(t, rec.StopRecording())
	require.Equal(t, mediarecorder.StatusIdle, rec.Status())

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	factory.LastEncoder().EmitChunk([]byte("x"), "audio/webm")
	require.NoError(t, rec.StopRecording())
	require.NoError(t, rec.StopRecording())

	require.Equal(t, 1, factory.LastEncoder().StopCalls())
	require.Equal(t, 1, stopCalls)
}

func TestStopWithoutChunks(t *testing.T) {
	t.Parallel()

	var stopCalls int
	var gotErr error

	opts := mediarecorder.DefaultOptions()
	opts.OnStop = func(*mediarecorder.Blob) { stopCalls++ }
	opts.OnError = func(err error) { gotErr = err }

	rec, _, _ := newRecorder(t, opts)

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	require.NoError(t, rec.StopRecording())

	require.Equal(t, 0, stopCalls)
	require.Nil(t, rec.MediaBlob())
	require.Equal(t, mediarecorder.StatusFailed, rec.Status())
	require.ErrorIs(t, gotErr, mediarecorder.ErrNoRecordedData)
	require.ErrorIs(t, rec.Err(), mediarecorder.ErrNoRecordedData)
}

func TestNewEncoderPerSession(t *testing.T) {
	t.Parallel()

	rec, _, factory := newRecorder(t, mediarecorder.DefaultOptions())

	ctx := context.Background()

	require.NoError(t, rec.StartRecording(ctx, 0))
	first := factory.LastEncoder()
	first.EmitChunk([]byte("first"), "video/webm")
	require.NoError(t, rec.StopRecording())

	require.NoError(t, rec.StartRecording(ctx, 0))
	second := factory.LastEncoder()
	second.EmitChunk([]byte("second"), "video/webm")
	require.NoError(t, rec.StopRecording())

	require.Len(t, factory.Encoders(), 2)
	require.NotSame(t, first, second)

	// Chunks never leak across sessions.
	require.Equal(t, []byte("second"), rec.MediaBlob().Data)
}

func TestEncoderAsyncError(t *testing.T) {
	t.Parallel()

	var gotErr error

	opts := mediarecorder.DefaultOptions()
	opts.OnError = func(err error) { gotErr = err }

	rec, _, factory := newRecorder(t, opts)

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	encoder := factory.LastEncoder()

	encoder.EmitError(errors.New("encoder exploded"))

	require.Equal(t, mediarecorder.StatusFailed, rec.Status())
	require.Error(t, rec.Err())
	require.Error(t, gotErr)
	require.False(t, encoder.Listening())

	var recErr *mediarecorder.Error
	require.ErrorAs(t, gotErr, &recErr)
	require.Equal(t, mediarecorder.ErrorKindEncoder, recErr.Kind)

	// Failed is a restartable state with a fresh encoder.
	require.NoError(t, rec.StartRecording(context.Background(), 0))
	require.Len(t, factory.Encoders(), 2)
	require.Equal(t, mediarecorder.StatusRecording, rec.Status())
}

func TestEncoderStartError(t *testing.T) {
	t.Parallel()

	rec, _, factory := newRecorder(t, mediarecorder.DefaultOptions())

	require.NoError(t, rec.GetMediaStream(context.Background()))
	factoryErr := errors.New("codec init failed")
	factory.NewEncoderErr = factoryErr

	err := rec.StartRecording(context.Background(), 0)
	require.ErrorIs(t, err, factoryErr)
	require.Equal(t, mediarecorder.StatusFailed, rec.Status())
}

func TestSessionListenersDetachedOnStop(t *testing.T) {
	t.Parallel()

	var delivered int

	opts := mediarecorder.DefaultOptions()
	opts.OnDataAvailable = func(mediarecorder.DataChunk) { delivered++ }

	rec, _, factory := newRecorder(t, opts)

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	encoder := factory.LastEncoder()
	encoder.EmitChunk([]byte("x"), "audio/webm")
	require.NoError(t, rec.StopRecording())

	require.False(t, encoder.Listening())

	// A late chunk from the dead encoder can't reach the caller.
	encoder.EmitChunk([]byte("late"), "audio/webm")
	require.Equal(t, 1, delivered)
}

func TestMuteRoundTrip(t *testing.T) {
	t.Parallel()

	rec, source, _ := newRecorder(t, mediarecorder.DefaultOptions())

	require.NoError(t, rec.GetMediaStream(context.Background()))

	var audio, video *testhelper.Track
	for _, track := range source.Tracks() {
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			audio = track
		} else {
			video = track
		}
	}
	require.NotNil(t, audio)
	require.NotNil(t, video)
	require.True(t, audio.Enabled())

	rec.MuteAudio()
	require.True(t, rec.IsAudioMuted())
	require.False(t, audio.Enabled())
	require.True(t, video.Enabled())

	rec.UnmuteAudio()
	require.False(t, rec.IsAudioMuted())
	require.True(t, audio.Enabled())
	require.True(t, video.Enabled())
}

func TestMuteBeforeAcquisition(t *testing.T) {
	t.Parallel()

	rec, source, _ := newRecorder(t, mediarecorder.DefaultOptions())

	// Muting with no stream only flips the flag...
	rec.MuteAudio()
	require.True(t, rec.IsAudioMuted())

	// ...and the flag is applied to tracks acquired later.
	require.NoError(t, rec.GetMediaStream(context.Background()))

	for _, track := range source.Tracks() {
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			require.False(t, track.Enabled())
		}
	}
}

func TestClearMediaStream(t *testing.T) {
	t.Parallel()

	rec, source, _ := newRecorder(t, mediarecorder.DefaultOptions())

	require.NoError(t, rec.GetMediaStream(context.Background()))
	require.NotNil(t, rec.LiveStream())

	rec.ClearMediaStream()
	require.Equal(t, mediarecorder.StatusIdle, rec.Status())
	require.Nil(t, rec.LiveStream())

	for _, track := range source.Tracks() {
		require.Equal(t, 1, track.StopCount())
	}

	// Clearing again must not double-stop anything.
	rec.ClearMediaStream()

	for _, track := range source.Tracks() {
		require.Equal(t, 1, track.StopCount())
	}
}

func TestClearMediaBlob(t *testing.T) {
	t.Parallel()

	rec, _, factory := newRecorder(t, mediarecorder.DefaultOptions())

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	factory.LastEncoder().EmitChunk([]byte("x"), "audio/webm")
	require.NoError(t, rec.StopRecording())
	require.NotNil(t, rec.MediaBlob())

	rec.ClearMediaBlob()
	require.Nil(t, rec.MediaBlob())
	require.Equal(t, mediarecorder.StatusStopped, rec.Status())
}

func TestLiveStreamIsVideoOnlyAndFresh(t *testing.T) {
	t.Parallel()

	rec, _, _ := newRecorder(t, mediarecorder.DefaultOptions())

	require.NoError(t, rec.GetMediaStream(context.Background()))

	first := rec.LiveStream()
	require.NotNil(t, first)
	require.Empty(t, first.GetAudioTracks())
	require.Len(t, first.GetVideoTracks(), 1)

	second := rec.LiveStream()
	require.NotEqual(t, first.ID(), second.ID())
}

func TestTeardownDuringAcquisition(t *testing.T) {
	t.Parallel()

	rec, source, _ := newRecorder(t, mediarecorder.DefaultOptions())

	inFlight := make(chan struct{})
	release := make(chan struct{})
	source.BeforeAcquire = func() {
		close(inFlight)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		done <- rec.GetMediaStream(context.Background())
	}()

	<-inFlight
	require.Equal(t, mediarecorder.StatusAcquiringMedia, rec.Status())

	rec.ClearMediaStream()
	close(release)
	require.NoError(t, <-done)

	// The late stream was discarded and its tracks stopped.
	require.Equal(t, mediarecorder.StatusIdle, rec.Status())
	require.Nil(t, rec.LiveStream())

	for _, track := range source.Tracks() {
		require.Equal(t, 1, track.StopCount())
	}
}

func TestCloseDuringAcquisition(t *testing.T) {
	t.Parallel()

	rec, source, _ := newRecorder(t, mediarecorder.DefaultOptions())

	inFlight := make(chan struct{})
	release := make(chan struct{})
	source.BeforeAcquire = func() {
		close(inFlight)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		done <- rec.GetMediaStream(context.Background())
	}()

	<-inFlight
	require.NoError(t, rec.Close())
	close(release)
	require.NoError(t, <-done)

	for _, track := range source.Tracks() {
		require.Equal(t, 1, track.StopCount())
	}

	require.ErrorIs(t, rec.GetMediaStream(context.Background()), mediarecorder.ErrRecorderClosed)
	require.ErrorIs(t, rec.StartRecording(context.Background(), 0), mediarecorder.ErrRecorderClosed)
}

func TestCustomMediaStream(t *testing.T) {
	t.Parallel()

	audio := testhelper.NewTrack(webrtc.RTPCodecTypeAudio)
	video := testhelper.NewTrack(webrtc.RTPCodecTypeVideo)

	opts := mediarecorder.Options{
		CustomMediaStream: mediarecorder.NewMediaStream(audio, video),
		Logger:            TestLogger,
	}

	factory := testhelper.NewEncoderFactory()

	rec, err := mediarecorder.New(nil, factory, opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = rec.Close() })

	require.NoError(t, rec.GetMediaStream(context.Background()))
	require.Equal(t, mediarecorder.StatusReady, rec.Status())
	require.Len(t, rec.LiveStream().GetVideoTracks(), 1)

	require.NoError(t, rec.StartRecording(context.Background(), 0))
	require.Len(t, factory.Encoders(), 1)
}

func TestScreenRecordingComposition(t *testing.T) {
	t.Parallel()

	source := testhelper.NewDisplaySource()
	factory := testhelper.NewEncoderFactory()

	opts := mediarecorder.DefaultOptions()
	opts.RecordScreen = true
	opts.Logger = TestLogger

	rec, err := mediarecorder.New(source, factory, opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = rec.Close() })

	require.NoError(t, rec.GetMediaStream(context.Background()))
	require.Equal(t, mediarecorder.StatusReady, rec.Status())

	// One display acquisition for video, one microphone acquisition for
	// audio, merged into a single stream.
	require.Equal(t, 1, source.DisplayMediaCalls())
	require.Equal(t, 1, source.UserMediaCalls())
	require.Len(t, rec.LiveStream().GetVideoTracks(), 1)

	rec.MuteAudio()

	var muted int
	for _, track := range source.Tracks() {
		if track.Kind() == webrtc.RTPCodecTypeAudio && !track.Enabled() {
			muted++
		}
	}
	require.Equal(t, 1, muted)
}

func TestScreenRecordingWithoutAudio(t *testing.T) {
	t.Parallel()

	source := testhelper.NewDisplaySource()
	factory := testhelper.NewEncoderFactory()

	opts := mediarecorder.Options{
		MediaStreamConstraints: mediarecorder.MediaStreamConstraints{
			Video: mediarecorder.TrackConstraints{},
		},
		RecordScreen: true,
		Logger:       TestLogger,
	}

	rec, err := mediarecorder.New(source, factory, opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = rec.Close() })

	require.NoError(t, rec.GetMediaStream(context.Background()))
	require.Equal(t, 1, source.DisplayMediaCalls())
	require.Equal(t, 0, source.UserMediaCalls())
}
