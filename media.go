package mediarecorder

import (
	"context"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// MediaTrack is a single live audio or video track owned by the host
// capture layer. Disabling a track keeps it alive but silences/blanks it,
// stopping it releases the underlying device.
type MediaTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

// MediaStream is a bundle of live tracks produced by a StreamSource.
type MediaStream interface {
	ID() string
	GetTracks() []MediaTrack
	GetAudioTracks() []MediaTrack
	GetVideoTracks() []MediaTrack
}

// TrackConstraints are the requested properties for one track kind. Keys are
// matched against StreamSource.SupportedConstraints; unsupported keys are
// reported as warnings at setup, not errors.
type TrackConstraints map[string]interface{}

// MediaStreamConstraints selects which kinds of tracks to acquire. A nil map
// means the kind is not requested; an empty non-nil map requests the kind
// with default properties.
type MediaStreamConstraints struct {
	Audio TrackConstraints
	Video TrackConstraints
}

// IsEmpty reports whether no track kind is requested at all.
func (c MediaStreamConstraints) IsEmpty() bool {
	return c.Audio == nil && c.Video == nil
}

// Keys returns every requested constraint key across both kinds.
func (c MediaStreamConstraints) Keys() []string {
	keys := make([]string, 0, len(c.Audio)+len(c.Video))
	for k := range c.Audio {
		keys = append(keys, k)
	}
	for k := range c.Video {
		keys = append(keys, k)
	}

	return keys
}

// StreamSource is the host capability that acquires live media from capture
// devices.
type StreamSource interface {
	GetUserMedia(ctx context.Context, constraints MediaStreamConstraints) (MediaStream, error)
	SupportedConstraints() []string
}

// DisplaySource is implemented by stream sources that can also capture the
// display. Screen recording requires the configured source to implement it.
type DisplaySource interface {
	StreamSource
	GetDisplayMedia(ctx context.Context, constraints MediaStreamConstraints) (MediaStream, error)
}

type trackStream struct {
	id     string
	tracks []MediaTrack
}

// NewMediaStream bundles tracks into a MediaStream with a fresh ID. It is
// used for screen-capture composition and for the video-only live view.
func NewMediaStream(tracks ...MediaTrack) MediaStream {
	s := &trackStream{
		id:     uuid.New().String(),
		tracks: make([]MediaTrack, 0, len(tracks)),
	}

	s.tracks = append(s.tracks, tracks...)

	return s
}

func (s *trackStream) ID() string {
	return s.id
}

func (s *trackStream) GetTracks() []MediaTrack {
	tracks := make([]MediaTrack, len(s.tracks))
	copy(tracks, s.tracks)

	return tracks
}

func (s *trackStream) GetAudioTracks() []MediaTrack {
	return s.kindTracks(webrtc.RTPCodecTypeAudio)
}

func (s *trackStream) GetVideoTracks() []MediaTrack {
	return s.kindTracks(webrtc.RTPCodecTypeVideo)
}

func (s *trackStream) kindTracks(kind webrtc.RTPCodecType) []MediaTrack {
	tracks := make([]MediaTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Kind() == kind {
			tracks = append(tracks, t)
		}
	}

	return tracks
}
