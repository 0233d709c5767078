package devices

import (
	"sync"

	"github.com/golang/glog"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v3"

	"github.com/inlivedev/mediarecorder"
)

// track adapts a mediadevices.Track. mediadevices has no per-track enabled
// switch, so the flag is kept here; consumers reading the track through the
// recorder honor it.
type track struct {
	mu      sync.Mutex
	source  mediadevices.Track
	enabled bool
}

func newTrack(source mediadevices.Track) *track {
	return &track{
		source:  source,
		enabled: true,
	}
}

func (t *track) ID() string {
	return t.source.ID()
}

func (t *track) Kind() webrtc.RTPCodecType {
	return t.source.Kind()
}

func (t *track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.enabled
}

func (t *track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
}

func (t *track) Stop() {
	if err := t.source.Close(); err != nil {
		glog.Warningf("devices: closing track %s: %v", t.source.ID(), err)
	}
}

// Source returns the underlying mediadevices track, for consumers that need
// to read samples or bind it to a peer connection.
func (t *track) Source() mediadevices.Track {
	return t.source
}

type stream struct {
	id     string
	tracks []mediarecorder.MediaTrack
}

// newStream snapshots the mediadevices stream's tracks behind the
// mediarecorder interfaces.
func newStream(source mediadevices.MediaStream) *stream {
	tracks := make([]mediarecorder.MediaTrack, 0)
	for _, t := range source.GetTracks() {
		tracks = append(tracks, newTrack(t))
	}

	s := &stream{tracks: tracks}
	if len(tracks) > 0 {
		s.id = tracks[0].ID()
	}

	return s
}

func (s *stream) ID() string {
	return s.id
}

func (s *stream) GetTracks() []mediarecorder.MediaTrack {
	tracks := make([]mediarecorder.MediaTrack, len(s.tracks))
	copy(tracks, s.tracks)

	return tracks
}

func (s *stream) GetAudioTracks() []mediarecorder.MediaTrack {
	return s.kindTracks(webrtc.RTPCodecTypeAudio)
}

func (s *stream) GetVideoTracks() []mediarecorder.MediaTrack {
	return s.kindTracks(webrtc.RTPCodecTypeVideo)
}

func (s *stream) kindTracks(kind webrtc.RTPCodecType) []mediarecorder.MediaTrack {
	tracks := make([]mediarecorder.MediaTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Kind() == kind {
			tracks = append(tracks, t)
		}
	}

	return tracks
}
