// Package devices implements a mediarecorder.StreamSource on top of
// pion/mediadevices, so the recorder can capture from real cameras,
// microphones and screens. Callers must blank-import the mediadevices
// drivers they want available, e.g.
//
//	_ "github.com/pion/mediadevices/pkg/driver/camera"
//	_ "github.com/pion/mediadevices/pkg/driver/microphone"
//	_ "github.com/pion/mediadevices/pkg/driver/screen"
package devices

import (
	"context"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/inlivedev/mediarecorder"
)

// Source acquires live media through pion/mediadevices. It implements both
// mediarecorder.StreamSource and mediarecorder.DisplaySource.
type Source struct {
	codec *mediadevices.CodecSelector
}

// NewSource creates a source. The codec selector may be nil when tracks are
// consumed raw.
func NewSource(codec *mediadevices.CodecSelector) *Source {
	return &Source{codec: codec}
}

func (s *Source) GetUserMedia(_ context.Context, constraints mediarecorder.MediaStreamConstraints) (mediarecorder.MediaStream, error) {
	stream, err := mediadevices.GetUserMedia(s.mediaConstraints(constraints))
	if err != nil {
		return nil, err
	}

	return newStream(stream), nil
}

func (s *Source) GetDisplayMedia(_ context.Context, constraints mediarecorder.MediaStreamConstraints) (mediarecorder.MediaStream, error) {
	stream, err := mediadevices.GetDisplayMedia(s.mediaConstraints(constraints))
	if err != nil {
		return nil, err
	}

	return newStream(stream), nil
}

// SupportedConstraints lists the constraint keys mediaOption maps onto
// mediadevices properties.
func (s *Source) SupportedConstraints() []string {
	return []string{"deviceId", "width", "height", "frameRate", "sampleRate", "channelCount"}
}

func (s *Source) mediaConstraints(constraints mediarecorder.MediaStreamConstraints) mediadevices.MediaStreamConstraints {
	md := mediadevices.MediaStreamConstraints{
		Codec: s.codec,
	}

	if constraints.Audio != nil {
		md.Audio = mediaOption(constraints.Audio)
	}

	if constraints.Video != nil {
		md.Video = mediaOption(constraints.Video)
	}

	return md
}

func mediaOption(tc mediarecorder.TrackConstraints) mediadevices.MediaOption {
	return func(c *mediadevices.MediaTrackConstraints) {
		for key, value := range tc {
			switch key {
			case "deviceId":
				if s, ok := value.(string); ok {
					c.DeviceID = prop.String(s)
				}
			case "width":
				if n, ok := toInt(value); ok {
					c.Width = prop.Int(n)
				}
			case "height":
				if n, ok := toInt(value); ok {
					c.Height = prop.Int(n)
				}
			case "frameRate":
				if f, ok := toFloat(value); ok {
					c.FrameRate = prop.Float(f)
				}
			case "sampleRate":
				if n, ok := toInt(value); ok {
					c.SampleRate = prop.Int(n)
				}
			case "channelCount":
				if n, ok := toInt(value); ok {
					c.ChannelCount = prop.Int(n)
				}
			}
		}
	}
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func toFloat(value interface{}) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	default:
		return 0, false
	}
}
