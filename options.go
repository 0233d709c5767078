package mediarecorder

import (
	"github.com/pion/logging"
	"golang.org/x/exp/slices"
)

// BlobOptions override properties of the finalized blob.
type BlobOptions struct {
	// MimeType replaces the mime type derived from the first chunk.
	MimeType string
}

type Options struct {
	// MediaStreamConstraints select the tracks to acquire. Required unless a
	// CustomMediaStream is provided.
	MediaStreamConstraints MediaStreamConstraints
	// RecordScreen captures the display instead of the camera. When an audio
	// constraint is also set, a separate microphone acquisition is merged
	// onto the display stream.
	RecordScreen bool
	// CustomMediaStream skips acquisition entirely and binds this stream.
	CustomMediaStream MediaStream
	// BlobOptions override the finalized blob's properties.
	BlobOptions *BlobOptions
	// EncoderOptions are handed opaquely to the encoder factory.
	EncoderOptions EncoderOptions

	// Session callbacks. All are optional.
	OnStart         func()
	OnStop          func(blob *Blob)
	OnDataAvailable func(chunk DataChunk)
	OnError         func(err error)

	// Logger receives configuration diagnostics. Defaults to the pion
	// default logger factory.
	Logger logging.LeveledLogger
}

func DefaultOptions() Options {
	return Options{
		MediaStreamConstraints: MediaStreamConstraints{
			Audio: TrackConstraints{},
			Video: TrackConstraints{},
		},
	}
}

// validate runs the one-shot configuration check. Missing capabilities are
// fatal; unsupported constraint keys and mime types only log warnings.
func (o *Options) validate(source StreamSource, encoders EncoderFactory) error {
	if source == nil && o.CustomMediaStream == nil {
		return ErrNoStreamSource
	}

	if encoders == nil {
		return ErrNoEncoderFactory
	}

	if o.CustomMediaStream == nil && o.MediaStreamConstraints.IsEmpty() {
		return ErrConstraintsRequired
	}

	if o.RecordScreen && o.CustomMediaStream == nil {
		if _, ok := source.(DisplaySource); !ok {
			return ErrScreenCaptureUnsupported
		}
	}

	if source != nil {
		supported := source.SupportedConstraints()
		for _, key := range o.MediaStreamConstraints.Keys() {
			if !slices.Contains(supported, key) {
				o.Logger.Warnf("constraint %q is not supported by the stream source", key)
			}
		}
	}

	if mime := o.EncoderOptions.MimeType; mime != "" && !encoders.IsMimeTypeSupported(mime) {
		o.Logger.Warnf("mime type %q is not supported by the encoder", mime)
	}

	if o.BlobOptions != nil && o.BlobOptions.MimeType != "" && !encoders.IsMimeTypeSupported(o.BlobOptions.MimeType) {
		o.Logger.Warnf("blob mime type %q is not supported by the encoder", o.BlobOptions.MimeType)
	}

	return nil
}

// blobMimeType returns the configured mime override, or empty when the first
// chunk should decide.
func (o *Options) blobMimeType() string {
	if o.BlobOptions == nil {
		return ""
	}

	return o.BlobOptions.MimeType
}
