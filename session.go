package mediarecorder

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/jaevor/go-nanoid"
)

var newSessionID = mustSessionIDGenerator()

func mustSessionIDGenerator() func() string {
	gen, err := nanoid.Standard(16)
	if err != nil {
		panic(err)
	}

	return gen
}

// session bundles one encoder with its three registered listeners and the
// chunks it delivered. A session is created fresh on every recording start
// and torn down exactly once, so listeners of an old encoder can never leak
// into the next recording.
type session struct {
	id      string
	encoder Encoder

	mu     sync.Mutex
	chunks []DataChunk
	done   bool
}

func newSession(encoders EncoderFactory, stream MediaStream, opts EncoderOptions) (*session, error) {
	encoder, err := encoders.NewEncoder(stream, opts)
	if err != nil {
		return nil, err
	}

	return &session{
		id:      newSessionID(),
		encoder: encoder,
		chunks:  make([]DataChunk, 0),
	}, nil
}

func (s *session) register(onData func(chunk DataChunk), onStop func(), onErr func(err error)) {
	s.encoder.OnDataAvailable(onData)
	s.encoder.OnStop(onStop)
	s.encoder.OnError(onErr)
}

func (s *session) start(timeslice time.Duration) error {
	return s.encoder.Start(timeslice)
}

// addChunk accumulates a delivered chunk. Empty chunks are dropped here but
// still reach the caller's OnDataAvailable.
func (s *session) addChunk(chunk DataChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		glog.Warning("mediarecorder: chunk delivered after session teardown, dropping")
		return
	}

	if len(chunk.Data) == 0 {
		return
	}

	s.chunks = append(s.chunks, chunk)
}

// takeChunks returns the accumulated chunks and empties the buffer.
func (s *session) takeChunks() []DataChunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.chunks
	s.chunks = make([]DataChunk, 0)

	return chunks
}

// teardown deregisters the listeners. Safe to call more than once; only the
// first call detaches.
func (s *session) teardown() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}

	s.done = true
	s.mu.Unlock()

	s.encoder.OnDataAvailable(nil)
	s.encoder.OnStop(nil)
	s.encoder.OnError(nil)
}
