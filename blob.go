package mediarecorder

import (
	"github.com/google/uuid"
)

// Blob is the finalized output of one recording session: every non-empty
// chunk concatenated in delivery order.
type Blob struct {
	ID       string
	Data     []byte
	MimeType string
}

// Size returns the blob length in bytes.
func (b *Blob) Size() int {
	return len(b.Data)
}

// buildBlob concatenates the accumulated chunks. The mime type comes from
// the override when configured, otherwise from the first chunk. A session
// that accumulated nothing is an error, not an empty blob.
func buildBlob(chunks []DataChunk, mimeOverride string) (*Blob, error) {
	if len(chunks) == 0 {
		return nil, ErrNoRecordedData
	}

	mimeType := chunks[0].MimeType
	if mimeOverride != "" {
		mimeType = mimeOverride
	}

	size := 0
	for _, c := range chunks {
		size += len(c.Data)
	}

	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c.Data...)
	}

	return &Blob{
		ID:       uuid.New().String(),
		Data:     data,
		MimeType: mimeType,
	}, nil
}
