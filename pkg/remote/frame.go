// Package remote implements the object exchange format: a stream of framed
// objects and branch heads that moves history between repositories.
package remote

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/odvcencio/geogot/pkg/object"
)

// Frame tags.
const (
	TagCommit byte = 'C'
	TagTree   byte = 'T'
	TagBlob   byte = 'B'
	// TagBranch frames advertise a branch head: the id is the head commit
	// and the payload the branch name.
	TagBranch byte = 'N'
)

const (
	lengthDigits = 10
	headerSize   = 1 + object.IDSize + lengthDigits
	// MaxFrameSize is the largest payload a 10-digit length can describe.
	MaxFrameSize = 9_999_999_999
)

// ErrFrame is returned for malformed frames.
var ErrFrame = errors.New("malformed frame")

// Frame is one unit of the exchange stream:
//
//	[tag byte][id 20B][length: 10 zero-padded decimal digits][payload]
type Frame struct {
	Tag     byte
	ID      object.ID
	Payload []byte
}

// TagFor maps an object type to its frame tag.
func TagFor(t object.Type) (byte, bool) {
	switch t {
	case object.TypeCommit:
		return TagCommit, true
	case object.TypeTree:
		return TagTree, true
	case object.TypeFeature:
		return TagBlob, true
	default:
		return 0, false
	}
}

// typeFor maps an object frame tag back to the object type it carries.
func typeFor(tag byte) (object.Type, bool) {
	switch tag {
	case TagCommit:
		return object.TypeCommit, true
	case TagTree:
		return object.TypeTree, true
	case TagBlob:
		return object.TypeFeature, true
	default:
		return 0, false
	}
}

// WriteFrame writes f to w.
func WriteFrame(w io.Writer, f Frame) error {
	if int64(len(f.Payload)) > MaxFrameSize {
		return fmt.Errorf("write frame %s: payload of %d bytes too large", f.ID.Short(), len(f.Payload))
	}
	header := make([]byte, 0, headerSize)
	header = append(header, f.Tag)
	header = append(header, f.ID[:]...)
	header = fmt.Appendf(header, "%0*d", lengthDigits, len(f.Payload))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame %s: %w", f.ID.Short(), err)
	}
	if _, err := w.Write(f.Payload); err != nil {
		return fmt.Errorf("write frame %s: %w", f.ID.Short(), err)
	}
	return nil
}

// ReadFrame reads the next frame. A clean end of stream before a header
// returns io.EOF; a stream cut inside a frame is ErrFrame.
func ReadFrame(r io.Reader, maxPayload int64) (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read frame header: %w: %v", ErrFrame, err)
	}
	f := Frame{Tag: header[0]}
	copy(f.ID[:], header[1:1+object.IDSize])

	digits := header[1+object.IDSize:]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return Frame{}, fmt.Errorf("read frame %s: %w: length %q", f.ID.Short(), ErrFrame, digits)
		}
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame %s: %w: %v", f.ID.Short(), ErrFrame, err)
	}
	if maxPayload > 0 && n > maxPayload {
		return Frame{}, fmt.Errorf("read frame %s: %w: payload of %d bytes exceeds limit %d", f.ID.Short(), ErrFrame, n, maxPayload)
	}
	f.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, fmt.Errorf("read frame %s: %w: payload: %v", f.ID.Short(), ErrFrame, err)
	}
	return f, nil
}
