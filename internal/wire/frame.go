package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// headerSize is the fixed, wire-stable byte size of Header:
// code(4) + dataLength(4) + messageNumber(4) + activityId(4, signed) +
// timestamp seconds(8) + timestamp micros(4) + sender(16) + receiver(16).
const headerSize = 4 + 4 + 4 + 4 + 8 + 4 + 16 + 16

// NoActivityID is the sentinel activityId carried on the wire for messages
// not tied to any activity.
const NoActivityID int32 = -1

// Header is the fixed frame header every proxy-hardware link carries ahead
// of a typed body. All multi-byte fields travel in network
// (big-endian) byte order.
type Header struct {
	Code          Code
	DataLength    uint32
	MessageNumber uint32 // monotonic sender counter, 1-based
	ActivityID    int32
	TimestampSec  int64
	TimestampUsec uint32
	Sender        [16]byte
	Receiver      [16]byte
}

// NewID returns a fresh 16-byte sender/receiver identifier, backed by a
// random UUID the way the frame header's fixed-size IDs are populated.
func NewID() [16]byte {
	var b [16]byte
	id := uuid.New()
	copy(b[:], id[:])
	return b
}

func IDToUUID(b [16]byte) uuid.UUID { return uuid.UUID(b) }

// NowTimestamp splits the current time into the header's seconds+microseconds
// pair.
func NowTimestamp(t time.Time) (sec int64, usec uint32) {
	return t.Unix(), uint32(t.Nanosecond() / 1000)
}

// Marshal writes header then body to w, normalizing endianness. body may be
// nil for header-only messages (e.g. REQUEST_STATUS).
func Marshal(w io.Writer, h Header, body []byte) error {
	h.DataLength = uint32(len(body))
	buf := make([]byte, headerSize)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], uint32(h.Code))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.DataLength)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.MessageNumber)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(h.ActivityID))
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(h.TimestampSec))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], h.TimestampUsec)
	off += 4
	copy(buf[off:off+16], h.Sender[:])
	off += 16
	copy(buf[off:off+16], h.Receiver[:])

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("wire: write body: %w", err)
		}
	}
	return nil
}

// BodySizeValidator returns the expected body size for a message code, or
// ok=false if the code is unknown to the caller. A receiver that sees
// DataLength outside the advertised size for Code must drop the
// connection. A size of -1 means "variable, caller validates a range
// instead".
type BodySizeValidator func(code Code) (size int, ok bool)

// ErrBadFrameSize is returned by Demarshal when the caller's validator
// rejects a header's advertised DataLength for its Code.
var ErrBadFrameSize = fmt.Errorf("wire: dataLength outside advertised size for code")

// Demarshal reads one frame from r (a *bufio.Reader so short reads are
// transparently retried) and returns the header and body. If validate is
// non-nil and rejects the header's DataLength for its Code, the connection
// must be dropped by the caller; Demarshal returns ErrBadFrameSize and the
// caller is expected to close the socket rather than attempt resync.
func Demarshal(r *bufio.Reader, validate BodySizeValidator) (Header, []byte, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, nil, err
	}
	var h Header
	off := 0
	h.Code = Code(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	h.DataLength = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.MessageNumber = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.ActivityID = int32(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	h.TimestampSec = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	h.TimestampUsec = binary.BigEndian.Uint32(buf[off:])
	off += 4
	copy(h.Sender[:], buf[off:off+16])
	off += 16
	copy(h.Receiver[:], buf[off:off+16])

	if validate != nil {
		if size, ok := validate(h.Code); ok && size >= 0 && int(h.DataLength) != size {
			return h, nil, ErrBadFrameSize
		}
	}

	if h.DataLength == 0 {
		return h, nil, nil
	}
	body := make([]byte, h.DataLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, err
	}
	return h, body, nil
}
