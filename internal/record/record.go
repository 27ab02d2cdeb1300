// Package record implements the on-disk log record codec described in the
// storage engine's data model: a fixed 16-byte big-endian header
// (timestamp, key size, value size) followed by the key and value bytes.
package record

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed size, in bytes, of a record header:
// an 8-byte timestamp plus two 4-byte length fields.
const HeaderSize = 16

// Record is one log entry as it is about to be appended to the active
// segment. Key and Value are opaque byte strings; the wire layer is
// responsible for any textual interpretation.
type Record struct {
	Timestamp int64
	Key       []byte
	Value     []byte
}

// Encode serializes r into a single contiguous byte slice in the order
// timestamp | key_size | value_size | key | value, so that callers can
// hand the result to one append call.
func (r Record) Encode() []byte {
	buf := make([]byte, HeaderSize+len(r.Key)+len(r.Value))
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.Timestamp))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Key)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(r.Value)))
	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+len(r.Key):], r.Value)
	return buf
}

// Replayed describes what recovery needs from one record on disk: enough
// to populate a key directory entry without ever materializing the value.
type Replayed struct {
	Timestamp     int64
	Key           []byte
	ValueSize     uint32
	ValuePosition int64
}

// ReadNext parses one record boundary from r, which must be positioned at
// the start of a header. offset is the absolute file position of that
// header, used to compute the absolute value position for the key
// directory entry.
//
// ReadNext never reads the value payload; it seeks past it with Discard.
// Per the codec's failure contract: reading zero header bytes returns io.EOF
// (clean end-of-log); a partial header, a short key read or a short value
// discard returns io.ErrUnexpectedEOF (a truncated trailing record — also a
// clean replay stop, never a hard error).
func ReadNext(r *bufio.Reader, offset int64) (Replayed, int64, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil {
		if n == 0 && err == io.EOF {
			return Replayed{}, 0, io.EOF
		}
		return Replayed{}, 0, io.ErrUnexpectedEOF
	}

	timestamp := int64(binary.BigEndian.Uint64(header[0:8]))
	keySize := binary.BigEndian.Uint32(header[8:12])
	valueSize := binary.BigEndian.Uint32(header[12:16])

	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return Replayed{}, 0, io.ErrUnexpectedEOF
	}

	valuePosition := offset + HeaderSize + int64(keySize)

	if discarded, err := r.Discard(int(valueSize)); err != nil || discarded != int(valueSize) {
		return Replayed{}, 0, io.ErrUnexpectedEOF
	}

	recordLen := int64(HeaderSize) + int64(keySize) + int64(valueSize)
	return Replayed{
		Timestamp:     timestamp,
		Key:           key,
		ValueSize:     valueSize,
		ValuePosition: valuePosition,
	}, recordLen, nil
}

// ValidateHeader is a defensive guard used by the engine when computing a
// value position from a freshly appended record; it exists so a future
// multi-field header change can't silently desync Put's arithmetic from
// Encode's layout.
func ValidateHeader(totalWritten, keySize, valueSize int) error {
	if totalWritten != HeaderSize+keySize+valueSize {
		return fmt.Errorf("record: header size mismatch: wrote %d bytes for key=%d value=%d", totalWritten, keySize, valueSize)
	}
	return nil
}
