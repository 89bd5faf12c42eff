// Package packet implements the bancho binary packet format.
//
// Each packet is a 7 byte header followed by its payload:
//
//	[id int16 LE][compressed bool][length int32 LE][payload]
//
// Packets are concatenated back to back with no other framing.
package packet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bancho-server/internal/domain"
	"github.com/klauspost/compress/gzip"
)

// HeaderSize is the number of bytes preceding every payload
const HeaderSize = 7

var (
	// ErrShortHeader means fewer than HeaderSize bytes remain; decoding should stop
	ErrShortHeader = fmt.Errorf("%w: short header", domain.ErrMalformedPacket)
	// ErrTruncated means the declared payload length exceeds the remaining bytes
	ErrTruncated = fmt.Errorf("%w: truncated payload", domain.ErrMalformedPacket)

	errBadString = fmt.Errorf("%w: bad string", domain.ErrMalformedPacket)
)

// Packet is one decoded protocol unit. Treat it as immutable.
type Packet struct {
	ID         ID
	Compressed bool
	Payload    []byte
}

// New creates an uncompressed packet
func New(id ID, payload []byte) Packet {
	return Packet{ID: id, Payload: payload}
}

// Build creates a packet whose payload is produced by fn
func Build(id ID, fn func(w *Writer)) Packet {
	w := NewWriter()
	if fn != nil {
		fn(w)
	}
	payload := make([]byte, w.Len())
	copy(payload, w.Bytes())
	return Packet{ID: id, Payload: payload}
}

// Decode reads the next packet at the reader's cursor.
// It returns ErrShortHeader when no complete header remains and ErrTruncated when
// the payload is cut short; in both cases the cursor is left where it was.
func Decode(r *Reader) (Packet, error) {
	if r.Remaining() < HeaderSize {
		return Packet{}, ErrShortHeader
	}
	start := r.Offset()

	id, _ := r.ReadInt16()
	compressed, _ := r.ReadBool()
	length, _ := r.ReadInt32()
	if length < 0 || int64(length) > int64(r.Remaining()) {
		_, _ = r.Seek(start, io.SeekStart)
		return Packet{}, fmt.Errorf("packet %d declares %d bytes, %d remain: %w", id, length, r.Remaining()-HeaderSize, ErrTruncated)
	}

	payload, err := r.fixed(int(length))
	if err != nil {
		_, _ = r.Seek(start, io.SeekStart)
		return Packet{}, fmt.Errorf("reading payload: %w", ErrTruncated)
	}
	return Packet{ID: ID(id), Compressed: compressed, Payload: payload}, nil
}

// DecodeAll decodes every complete packet in data, stopping at the first malformed one
func DecodeAll(data []byte) ([]Packet, error) {
	r := NewReader(data)
	var packets []Packet
	for r.Remaining() > 0 {
		p, err := Decode(r)
		if err != nil {
			return packets, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}

// EncodeTo appends the wire form of p to w
func (p Packet) EncodeTo(w *Writer) {
	w.WriteInt16(int16(p.ID))
	w.WriteBool(p.Compressed)
	w.WriteBytes(p.Payload)
}

// Encode returns the wire form of p in a new buffer
func (p Packet) Encode() []byte {
	w := NewWriter()
	p.EncodeTo(w)
	return w.Bytes()
}

// Reader returns a Reader over the packet body
func (p Packet) Reader() (*Reader, error) {
	body, err := p.Body()
	if err != nil {
		return nil, err
	}
	return NewReader(body), nil
}

// Body returns the payload, inflating it when the compressed flag is set
func (p Packet) Body() ([]byte, error) {
	if !p.Compressed {
		return p.Payload, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(p.Payload))
	if err != nil {
		return nil, fmt.Errorf("opening compressed payload: %w", err)
	}
	defer zr.Close()
	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflating payload: %w", err)
	}
	return body, nil
}

// Compress returns a copy of p with a gzip-compressed payload and the flag set
func Compress(p Packet) (Packet, error) {
	if p.Compressed {
		return p, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(p.Payload); err != nil {
		return Packet{}, fmt.Errorf("compressing payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Packet{}, fmt.Errorf("compressing payload: %w", err)
	}
	return Packet{ID: p.ID, Compressed: true, Payload: buf.Bytes()}, nil
}
