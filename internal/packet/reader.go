package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Reader reads little-endian primitives from a seekable byte cursor
type Reader struct {
	r *bytes.Reader
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return r.r.Len()
}

// Offset returns the current cursor position
func (r *Reader) Offset() int64 {
	return r.r.Size() - int64(r.r.Len())
}

// Seek implements io.Seeker
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	return r.r.Seek(offset, whence)
}

// Read implements io.Reader
func (r *Reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func (r *Reader) fixed(n int) ([]byte, error) {
	if r.r.Len() < n {
		return nil, fmt.Errorf("reading %d bytes: %w", n, io.ErrUnexpectedEOF)
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r.r, buf)
	return buf, err
}

// ReadUint8 reads one byte
func (r *Reader) ReadUint8() (uint8, error) {
	return r.r.ReadByte()
}

// ReadInt8 reads one signed byte
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.r.ReadByte()
	return int8(b), err
}

// ReadBool reads one byte, true when non-zero
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.r.ReadByte()
	return b != 0, err
}

// ReadUint16 reads a little-endian uint16
func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// ReadInt16 reads a little-endian int16
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little-endian uint32
func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadInt32 reads a little-endian int32
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a little-endian uint64
func (r *Reader) ReadUint64() (uint64, error) {
	buf, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadInt64 reads a little-endian int64
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads a little-endian IEEE 754 float32
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads a little-endian IEEE 754 float64
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadUleb128 reads an unsigned LEB128 varint
func (r *Reader) ReadUleb128() (uint64, error) {
	v, err := binary.ReadUvarint(r.r)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return v, err
}

// ReadString reads a string: 0x00 for empty, or 0x0b followed by a ULEB128 length and the bytes
func (r *Reader) ReadString() (string, error) {
	marker, err := r.r.ReadByte()
	if err != nil {
		return "", err
	}
	switch marker {
	case 0x00:
		return "", nil
	case 0x0b:
	default:
		return "", fmt.Errorf("string marker 0x%02x: %w", marker, errBadString)
	}
	n, err := r.ReadUleb128()
	if err != nil {
		return "", err
	}
	if n > uint64(r.r.Len()) {
		return "", fmt.Errorf("string of %d bytes: %w", n, io.ErrUnexpectedEOF)
	}
	buf, err := r.fixed(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadBytes reads a byte array prefixed by its int32 length
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int64(n) > int64(r.r.Len()) {
		return nil, fmt.Errorf("byte array of %d bytes: %w", n, io.ErrUnexpectedEOF)
	}
	return r.fixed(int(n))
}

// ReadInt32List reads an int16 count followed by that many int32 values
func (r *Reader) ReadInt32List() ([]int32, error) {
	n, err := r.ReadInt16()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n)*4 > r.r.Len() {
		return nil, fmt.Errorf("int list of %d entries: %w", n, io.ErrUnexpectedEOF)
	}
	list := make([]int32, n)
	for i := range list {
		if list[i], err = r.ReadInt32(); err != nil {
			return nil, err
		}
	}
	return list, nil
}
