package packet

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer writes little-endian primitives into a growable buffer
type Writer struct {
	buf bytes.Buffer
	tmp [binary.MaxVarintLen64]byte
}

// NewWriter creates an empty Writer
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes. The slice aliases the buffer until the next write.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of written bytes
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset discards everything written so far
func (w *Writer) Reset() {
	w.buf.Reset()
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// WriteUint8 appends one byte
func (w *Writer) WriteUint8(v uint8) {
	w.buf.WriteByte(v)
}

// WriteInt8 appends one signed byte
func (w *Writer) WriteInt8(v int8) {
	w.buf.WriteByte(byte(v))
}

// WriteBool appends 1 for true and 0 for false
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// WriteUint16 appends a little-endian uint16
func (w *Writer) WriteUint16(v uint16) {
	binary.LittleEndian.PutUint16(w.tmp[:2], v)
	w.buf.Write(w.tmp[:2])
}

// WriteInt16 appends a little-endian int16
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteUint32 appends a little-endian uint32
func (w *Writer) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.tmp[:4], v)
	w.buf.Write(w.tmp[:4])
}

// WriteInt32 appends a little-endian int32
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 appends a little-endian uint64
func (w *Writer) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(w.tmp[:8], v)
	w.buf.Write(w.tmp[:8])
}

// WriteInt64 appends a little-endian int64
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 appends a little-endian IEEE 754 float32
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 appends a little-endian IEEE 754 float64
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteUleb128 writes an unsigned LEB128 varint
func (w *Writer) WriteUleb128(v uint64) {
	n := binary.PutUvarint(w.tmp[:], v)
	w.buf.Write(w.tmp[:n])
}

// WriteString writes 0x00 for the empty string, otherwise 0x0b, the ULEB128 length and the bytes
func (w *Writer) WriteString(s string) {
	if s == "" {
		w.buf.WriteByte(0x00)
		return
	}
	w.buf.WriteByte(0x0b)
	w.WriteUleb128(uint64(len(s)))
	w.buf.WriteString(s)
}

// WriteBytes writes b prefixed by its int32 length
func (w *Writer) WriteBytes(b []byte) {
	w.WriteInt32(int32(len(b)))
	w.buf.Write(b)
}

// WriteInt32List writes an int16 count followed by the values
func (w *Writer) WriteInt32List(list []int32) {
	w.WriteInt16(int16(len(list)))
	for _, v := range list {
		w.WriteInt32(v)
	}
}
