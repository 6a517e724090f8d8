// Package leb128 implements the LEB128 variable-length integer encoding
// used for every immediate in the WebAssembly binary format: unsigned
// LEB128 for indices, signed LEB128 for constants.
//
// internal/wazeroir uses these decoders when it lowers function bodies
// ahead of time. The interpreter executes the lowered operations and does
// no LEB128 decoding of its own; its dispatch loop has no inlined
// single-byte decode.
package leb128

import (
	"fmt"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen33 = 5
	maxVarintLen64 = 10
)

// DecodeUint32 reads an unsigned LEB128-encoded uint32 from r.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	var result uint32
	var shift, bytesRead uint32
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		bytesRead++
		if shift == 28 && (b&0xf0) != 0 {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding for uint32: overflow")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 35 {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding for uint32: too many bytes")
		}
	}
	return result, uint64(bytesRead), nil
}

// LoadUint32 decodes an unsigned LEB128 uint32 directly from a byte slice,
// returning the value and number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	return DecodeUint32(&byteSliceReader{buf: buf})
}

// DecodeUint64 reads an unsigned LEB128-encoded uint64 from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	var result uint64
	var shift uint
	var bytesRead uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		bytesRead++
		if shift == 63 && b > 1 {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding for uint64: overflow")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 70 {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding for uint64: too many bytes")
		}
	}
	return result, bytesRead, nil
}

// LoadUint64 decodes an unsigned LEB128 uint64 directly from a byte slice.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return DecodeUint64(&byteSliceReader{buf: buf})
}

// DecodeInt32 reads a signed LEB128-encoded int32 from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// LoadInt32 decodes a signed LEB128 int32 directly from a byte slice.
func LoadInt32(buf []byte) (int32, uint64, error) {
	return DecodeInt32(&byteSliceReader{buf: buf})
}

// DecodeInt64 reads a signed LEB128-encoded int64 from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64)
}

// LoadInt64 decodes a signed LEB128 int64 directly from a byte slice.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return DecodeInt64(&byteSliceReader{buf: buf})
}

// DecodeInt33AsInt64 decodes a signed LEB128 value of at most 33 significant
// bits (used for the s33 block-type immediate) sign-extended into an int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33)
}

func decodeSigned(r io.ByteReader, bitWidth uint) (int64, uint64, error) {
	var result int64
	var shift uint
	var bytesRead uint64
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		bytesRead++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= bitWidth+7 {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: too many bytes for %d bits", bitWidth)
		}
	}
	// Sign-extend if the sign bit of the last read byte group is set and we
	// haven't consumed the full width.
	if shift < 64 && (b&0x40) != 0 {
		result |= -1 << shift
	}
	if bitWidth < 64 {
		// Reject encodings whose significant bits don't fit, mirroring the
		// validation a real decoder (external to this interpreter) performs.
		max := int64(1) << (bitWidth - 1)
		if result >= max || result < -max {
			// Only an error if the dropped bits aren't just sign-extension
			// padding consistent with the value's own sign.
			if !(result>>(bitWidth-1) == -1 || result>>(bitWidth-1) == 0) {
				return 0, 0, fmt.Errorf("invalid LEB128 encoding: overflow for %d bits", bitWidth)
			}
		}
	}
	return result, bytesRead, nil
}

type byteSliceReader struct {
	buf []byte
	pos int
}

func (b *byteSliceReader) ReadByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

// EncodeInt32 encodes a signed LEB128 int32. Used by tests and by tooling
// that constructs wasm bytecode in-process; the interpreter itself never
// encodes, only decodes.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes a signed LEB128 int64.
func EncodeInt64(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}

// EncodeUint32 encodes an unsigned LEB128 uint32.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes an unsigned LEB128 uint64.
func EncodeUint64(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}
