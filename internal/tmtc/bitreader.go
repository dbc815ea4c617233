package tmtc

import (
	"github.com/cockroachdb/errors"
)

// ErrDecode marks fatal, packet-scoped decode failures: exhausted input,
// cursor moves outside the buffer, unknown stream types, or an out-of-range
// continuation selector. Callers test with errors.Is.
var ErrDecode = errors.New("tmtc: decode error")

// ErrInsufficientBits is returned when a read or cursor move runs past the
// end of the buffer. It is a decode error.
var ErrInsufficientBits = errors.Mark(errors.New("tmtc: insufficient bits in stream"), ErrDecode)

// Reader reads MSB-first bit fields out of a byte buffer. The cursor may be
// repositioned freely, including backwards, which overlapping variable
// fields require.
type Reader struct {
	data   []byte
	offset int // current bit position
	nbits  int
}

// NewReader wraps a byte buffer with the cursor at bit zero.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, nbits: len(data) * 8}
}

// Pos returns the cursor's bit position.
func (r *Reader) Pos() int { return r.offset }

// Remaining returns how many bits are left in front of the cursor.
func (r *Reader) Remaining() int { return r.nbits - r.offset }

// Seek puts the cursor at an absolute bit position.
func (r *Reader) Seek(bitPos int) error {
	if bitPos < 0 || bitPos > r.nbits {
		return errors.Wrapf(ErrInsufficientBits, "seek to bit %d of %d", bitPos, r.nbits)
	}
	r.offset = bitPos
	return nil
}

// Skip moves the cursor by a signed number of bits.
func (r *Reader) Skip(bits int) error {
	return r.Seek(r.offset + bits)
}

// ReadBits reads up to 64 bits at the cursor and advances past them.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, errors.Wrapf(ErrDecode, "bit count %d out of range 0-64", n)
	}
	if n == 0 {
		return 0, nil
	}
	if r.offset+n > r.nbits {
		return 0, errors.Wrapf(ErrInsufficientBits, "read %d bits at bit %d of %d", n, r.offset, r.nbits)
	}

	var v uint64
	off, remaining := r.offset, n
	for remaining > 0 {
		byteIdx := off / 8
		bitIdx := off % 8
		take := 8 - bitIdx
		if take > remaining {
			take = remaining
		}
		chunk := (r.data[byteIdx] >> (8 - bitIdx - take)) & (1<<take - 1)
		v = v<<take | uint64(chunk)
		off += take
		remaining -= take
	}
	r.offset = off
	return v, nil
}

// ReadUnsigned reads an unsigned integer of the given bit width.
func (r *Reader) ReadUnsigned(width int) (uint64, error) {
	return r.ReadBits(width)
}

// ReadSigned reads a two's-complement signed integer of the given bit width.
func (r *Reader) ReadSigned(width int) (int64, error) {
	v, err := r.ReadBits(width)
	if err != nil {
		return 0, err
	}
	if width > 0 && width < 64 && v&(1<<(width-1)) != 0 {
		v |= ^uint64(0) << width
	}
	return int64(v), nil
}
