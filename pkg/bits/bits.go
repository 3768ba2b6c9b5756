package bits

import (
	"bytes"
	"fmt"
	mbits "math/bits"
)

// BitField is a fixed-size bit vector with one bit per
// piece. The first byte corresponds to indices 0 - 7 from
// high bit to low bit, respectively. The next one 8-15,
// etc. Spare bits at the end are always zero.
type BitField struct {
	data []byte
	n    int
}

// OutOfBoundsError is returned when an index is outside
// [0, Len())
type OutOfBoundsError struct {
	Index int
	Len   int
}

func (e OutOfBoundsError) Error() string {
	return fmt.Sprintf("index %d out of bounds (len %d)", e.Index, e.Len)
}

// New returns an empty bitfield for n pieces
func New(n int) BitField {
	if n < 0 {
		n = 0
	}

	return BitField{
		data: make([]byte, byteLen(n)),
		n:    n,
	}
}

// FromBytes builds an n-bit bitfield from its wire format.
// data must hold at least ceil(n/8) bytes. Extra bytes are
// ignored and spare bits in the last byte are cleared.
func FromBytes(data []byte, n int) (BitField, error) {
	required := byteLen(n)
	if len(data) < required {
		return BitField{}, fmt.Errorf("invalid bitfield length: want >= %d got %d", required, len(data))
	}

	bf := BitField{
		data: make([]byte, required),
		n:    n,
	}
	copy(bf.data, data[:required])
	bf.clearSpare()

	return bf, nil
}

// Ones returns an n-length bitfield with all bits set to 1
func Ones(n int) BitField {
	bf := New(n)
	for i := range bf.data {
		bf.data[i] = 0xFF
	}
	bf.clearSpare()

	return bf
}

// Bytes returns a copy of the bitfield in wire format
func (bf BitField) Bytes() []byte {
	out := make([]byte, len(bf.data))
	copy(out, bf.data)

	return out
}

// Len returns the number of pieces represented by the
// bitfield
func (bf BitField) Len() int {
	return bf.n
}

// Get reports whether the bit at index is set. Indices
// outside the bitfield are reported as unset.
func (bf BitField) Get(index int) bool {
	if index < 0 || index >= bf.n {
		return false
	}

	return bf.data[index/8]&mask(index) != 0
}

func (bf BitField) Set(index int) error {
	if index < 0 || index >= bf.n {
		return OutOfBoundsError{Index: index, Len: bf.n}
	}

	bf.data[index/8] |= mask(index)
	return nil
}

func (bf BitField) Unset(index int) error {
	if index < 0 || index >= bf.n {
		return OutOfBoundsError{Index: index, Len: bf.n}
	}

	bf.data[index/8] &^= mask(index)
	return nil
}

// Count returns the total number of set (1) bits
func (bf BitField) Count() int {
	var sum int
	for _, b := range bf.data {
		sum += mbits.OnesCount8(b)
	}

	return sum
}

// Indices returns the indices of the set bits in
// ascending order
//
// Example:
// {0b11000000, 0b10000000} -> []int{0, 1, 8}
func (bf BitField) Indices() []int {
	var out []int
	for i := 0; i < bf.n; i++ {
		if bf.Get(i) {
			out = append(out, i)
		}
	}

	return out
}

func (bf BitField) Equal(other BitField) bool {
	return bf.n == other.n && bytes.Equal(bf.data, other.data)
}

// Clone returns a deep copy
func (bf BitField) Clone() BitField {
	return BitField{data: bf.Bytes(), n: bf.n}
}

func (bf BitField) clearSpare() {
	if used := bf.n % 8; used != 0 && len(bf.data) > 0 {
		bf.data[len(bf.data)-1] &= byte(0xFF << (8 - used))
	}
}

func mask(index int) byte {
	return byte(128 >> (index % 8))
}

func byteLen(n int) int {
	return (n + 7) / 8
}
