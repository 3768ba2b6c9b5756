package peer

import (
	"github.com/namvu9/btcore/pkg/bits"
)

// Bit positions in the reserved handshake bytes, counted
// from the most significant bit of the first byte
const (
	// LTEP Extension Protocol (BEP-10)
	ExtProtocol = 43
	ExtFast     = 61
	ExtDHT      = 63
)

// Extensions is a view of the 64 reserved handshake bits
type Extensions struct {
	bits bits.BitField
}

func NewExtensions(reserved [8]byte) Extensions {
	bf, _ := bits.FromBytes(reserved[:], 64)
	return Extensions{bits: bf}
}

func (ext Extensions) Enable(bitIdx int) error {
	return ext.bits.Set(bitIdx)
}

func (ext Extensions) IsEnabled(bitIdx int) bool {
	return ext.bits.Get(bitIdx)
}

// Enabled returns the positions of all set bits
func (ext Extensions) Enabled() []int {
	return ext.bits.Indices()
}

func (ext Extensions) ReservedBytes() [8]byte {
	var out [8]byte
	copy(out[:], ext.bits.Bytes())
	return out
}
