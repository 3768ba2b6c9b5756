package pieces

import "github.com/namvu9/btcore/pkg/bits"

// Selector decides the order in which the pieces a peer
// has are considered by NextRequest. It only orders
// candidates; block bookkeeping stays with the Manager, so
// any Selector keeps one outstanding request per block.
type Selector interface {
	Order(available bits.BitField) []int
}

// SelectorFunc adapts a function to the Selector interface
type SelectorFunc func(available bits.BitField) []int

func (fn SelectorFunc) Order(available bits.BitField) []int {
	return fn(available)
}

// FirstFit considers pieces lowest index first
var FirstFit Selector = SelectorFunc(func(available bits.BitField) []int {
	return available.Indices()
})
