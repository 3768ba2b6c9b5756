package bencode

import (
	"unicode/utf8"

	"github.com/elliotchance/orderedmap"
)

type Kind int

const (
	KindInteger Kind = iota + 1
	KindBytes
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "invalid"
	}
}

// Node is a decoded bencode value together with the
// half-open range [Start, End) it occupied in the source.
// Exactly one of Int, Bytes, List and Dict is meaningful,
// as indicated by Kind.
type Node struct {
	Kind  Kind
	Start int
	End   int

	Int   int64
	Bytes []byte
	List  []*Node

	// Dict maps string(key) to *Node in source order. Keys
	// are raw byte strings; Go strings carry arbitrary bytes
	// so no UTF-8 assumption is made.
	Dict *orderedmap.OrderedMap
}

// Raw returns the exact bytes of src that n was decoded
// from. src must be the buffer passed to Decode.
func (n *Node) Raw(src []byte) []byte {
	if n == nil || n.Start < 0 || n.End > len(src) || n.Start > n.End {
		return nil
	}

	return src[n.Start:n.End]
}

// Get looks up a dictionary entry by its raw key
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindDict {
		return nil, false
	}

	v, ok := n.Dict.Get(key)
	if !ok {
		return nil, false
	}

	node, ok := v.(*Node)
	return node, ok
}

// Keys returns the dictionary keys in source order
func (n *Node) Keys() [][]byte {
	if n == nil || n.Kind != KindDict {
		return nil
	}

	var out [][]byte
	for _, k := range n.Dict.Keys() {
		out = append(out, []byte(k.(string)))
	}

	return out
}

// Len returns the number of elements of a list or entries
// of a dictionary
func (n *Node) Len() int {
	switch {
	case n == nil:
		return 0
	case n.Kind == KindList:
		return len(n.List)
	case n.Kind == KindDict:
		return n.Dict.Len()
	default:
		return 0
	}
}

// Text returns the node's bytes as a string if the node
// is a byte string holding valid UTF-8
func (n *Node) Text() (string, bool) {
	if n == nil || n.Kind != KindBytes || !utf8.Valid(n.Bytes) {
		return "", false
	}

	return string(n.Bytes), true
}

func (n *Node) Integer() (int64, bool) {
	if n == nil || n.Kind != KindInteger {
		return 0, false
	}

	return n.Int, true
}

// GetString is a shorthand for Get followed by Text
func (n *Node) GetString(key string) (string, bool) {
	v, ok := n.Get(key)
	if !ok {
		return "", false
	}

	return v.Text()
}

func (n *Node) GetInteger(key string) (int64, bool) {
	v, ok := n.Get(key)
	if !ok {
		return 0, false
	}

	return v.Integer()
}

func (n *Node) GetBytes(key string) ([]byte, bool) {
	v, ok := n.Get(key)
	if !ok || v.Kind != KindBytes {
		return nil, false
	}

	return v.Bytes, true
}

func (n *Node) GetList(key string) ([]*Node, bool) {
	v, ok := n.Get(key)
	if !ok || v.Kind != KindList {
		return nil, false
	}

	return v.List, true
}

func (n *Node) GetDict(key string) (*Node, bool) {
	v, ok := n.Get(key)
	if !ok || v.Kind != KindDict {
		return nil, false
	}

	return v, true
}
