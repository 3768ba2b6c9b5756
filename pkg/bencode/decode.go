package bencode

import (
	"fmt"
	"strconv"

	"github.com/elliotchance/orderedmap"

	"github.com/namvu9/btcore/internal/errors"
)

// MaxDepth bounds the nesting of lists and dictionaries
const MaxDepth = 256

// SyntaxError describes malformed input at a byte offset
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode: %s at offset %d", e.Msg, e.Offset)
}

type decoder struct {
	data  []byte
	pos   int
	depth int
}

// Decode parses the first bencoded value in data. Every
// node records the range of data it was decoded from, so
// callers can recover the exact source bytes of any
// sub-value. Bytes following the first value are ignored.
func Decode(data []byte) (*Node, error) {
	var op errors.Op = "bencode.Decode"

	d := decoder{data: data}

	n, err := d.value()
	if err != nil {
		return nil, errors.Wrap(err, op, errors.Parse)
	}

	return n, nil
}

func (d *decoder) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) peek() (byte, bool) {
	if d.pos >= len(d.data) {
		return 0, false
	}

	return d.data[d.pos], true
}

func (d *decoder) value() (*Node, error) {
	b, ok := d.peek()
	if !ok {
		return nil, d.errorf("unexpected end of input")
	}

	start := d.pos

	var (
		n   *Node
		err error
	)

	switch {
	case b == 'i':
		n, err = d.integer()
	case b == 'l':
		n, err = d.list()
	case b == 'd':
		n, err = d.dict()
	case b >= '0' && b <= '9':
		n, err = d.bytes()
	default:
		return nil, d.errorf("invalid token %q", b)
	}

	if err != nil {
		return nil, err
	}

	n.Start = start
	n.End = d.pos

	return n, nil
}

func (d *decoder) integer() (*Node, error) {
	d.pos++ // 'i'
	start := d.pos

	for {
		b, ok := d.peek()
		if !ok {
			return nil, d.errorf("unexpected end of input in integer")
		}

		if b == 'e' {
			break
		}

		if !(b >= '0' && b <= '9') && !(b == '-' && d.pos == start) {
			return nil, d.errorf("invalid integer character %q", b)
		}

		d.pos++
	}

	digits := string(d.data[start:d.pos])
	switch {
	case digits == "" || digits == "-":
		return nil, d.errorf("integer has no digits")
	case digits == "-0":
		return nil, d.errorf("negative zero")
	case len(digits) > 1 && digits[0] == '0', len(digits) > 2 && digits[:2] == "-0":
		return nil, d.errorf("integer has leading zero")
	}

	i, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, d.errorf("integer overflow")
	}

	d.pos++ // 'e'

	return &Node{Kind: KindInteger, Int: i}, nil
}

func (d *decoder) length() (int, error) {
	start := d.pos

	for {
		b, ok := d.peek()
		if !ok {
			return 0, d.errorf("unexpected end of input in length prefix")
		}

		if b == ':' {
			break
		}

		if b < '0' || b > '9' {
			return 0, d.errorf("invalid length prefix character %q", b)
		}

		d.pos++
	}

	if d.pos == start {
		return 0, d.errorf("missing length prefix")
	}

	n, err := strconv.ParseUint(string(d.data[start:d.pos]), 10, 31)
	if err != nil {
		return 0, d.errorf("length prefix overflow")
	}

	d.pos++ // ':'

	return int(n), nil
}

func (d *decoder) rawBytes() ([]byte, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}

	if n > len(d.data)-d.pos {
		return nil, d.errorf("truncated byte string: want %d bytes, have %d", n, len(d.data)-d.pos)
	}

	out := d.data[d.pos : d.pos+n]
	d.pos += n

	return out, nil
}

func (d *decoder) bytes() (*Node, error) {
	b, err := d.rawBytes()
	if err != nil {
		return nil, err
	}

	return &Node{Kind: KindBytes, Bytes: b}, nil
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > MaxDepth {
		return d.errorf("nesting exceeds %d levels", MaxDepth)
	}

	return nil
}

func (d *decoder) list() (*Node, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()

	d.pos++ // 'l'
	n := &Node{Kind: KindList}

	for {
		b, ok := d.peek()
		if !ok {
			return nil, d.errorf("unexpected end of input in list")
		}

		if b == 'e' {
			d.pos++
			return n, nil
		}

		item, err := d.value()
		if err != nil {
			return nil, err
		}

		n.List = append(n.List, item)
	}
}

func (d *decoder) dict() (*Node, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()

	d.pos++ // 'd'
	n := &Node{Kind: KindDict, Dict: orderedmap.NewOrderedMap()}

	for {
		b, ok := d.peek()
		if !ok {
			return nil, d.errorf("unexpected end of input in dictionary")
		}

		if b == 'e' {
			d.pos++
			return n, nil
		}

		if b < '0' || b > '9' {
			return nil, d.errorf("dictionary key must be a byte string")
		}

		key, err := d.rawBytes()
		if err != nil {
			return nil, err
		}

		val, err := d.value()
		if err != nil {
			return nil, err
		}

		n.Dict.Set(string(key), val)
	}
}
