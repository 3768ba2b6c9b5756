package errors_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/namvu9/btcore/internal/errors"
)

func TestWrap(t *testing.T) {
	var op errors.Op = "peer.Dial"

	err := errors.Wrap(io.EOF, op, errors.Network)

	assert.True(t, errors.IsKind(err, errors.Network))
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, "peer.Dial: EOF", err.Error())
	assert.Equal(t, []string{"peer.Dial"}, errors.Ops(err))
}

func TestWrapInheritsKind(t *testing.T) {
	inner := errors.Wrap(io.ErrUnexpectedEOF, errors.Op("bencode.Decode"), errors.Parse)
	outer := errors.Wrap(inner, errors.Op("btorrent.Parse"))

	assert.Equal(t, errors.Parse, errors.KindOf(outer))
	assert.Equal(t, []string{"btorrent.Parse", "bencode.Decode"}, errors.Ops(outer))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.IO))
}

func TestTimeoutKind(t *testing.T) {
	err := errors.Wrap(io.EOF, errors.Timeout)

	var tErr interface{ Timeout() bool }
	if assert.True(t, errors.As(err, &tErr)) {
		assert.True(t, tErr.Timeout())
	}
	assert.False(t, errors.IsKind(nil, errors.Timeout))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, errors.Internal, errors.KindOf(io.EOF))
}
