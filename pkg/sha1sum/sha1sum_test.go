package sha1sum_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/pkg/sha1sum"
)

func TestHex(t *testing.T) {
	for _, test := range []struct {
		input string
		want  string
	}{
		{"", "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{"abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{
			"abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq",
			"84983e441c3bd26ebaae4aa1f95129e5e54670f1",
		},
	} {
		assert.Equal(t, test.want, sha1sum.Hex([]byte(test.input)), "input %q", test.input)
	}
}

func TestParseHex(t *testing.T) {
	digest := sha1sum.Sum([]byte("abc"))

	got, err := sha1sum.ParseHex("a9993e364706816aba3e25717850c26c9cd0d89d")
	require.NoError(t, err)
	assert.Equal(t, digest, got)

	_, err = sha1sum.ParseHex("zz")
	assert.Error(t, err)

	_, err = sha1sum.ParseHex(string(bytes.Repeat([]byte("a"), 39)))
	assert.Error(t, err)

	_, err = sha1sum.ParseHex(string(bytes.Repeat([]byte("z"), 40)))
	assert.Error(t, err)
}

func TestHasher(t *testing.T) {
	want := sha1sum.Sum([]byte("abc"))
	assert.Equal(t, want[:], sha1sum.SHA1.Sum([]byte("abc")))

	calls := 0
	stub := sha1sum.HasherFunc(func(b []byte) []byte {
		calls++
		return []byte{byte(len(b))}
	})

	assert.Equal(t, []byte{3}, stub.Sum([]byte("abc")))
	assert.Equal(t, 1, calls)
}

func TestPieces(t *testing.T) {
	data := []byte("0123456789")

	got := sha1sum.Pieces(data, 4)
	require.Len(t, got, 3*sha1sum.Size)

	last := sha1sum.Sum([]byte("89"))
	assert.Equal(t, last[:], got[2*sha1sum.Size:])

	assert.Empty(t, sha1sum.Pieces(nil, 4))
	assert.Nil(t, sha1sum.Pieces(data, 0))
}
