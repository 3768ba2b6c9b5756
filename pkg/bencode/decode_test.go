package bencode_test

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/bencode"
)

func TestDecodeString(t *testing.T) {
	pkt := []byte("4:spam")

	n, err := bencode.Decode(pkt)
	if assert.NoError(t, err) {
		assert.Equal(t, bencode.KindBytes, n.Kind)
		assert.Equal(t, []byte("spam"), n.Bytes)
		assert.Equal(t, 0, n.Start)
		assert.Equal(t, len(pkt), n.End)
	}
}

func TestDecodeEmptyString(t *testing.T) {
	n, err := bencode.Decode([]byte("0:"))
	if assert.NoError(t, err) {
		assert.Empty(t, n.Bytes)
		assert.Equal(t, 2, n.End)
	}
}

func TestDecodeInt(t *testing.T) {
	for _, test := range []struct {
		input string
		want  int64
	}{
		{"i123432e", 123432},
		{"i0e", 0},
		{"i-42e", -42},
		{"i" + strconv.FormatInt(math.MaxInt64, 10) + "e", math.MaxInt64},
		{"i" + strconv.FormatInt(math.MinInt64, 10) + "e", math.MinInt64},
	} {
		n, err := bencode.Decode([]byte(test.input))
		if assert.NoError(t, err, test.input) {
			assert.Equal(t, bencode.KindInteger, n.Kind)
			assert.Equal(t, test.want, n.Int)
			assert.Equal(t, len(test.input), n.End)
		}
	}
}

func TestDecodeList(t *testing.T) {
	pkt := []byte("li123e2:aae")

	n, err := bencode.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, bencode.KindList, n.Kind)
	require.Len(t, n.List, 2)

	assert.Equal(t, int64(123), n.List[0].Int)
	assert.Equal(t, 1, n.List[0].Start)
	assert.Equal(t, 6, n.List[0].End)

	assert.Equal(t, []byte("aa"), n.List[1].Bytes)
	assert.Equal(t, []byte("2:aa"), n.List[1].Raw(pkt))
}

func TestDecodeDict(t *testing.T) {
	pkt := []byte("d3:foo3:bar6:foobar3:baze")

	n, err := bencode.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, bencode.KindDict, n.Kind)

	v, ok := n.GetString("foo")
	assert.True(t, ok)
	assert.Equal(t, "bar", v)

	v, ok = n.GetString("foobar")
	assert.True(t, ok)
	assert.Equal(t, "baz", v)

	assert.Equal(t, [][]byte{[]byte("foo"), []byte("foobar")}, n.Keys())
	assert.Equal(t, 2, n.Len())
}

func TestDecodeDictRawKeys(t *testing.T) {
	pkt := []byte("d2:\xff\xfei1ee")

	n, err := bencode.Decode(pkt)
	require.NoError(t, err)

	i, ok := n.GetInteger("\xff\xfe")
	assert.True(t, ok)
	assert.Equal(t, int64(1), i)
}

func TestDecodeNestedRanges(t *testing.T) {
	pkt := []byte("d4:infod4:name1:xe3:numi7ee")

	n, err := bencode.Decode(pkt)
	require.NoError(t, err)

	info, ok := n.GetDict("info")
	require.True(t, ok)
	assert.Equal(t, []byte("d4:name1:xe"), info.Raw(pkt))

	num, ok := n.Get("num")
	require.True(t, ok)
	assert.Equal(t, []byte("i7e"), num.Raw(pkt))
}

func TestDecodeNonUTF8Text(t *testing.T) {
	n, err := bencode.Decode([]byte("2:\xff\xfe"))
	require.NoError(t, err)

	_, ok := n.Text()
	assert.False(t, ok)
}

func TestDecodeTrailingDataIgnored(t *testing.T) {
	n, err := bencode.Decode([]byte("i1eXYZ"))
	require.NoError(t, err)
	assert.Equal(t, 3, n.End)
}

func TestDecodeErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"i",
		"ie",
		"i-e",
		"i-0e",
		"i03e",
		"i1x2e",
		"i99999999999999999999e",
		"5:abc",
		"3abc",
		":abc",
		"99999999999999999999:a",
		"l",
		"li1e",
		"d3:foo",
		"d3:fooe",
		"di1ei2ee",
		"x",
		strings.Repeat("l", bencode.MaxDepth+1) + strings.Repeat("e", bencode.MaxDepth+1),
	} {
		_, err := bencode.Decode([]byte(input))
		if assert.Error(t, err, "input %q", input) {
			assert.True(t, errors.IsKind(err, errors.Parse), "input %q", input)

			var syntaxErr *bencode.SyntaxError
			assert.True(t, errors.As(err, &syntaxErr), "input %q", input)
		}
	}
}
