package bits_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/pkg/bits"
)

func TestSetGet(t *testing.T) {
	bf := bits.New(10)
	assert.Equal(t, 10, bf.Len())

	for i := 0; i < 10; i++ {
		assert.False(t, bf.Get(i))
	}

	require.NoError(t, bf.Set(0))
	require.NoError(t, bf.Set(3))
	require.NoError(t, bf.Set(9))

	assert.True(t, bf.Get(0))
	assert.False(t, bf.Get(1))
	assert.True(t, bf.Get(3))
	assert.True(t, bf.Get(9))
	assert.Equal(t, 3, bf.Count())
	assert.Equal(t, []int{0, 3, 9}, bf.Indices())
	assert.Equal(t, []byte{0b10010000, 0b01000000}, bf.Bytes())

	require.NoError(t, bf.Unset(3))
	assert.False(t, bf.Get(3))
	assert.Equal(t, 2, bf.Count())
}

func TestOutOfBounds(t *testing.T) {
	bf := bits.New(5)

	var oob bits.OutOfBoundsError
	err := bf.Set(5)
	if assert.ErrorAs(t, err, &oob) {
		assert.Equal(t, 5, oob.Index)
	}
	assert.Error(t, bf.Unset(-1))
	assert.False(t, bf.Get(5))
	assert.False(t, bf.Get(-1))
}

func TestIndexSet(t *testing.T) {
	for i, test := range []struct {
		data  []byte
		n     int
		index int
		want  bool
	}{
		{data: []byte{0b11111111, 0b10000000}, n: 9, index: 8, want: true},
		{data: []byte{0b11111111, 0b10000000}, n: 10, index: 9, want: false},
		{data: []byte{0b11111110, 0b10000000}, n: 16, index: 7, want: false},
	} {
		bf, err := bits.FromBytes(test.data, test.n)
		require.NoError(t, err)
		assert.Equal(t, test.want, bf.Get(test.index), "case %d", i)
	}
}

func TestRoundTrip(t *testing.T) {
	for n := 0; n <= 33; n++ {
		bf := bits.New(n)
		for i := 0; i < n; i += 3 {
			require.NoError(t, bf.Set(i))
		}

		data := bf.Bytes()
		assert.Len(t, data, (n+7)/8)

		got, err := bits.FromBytes(data, n)
		require.NoError(t, err)
		assert.True(t, bf.Equal(got), "n=%d", n)

		if n%8 != 0 {
			unused := 8 - n%8
			assert.Zero(t, data[len(data)-1]&byte(1<<unused-1), "n=%d", n)
		}
	}
}

func TestFromBytesClearsSpareBits(t *testing.T) {
	bf, err := bits.FromBytes([]byte{0xFF, 0xFF, 0xAA}, 13)
	require.NoError(t, err)

	assert.Equal(t, []byte{0xFF, 0b11111000}, bf.Bytes())
	assert.Equal(t, 13, bf.Count())
}

func TestFromBytesTooShort(t *testing.T) {
	_, err := bits.FromBytes([]byte{0}, 9)
	assert.Error(t, err)
}

func TestOnes(t *testing.T) {
	bf := bits.Ones(11)

	assert.Equal(t, 11, bf.Count())
	assert.Equal(t, []byte{0xFF, 0b11100000}, bf.Bytes())
}

func TestCloneIsIndependent(t *testing.T) {
	bf := bits.New(8)
	clone := bf.Clone()

	require.NoError(t, clone.Set(1))
	assert.False(t, bf.Get(1))
	assert.False(t, bf.Equal(clone))
}
