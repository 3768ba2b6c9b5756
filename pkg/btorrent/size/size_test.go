package size_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/pkg/btorrent/size"
)

func TestString(t *testing.T) {
	for _, test := range []struct {
		size size.Size
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{size.KiB, "1.00 KiB"},
		{1536, "1.50 KiB"},
		{5 * size.MiB, "5.00 MiB"},
		{3 * size.GiB / 2, "1.50 GiB"},
	} {
		assert.Equal(t, test.want, test.size.String())
	}
}

func TestParse(t *testing.T) {
	for in, want := range map[string]size.Size{
		"512":    512,
		"16KiB":  16 * size.KiB,
		"2 MiB":  2 * size.MiB,
		" 1GiB ": size.GiB,
		"100B":   100,
	} {
		got, err := size.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "KiB", "-1", "1.5MiB", "10kb"} {
		_, err := size.Parse(in)
		assert.Error(t, err, in)
	}
}
