// Package size formats and parses byte counts in binary
// units.
package size

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a number of bytes
type Size int64

const (
	B   Size = 1
	KiB      = 1024 * B
	MiB      = 1024 * KiB
	GiB      = 1024 * MiB
)

var units = []struct {
	suffix string
	size   Size
}{
	{"GiB", GiB},
	{"MiB", MiB},
	{"KiB", KiB},
	{"B", B},
}

func (s Size) String() string {
	for _, u := range units[:3] {
		if s >= u.size {
			return fmt.Sprintf("%.2f %s", float64(s)/float64(u.size), u.suffix)
		}
	}

	return fmt.Sprintf("%d B", int64(s))
}

// Parse reads sizes such as "512", "16KiB" or "2 MiB"
func Parse(str string) (Size, error) {
	str = strings.TrimSpace(str)

	for _, u := range units {
		if !strings.HasSuffix(str, u.suffix) {
			continue
		}

		n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(str, u.suffix)), 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid size %q", str)
		}

		return Size(n) * u.size, nil
	}

	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", str)
	}

	return Size(n), nil
}
