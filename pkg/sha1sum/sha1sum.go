// Package sha1sum provides the SHA-1 digest used for info
// hashes and piece verification, plus the Hasher strategy
// that the piece manager is parameterised over.
package sha1sum

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Size is the length in bytes of a SHA-1 digest
const Size = sha1.Size

// Sum returns the SHA-1 digest of data
func Sum(data []byte) [Size]byte {
	return sha1.Sum(data)
}

// Hex returns the lowercase hex encoding of data's SHA-1
// digest
func Hex(data []byte) string {
	sum := Sum(data)
	return hex.EncodeToString(sum[:])
}

// ParseHex decodes a 40 character hex string into a
// digest
func ParseHex(s string) ([Size]byte, error) {
	var out [Size]byte

	if len(s) != 2*Size {
		return out, fmt.Errorf("invalid digest length: want %d got %d", 2*Size, len(s))
	}

	_, err := hex.Decode(out[:], []byte(s))
	if err != nil {
		return out, err
	}

	return out, nil
}

// Hasher computes a digest over a complete piece
type Hasher interface {
	Sum(data []byte) []byte
}

// HasherFunc adapts an ordinary function to the Hasher
// interface
type HasherFunc func([]byte) []byte

func (f HasherFunc) Sum(data []byte) []byte {
	return f(data)
}

type sha1Hasher struct{}

func (sha1Hasher) Sum(data []byte) []byte {
	sum := sha1.Sum(data)
	return sum[:]
}

// SHA1 is the default Hasher
var SHA1 Hasher = sha1Hasher{}

// Pieces splits data into pieceLength chunks and returns
// the concatenated SHA-1 digest of each chunk. The last
// chunk may be shorter.
func Pieces(data []byte, pieceLength int) []byte {
	if pieceLength <= 0 {
		return nil
	}

	out := make([]byte, 0, (len(data)+pieceLength-1)/pieceLength*Size)
	for start := 0; start < len(data); start += pieceLength {
		end := start + pieceLength
		if end > len(data) {
			end = len(data)
		}

		sum := sha1.Sum(data[start:end])
		out = append(out, sum[:]...)
	}

	return out
}
