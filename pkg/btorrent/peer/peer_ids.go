package peer

import (
	"crypto/rand"
	"fmt"

	"github.com/namvu9/btcore/internal/errors"
)

// Azureus-style client tags, "-XX1234-"
var clientTags = map[string]string{
	"AZ": "Azureus",
	"BC": "BitComet",
	"BT": "BitTorrent",
	"BY": "Bitsy",
	"DE": "Deluge",
	"KT": "KTorrent",
	"LT": "libtorrent",
	"lt": "libTorrent",
	"qB": "qBittorrent",
	"TR": "Transmission",
	"UT": "µTorrent",
	"UW": "µTorrent Web",
	"WW": "WebTorrent",
	"XL": "Xunlei",
}

// ClientName guesses the client software from a peer ID
func ClientName(id [20]byte) string {
	if id[0] == 'M' {
		return fmt.Sprintf("Mainline %s", trimID(id[1:8]))
	}

	if id[0] != '-' || id[7] != '-' {
		return "Unknown"
	}

	name, ok := clientTags[string(id[1:3])]
	if !ok {
		return fmt.Sprintf("Unknown (%s)", id[1:3])
	}

	return fmt.Sprintf("%s %c.%c.%c", name, id[3], id[4], id[5])
}

func trimID(b []byte) string {
	for i, c := range b {
		if c == '-' {
			return string(b[:i])
		}
	}

	return string(b)
}

// GeneratePeerID returns prefix followed by random bytes.
// The prefix must leave room for at least one of them.
func GeneratePeerID(prefix string) ([20]byte, error) {
	var (
		op errors.Op = "peer.GeneratePeerID"
		id [20]byte
	)

	if len(prefix) >= len(id) {
		err := fmt.Errorf("prefix %q too long", prefix)
		return id, errors.Wrap(err, op, errors.BadArgument)
	}

	n := copy(id[:], prefix)
	if _, err := rand.Read(id[n:]); err != nil {
		return id, errors.Wrap(err, op, errors.Internal)
	}

	return id, nil
}
