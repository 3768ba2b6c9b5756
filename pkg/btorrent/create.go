package btorrent

import (
	"fmt"
	"time"

	bencoding "github.com/namvu9/bencode"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/sha1sum"
)

// DefaultPieceLength is used by Create when no piece
// length is given
const DefaultPieceLength = 256 * 1024

// CreateOptions describes a single-file torrent to create
type CreateOptions struct {
	Name        string
	Data        []byte
	PieceLength int

	// Trackers become the announce URL (the first entry) and
	// the announce list, one tier per URL
	Trackers []string

	Comment      string
	CreatedBy    string
	CreationDate time.Time
}

// Create hashes opts.Data into pieces and returns the
// bencoded .torrent file. Keys are written in sorted order,
// so parsing the result and hashing Info.Raw reproduces
// the canonical info hash.
func Create(opts CreateOptions) ([]byte, error) {
	var op errors.Op = "btorrent.Create"

	if opts.Name == "" {
		return nil, errors.Wrap(fmt.Errorf("name is required"), op, errors.BadArgument)
	}

	pieceLength := opts.PieceLength
	if pieceLength == 0 {
		pieceLength = DefaultPieceLength
	}
	if pieceLength < 0 {
		err := fmt.Errorf("invalid piece length %d", pieceLength)
		return nil, errors.Wrap(err, op, errors.BadArgument)
	}

	var info bencoding.Dictionary
	info.SetStringKey("name", bencoding.Bytes(opts.Name))
	info.SetStringKey("piece length", bencoding.Integer(pieceLength))
	info.SetStringKey("pieces", bencoding.Bytes(sha1sum.Pieces(opts.Data, pieceLength)))
	info.SetStringKey("length", bencoding.Integer(len(opts.Data)))

	var dict bencoding.Dictionary
	dict.SetStringKey("info", &info)

	if len(opts.Trackers) > 0 {
		dict.SetStringKey("announce", bencoding.Bytes(opts.Trackers[0]))

		var tiers bencoding.List
		for _, tr := range opts.Trackers {
			tiers = append(tiers, bencoding.List{bencoding.Bytes(tr)})
		}
		dict.SetStringKey("announce-list", tiers)
	}

	if opts.Comment != "" {
		dict.SetStringKey("comment", bencoding.Bytes(opts.Comment))
	}

	if opts.CreatedBy != "" {
		dict.SetStringKey("created by", bencoding.Bytes(opts.CreatedBy))
	}

	if !opts.CreationDate.IsZero() {
		dict.SetStringKey("creation date", bencoding.Integer(opts.CreationDate.Unix()))
	}

	data, err := bencoding.Marshal(&dict)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return data, nil
}
