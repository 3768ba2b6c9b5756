package btorrent

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/bencode"
	"github.com/namvu9/btcore/pkg/sha1sum"
)

// Torrent contains the metadata of a .torrent file. It is
// immutable once returned by Parse.
type Torrent struct {
	// Announce is the primary tracker URL, if any
	Announce string

	// AnnounceList holds tiers of tracker URLs, as defined
	// in BEP-12
	AnnounceList [][]string

	Comment      string
	CreatedBy    string
	CreationDate time.Time

	Info Info

	infoHash [20]byte
}

// Info is the torrent's info dictionary
type Info struct {
	Name        string
	PieceLength int64

	// Pieces is the concatenation of the 20-byte SHA-1
	// hashes of every piece
	Pieces []byte

	// Length is set for single-file torrents; Files for
	// multi-file torrents
	Length int64
	Files  []File

	// Raw is the info dictionary exactly as it appeared in
	// the source. The info hash is the SHA-1 hash of Raw.
	Raw []byte
}

// Parse decodes a bencoded .torrent file
func Parse(data []byte) (*Torrent, error) {
	var op errors.Op = "btorrent.Parse"

	root, err := bencode.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	if root.Kind != bencode.KindDict {
		err := fmt.Errorf("top-level value is a %s, not a dictionary", root.Kind)
		return nil, errors.Wrap(err, op, errors.Parse)
	}

	infoNode, ok := root.Get("info")
	if !ok {
		return nil, errors.Wrap(fmt.Errorf("missing 'info' dictionary"), op, errors.Parse)
	}

	info, err := parseInfo(infoNode, data)
	if err != nil {
		return nil, errors.Wrap(err, op, errors.Parse)
	}

	t := &Torrent{
		Info:     info,
		infoHash: sha1sum.Sum(info.Raw),
	}

	t.Announce, _ = root.GetString("announce")
	t.Comment, _ = root.GetString("comment")
	t.CreatedBy, _ = root.GetString("created by")

	if ts, ok := root.GetInteger("creation date"); ok {
		t.CreationDate = time.Unix(ts, 0).UTC()
	}

	if l, ok := root.GetList("announce-list"); ok {
		t.AnnounceList = parseAnnounceList(l)
	}

	return t, nil
}

func parseInfo(n *bencode.Node, src []byte) (Info, error) {
	var info Info

	if n.Kind != bencode.KindDict {
		return info, fmt.Errorf("'info' is a %s, not a dictionary", n.Kind)
	}

	info.Raw = append([]byte(nil), n.Raw(src)...)
	info.Name, _ = n.GetString("name")

	if pl, ok := n.GetInteger("piece length"); ok {
		if pl <= 0 {
			return info, fmt.Errorf("invalid piece length %d", pl)
		}
		info.PieceLength = pl
	}

	if pieces, ok := n.GetBytes("pieces"); ok {
		if len(pieces)%sha1sum.Size != 0 {
			return info, fmt.Errorf("'pieces' length %d is not a multiple of %d", len(pieces), sha1sum.Size)
		}
		info.Pieces = append([]byte(nil), pieces...)
	}

	if length, ok := n.GetInteger("length"); ok {
		if length < 0 {
			return info, fmt.Errorf("invalid length %d", length)
		}
		info.Length = length
	}

	if files, ok := n.GetList("files"); ok {
		for i, entry := range files {
			if entry.Kind != bencode.KindDict {
				continue
			}

			f, err := parseFile(entry)
			if err != nil {
				return info, fmt.Errorf("file %d: %w", i, err)
			}

			info.Files = append(info.Files, f)
		}
	}

	return info, nil
}

func parseAnnounceList(l []*bencode.Node) [][]string {
	var out [][]string

	for _, item := range l {
		switch item.Kind {
		case bencode.KindBytes:
			if s, ok := item.Text(); ok {
				out = append(out, []string{s})
			}
		case bencode.KindList:
			var tier []string
			for _, v := range item.List {
				if s, ok := v.Text(); ok {
					tier = append(tier, s)
				}
			}

			if len(tier) > 0 {
				out = append(out, tier)
			}
		}
	}

	return out
}

// InfoHash returns the SHA-1 hash of the raw info
// dictionary. The hash uniquely identifies the torrent.
func (t *Torrent) InfoHash() [20]byte {
	return t.infoHash
}

// HexHash returns the hex-encoded info hash
func (t *Torrent) HexHash() string {
	return hex.EncodeToString(t.infoHash[:])
}

// Name returns the suggested name of the file or
// directory
func (t *Torrent) Name() string {
	return t.Info.Name
}

// PieceHashes splits Info.Pieces into 20-byte hashes
func (t *Torrent) PieceHashes() [][20]byte {
	out := make([][20]byte, len(t.Info.Pieces)/sha1sum.Size)
	for i := range out {
		copy(out[i][:], t.Info.Pieces[i*sha1sum.Size:])
	}

	return out
}

func (t *Torrent) NumPieces() int {
	return len(t.Info.Pieces) / sha1sum.Size
}

// TotalLength returns the sum total size, in bytes, of the
// torrent files. In the case of a single-file torrent, it
// is equal to the size of that file.
func (t *Torrent) TotalLength() int64 {
	if len(t.Info.Files) == 0 {
		return t.Info.Length
	}

	var sum int64
	for _, f := range t.Info.Files {
		sum += f.Length
	}

	return sum
}

// PieceLen returns the length of piece i. Every piece but
// the last is Info.PieceLength bytes long.
func (t *Torrent) PieceLen(i int) int64 {
	n := t.NumPieces()
	if i < 0 || i >= n {
		return 0
	}

	if i < n-1 {
		return t.Info.PieceLength
	}

	return t.TotalLength() - t.Info.PieceLength*int64(n-1)
}

// Trackers returns the announce URL followed by every URL
// of the announce list, without duplicates
func (t *Torrent) Trackers() []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)

	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	add(t.Announce)
	for _, tier := range t.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}

	return out
}
