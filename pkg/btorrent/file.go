package btorrent

import (
	"fmt"
	"path"

	"github.com/namvu9/btcore/pkg/bencode"
)

// A File contains the metadata describing a particular
// file of a multi-file torrent
type File struct {
	Length int64

	// Path segments relative to the torrent's root
	// directory
	Path []string
}

// Name returns the last path segment
func (f File) Name() string {
	if len(f.Path) == 0 {
		return ""
	}

	return f.Path[len(f.Path)-1]
}

// FullPath joins the path segments with '/'
func (f File) FullPath() string {
	return path.Join(f.Path...)
}

func parseFile(d *bencode.Node) (File, error) {
	var f File

	length, ok := d.GetInteger("length")
	if !ok {
		return f, fmt.Errorf("missing length")
	}
	if length < 0 {
		return f, fmt.Errorf("invalid length %d", length)
	}
	f.Length = length

	segments, ok := d.GetList("path")
	if !ok {
		return f, fmt.Errorf("missing path")
	}

	for _, segment := range segments {
		if s, ok := segment.Text(); ok {
			f.Path = append(f.Path, s)
		}
	}

	return f, nil
}
