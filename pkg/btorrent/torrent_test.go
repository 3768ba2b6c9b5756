package btorrent_test

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/btorrent"
	"github.com/namvu9/btcore/pkg/sha1sum"
)

const infoDict = "d6:lengthi40e4:name8:test.txt12:piece lengthi32e6:pieces40:" +
	"aaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbe"

func entry(key, value string) string {
	return fmt.Sprintf("%d:%s%s", len(key), key, value)
}

func bstr(s string) string {
	return fmt.Sprintf("%d:%s", len(s), s)
}

func TestParseSingleFile(t *testing.T) {
	data := "d" +
		entry("announce", bstr("udp://tracker.example:6969/announce")) +
		entry("announce-list", "l"+"l"+bstr("udp://a:1")+bstr("udp://b:2")+"e"+"l"+bstr("http://c/announce")+"e"+"e") +
		entry("comment", bstr("hello")) +
		entry("created by", bstr("bitsy")) +
		entry("creation date", "i1600000000e") +
		entry("info", infoDict) +
		"e"

	torrent, err := btorrent.Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "udp://tracker.example:6969/announce", torrent.Announce)
	assert.Equal(t, [][]string{{"udp://a:1", "udp://b:2"}, {"http://c/announce"}}, torrent.AnnounceList)
	assert.Equal(t, "hello", torrent.Comment)
	assert.Equal(t, "bitsy", torrent.CreatedBy)
	assert.Equal(t, time.Unix(1600000000, 0).UTC(), torrent.CreationDate)

	assert.Equal(t, "test.txt", torrent.Name())
	assert.Equal(t, int64(32), torrent.Info.PieceLength)
	assert.Equal(t, int64(40), torrent.TotalLength())
	assert.Equal(t, 2, torrent.NumPieces())
	assert.Equal(t, int64(32), torrent.PieceLen(0))
	assert.Equal(t, int64(8), torrent.PieceLen(1))
	assert.Equal(t, int64(0), torrent.PieceLen(2))

	hashes := torrent.PieceHashes()
	require.Len(t, hashes, 2)
	assert.Equal(t, bytes.Repeat([]byte("b"), 20), hashes[1][:])

	assert.Equal(t, []byte(infoDict), torrent.Info.Raw)
	assert.Equal(t, sha1.Sum([]byte(infoDict)), torrent.InfoHash())
	assert.Equal(t, sha1sum.Hex([]byte(infoDict)), torrent.HexHash())

	assert.Equal(t, []string{
		"udp://tracker.example:6969/announce",
		"udp://a:1",
		"udp://b:2",
		"http://c/announce",
	}, torrent.Trackers())
}

func TestInfoHashIndependentOfFieldOrder(t *testing.T) {
	first := "d" +
		entry("announce", bstr("udp://a:1")) +
		entry("info", infoDict) +
		"e"

	second := "d" +
		entry("info", infoDict) +
		entry("comment", bstr("a different comment")) +
		entry("zzz", "li1ei2ee") +
		entry("announce", bstr("udp://b:2")) +
		"e"

	a, err := btorrent.Parse([]byte(first))
	require.NoError(t, err)

	b, err := btorrent.Parse([]byte(second))
	require.NoError(t, err)

	assert.Equal(t, a.InfoHash(), b.InfoHash())
	assert.Equal(t, a.Info.Raw, b.Info.Raw)
}

func TestInfoRawIsCopied(t *testing.T) {
	data := []byte("d" + entry("info", infoDict) + "e")

	torrent, err := btorrent.Parse(data)
	require.NoError(t, err)

	for i := range data {
		data[i] = 'x'
	}

	assert.Equal(t, []byte(infoDict), torrent.Info.Raw)
	assert.Equal(t, sha1.Sum([]byte(infoDict)), torrent.InfoHash())
}

func TestParseMultiFile(t *testing.T) {
	info := "d" +
		entry("files", "l"+
			"d"+entry("length", "i10e")+entry("path", "l"+bstr("dir")+bstr("a.txt")+"e")+"e"+
			"d"+entry("length", "i5e")+entry("path", "l"+bstr("b.txt")+"e")+"e"+
			"e") +
		entry("name", bstr("root")) +
		entry("piece length", "i8e") +
		entry("pieces", bstr(strings.Repeat("x", 40))) +
		"e"

	torrent, err := btorrent.Parse([]byte("d" + entry("info", info) + "e"))
	require.NoError(t, err)

	require.Len(t, torrent.Info.Files, 2)
	assert.Equal(t, "dir/a.txt", torrent.Info.Files[0].FullPath())
	assert.Equal(t, "a.txt", torrent.Info.Files[0].Name())
	assert.Equal(t, int64(15), torrent.TotalLength())
	assert.Equal(t, int64(7), torrent.PieceLen(1))
}

func TestParseDegradesInvalidText(t *testing.T) {
	data := "d" +
		entry("announce", bstr("udp://a:1")) +
		entry("comment", bstr("\xff\xfe")) +
		entry("created by", "i1e") +
		entry("info", infoDict) +
		"e"

	torrent, err := btorrent.Parse([]byte(data))
	require.NoError(t, err)

	assert.Empty(t, torrent.Comment)
	assert.Empty(t, torrent.CreatedBy)
	assert.True(t, torrent.CreationDate.IsZero())
	assert.Equal(t, "udp://a:1", torrent.Announce)
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not a dict", "li1ee"},
		{"missing info", "d" + entry("announce", bstr("udp://a:1")) + "e"},
		{"info not a dict", "d" + entry("info", "i1e") + "e"},
		{"truncated", "d" + entry("info", infoDict)},
		{"bad length prefix", "d8:announce99:xe"},
		{"overflow", "d" + entry("creation date", "i99999999999999999999e") + entry("info", infoDict) + "e"},
		{"pieces not multiple of 20", "d" + entry("info", "d"+entry("pieces", bstr("abc"))+"e") + "e"},
		{"file missing length", "d" + entry("info", "d"+entry("files", "ld"+entry("path", "l1:ae")+"ee")+"e") + "e"},
		{"file missing path", "d" + entry("info", "d"+entry("files", "ld"+entry("length", "i1e")+"ee")+"e") + "e"},
		{"negative piece length", "d" + entry("info", "d"+entry("piece length", "i-1e")+"e") + "e"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := btorrent.Parse([]byte(test.input))
			if assert.Error(t, err) {
				assert.True(t, errors.IsKind(err, errors.Parse), err.Error())
			}
		})
	}
}

func TestCreate(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 7)
	created := time.Unix(1700000000, 0)

	data, err := btorrent.Create(btorrent.CreateOptions{
		Name:         "digits.txt",
		Data:         content,
		PieceLength:  32,
		Trackers:     []string{"udp://a:1/announce", "udp://b:2/announce"},
		Comment:      "generated",
		CreatedBy:    "bitsy",
		CreationDate: created,
	})
	require.NoError(t, err)

	torrent, err := btorrent.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "digits.txt", torrent.Name())
	assert.Equal(t, int64(len(content)), torrent.TotalLength())
	assert.Equal(t, 3, torrent.NumPieces())
	assert.Equal(t, "udp://a:1/announce", torrent.Announce)
	assert.Equal(t, [][]string{{"udp://a:1/announce"}, {"udp://b:2/announce"}}, torrent.AnnounceList)
	assert.Equal(t, "generated", torrent.Comment)
	assert.Equal(t, created.UTC(), torrent.CreationDate)

	hashes := torrent.PieceHashes()
	assert.Equal(t, sha1.Sum(content[:32]), hashes[0])
	assert.Equal(t, sha1.Sum(content[64:]), hashes[2])

	assert.True(t, bytes.Contains(data, torrent.Info.Raw))
	assert.Equal(t, sha1.Sum(torrent.Info.Raw), torrent.InfoHash())
}

func TestCreateRequiresName(t *testing.T) {
	_, err := btorrent.Create(btorrent.CreateOptions{Data: []byte("x")})
	if assert.Error(t, err) {
		assert.True(t, errors.IsKind(err, errors.BadArgument))
	}
}
