package peer_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/btorrent/peer"
)

func TestEncodeHandshake(t *testing.T) {
	infoHash := [20]byte{1, 2, 3, 4}
	peerID := [20]byte{4, 3, 2, 1}

	res := peer.EncodeHandshake(infoHash, peerID)

	require.Len(t, res, 68)
	assert.Equal(t, byte(19), res[0])
	assert.Equal(t, "BitTorrent protocol", string(res[1:20]))
	assert.Equal(t, make([]byte, 8), res[20:28])
	assert.Equal(t, infoHash[:], res[28:48])
	assert.Equal(t, peerID[:], res[48:68])
}

func TestHandshakeRoundTrip(t *testing.T) {
	msg := peer.Handshake{
		PStr:     peer.ProtocolString,
		Reserved: [8]byte{1, 3, 3, 7},
		InfoHash: [20]byte{1, 2, 3, 4},
		PeerID:   [20]byte{4, 3, 2, 1},
	}

	got, err := peer.UnmarshalHandshake(msg.Bytes())
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	got, err = peer.ReadHandshake(bytes.NewReader(msg.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestHandshakeOtherProtocol(t *testing.T) {
	msg := peer.Handshake{PStr: "custom", PeerID: [20]byte{9}}

	data := msg.Bytes()
	require.Len(t, data, 1+6+48)

	got, err := peer.UnmarshalHandshake(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestUnmarshalHandshakeErrors(t *testing.T) {
	valid := peer.EncodeHandshake([20]byte{1}, [20]byte{2})

	for _, test := range []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated before pstr", valid[:10]},
		{"truncated after pstr", valid[:30]},
		{"one byte short", valid[:67]},
		{"trailing byte", append(append([]byte{}, valid...), 0)},
		{"pstrlen too large", append([]byte{200}, valid[1:]...)},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := peer.UnmarshalHandshake(test.data)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.Handshake))
		})
	}
}

func TestExtensions(t *testing.T) {
	ext := peer.NewExtensions([8]byte{})
	require.NoError(t, ext.Enable(peer.ExtProtocol))
	require.NoError(t, ext.Enable(peer.ExtDHT))

	reserved := ext.ReservedBytes()
	assert.Equal(t, byte(0x10), reserved[5])
	assert.Equal(t, byte(0x01), reserved[7])

	parsed := peer.Handshake{Reserved: reserved}.Extensions()
	assert.True(t, parsed.IsEnabled(peer.ExtProtocol))
	assert.False(t, parsed.IsEnabled(peer.ExtFast))
	assert.Equal(t, []int{peer.ExtProtocol, peer.ExtDHT}, parsed.Enabled())
}
