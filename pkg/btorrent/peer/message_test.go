package peer_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/btorrent/peer"
)

func TestMessageBytes(t *testing.T) {
	for i, test := range []struct {
		msg       peer.Message
		wantBytes []byte
	}{
		{
			msg:       peer.KeepAliveMessage{},
			wantBytes: []byte{0, 0, 0, 0},
		},
		{
			msg:       peer.ChokeMessage{},
			wantBytes: []byte{0, 0, 0, 1, 0},
		},
		{
			msg:       peer.UnchokeMessage{},
			wantBytes: []byte{0, 0, 0, 1, 1},
		},
		{
			msg:       peer.InterestedMessage{},
			wantBytes: []byte{0, 0, 0, 1, 2},
		},
		{
			msg:       peer.NotInterestedMessage{},
			wantBytes: []byte{0, 0, 0, 1, 3},
		},
		{
			msg:       peer.HaveMessage{Index: 5},
			wantBytes: []byte{0, 0, 0, 5, 4, 0, 0, 0, 5},
		},
		{
			msg:       peer.BitFieldMessage{BitField: []byte{1, 134, 155, 155, 0}},
			wantBytes: []byte{0, 0, 0, 6, 5, 1, 134, 155, 155, 0},
		},
		{
			msg:       peer.RequestMessage{Index: 0, Offset: 1, Length: 134},
			wantBytes: []byte{0, 0, 0, 13, 6, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 134},
		},
		{
			msg:       peer.PieceMessage{Index: 0, Offset: 1, Piece: []byte{1, 2, 3, 4, 5}},
			wantBytes: []byte{0, 0, 0, 14, 7, 0, 0, 0, 0, 0, 0, 0, 1, 1, 2, 3, 4, 5},
		},
		{
			msg:       peer.CancelMessage{Index: 0, Offset: 1, Length: 134},
			wantBytes: []byte{0, 0, 0, 13, 8, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 134},
		},
		{
			msg:       peer.PortMessage{Port: 6881},
			wantBytes: []byte{0, 0, 0, 3, 9, 0x1a, 0xe1},
		},
		{
			msg:       peer.ExtendedMessage{ID: 20, Payload: []byte{0, 'd', 'e'}},
			wantBytes: []byte{0, 0, 0, 4, 20, 0, 'd', 'e'},
		},
	} {
		assert.Equal(t, test.wantBytes, test.msg.Bytes(), "%d: %T", i, test.msg)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	maxBlock := bytes.Repeat([]byte{0xab}, 16384)

	for _, msg := range []peer.Message{
		peer.KeepAliveMessage{},
		peer.ChokeMessage{},
		peer.UnchokeMessage{},
		peer.InterestedMessage{},
		peer.NotInterestedMessage{},
		peer.HaveMessage{Index: 0xdeadbeef},
		peer.BitFieldMessage{BitField: []byte{}},
		peer.BitFieldMessage{BitField: []byte{0xff, 0x80}},
		peer.RequestMessage{Index: 1, Offset: 16384, Length: 16384},
		peer.PieceMessage{Index: 7, Offset: 32768, Piece: maxBlock},
		peer.PieceMessage{Index: 7, Offset: 0, Piece: []byte{}},
		peer.CancelMessage{Index: 1, Offset: 16384, Length: 16384},
		peer.PortMessage{Port: 65535},
		peer.ExtendedMessage{ID: 20, Payload: []byte("d1:md6:ut_pexi1eee")},
		peer.ExtendedMessage{ID: 42, Payload: []byte{}},
	} {
		t.Run(peer.String(msg), func(t *testing.T) {
			got, err := peer.ReadMessage(bytes.NewReader(msg.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestUnmarshalKeepAlive(t *testing.T) {
	msg, err := peer.UnmarshalMessage(nil)
	require.NoError(t, err)
	assert.Equal(t, peer.KeepAliveMessage{}, msg)
}

func TestUnmarshalMessageErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		data []byte
	}{
		{"choke with payload", []byte{0, 1}},
		{"short have", []byte{4, 0, 0, 0}},
		{"long have", []byte{4, 0, 0, 0, 1, 2}},
		{"short request", []byte{6, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}},
		{"long cancel", append([]byte{8}, make([]byte, 13)...)},
		{"short piece", []byte{7, 0, 0, 0, 1, 0, 0, 0}},
		{"short port", []byte{9, 1}},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := peer.UnmarshalMessage(test.data)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.Message))

			var sizeErr peer.PayloadSizeError
			assert.True(t, errors.As(err, &sizeErr))
		})
	}
}

func TestUnmarshalUnknownID(t *testing.T) {
	for id := byte(10); id < 20; id++ {
		_, err := peer.UnmarshalMessage([]byte{id, 1, 2})
		require.Error(t, err)

		var unknown peer.UnknownMessageError
		if assert.True(t, errors.As(err, &unknown)) {
			assert.Equal(t, id, unknown.ID)
		}
		assert.Contains(t, err.Error(), "unknown message id")
	}
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	_, err := peer.ReadMessage(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 7}))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Message))
}

func TestReadMessageTruncated(t *testing.T) {
	_, err := peer.ReadMessage(bytes.NewReader([]byte{0, 0, 0, 5, 4, 0}))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.IO))
}
