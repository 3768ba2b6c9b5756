package peer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/namvu9/btcore/internal/errors"
)

// ProtocolString identifies the BitTorrent protocol in a
// handshake
const ProtocolString = "BitTorrent protocol"

// HandshakeLen is the length of a handshake carrying
// ProtocolString: 1 + 19 + 8 + 20 + 20
const HandshakeLen = 1 + len(ProtocolString) + 8 + 20 + 20

// Handshake is the first message exchanged on a
// connection, in both directions:
//
//	<pstrlen><pstr><reserved><info_hash><peer_id>
//
// Decoding does not check the info hash, so the same codec
// serves any protocol string. Matching the info hash
// against the expected torrent is left to the caller.
type Handshake struct {
	PStr     string
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake returns a handshake for the BitTorrent
// protocol with all reserved bits unset
func NewHandshake(infoHash, peerID [20]byte) Handshake {
	return Handshake{
		PStr:     ProtocolString,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

// EncodeHandshake returns the 68-byte wire handshake for
// infoHash and peerID
func EncodeHandshake(infoHash, peerID [20]byte) []byte {
	return NewHandshake(infoHash, peerID).Bytes()
}

// Bytes encodes the handshake. A protocol string longer
// than 255 bytes is truncated.
func (h Handshake) Bytes() []byte {
	pstr := h.PStr
	if len(pstr) > 255 {
		pstr = pstr[:255]
	}

	var buf bytes.Buffer
	buf.Grow(1 + len(pstr) + 48)

	buf.WriteByte(byte(len(pstr)))
	buf.WriteString(pstr)
	buf.Write(h.Reserved[:])
	buf.Write(h.InfoHash[:])
	buf.Write(h.PeerID[:])

	return buf.Bytes()
}

// Extensions returns the extensions advertised in the
// reserved bytes
func (h Handshake) Extensions() Extensions {
	return NewExtensions(h.Reserved)
}

// UnmarshalHandshake decodes a handshake. data must be
// exactly 1 + pstrlen + 48 bytes long.
func UnmarshalHandshake(data []byte) (Handshake, error) {
	var (
		op  errors.Op = "peer.UnmarshalHandshake"
		msg Handshake
	)

	if len(data) == 0 {
		return msg, errors.Wrap(io.ErrUnexpectedEOF, op, errors.Handshake)
	}

	pstrLen := int(data[0])
	want := 1 + pstrLen + 48

	if len(data) < want {
		err := fmt.Errorf("handshake truncated: pstrlen %d requires %d bytes, got %d", pstrLen, want, len(data))
		return msg, errors.Wrap(err, op, errors.Handshake)
	}

	if len(data) != want {
		err := fmt.Errorf("handshake length: want %d got %d", want, len(data))
		return msg, errors.Wrap(err, op, errors.Handshake)
	}

	offset := 1
	msg.PStr = string(data[offset : offset+pstrLen])
	offset += pstrLen

	offset += copy(msg.Reserved[:], data[offset:])
	offset += copy(msg.InfoHash[:], data[offset:])
	copy(msg.PeerID[:], data[offset:])

	return msg, nil
}

// ReadHandshake reads the protocol string length, then the
// remainder of the handshake, from r
func ReadHandshake(r io.Reader) (Handshake, error) {
	var op errors.Op = "peer.ReadHandshake"

	var pstrLen [1]byte
	if _, err := io.ReadFull(r, pstrLen[:]); err != nil {
		return Handshake{}, errors.Wrap(err, op, errors.Handshake)
	}

	data := make([]byte, 1+int(pstrLen[0])+48)
	data[0] = pstrLen[0]

	if _, err := io.ReadFull(r, data[1:]); err != nil {
		return Handshake{}, errors.Wrap(err, op, errors.Handshake)
	}

	return UnmarshalHandshake(data)
}
