package peer

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/namvu9/btcore/internal/errors"
)

// BitTorrent message types
const (
	Choke         byte = 0
	Unchoke       byte = 1
	Interested    byte = 2
	NotInterested byte = 3
	Have          byte = 4
	BitField      byte = 5
	Request       byte = 6
	Piece         byte = 7
	Cancel        byte = 8
	Port          byte = 9
	Extended      byte = 20
)

// MaxFrameLength bounds the length prefix accepted by
// ReadMessage
const MaxFrameLength = 1 << 20

// Message is a single peer wire message. Bytes returns the
// complete frame, length prefix included.
type Message interface {
	Bytes() []byte
}

// frame returns <len><id><payload>
func frame(id byte, payload ...[]byte) []byte {
	var n int
	for _, p := range payload {
		n += len(p)
	}

	buf := make([]byte, 5, 5+n)
	binary.BigEndian.PutUint32(buf, uint32(1+n))
	buf[4] = id

	for _, p := range payload {
		buf = append(buf, p...)
	}

	return buf
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

type KeepAliveMessage struct{}

func (m KeepAliveMessage) Bytes() []byte {
	return []byte{0, 0, 0, 0}
}

type ChokeMessage struct{}

func (m ChokeMessage) Bytes() []byte {
	return frame(Choke)
}

type UnchokeMessage struct{}

func (m UnchokeMessage) Bytes() []byte {
	return frame(Unchoke)
}

type InterestedMessage struct{}

func (m InterestedMessage) Bytes() []byte {
	return frame(Interested)
}

type NotInterestedMessage struct{}

func (m NotInterestedMessage) Bytes() []byte {
	return frame(NotInterested)
}

// HaveMessage - The 'have' message's payload is a single
// number, the index which that downloader just completed
// and checked the hash of.
type HaveMessage struct {
	Index uint32
}

func (m HaveMessage) Bytes() []byte {
	return frame(Have, u32(m.Index))
}

func (m HaveMessage) String() string {
	return fmt.Sprintf("Have{Index: %d}", m.Index)
}

// BitFieldMessage is only ever sent as the first message.
// Its payload is a bitfield with each index that
// downloader has set to 1 and the rest set to 0. The first
// byte of the bitfield corresponds to indices 0 - 7 from
// high bit to low bit, respectively. The next one 8-15,
// etc. Spare bits at the end are set to zero.
type BitFieldMessage struct {
	BitField []byte
}

func (m BitFieldMessage) Bytes() []byte {
	return frame(BitField, m.BitField)
}

// RequestMessage asks for the block of Length bytes at
// Offset within piece Index. Length is generally 2^14
// (16 KiB) unless truncated by the end of the piece.
type RequestMessage struct {
	Index  uint32 // piece index
	Offset uint32 // offset within the piece
	Length uint32
}

func (m RequestMessage) Bytes() []byte {
	return frame(Request, u32(m.Index), u32(m.Offset), u32(m.Length))
}

// PieceMessage contains block data
type PieceMessage struct {
	Index  uint32
	Offset uint32
	Piece  []byte
}

func (m PieceMessage) Bytes() []byte {
	return frame(Piece, u32(m.Index), u32(m.Offset), m.Piece)
}

func (m PieceMessage) String() string {
	return fmt.Sprintf("Piece{Index: %d, Offset: %d, Len: %d}", m.Index, m.Offset, len(m.Piece))
}

// CancelMessage has the same payload as RequestMessage and
// withdraws an earlier request
type CancelMessage struct {
	Index  uint32
	Offset uint32
	Length uint32
}

func (m CancelMessage) Bytes() []byte {
	return frame(Cancel, u32(m.Index), u32(m.Offset), u32(m.Length))
}

// PortMessage announces the port of the sender's DHT node
type PortMessage struct {
	Port uint16
}

func (m PortMessage) Bytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, m.Port)
	return frame(Port, b)
}

// ExtendedMessage carries an extension message (ID 20, or
// any ID above it) whose payload is kept opaque
type ExtendedMessage struct {
	ID      byte
	Payload []byte
}

func (m ExtendedMessage) Bytes() []byte {
	id := m.ID
	if id < Extended {
		id = Extended
	}

	return frame(id, m.Payload)
}

// Name returns the human-readable name of a message ID
func Name(id byte) string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not interested"
	case Have:
		return "have"
	case BitField:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	case Port:
		return "port"
	}

	if id >= Extended {
		return "extended"
	}

	return fmt.Sprintf("unknown(%d)", id)
}

// UnmarshalMessage decodes a frame with its 4-byte length
// prefix already removed. An empty frame is a keep-alive.
// Payload slices of the result alias data.
func UnmarshalMessage(data []byte) (Message, error) {
	var op errors.Op = "peer.UnmarshalMessage"

	if len(data) == 0 {
		return KeepAliveMessage{}, nil
	}

	var (
		messageType = data[0]
		payload     = data[1:]
	)

	if err := checkPayload(messageType, payload); err != nil {
		return nil, errors.Wrap(err, op, errors.Message)
	}

	switch messageType {
	case Choke:
		return ChokeMessage{}, nil
	case Unchoke:
		return UnchokeMessage{}, nil
	case Interested:
		return InterestedMessage{}, nil
	case NotInterested:
		return NotInterestedMessage{}, nil
	case Have:
		return HaveMessage{Index: binary.BigEndian.Uint32(payload)}, nil
	case BitField:
		return BitFieldMessage{BitField: payload}, nil
	case Request:
		return RequestMessage{
			Index:  binary.BigEndian.Uint32(payload[:4]),
			Offset: binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case Piece:
		return PieceMessage{
			Index:  binary.BigEndian.Uint32(payload[:4]),
			Offset: binary.BigEndian.Uint32(payload[4:8]),
			Piece:  payload[8:],
		}, nil
	case Cancel:
		return CancelMessage{
			Index:  binary.BigEndian.Uint32(payload[:4]),
			Offset: binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case Port:
		return PortMessage{Port: binary.BigEndian.Uint16(payload)}, nil
	default:
		return ExtendedMessage{ID: messageType, Payload: payload}, nil
	}
}

func checkPayload(id byte, payload []byte) error {
	var (
		want    int
		atLeast bool
	)

	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		want = 0
	case Have:
		want = 4
	case Request, Cancel:
		want = 12
	case Piece:
		want, atLeast = 8, true
	case Port:
		want = 2
	case BitField:
		return nil
	default:
		if id >= Extended {
			return nil
		}

		return UnknownMessageError{ID: id}
	}

	got := len(payload)
	if got == want || (atLeast && got > want) {
		return nil
	}

	return PayloadSizeError{Name: Name(id), Want: want, Got: got, AtLeast: atLeast}
}

// ReadMessage reads one length-prefixed frame from r
func ReadMessage(r io.Reader) (Message, error) {
	var op errors.Op = "peer.ReadMessage"

	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, errors.Wrap(err, op, errors.IO)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return KeepAliveMessage{}, nil
	}

	if length > MaxFrameLength {
		err := fmt.Errorf("frame length %d exceeds %d", length, MaxFrameLength)
		return nil, errors.Wrap(err, op, errors.Message)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, op, errors.IO)
	}

	return UnmarshalMessage(buf)
}

// String renders a message for logs
func String(msg Message) string {
	switch v := msg.(type) {
	case fmt.Stringer:
		return v.String()
	case BitFieldMessage:
		return fmt.Sprintf("BitField{Len: %d}", len(v.BitField))
	case ExtendedMessage:
		return fmt.Sprintf("Extended{ID: %d, Len: %d}", v.ID, len(v.Payload))
	default:
		name := fmt.Sprintf("%T", msg)
		return strings.TrimSuffix(name[strings.LastIndex(name, ".")+1:], "Message")
	}
}
