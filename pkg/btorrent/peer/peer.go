package peer

import (
	"fmt"
	"time"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/bits"
)

// Peer tracks what the client knows about a remote peer in
// the swarm. It is not safe for concurrent use; a session
// owns each Peer from a single goroutine.
type Peer struct {
	*Conn

	// This peer has choked the client and should not be
	// be asked for pieces
	Blocking bool

	// This peer has been choked by the client and will not be
	// sent any pieces
	Choked bool

	// This peer wants one or more of the pieces that the
	// client has
	Interested bool

	// The client has told this peer it wants one or more of
	// its pieces
	Interesting bool

	// A bitfield specifying the indexes of the pieces that
	// the peer has
	Pieces bits.BitField

	// Requests sent to this peer that have not been answered
	Pending int

	Downloaded int64
	Uploaded   int64

	LastMessageReceived time.Time
	LastMessageSent     time.Time
}

// New wraps a handshaken connection to a peer in a
// torrent with nPieces pieces
func New(c *Conn, nPieces int) *Peer {
	now := time.Now()

	return &Peer{
		Conn:                c,
		Blocking:            true,
		Choked:              true,
		Pieces:              bits.New(nPieces),
		LastMessageReceived: now,
		LastMessageSent:     now,
	}
}

func (p *Peer) Client() string {
	return ClientName(p.RemotePeerID())
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.RemoteAddr(), p.Client())
}

// Send writes msg and records the state change it implies
func (p *Peer) Send(msg Message) error {
	if err := p.Conn.Send(msg); err != nil {
		return err
	}

	switch v := msg.(type) {
	case ChokeMessage:
		p.Choked = true
	case UnchokeMessage:
		p.Choked = false
	case InterestedMessage:
		p.Interesting = true
	case NotInterestedMessage:
		p.Interesting = false
	case RequestMessage:
		p.Pending++
	case PieceMessage:
		p.Uploaded += int64(len(v.Piece))
	}

	p.LastMessageSent = time.Now()

	return nil
}

// Handle updates the peer's state from a message it sent
func (p *Peer) Handle(msg Message) error {
	var op errors.Op = "peer.Peer.Handle"

	p.LastMessageReceived = time.Now()

	switch v := msg.(type) {
	case ChokeMessage:
		// Outstanding requests are dropped by a choking peer
		p.Blocking = true
		p.Pending = 0
	case UnchokeMessage:
		p.Blocking = false
	case InterestedMessage:
		p.Interested = true
	case NotInterestedMessage:
		p.Interested = false
	case HaveMessage:
		if err := p.Pieces.Set(int(v.Index)); err != nil {
			return errors.Wrap(err, op, errors.Message)
		}
	case BitFieldMessage:
		bf, err := bits.FromBytes(v.BitField, p.Pieces.Len())
		if err != nil {
			return errors.Wrap(err, op, errors.Message)
		}
		p.Pieces = bf
	case PieceMessage:
		if p.Pending > 0 {
			p.Pending--
		}
		p.Downloaded += int64(len(v.Piece))
	}

	return nil
}

// Idle reports whether nothing has been received from the
// peer for longer than d
func (p *Peer) Idle(d time.Duration) bool {
	return time.Since(p.LastMessageReceived) > d
}
