package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/btorrent/peer"
	"github.com/namvu9/btcore/pkg/btorrent/pieces"
)

// MaxIdle is how long a peer may stay silent before it is
// dropped
const MaxIdle = 2 * time.Minute

// handle exchanges messages with c until either side
// closes the connection, an error occurs or ctx is done.
// Outbound connections are also closed once the download
// is complete. c is always closed on return.
func (s *Session) handle(ctx context.Context, c *peer.Conn, outbound bool) {
	if !s.addPeer(c) {
		log.Debug().Str("peer", c.RemoteAddr().String()).Msg("already connected")
		c.Close()
		return
	}

	p := peer.New(c, s.pieces.PieceCount())

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	defer func() {
		close(done)
		s.removePeer(c)
		c.Close()
	}()

	log.Debug().Str("peer", p.String()).Msg("connected")

	err := s.exchange(ctx, p, outbound)
	if err != nil && ctx.Err() == nil {
		log.Debug().Err(err).Str("peer", p.String()).Msg("dropped")
		return
	}

	log.Debug().Str("peer", p.String()).Int64("downloaded", p.Downloaded).Int64("uploaded", p.Uploaded).Msg("disconnected")
}

func (s *Session) exchange(ctx context.Context, p *peer.Peer, outbound bool) error {
	var op errors.Op = "session.exchange"

	if have := s.pieces.HaveBitfield(); have.Count() > 0 {
		if err := p.Send(peer.BitFieldMessage{BitField: have.Bytes()}); err != nil {
			return errors.Wrap(err, op)
		}
	}

	for ctx.Err() == nil {
		if s.pieces.Complete() && (outbound || p.Pieces.Count() == p.Pieces.Len()) {
			return nil
		}

		msg, err := p.Receive()
		if err != nil {
			if !errors.IsKind(err, errors.Timeout) {
				return errors.Wrap(err, op)
			}

			if p.Idle(MaxIdle) {
				return errors.Wrap(err, op, errors.Timeout)
			}

			if err := p.Send(peer.KeepAliveMessage{}); err != nil {
				return errors.Wrap(err, op)
			}

			continue
		}

		// Remote closed the connection
		if msg == nil {
			return nil
		}

		if err := p.Handle(msg); err != nil {
			return errors.Wrap(err, op)
		}

		if err := s.respond(p, msg); err != nil {
			return errors.Wrap(err, op)
		}
	}

	return nil
}

func (s *Session) respond(p *peer.Peer, msg peer.Message) error {
	switch v := msg.(type) {
	case peer.HaveMessage, peer.BitFieldMessage:
		if err := s.updateInterest(p); err != nil {
			return err
		}

	case peer.InterestedMessage:
		if p.Choked {
			if err := p.Send(peer.UnchokeMessage{}); err != nil {
				return err
			}
		}

	case peer.NotInterestedMessage:
		if !p.Choked {
			if err := p.Send(peer.ChokeMessage{}); err != nil {
				return err
			}
		}

	case peer.RequestMessage:
		if err := s.serve(p, v); err != nil {
			return err
		}

	case peer.PieceMessage:
		if err := s.receive(p, v); err != nil {
			return err
		}

		if err := s.updateInterest(p); err != nil {
			return err
		}
	}

	return s.fill(p)
}

// updateInterest tells p whether it has pieces the
// client still needs
func (s *Session) updateInterest(p *peer.Peer) error {
	interesting := len(s.pieces.InterestingPieces(p.Pieces)) > 0

	switch {
	case interesting && !p.Interesting:
		return p.Send(peer.InterestedMessage{})
	case !interesting && p.Interesting:
		return p.Send(peer.NotInterestedMessage{})
	}

	return nil
}

// fill keeps up to Pipeline requests outstanding with a
// peer that has unchoked the client
func (s *Session) fill(p *peer.Peer) error {
	for !p.Blocking && p.Interesting && p.Pending < s.cfg.Pipeline {
		req, ok := s.pieces.NextRequest(p.Pieces, pieces.BlockSize)
		if !ok {
			return nil
		}

		msg := peer.RequestMessage{
			Index:  uint32(req.Index),
			Offset: uint32(req.Begin),
			Length: uint32(req.Length),
		}

		if err := p.Send(msg); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) receive(p *peer.Peer, msg peer.PieceMessage) error {
	var op errors.Op = "session.receive"

	data, err := s.pieces.AddBlock(int(msg.Index), int(msg.Offset), msg.Piece)
	if errors.IsKind(err, errors.Verification) {
		log.Warn().Str("peer", p.String()).Uint32("piece", msg.Index).Msg("discarding corrupt piece")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, op, errors.Message)
	}

	atomic.AddInt64(&s.downloaded, int64(len(msg.Piece)))

	if data != nil {
		s.deliver(int(msg.Index), data)
	}

	return nil
}

// serve answers a block request from a verified piece.
// Requests from choked peers are ignored.
func (s *Session) serve(p *peer.Peer, req peer.RequestMessage) error {
	var op errors.Op = "session.serve"

	if p.Choked {
		return nil
	}

	block, err := s.pieces.ReadBlock(int(req.Index), int(req.Offset), int(req.Length))
	if err != nil {
		return errors.Wrap(err, op, errors.Message)
	}

	if err := p.Send(peer.PieceMessage{Index: req.Index, Offset: req.Offset, Piece: block}); err != nil {
		return err
	}

	atomic.AddInt64(&s.uploaded, int64(len(block)))

	return nil
}
