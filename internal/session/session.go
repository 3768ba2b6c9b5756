// Package session downloads a torrent into memory from the
// peers its trackers return and serves verified pieces to
// other peers.
package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/bits"
	"github.com/namvu9/btcore/pkg/btorrent"
	"github.com/namvu9/btcore/pkg/btorrent/peer"
	"github.com/namvu9/btcore/pkg/btorrent/pieces"
	"github.com/namvu9/btcore/pkg/btorrent/tracker"
	"github.com/namvu9/btcore/pkg/sha1sum"
)

// Config represents the configuration of a session
type Config struct {
	PeerID   [20]byte
	Reserved [8]byte

	// Port is announced to trackers and used by Serve
	Port uint16

	PeerTimeout    time.Duration
	TrackerTimeout time.Duration

	// Workers bounds the number of outbound connections
	Workers int

	// Pipeline is the number of requests kept outstanding
	// per peer
	Pipeline int

	// Hasher verifies pieces; SHA-1 when nil
	Hasher sha1sum.Hasher
}

func (cfg *Config) setDefaults() {
	if cfg.Workers <= 0 {
		cfg.Workers = 30
	}

	if cfg.Pipeline <= 0 {
		cfg.Pipeline = 5
	}

	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = peer.DefaultTimeout
	}

	if cfg.TrackerTimeout <= 0 {
		cfg.TrackerTimeout = tracker.DefaultTimeout
	}
}

// Piece is a verified piece handed to the caller
type Piece struct {
	Index int
	Data  []byte
}

// Session represents the client's participation in the
// swarm of a single torrent
type Session struct {
	cfg       Config
	startedAt time.Time

	torrent  *btorrent.Torrent
	pieces   *pieces.Manager
	trackers *tracker.TrackerGroup

	// Every piece is verified once, so a buffer of
	// PieceCount() never blocks
	out chan Piece

	// settled marks pieces that were delivered on out or
	// seeded by the caller. out is closed once all are.
	outMu   sync.Mutex
	settled bits.BitField

	mu    sync.Mutex
	peers map[string]*peer.Conn

	downloaded int64
	uploaded   int64
}

func New(t *btorrent.Torrent, cfg Config) (*Session, error) {
	var op errors.Op = "session.New"

	cfg.setDefaults()

	pm, err := pieces.FromTorrent(t, cfg.Hasher)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	// A torrent without UDP trackers can still be seeded
	// and downloaded from known peers
	tg, _ := tracker.GroupFromMetadata(t, cfg.TrackerTimeout)

	s := &Session{
		cfg:       cfg,
		startedAt: time.Now(),
		torrent:   t,
		pieces:    pm,
		trackers:  tg,
		out:       make(chan Piece, pm.PieceCount()),
		settled:   pm.HaveBitfield().Clone(),
		peers:     make(map[string]*peer.Conn),
	}

	if s.settled.Count() == s.settled.Len() {
		s.finish()
	}

	return s, nil
}

func (s *Session) Torrent() *btorrent.Torrent {
	return s.torrent
}

func (s *Session) PieceManager() *pieces.Manager {
	return s.pieces
}

// Pieces delivers each piece once it is verified. It is
// closed when every piece is complete.
func (s *Session) Pieces() <-chan Piece {
	return s.out
}

// Seed marks a piece obtained elsewhere as complete, so it
// can be served to other peers
func (s *Session) Seed(index int, data []byte) error {
	var op errors.Op = "session.Seed"

	if err := s.pieces.MarkHaveFromData(index, data); err != nil {
		return errors.Wrap(err, op)
	}

	s.settle(index, nil)

	return nil
}

// settle records index and, when data is non-nil, hands it
// to the caller. The send and the completion check happen
// under outMu so out is never closed while a verified piece
// is still on its way.
func (s *Session) settle(index int, data []byte) bool {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	if s.settled.Get(index) {
		return false
	}
	s.settled.Set(index)

	if data != nil {
		s.out <- Piece{Index: index, Data: data}
	}

	if s.settled.Count() == s.settled.Len() {
		s.finish()
	}

	return true
}

// finish closes out. Callers hold outMu, except New.
func (s *Session) finish() {
	close(s.out)
	log.Info().Str("torrent", s.torrent.Name()).Dur("elapsed", time.Since(s.startedAt)).Msg("download complete")
}

func (s *Session) deliver(index int, data []byte) {
	if s.settle(index, data) {
		s.broadcast(peer.HaveMessage{Index: uint32(index)})
	}
}

func (s *Session) peerConfig() peer.Config {
	return peer.Config{
		InfoHash: s.torrent.InfoHash(),
		PeerID:   s.cfg.PeerID,
		Reserved: s.cfg.Reserved,
		Timeout:  s.cfg.PeerTimeout,
	}
}

func (s *Session) addPeer(c *peer.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.RemoteAddr().String()
	if _, ok := s.peers[key]; ok {
		return false
	}

	s.peers[key] = c
	return true
}

func (s *Session) removePeer(c *peer.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.peers, c.RemoteAddr().String())
}

func (s *Session) connected(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.peers[addr]
	return ok
}

// broadcast sends msg to every connected peer. Conn.Send
// is safe for concurrent use, unlike peer.Peer.
func (s *Session) broadcast(msg peer.Message) {
	s.mu.Lock()
	conns := make([]*peer.Conn, 0, len(s.peers))
	for _, c := range s.peers {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			log.Debug().Err(err).Str("peer", c.RemoteAddr().String()).Msg("broadcast failed")
		}
	}
}

// Announce asks every UDP tracker of the torrent that is
// due for peers. Trackers that failed are skipped until
// their backoff expires.
func (s *Session) Announce(ctx context.Context) (tracker.AnnounceResult, error) {
	var op errors.Op = "session.Announce"

	if s.trackers.Len() == 0 {
		return tracker.AnnounceResult{}, errors.Wrap(tracker.ErrNoUDPTracker, op, errors.BadArgument)
	}

	req := tracker.NewRequest(s.torrent.InfoHash(), s.cfg.Port, s.cfg.PeerID)
	req.Left = uint64(s.pieces.Left())
	req.Downloaded = uint64(atomic.LoadInt64(&s.downloaded))
	req.Uploaded = uint64(atomic.LoadInt64(&s.uploaded))

	return s.trackers.Announce(ctx, req), nil
}

// NextAnnounce returns when the first tracker is due again
func (s *Session) NextAnnounce() time.Time {
	return s.trackers.NextAnnounce()
}

// Trackers reports the outcome of the last announce to
// each tracker
func (s *Session) Trackers() []tracker.TrackerStat {
	return s.trackers.Stat()
}

// Download connects to addrs, at most Workers at a time,
// and exchanges pieces with them until every connection
// ends, the torrent is complete or ctx is done
func (s *Session) Download(ctx context.Context, addrs []string) {
	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Workers)
	)

	for _, addr := range addrs {
		if s.pieces.Complete() || ctx.Err() != nil {
			break
		}

		if s.connected(addr) {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}

		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			defer func() { <-sem }()

			c, err := peer.Dial(ctx, addr, s.peerConfig())
			if err != nil {
				log.Debug().Err(err).Str("peer", addr).Msg("dial failed")
				return
			}

			s.handle(ctx, c, true)
		}(addr)
	}

	wg.Wait()
}

// Run announces and downloads until the torrent is
// complete or ctx is done, re-announcing when the known
// peers are exhausted
func (s *Session) Run(ctx context.Context) error {
	var op errors.Op = "session.Run"

	for !s.pieces.Complete() {
		res, err := s.Announce(ctx)
		if err != nil {
			return errors.Wrap(err, op)
		}

		addrs := make([]string, 0, len(res.Peers))
		for _, p := range res.Peers {
			addrs = append(addrs, p.String())
		}

		log.Info().Int("peers", len(addrs)).Int64("left", s.pieces.Left()).Msg("announced")

		s.Download(ctx, addrs)

		if s.pieces.Complete() {
			break
		}

		wait := time.Until(s.NextAnnounce())
		if wait > time.Minute {
			wait = time.Minute
		}
		if wait < time.Second {
			wait = time.Second
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), op, errors.Timeout)
		}
	}

	return nil
}

// Serve accepts inbound peers from ln until ctx is done or
// ln is closed
func (s *Session) Serve(ctx context.Context, ln net.Listener) error {
	var op errors.Op = "session.Serve"

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return errors.Wrap(err, op, errors.Network)
		}

		go func(conn net.Conn) {
			c, err := peer.Accept(conn, s.peerConfig())
			if err != nil {
				log.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("inbound handshake failed")
				return
			}

			s.handle(ctx, c, false)
		}(conn)
	}
}

// Stat is a snapshot of a session's progress
type Stat struct {
	Name       string        `json:"name"`
	InfoHash   string        `json:"infoHash"`
	Length     int64         `json:"length"`
	Left       int64         `json:"left"`
	Pieces     int           `json:"pieces"`
	Have       int           `json:"have"`
	Peers      int           `json:"peers"`
	Downloaded int64         `json:"downloaded"`
	Uploaded   int64         `json:"uploaded"`
	Uptime     time.Duration `json:"uptime"`
}

func (s *Session) Stat() Stat {
	s.mu.Lock()
	nPeers := len(s.peers)
	s.mu.Unlock()

	return Stat{
		Name:       s.torrent.Name(),
		InfoHash:   s.torrent.HexHash(),
		Length:     s.torrent.TotalLength(),
		Left:       s.pieces.Left(),
		Pieces:     s.pieces.PieceCount(),
		Have:       s.pieces.HaveBitfield().Count(),
		Peers:      nPeers,
		Downloaded: atomic.LoadInt64(&s.downloaded),
		Uploaded:   atomic.LoadInt64(&s.uploaded),
		Uptime:     time.Since(s.startedAt),
	}
}
