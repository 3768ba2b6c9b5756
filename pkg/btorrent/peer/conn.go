package peer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/namvu9/btcore/internal/errors"
)

// DefaultTimeout bounds every network operation on a Conn
// when Config.Timeout is zero
const DefaultTimeout = 10 * time.Second

// Config describes the local end of a peer connection
type Config struct {
	InfoHash [20]byte
	PeerID   [20]byte
	Reserved [8]byte

	// Timeout applies independently to the dial, the
	// handshake write, the handshake read, each Send and
	// each read performed by Receive
	Timeout time.Duration
}

func (cfg Config) timeout() time.Duration {
	if cfg.Timeout <= 0 {
		return DefaultTimeout
	}

	return cfg.Timeout
}

// Conn is a handshaken connection to a remote peer. Send
// may be called concurrently with Receive; concurrent
// calls to Receive are not supported.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
	remote  Handshake

	// broken is set once a read fails mid-frame
	broken error

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the peer at addr and exchanges
// handshakes. The dial is bounded by both ctx and the
// configured timeout.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	var op errors.Op = "peer.Dial"

	d := net.Dialer{Timeout: cfg.timeout()}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrTimeout, err), op, errors.Timeout)
		}

		return nil, errors.Wrap(err, op, errors.Network)
	}

	c, err := newConn(conn, cfg)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return c, nil
}

// Accept runs the handshake on a connection accepted by a
// listener. The exchange is the same as for Dial.
func Accept(conn net.Conn, cfg Config) (*Conn, error) {
	var op errors.Op = "peer.Accept"

	c, err := newConn(conn, cfg)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return c, nil
}

func newConn(conn net.Conn, cfg Config) (*Conn, error) {
	c := &Conn{
		conn:    conn,
		timeout: cfg.timeout(),
	}

	if err := c.handshake(cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

func (c *Conn) handshake(cfg Config) error {
	var op errors.Op = "peer.Conn.handshake"

	local := NewHandshake(cfg.InfoHash, cfg.PeerID)
	local.Reserved = cfg.Reserved

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(local.Bytes()); err != nil {
		return ioError(err, op)
	}

	buf := make([]byte, HandshakeLen)

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Wrap(err, op, errors.Handshake)
		}

		return ioError(err, op)
	}

	remote, err := UnmarshalHandshake(buf)
	if err != nil {
		return errors.Wrap(err, op)
	}

	if remote.InfoHash != cfg.InfoHash {
		err := fmt.Errorf("%w: want %x got %x", ErrInfoHashMismatch, cfg.InfoHash, remote.InfoHash)
		return errors.Wrap(err, op, errors.Handshake)
	}

	c.remote = remote

	log.Debug().
		Str("addr", c.conn.RemoteAddr().String()).
		Str("client", ClientName(remote.PeerID)).
		Ints("extensions", remote.Extensions().Enabled()).
		Msg("handshake completed")

	return nil
}

// Handshake returns the handshake received from the remote
// peer
func (c *Conn) Handshake() Handshake {
	return c.remote
}

func (c *Conn) RemotePeerID() [20]byte {
	return c.remote.PeerID
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send frames and writes msg
func (c *Conn) Send(msg Message) error {
	var op errors.Op = "peer.Conn.Send"

	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(msg.Bytes()); err != nil {
		return ioError(err, op)
	}

	return nil
}

// Receive reads the next message. It returns (nil, nil)
// when the peer closed the connection cleanly before
// sending another length prefix. A timeout is only
// retryable when no byte of the frame was consumed; any
// other failure inside a frame breaks the Conn and every
// later call returns ErrBrokenFrame.
func (c *Conn) Receive() (Message, error) {
	var op errors.Op = "peer.Conn.Receive"

	if c.broken != nil {
		return nil, errors.Wrap(c.broken, op, errors.IO)
	}

	var prefix [4]byte

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	if n, err := io.ReadFull(c.conn, prefix[:]); err != nil {
		if n == 0 && err == io.EOF {
			return nil, nil
		}

		if n == 0 {
			return nil, ioError(err, op)
		}

		return nil, c.breakFrame(err, op)
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

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, c.breakFrame(err, op)
	}

	msg, err := UnmarshalMessage(buf)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return msg, nil
}

func (c *Conn) breakFrame(err error, op errors.Op) error {
	c.broken = fmt.Errorf("%w: %v", ErrBrokenFrame, err)
	return errors.Wrap(c.broken, op, errors.IO)
}

type closeWriter interface {
	CloseWrite() error
}

// Close shuts down the write side first so the remote end
// observes a clean EOF, then releases the connection. It
// is safe to call more than once.
func (c *Conn) Close() error {
	var op errors.Op = "peer.Conn.Close"

	c.closeOnce.Do(func() {
		if cw, ok := c.conn.(closeWriter); ok {
			cw.CloseWrite()
		}

		if err := c.conn.Close(); err != nil {
			c.closeErr = errors.Wrap(err, op, errors.IO)
		}
	})

	return c.closeErr
}
