package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/namvu9/btcore/internal/errors"
)

// UDP_PROTOCOL_ID is the magic constant that opens every
// connect request
const UDP_PROTOCOL_ID uint64 = 0x41727101980

// DefaultTimeout bounds each send and receive of a UDP
// tracker exchange
const DefaultTimeout = 5 * time.Second

const (
	connectLen        = 16
	announceHeaderLen = 20
	announceReqLen    = 98
	compactPeerLen    = 6
	recvBufSize       = 1500
	keyMask           = 0xA5A5A5A5
)

var txCounter uint32

// newTxID mixes the sub-second clock, the process ID and a
// monotonic counter so that concurrent exchanges, even
// across processes, rarely share a transaction ID
func newTxID() uint32 {
	c := atomic.AddUint32(&txCounter, 1) - 1
	nanos := uint32(time.Now().Nanosecond())
	pid := uint32(os.Getpid())

	return nanos ^ bits.RotateLeft32(pid, 16) ^ c*0x9E3779B1
}

// ConnectReq represents the structure that constitutes the
// connect portion of the UDP tracker protocol
type ConnectReq struct {
	ProtocolID uint64
	Action     uint32
	TxID       uint32
}

func newConnReq() ConnectReq {
	return ConnectReq{
		ProtocolID: UDP_PROTOCOL_ID,
		Action:     CONNECT,
		TxID:       newTxID(),
	}
}

func (req ConnectReq) Bytes() []byte {
	buf := make([]byte, connectLen)
	binary.BigEndian.PutUint64(buf[:8], req.ProtocolID)
	binary.BigEndian.PutUint32(buf[8:12], req.Action)
	binary.BigEndian.PutUint32(buf[12:16], req.TxID)
	return buf
}

// ConnMessage is the tracker's answer to a ConnectReq
type ConnMessage struct {
	Action uint32
	TxID   uint32
	ConnID uint64
}

func (res ConnMessage) Bytes() []byte {
	buf := make([]byte, connectLen)
	binary.BigEndian.PutUint32(buf[:4], res.Action)
	binary.BigEndian.PutUint32(buf[4:8], res.TxID)
	binary.BigEndian.PutUint64(buf[8:16], res.ConnID)
	return buf
}

// ValidateConnection checks that res answers req
func ValidateConnection(req ConnectReq, res ConnMessage) error {
	if res.TxID != req.TxID {
		return fmt.Errorf("%w: transaction IDs do not match: want %d got %d", ErrInvalidResponse, req.TxID, res.TxID)
	}

	if res.Action != req.Action {
		return fmt.Errorf("%w: actions do not match: want %d got %d", ErrInvalidResponse, req.Action, res.Action)
	}

	return nil
}

// UDPRequest is the 98-byte announce request
type UDPRequest struct {
	ConnID uint64
	Action uint32
	TxID   uint32

	Request
}

func (r UDPRequest) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(announceReqLen)

	// Writes to a bytes.Buffer do not fail
	binary.Write(&buf, binary.BigEndian, r)

	return buf.Bytes()
}

// checkError turns an ERROR action carrying txID into a
// TrackerError
func checkError(data []byte, txID uint32) error {
	if len(data) < 8 || binary.BigEndian.Uint32(data[:4]) != ERROR {
		return nil
	}

	if binary.BigEndian.Uint32(data[4:8]) != txID {
		return nil
	}

	return TrackerError{Message: string(bytes.TrimRight(data[8:], "\x00"))}
}

func unmarshalConnResponse(data []byte, req ConnectReq) (uint64, error) {
	if err := checkError(data, req.TxID); err != nil {
		return 0, err
	}

	if len(data) < connectLen {
		return 0, fmt.Errorf("%w: short connect response: %d bytes", ErrInvalidResponse, len(data))
	}

	res := ConnMessage{
		Action: binary.BigEndian.Uint32(data[:4]),
		TxID:   binary.BigEndian.Uint32(data[4:8]),
		ConnID: binary.BigEndian.Uint64(data[8:16]),
	}

	if err := ValidateConnection(req, res); err != nil {
		return 0, err
	}

	return res.ConnID, nil
}

func unmarshalResponse(data []byte, txID uint32, v *Response) error {
	if err := checkError(data, txID); err != nil {
		return err
	}

	if len(data) < announceHeaderLen {
		return fmt.Errorf("%w: short announce response: %d bytes", ErrInvalidResponse, len(data))
	}

	v.Action = binary.BigEndian.Uint32(data[:4])
	v.TxID = binary.BigEndian.Uint32(data[4:8])

	if v.Action != ANNOUNCE {
		return fmt.Errorf("%w: expected action %d but got %d", ErrInvalidResponse, ANNOUNCE, v.Action)
	}

	if v.TxID != txID {
		return fmt.Errorf("%w: transaction IDs do not match: want %d got %d", ErrInvalidResponse, txID, v.TxID)
	}

	if rest := len(data) - announceHeaderLen; rest%compactPeerLen != 0 {
		return fmt.Errorf("%w: peer list of %d bytes is not a multiple of %d", ErrInvalidResponse, rest, compactPeerLen)
	}

	v.Interval = binary.BigEndian.Uint32(data[8:12])
	v.NLeechers = binary.BigEndian.Uint32(data[12:16])
	v.NSeeders = binary.BigEndian.Uint32(data[16:20])

	peers, err := ParseCompactPeers(data[announceHeaderLen:])
	if err != nil {
		return err
	}
	v.Peers = peers

	return nil
}

// ParseCompactPeers decodes 6-byte IPv4 address and port
// records
func ParseCompactPeers(data []byte) ([]PeerInfo, error) {
	if len(data)%compactPeerLen != 0 {
		return nil, fmt.Errorf("%w: compact peer list of %d bytes", ErrInvalidResponse, len(data))
	}

	peers := make([]PeerInfo, 0, len(data)/compactPeerLen)
	for offset := 0; offset < len(data); offset += compactPeerLen {
		ip := make(net.IP, 4)
		copy(ip, data[offset:offset+4])

		peers = append(peers, PeerInfo{
			IP:   ip,
			Port: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
		})
	}

	return peers, nil
}

// exchange writes req and reads a single datagram, each
// bounded by timeout and by ctx's deadline
func exchange(ctx context.Context, conn net.Conn, req []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	buf := make([]byte, recvBufSize)

	conn.SetReadDeadline(deadline)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// Connect obtains a connection ID over conn, which must be
// connected to the tracker
func Connect(ctx context.Context, conn net.Conn, timeout time.Duration) (uint64, error) {
	var op errors.Op = "tracker.Connect"

	req := newConnReq()

	data, err := exchange(ctx, conn, req.Bytes(), timeout)
	if err != nil {
		return 0, netError(err, op)
	}

	connID, err := unmarshalConnResponse(data, req)
	if err != nil {
		return 0, errors.Wrap(err, op, errors.Network)
	}

	return connID, nil
}

// Announce sends an announce request with connID over
// conn. A zero req.Key is replaced by one derived from the
// transaction ID.
func Announce(ctx context.Context, conn net.Conn, connID uint64, req Request, timeout time.Duration) (*Response, error) {
	var op errors.Op = "tracker.Announce"

	txID := newTxID() + 1
	if req.Key == 0 {
		req.Key = txID ^ keyMask
	}

	ureq := UDPRequest{
		ConnID:  connID,
		Action:  ANNOUNCE,
		TxID:    txID,
		Request: req,
	}

	data, err := exchange(ctx, conn, ureq.Bytes(), timeout)
	if err != nil {
		return nil, netError(err, op)
	}

	var res Response
	if err := unmarshalResponse(data, txID, &res); err != nil {
		return nil, errors.Wrap(err, op, errors.Network)
	}

	return &res, nil
}

// UDPTracker announces to a single udp:// tracker and
// remembers the outcome
type UDPTracker struct {
	*url.URL
	Timeout time.Duration

	mu           sync.Mutex
	lastAnnounce time.Time
	interval     time.Duration
	seeders      int
	leechers     int
	peers        []PeerInfo
	err          error
	failures     int
}

func NewUDPTracker(url *url.URL, timeout time.Duration) *UDPTracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &UDPTracker{
		URL:     url,
		Timeout: timeout,
	}
}

func (tr *UDPTracker) Stat() TrackerStat {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return TrackerStat{
		Url:          tr.URL,
		Peers:        tr.peers,
		Seeders:      tr.seeders,
		Leechers:     tr.leechers,
		Err:          tr.err,
		NextAnnounce: tr.lastAnnounce.Add(tr.interval),
	}
}

func (tr *UDPTracker) Err() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.err
}

func (tr *UDPTracker) ShouldAnnounce() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return !time.Now().Before(tr.lastAnnounce.Add(tr.interval))
}

// Announce runs a connect and an announce exchange on a
// fresh socket
func (tr *UDPTracker) Announce(ctx context.Context, req Request) (*Response, error) {
	var op errors.Op = "tracker.UDPTracker.Announce"

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", tr.URL.Host)
	if err != nil {
		tr.scheduleRetry(err)
		return nil, errors.Wrap(err, op, errors.Network)
	}
	defer conn.Close()

	connID, err := Connect(ctx, conn, tr.Timeout)
	if err != nil {
		tr.scheduleRetry(err)
		return nil, errors.Wrap(err, op)
	}

	res, err := Announce(ctx, conn, connID, req, tr.Timeout)
	if err != nil {
		tr.scheduleRetry(err)
		return nil, errors.Wrap(err, op)
	}

	tr.mu.Lock()
	tr.lastAnnounce = time.Now()
	tr.interval = time.Duration(res.Interval) * time.Second
	tr.leechers = int(res.NLeechers)
	tr.seeders = int(res.NSeeders)
	tr.peers = res.Peers
	tr.err = nil
	tr.failures = 0
	tr.mu.Unlock()

	log.Debug().
		Str("tracker", tr.URL.String()).
		Int("peers", len(res.Peers)).
		Uint32("interval", res.Interval).
		Msg("announce response accepted")

	return res, nil
}

// scheduleRetry backs off exponentially from 15 seconds,
// up to one hour
func (tr *UDPTracker) scheduleRetry(e error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.err = e
	tr.lastAnnounce = time.Now()

	backoff := 15 * time.Second << uint(tr.failures)
	if backoff > time.Hour || backoff <= 0 {
		backoff = time.Hour
	}

	tr.interval = backoff
	tr.failures++
}

func netError(err error, op errors.Op) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errors.Wrap(err, op, errors.Timeout)
	}

	return errors.Wrap(err, op, errors.Network)
}
