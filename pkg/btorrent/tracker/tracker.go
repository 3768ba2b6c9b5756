package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/btorrent"
)

// UDP Tracker Actions
const (
	CONNECT  uint32 = 0
	ANNOUNCE uint32 = 1
	SCRAPE   uint32 = 2
	ERROR    uint32 = 3
)

var (
	// ErrNoUDPTracker is returned when metadata lists no
	// udp:// tracker
	ErrNoUDPTracker = stderrors.New("no UDP tracker")

	// ErrInvalidResponse is returned for responses that do
	// not answer the request that was sent
	ErrInvalidResponse = stderrors.New("invalid tracker response")
)

// TrackerError carries the message of an ERROR response
type TrackerError struct {
	Message string
}

func (e TrackerError) Error() string {
	return fmt.Sprintf("tracker error: %s", e.Message)
}

type Tracker interface {
	Announce(context.Context, Request) (*Response, error)
	ShouldAnnounce() bool
	Err() error
	Stat() TrackerStat
}

type TrackerStat struct {
	Url          *url.URL
	Peers        []PeerInfo
	Seeders      int
	Leechers     int
	NextAnnounce time.Time
	Err          error
}

func (ts TrackerStat) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("-----\n%s\n-----\n", ts.Url))
	sb.WriteString(fmt.Sprintf("Seeders: %d\n", ts.Seeders))
	sb.WriteString(fmt.Sprintf("Leechers: %d\n", ts.Leechers))
	sb.WriteString(fmt.Sprintf("Peers: %d\n", len(ts.Peers)))

	if !ts.NextAnnounce.IsZero() {
		sb.WriteString(fmt.Sprintf("NextAnnounce: %s\n", ts.NextAnnounce.Format(time.ANSIC)))
	}

	if ts.Err != nil {
		sb.WriteString(fmt.Sprintf("Error: %s\n", ts.Err))
	}

	return sb.String()
}

type PeerInfo struct {
	IP   net.IP
	Port uint16
}

func (p PeerInfo) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

func (p PeerInfo) Addr() *net.TCPAddr {
	return &net.TCPAddr{IP: p.IP, Port: int(p.Port)}
}

type Response struct {
	Action    uint32
	TxID      uint32
	Interval  uint32
	NLeechers uint32
	NSeeders  uint32
	Peers     []PeerInfo
}

func (r *Response) Bytes() []byte {
	var buf bytes.Buffer

	binary.Write(&buf, binary.BigEndian, r.Action)
	binary.Write(&buf, binary.BigEndian, r.TxID)
	binary.Write(&buf, binary.BigEndian, r.Interval)
	binary.Write(&buf, binary.BigEndian, r.NLeechers)
	binary.Write(&buf, binary.BigEndian, r.NSeeders)

	for _, peer := range r.Peers {
		buf.Write(peer.IP.To4())
		binary.Write(&buf, binary.BigEndian, peer.Port)
	}

	return buf.Bytes()
}

type Request struct {
	Hash   [20]byte
	PeerID [20]byte

	Downloaded uint64
	Left       uint64
	Uploaded   uint64
	Event      uint32 // 0: None
	IP         uint32 // Default: 0
	Key        uint32
	Want       int32 // Default: -1
	Port       uint16
}

func NewRequest(hash [20]byte, port uint16, peerID [20]byte) Request {
	return Request{
		Want:   -1,
		PeerID: peerID,
		Hash:   hash,
		Port:   port,
	}
}

// TrackerGroup is the set of UDP trackers of a torrent
type TrackerGroup struct {
	trackers []Tracker
}

// NewGroup keeps the udp:// URLs of addrs, dropping
// duplicates and URLs that do not parse
func NewGroup(addrs []string, timeout time.Duration) *TrackerGroup {
	var (
		trackers []Tracker
		seen     = make(map[string]bool)
	)

	for _, addr := range addrs {
		url, err := url.Parse(addr)
		if err != nil || url.Scheme != "udp" || url.Host == "" {
			continue
		}

		if seen[url.String()] {
			continue
		}
		seen[url.String()] = true

		trackers = append(trackers, NewUDPTracker(url, timeout))
	}

	return &TrackerGroup{trackers: trackers}
}

func (tg *TrackerGroup) Len() int {
	return len(tg.trackers)
}

// NextAnnounce returns the earliest time a tracker of the
// group is due again
func (tg *TrackerGroup) NextAnnounce() time.Time {
	var next time.Time
	for _, tracker := range tg.trackers {
		at := tracker.Stat().NextAnnounce
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}

	return next
}

func (tg *TrackerGroup) Stat() []TrackerStat {
	var out []TrackerStat
	for _, tracker := range tg.trackers {
		out = append(out, tracker.Stat())
	}

	return out
}

// AnnounceResult is the union of every tracker's response
type AnnounceResult struct {
	// Peers in tracker order, without duplicates
	Peers []PeerInfo

	// Interval is the shortest re-announce interval returned
	Interval time.Duration

	Seeders  int
	Leechers int

	// Errors maps a tracker URL to the reason its announce
	// failed
	Errors map[string]error
}

// Announce announces to every tracker that is due,
// concurrently. A failing tracker does not affect the
// others; its error is logged and recorded in the result.
func (tg *TrackerGroup) Announce(ctx context.Context, req Request) AnnounceResult {
	var (
		wg        sync.WaitGroup
		responses = make([]*Response, len(tg.trackers))
		errs      = make([]error, len(tg.trackers))
	)

	for i, tracker := range tg.trackers {
		if !tracker.ShouldAnnounce() {
			continue
		}

		wg.Add(1)
		go func(i int, tracker Tracker) {
			defer wg.Done()
			responses[i], errs[i] = tracker.Announce(ctx, req)
		}(i, tracker)
	}

	wg.Wait()

	res := AnnounceResult{Errors: make(map[string]error)}
	seen := make(map[string]bool)

	for i, tracker := range tg.trackers {
		url := tracker.Stat().Url.String()

		if err := errs[i]; err != nil {
			log.Warn().Err(err).Str("tracker", url).Msg("announce failed")
			res.Errors[url] = err
			continue
		}

		r := responses[i]
		if r == nil {
			continue
		}

		interval := time.Duration(r.Interval) * time.Second
		if res.Interval == 0 || (interval > 0 && interval < res.Interval) {
			res.Interval = interval
		}

		if int(r.NSeeders) > res.Seeders {
			res.Seeders = int(r.NSeeders)
		}

		if int(r.NLeechers) > res.Leechers {
			res.Leechers = int(r.NLeechers)
		}

		for _, peer := range r.Peers {
			key := peer.String()
			if seen[key] {
				continue
			}
			seen[key] = true

			res.Peers = append(res.Peers, peer)
		}
	}

	log.Debug().Int("peers", len(res.Peers)).Int("failed", len(res.Errors)).Msg("announce complete")

	return res
}

// GroupFromMetadata returns the UDP trackers listed in t's
// announce and announce-list fields. A session keeps the
// group so that failing trackers back off between
// announces.
func GroupFromMetadata(t *btorrent.Torrent, timeout time.Duration) (*TrackerGroup, error) {
	var op errors.Op = "tracker.GroupFromMetadata"

	tg := NewGroup(t.Trackers(), timeout)
	if tg.Len() == 0 {
		return tg, errors.Wrap(ErrNoUDPTracker, op, errors.BadArgument)
	}

	return tg, nil
}

// AnnounceFromMetadata announces to every UDP tracker
// listed in t's announce and announce-list fields and
// returns the union of their peers. It fails only when t
// lists no UDP tracker.
func AnnounceFromMetadata(ctx context.Context, t *btorrent.Torrent, req Request, timeout time.Duration) (AnnounceResult, error) {
	var op errors.Op = "tracker.AnnounceFromMetadata"

	tg, err := GroupFromMetadata(t, timeout)
	if err != nil {
		return AnnounceResult{}, errors.Wrap(err, op)
	}

	req.Hash = t.InfoHash()

	return tg.Announce(ctx, req), nil
}
