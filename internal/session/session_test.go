package session_test

import (
	"context"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/internal/session"
	"github.com/namvu9/btcore/pkg/btorrent"
	"github.com/namvu9/btcore/pkg/btorrent/peer"
	"github.com/namvu9/btcore/pkg/btorrent/tracker"
)

const pieceLength = 32768

func newTorrent(t *testing.T, size int, trackers ...string) (*btorrent.Torrent, []byte) {
	t.Helper()

	content := make([]byte, size)
	rand.New(rand.NewSource(1)).Read(content)

	data, err := btorrent.Create(btorrent.CreateOptions{
		Name:        "content.bin",
		Data:        content,
		PieceLength: pieceLength,
		Trackers:    trackers,
	})
	require.NoError(t, err)

	torrent, err := btorrent.Parse(data)
	require.NoError(t, err)

	return torrent, content
}

func newSession(t *testing.T, torrent *btorrent.Torrent, prefix string) *session.Session {
	t.Helper()

	id, err := peer.GeneratePeerID(prefix)
	require.NoError(t, err)

	s, err := session.New(torrent, session.Config{
		PeerID:      id,
		PeerTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	return s
}

func pieceOf(content []byte, i int) []byte {
	end := (i + 1) * pieceLength
	if end > len(content) {
		end = len(content)
	}

	return content[i*pieceLength : end]
}

func seeder(t *testing.T, ctx context.Context, torrent *btorrent.Torrent, content []byte) (*session.Session, net.Listener) {
	t.Helper()

	s := newSession(t, torrent, "-BY0100-")
	for i := 0; i < torrent.NumPieces(); i++ {
		require.NoError(t, s.Seed(i, pieceOf(content, i)))
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go s.Serve(ctx, ln)

	return s, ln
}

func TestDownloadFromSeeder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	torrent, content := newTorrent(t, 3*pieceLength+1000)
	seed, ln := seeder(t, ctx, torrent, content)

	leech := newSession(t, torrent, "-UT3500-")
	leech.Download(ctx, []string{ln.Addr().String()})
	require.True(t, leech.PieceManager().Complete())

	got := make([]byte, len(content))
	seen := make(map[int]bool)
	for p := range leech.Pieces() {
		assert.False(t, seen[p.Index], "piece %d delivered twice", p.Index)
		seen[p.Index] = true
		copy(got[p.Index*pieceLength:], p.Data)
	}

	assert.Len(t, seen, 4)
	assert.Equal(t, content, got)

	stat := leech.Stat()
	assert.Equal(t, int64(0), stat.Left)
	assert.Equal(t, 4, stat.Have)
	assert.Equal(t, int64(len(content)), stat.Downloaded)
	assert.Equal(t, torrent.HexHash(), stat.InfoHash)
	assert.Equal(t, 0, stat.Peers)

	assert.Eventually(t, func() bool {
		return seed.Stat().Uploaded == int64(len(content))
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return seed.Stat().Peers == 0
	}, 2*time.Second, 10*time.Millisecond, "seeder hangs up once the leecher has every piece")
}

func TestLeecherServesOtherLeechers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	torrent, content := newTorrent(t, 2*pieceLength)
	_, ln := seeder(t, ctx, torrent, content)

	first := newSession(t, torrent, "-UT3500-")
	first.Download(ctx, []string{ln.Addr().String()})
	require.True(t, first.PieceManager().Complete())

	relay, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go first.Serve(ctx, relay)

	second := newSession(t, torrent, "-TR2940-")
	second.Download(ctx, []string{relay.Addr().String()})

	assert.True(t, second.PieceManager().Complete())
	assert.Eventually(t, func() bool {
		return first.Stat().Uploaded == int64(len(content))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDownloadNoPeers(t *testing.T) {
	torrent, _ := newTorrent(t, pieceLength)
	s := newSession(t, torrent, "-BY0100-")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	s.Download(context.Background(), []string{addr})

	assert.False(t, s.PieceManager().Complete())
	assert.Equal(t, int64(pieceLength), s.Stat().Left)
}

func TestDownloadWrongTorrent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	torrent, content := newTorrent(t, pieceLength)
	_, ln := seeder(t, ctx, torrent, content)

	other, _ := newTorrent(t, 2*pieceLength)
	s := newSession(t, other, "-BY0100-")
	s.Download(ctx, []string{ln.Addr().String()})

	assert.False(t, s.PieceManager().Complete())
	assert.Equal(t, 0, s.Stat().Peers)
}

func TestSeedRejectsBadData(t *testing.T) {
	torrent, content := newTorrent(t, 2*pieceLength)
	s := newSession(t, torrent, "-BY0100-")

	bad := append([]byte{}, pieceOf(content, 0)...)
	bad[0] ^= 0xff

	err := s.Seed(0, bad)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Verification))

	err = s.Seed(5, pieceOf(content, 0))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.BadArgument))

	require.NoError(t, s.Seed(0, pieceOf(content, 0)))
	require.NoError(t, s.Seed(1, pieceOf(content, 1)))

	_, open := <-s.Pieces()
	assert.False(t, open, "pieces channel is closed once complete")
}

func TestRunWithoutUDPTracker(t *testing.T) {
	torrent, _ := newTorrent(t, pieceLength, "http://tracker.example/announce")
	s := newSession(t, torrent, "-BY0100-")

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, tracker.ErrNoUDPTracker))
}

func TestServeStopsOnCancel(t *testing.T) {
	torrent, _ := newTorrent(t, pieceLength)
	s := newSession(t, torrent, "-BY0100-")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Serve(ctx, ln) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestAnnounceBacksOffFailingTracker(t *testing.T) {
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	url := "udp://" + silent.LocalAddr().String() + "/announce"
	torrent, _ := newTorrent(t, pieceLength, url)

	s, err := session.New(torrent, session.Config{TrackerTimeout: 100 * time.Millisecond})
	require.NoError(t, err)

	res, err := s.Announce(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Errors, url)

	stats := s.Trackers()
	require.Len(t, stats, 1)
	assert.Error(t, stats[0].Err)
	assert.True(t, s.NextAnnounce().After(time.Now()))

	start := time.Now()
	res, err = s.Announce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Errors, "tracker is skipped while backing off")
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
