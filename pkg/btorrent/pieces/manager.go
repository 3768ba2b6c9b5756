// Package pieces schedules block requests and assembles
// and verifies pieces in memory.
package pieces

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/bits"
	"github.com/namvu9/btcore/pkg/btorrent"
	"github.com/namvu9/btcore/pkg/sha1sum"
)

// BlockSize is the unit of transfer within a piece
const BlockSize = 16384

// Request describes one outstanding block fetch
type Request struct {
	Index  int
	Begin  int
	Length int
}

// piece holds the state of a single piece. Every field
// other than hash, length and nBlocks is guarded by mu.
type piece struct {
	mu sync.Mutex

	hash    [20]byte
	length  int
	nBlocks int

	data       []byte
	downloaded []bool
	requested  []bool
	complete   bool
}

func (p *piece) blockLen(block int) int {
	if block == p.nBlocks-1 {
		return p.length - block*BlockSize
	}

	return BlockSize
}

func (p *piece) allDownloaded() bool {
	for _, ok := range p.downloaded {
		if !ok {
			return false
		}
	}

	return true
}

// reset discards partial state. complete is never set
// when reset is called.
func (p *piece) reset() {
	for i := range p.data {
		p.data[i] = 0
	}

	for i := range p.downloaded {
		p.downloaded[i] = false
		p.requested[i] = false
	}
}

// Manager tracks the download state of every piece of a
// torrent. Each piece is guarded by its own lock, so
// callers working on distinct pieces never contend.
type Manager struct {
	pieces      []*piece
	pieceLength int64
	totalLength int64

	hasher   sha1sum.Hasher
	selector Selector
}

type Option func(*Manager)

// WithSelector replaces the FirstFit piece selection policy
func WithSelector(s Selector) Option {
	return func(m *Manager) {
		m.selector = s
	}
}

// New returns a manager for pieces with the given hashes.
// Every piece is pieceLength bytes long except the last,
// which holds the remainder of totalLength. A nil hasher
// defaults to SHA-1.
func New(hashes [][20]byte, pieceLength, totalLength int64, hasher sha1sum.Hasher, opts ...Option) (*Manager, error) {
	var op errors.Op = "pieces.New"

	if pieceLength <= 0 || totalLength < 0 {
		err := fmt.Errorf("invalid lengths: piece %d total %d", pieceLength, totalLength)
		return nil, errors.Wrap(err, op, errors.BadArgument)
	}

	if want := (totalLength + pieceLength - 1) / pieceLength; want != int64(len(hashes)) {
		err := fmt.Errorf("%d bytes in %d-byte pieces need %d hashes, got %d", totalLength, pieceLength, want, len(hashes))
		return nil, errors.Wrap(err, op, errors.BadArgument)
	}

	if hasher == nil {
		hasher = sha1sum.SHA1
	}

	m := &Manager{
		pieces:      make([]*piece, len(hashes)),
		pieceLength: pieceLength,
		totalLength: totalLength,
		hasher:      hasher,
		selector:    FirstFit,
	}

	for _, opt := range opts {
		opt(m)
	}

	for i, hash := range hashes {
		length := pieceLength
		if rest := totalLength - int64(i)*pieceLength; rest < length {
			length = rest
		}

		nBlocks := int((length + BlockSize - 1) / BlockSize)

		m.pieces[i] = &piece{
			hash:       hash,
			length:     int(length),
			nBlocks:    nBlocks,
			data:       make([]byte, length),
			downloaded: make([]bool, nBlocks),
			requested:  make([]bool, nBlocks),
		}
	}

	return m, nil
}

// FromTorrent returns a manager for the pieces of t
func FromTorrent(t *btorrent.Torrent, hasher sha1sum.Hasher, opts ...Option) (*Manager, error) {
	return New(t.PieceHashes(), t.Info.PieceLength, t.TotalLength(), hasher, opts...)
}

func (m *Manager) PieceCount() int {
	return len(m.pieces)
}

// PieceLength returns the length of piece index, or 0 if
// index is out of range
func (m *Manager) PieceLength(index int) int {
	if index < 0 || index >= len(m.pieces) {
		return 0
	}

	return m.pieces[index].length
}

// HaveBitfield returns a snapshot of the verified pieces
func (m *Manager) HaveBitfield() bits.BitField {
	bf := bits.New(len(m.pieces))

	for i, p := range m.pieces {
		p.mu.Lock()
		if p.complete {
			bf.Set(i)
		}
		p.mu.Unlock()
	}

	return bf
}

// InterestingPieces returns the pieces available from a
// peer that are not yet verified locally
func (m *Manager) InterestingPieces(available bits.BitField) []int {
	var out []int

	for _, i := range available.Indices() {
		if i >= len(m.pieces) {
			break
		}

		p := m.pieces[i]

		p.mu.Lock()
		if !p.complete {
			out = append(out, i)
		}
		p.mu.Unlock()
	}

	return out
}

// NextRequest picks a block from a piece the peer has that
// is neither downloaded nor outstanding, marks it
// outstanding and returns it. The request length is capped
// by maxBlockSize and BlockSize. ok is false when no such
// block exists.
func (m *Manager) NextRequest(available bits.BitField, maxBlockSize int) (req Request, ok bool) {
	if maxBlockSize <= 0 || maxBlockSize > BlockSize {
		maxBlockSize = BlockSize
	}

	for _, i := range m.selector.Order(available) {
		if i < 0 || i >= len(m.pieces) {
			continue
		}

		p := m.pieces[i]

		p.mu.Lock()
		if p.complete {
			p.mu.Unlock()
			continue
		}

		for b := 0; b < p.nBlocks; b++ {
			if p.downloaded[b] || p.requested[b] {
				continue
			}

			p.requested[b] = true

			length := p.blockLen(b)
			if length > maxBlockSize {
				length = maxBlockSize
			}

			p.mu.Unlock()

			return Request{Index: i, Begin: b * BlockSize, Length: length}, true
		}
		p.mu.Unlock()
	}

	return Request{}, false
}

func (m *Manager) block(op errors.Op, index, begin int) (*piece, int, error) {
	if index < 0 || index >= len(m.pieces) {
		return nil, 0, invalidIndex(op, index, len(m.pieces))
	}

	p := m.pieces[index]
	if begin < 0 || begin%BlockSize != 0 || begin/BlockSize >= p.nBlocks {
		return nil, 0, invalidOffset(op, index, begin)
	}

	return p, begin / BlockSize, nil
}

// MarkRequested records a request issued without
// NextRequest
func (m *Manager) MarkRequested(index, begin int) error {
	var op errors.Op = "pieces.Manager.MarkRequested"

	p, b, err := m.block(op, index, begin)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.complete && !p.downloaded[b] {
		p.requested[b] = true
	}

	return nil
}

// AddBlock stores a received block. When it is the last
// missing block of its piece the piece is verified: on a
// match a copy of the piece is returned, on a mismatch the
// piece is reset and ErrVerificationFailed is returned.
// Otherwise AddBlock returns nil, nil.
func (m *Manager) AddBlock(index, begin int, data []byte) ([]byte, error) {
	var op errors.Op = "pieces.Manager.AddBlock"

	p, b, err := m.block(op, index, begin)
	if err != nil {
		return nil, err
	}

	if want := p.blockLen(b); len(data) != want {
		return nil, invalidSize(op, index, want, len(data))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Late duplicate of a block in a verified piece
	if p.complete {
		return nil, nil
	}

	copy(p.data[begin:], data)
	p.downloaded[b] = true
	p.requested[b] = false

	if !p.allDownloaded() {
		return nil, nil
	}

	if !bytes.Equal(m.hasher.Sum(p.data), p.hash[:]) {
		p.reset()

		log.Warn().Int("piece", index).Msg("piece failed verification")

		return nil, verificationFailed(op, index)
	}

	p.complete = true

	log.Debug().Int("piece", index).Int("length", p.length).Msg("piece verified")

	out := make([]byte, len(p.data))
	copy(out, p.data)

	return out, nil
}

// MarkHaveFromData verifies a full piece obtained
// elsewhere, such as a previous session, and marks it
// complete
func (m *Manager) MarkHaveFromData(index int, data []byte) error {
	var op errors.Op = "pieces.Manager.MarkHaveFromData"

	if index < 0 || index >= len(m.pieces) {
		return invalidIndex(op, index, len(m.pieces))
	}

	p := m.pieces[index]
	if len(data) != p.length {
		return invalidSize(op, index, p.length, len(data))
	}

	if !bytes.Equal(m.hasher.Sum(data), p.hash[:]) {
		return verificationFailed(op, index)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	copy(p.data, data)
	for b := range p.downloaded {
		p.downloaded[b] = true
		p.requested[b] = false
	}
	p.complete = true

	return nil
}

// ReadBlock returns a copy of length bytes at begin within
// a verified piece
func (m *Manager) ReadBlock(index, begin, length int) ([]byte, error) {
	var op errors.Op = "pieces.Manager.ReadBlock"

	if index < 0 || index >= len(m.pieces) {
		return nil, invalidIndex(op, index, len(m.pieces))
	}

	p := m.pieces[index]
	if begin < 0 || begin >= p.length {
		return nil, invalidOffset(op, index, begin)
	}

	if length <= 0 || length > BlockSize || begin+length > p.length {
		return nil, invalidSize(op, index, p.length-begin, length)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.complete {
		err := fmt.Errorf("piece %d is not complete", index)
		return nil, errors.Wrap(err, op, errors.BadArgument)
	}

	out := make([]byte, length)
	copy(out, p.data[begin:])

	return out, nil
}

// PieceComplete reports whether piece index is verified
func (m *Manager) PieceComplete(index int) bool {
	if index < 0 || index >= len(m.pieces) {
		return false
	}

	p := m.pieces[index]

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.complete
}

// Complete reports whether every piece is verified
func (m *Manager) Complete() bool {
	for i := range m.pieces {
		if !m.PieceComplete(i) {
			return false
		}
	}

	return true
}

// Left returns the number of bytes in pieces that are not
// yet verified
func (m *Manager) Left() int64 {
	var left int64

	for _, p := range m.pieces {
		p.mu.Lock()
		if !p.complete {
			left += int64(p.length)
		}
		p.mu.Unlock()
	}

	return left
}
