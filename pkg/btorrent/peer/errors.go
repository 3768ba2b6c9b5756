package peer

import (
	stderrors "errors"
	"fmt"
	"net"

	"github.com/namvu9/btcore/internal/errors"
)

var (
	// ErrInfoHashMismatch is returned when the remote peer's
	// handshake names a different torrent
	ErrInfoHashMismatch = stderrors.New("info hash mismatch")

	// ErrTimeout is returned when a network operation
	// exceeds its deadline
	ErrTimeout = stderrors.New("operation timed out")

	// ErrBrokenFrame is returned by Receive once a read has
	// failed partway through a frame. The stream can no
	// longer be parsed and the connection must be dropped.
	ErrBrokenFrame = stderrors.New("connection lost frame alignment")
)

// UnknownMessageError is returned when a frame carries a
// message ID this client does not know
type UnknownMessageError struct {
	ID byte
}

func (e UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown message id %d", e.ID)
}

// PayloadSizeError is returned when a message payload does
// not have the size its kind requires
type PayloadSizeError struct {
	Name    string
	Want    int
	Got     int
	AtLeast bool
}

func (e PayloadSizeError) Error() string {
	if e.AtLeast {
		return fmt.Sprintf("%s payload length: want at least %d got %d", e.Name, e.Want, e.Got)
	}

	return fmt.Sprintf("%s payload length: want %d got %d", e.Name, e.Want, e.Got)
}

// ioError classifies a transport error, turning deadline
// expiries into Timeout errors
func ioError(err error, op errors.Op) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errors.Wrap(fmt.Errorf("%w: %v", ErrTimeout, err), op, errors.Timeout)
	}

	return errors.Wrap(err, op, errors.IO)
}
